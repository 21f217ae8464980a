package resolve

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"stockbot/internal/rhood"
)

// Ticker grammar: letters and dots, 1-14 chars. Matching is
// case-insensitive; the standard identifier is the upper-cased form.
var stockPattern = regexp.MustCompile(`^[A-Z.]{1,14}$`)

type stockParser struct {
	client *rhood.Client
	log    *slog.Logger
}

func (p *stockParser) Kind() rhood.Kind { return rhood.KindStock }
func (p *stockParser) Example() string  { return "AMZN" }

func (p *stockParser) Match(identifier string) bool {
	return stockPattern.MatchString(strings.ToUpper(identifier))
}

func (p *stockParser) SearchParams(ctx context.Context, identifier string) (rhood.Params, error) {
	if !p.Match(identifier) {
		return nil, &rhood.BadRequestError{Message: "invalid stock identifier: '" + identifier + "'"}
	}
	return rhood.Params{"symbol": strings.ToUpper(identifier)}, nil
}

func (p *stockParser) ParamsFor(inst rhood.Instrument) rhood.Params {
	return rhood.Params{"symbol": inst.Identifier()}
}

func (p *stockParser) StandardIdentifier(identifier string) (string, error) {
	if !p.Match(identifier) {
		return "", &rhood.BadRequestError{Message: "invalid stock identifier: '" + identifier + "'"}
	}
	return strings.ToUpper(identifier), nil
}

// Filter takes the first result. No case of the upstream returning more
// than one instrument per symbol has been observed; warn if it ever does.
func (p *stockParser) Filter(results []rhood.Instrument, params rhood.Params) []rhood.Instrument {
	if len(results) > 1 {
		p.log.Warn("multiple instruments for symbol, taking first", "symbol", params["symbol"], "count", len(results))
		return results[:1]
	}
	return results
}

func (p *stockParser) Search(ctx context.Context, params rhood.Params) ([]rhood.Instrument, error) {
	stocks, err := p.client.SearchStocks(ctx, params)
	if err != nil {
		return nil, err
	}
	return stockInstruments(stocks), nil
}

func (p *stockParser) Batch(ctx context.Context, ids []string) ([]rhood.Instrument, error) {
	stocks, err := p.client.SearchStocks(ctx, rhood.Params{"ids": ids})
	if err != nil {
		return nil, err
	}
	return stockInstruments(stocks), nil
}

func (p *stockParser) Decode(raw json.RawMessage) (rhood.Instrument, error) {
	return rhood.DecodeStock(raw)
}

func (p *stockParser) BaseURL() string { return p.client.StockBaseURL() }

func (p *stockParser) SearchURL(params rhood.Params) string {
	return p.client.StockSearchURL(params)
}

func stockInstruments(stocks []*rhood.Stock) []rhood.Instrument {
	out := make([]rhood.Instrument, len(stocks))
	for i, s := range stocks {
		out[i] = s
	}
	return out
}
