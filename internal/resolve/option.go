package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"stockbot/internal/rhood"
)

// Option grammar: SYMBOL[$]PRICE[C|P][@EXPIRATION]. PRICE allows
// half-dollar increments; EXPIRATION accepts 4-digit (MMDD), 8-digit
// (MMDDYYYY), or delimited date forms.
var optionPattern = regexp.MustCompile(`^([A-Z.]+)\$?([0-9]+(\.[05]0?)?)([CP])@?([0-9/\-]+)?$`)

// ParsedOption is the pure parse result of an option identifier.
type ParsedOption struct {
	Symbol        string
	Strike        float64
	Type          string // call | put
	Expiration    time.Time
	HasExpiration bool
}

// ParseOption parses an option identifier expression. Parsing is pure: no
// lookups happen here.
func ParseOption(identifier string) (*ParsedOption, error) {
	match := optionPattern.FindStringSubmatch(strings.ToUpper(identifier))
	if match == nil {
		return nil, &rhood.BadRequestError{Message: "not a valid option identifier: " + identifier}
	}
	strike, err := strconv.ParseFloat(match[2], 64)
	if err != nil {
		return nil, &rhood.BadRequestError{Message: "not a valid option strike price: " + match[2]}
	}
	parsed := &ParsedOption{Symbol: match[1], Strike: strike}
	if match[4] == "C" {
		parsed.Type = "call"
	} else {
		parsed.Type = "put"
	}
	if match[5] != "" {
		expiration, err := parseExpirationDate(match[5], time.Now())
		if err != nil {
			return nil, err
		}
		parsed.Expiration = expiration
		parsed.HasExpiration = true
	}
	return parsed, nil
}

// parseExpirationDate converts the compact 4- and 8-digit forms plus
// delimited dates. Two-digit years land in 2000-2099; a missing year is
// the current one.
func parseExpirationDate(s string, now time.Time) (time.Time, error) {
	if regexp.MustCompile(`^[0-9]{4}$`).MatchString(s) {
		s = s[0:2] + "/" + s[2:4]
	} else if regexp.MustCompile(`^[0-9]{8}$`).MatchString(s) {
		s = s[0:2] + "/" + s[2:4] + "/" + s[4:8]
	}

	parts := regexp.MustCompile(`[/\-]`).Split(s, -1)
	if len(parts) < 2 || len(parts) > 3 {
		return time.Time{}, &rhood.BadRequestError{Message: "invalid date: '" + s + "'"}
	}
	month, err1 := strconv.Atoi(parts[0])
	day, err2 := strconv.Atoi(parts[1])
	year := now.Year()
	var err3 error
	if len(parts) == 3 {
		year, err3 = strconv.Atoi(parts[2])
		if year < 100 {
			year += 2000
		}
	}
	if err1 != nil || err2 != nil || err3 != nil || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, &rhood.BadRequestError{Message: "invalid date: '" + s + "'"}
	}
	expiration := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes impossible dates (2/31 becomes March 3); a
	// shifted month or day means the input named no real calendar day.
	if expiration.Month() != time.Month(month) || expiration.Day() != day {
		return time.Time{}, &rhood.BadRequestError{Message: "invalid date: '" + s + "'"}
	}
	return expiration, nil
}

// StandardIdentifier renders a parsed option in its canonical spelling:
// strike at one decimal, expiration as MM/DD/YY. Distinct spellings of
// the same contract collide on this string.
func (p *ParsedOption) StandardIdentifier() string {
	standard := fmt.Sprintf("%s%s%s",
		p.Symbol,
		strconv.FormatFloat(p.Strike, 'f', 1, 64),
		strings.ToUpper(p.Type[:1]))
	if p.HasExpiration {
		standard += "@" + p.Expiration.Format("01/02/06")
	}
	return standard
}

type optionParser struct {
	client *rhood.Client
	log    *slog.Logger
}

func (p *optionParser) Kind() rhood.Kind { return rhood.KindOption }
func (p *optionParser) Example() string  { return "AAPL250.5C@12-21" }

func (p *optionParser) Match(identifier string) bool {
	return optionPattern.MatchString(strings.ToUpper(identifier))
}

// SearchParams resolves the underlying's tradable chain through a nested
// stock lookup, which is the one impure step of option identifier
// handling. The expiration_date parameter is ignored by the upstream but
// participates in the cache key.
func (p *optionParser) SearchParams(ctx context.Context, identifier string) (rhood.Params, error) {
	parsed, err := ParseOption(identifier)
	if err != nil {
		return nil, err
	}
	stocks, err := p.client.SearchStocks(ctx, rhood.Params{"symbol": parsed.Symbol})
	if err != nil {
		return nil, err
	}
	if len(stocks) == 0 || stocks[0].TradableChainID == "" {
		return nil, &rhood.NotFoundError{Kind: rhood.KindStock, Identifier: parsed.Symbol}
	}
	params := rhood.Params{
		"chain_id":     stocks[0].TradableChainID,
		"strike_price": strconv.FormatFloat(parsed.Strike, 'f', 4, 64),
		"type":         parsed.Type,
	}
	if parsed.HasExpiration {
		params["expiration_date"] = parsed.Expiration.Format("2006-01-02")
	} else {
		// No expiration given: restrict to currently-active contracts so
		// the front date can be selected.
		params["state"] = "active"
	}
	return params, nil
}

func (p *optionParser) ParamsFor(inst rhood.Instrument) rhood.Params {
	o := inst.(*rhood.Option)
	return rhood.Params{
		"chain_id":        o.ChainID,
		"strike_price":    strconv.FormatFloat(o.StrikePrice.Float(), 'f', 4, 64),
		"type":            o.Type,
		"expiration_date": o.ExpirationDate.Format("2006-01-02"),
	}
}

func (p *optionParser) StandardIdentifier(identifier string) (string, error) {
	parsed, err := ParseOption(identifier)
	if err != nil {
		return "", err
	}
	return parsed.StandardIdentifier(), nil
}

// Filter applies the option disambiguation rule: with an expiration, the
// unique exact match among non-inactive contracts; without one, the
// earliest-expiring contract (the front date).
func (p *optionParser) Filter(results []rhood.Instrument, params rhood.Params) []rhood.Instrument {
	sorted := append([]rhood.Instrument(nil), results...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].(*rhood.Option).ExpirationDate.Before(sorted[j].(*rhood.Option).ExpirationDate.Time)
	})

	expiration, _ := params["expiration_date"].(string)
	if expiration == "" {
		if len(sorted) > 1 {
			return sorted[:1]
		}
		return sorted
	}

	var matches []rhood.Instrument
	for _, inst := range sorted {
		o := inst.(*rhood.Option)
		if o.State == "inactive" {
			// Removed or deactivated, not expired.
			continue
		}
		if o.ExpirationDate.Format("2006-01-02") == expiration {
			matches = append(matches, inst)
		}
	}
	return matches
}

func (p *optionParser) Search(ctx context.Context, params rhood.Params) ([]rhood.Instrument, error) {
	// The upstream cannot filter options by expiration; strip it before
	// the call and let Filter apply it.
	options, err := p.client.SearchOptions(ctx, searchableParams(params))
	if err != nil {
		return nil, err
	}
	return optionInstruments(options), nil
}

func searchableParams(params rhood.Params) rhood.Params {
	out := rhood.Params{}
	for k, v := range params {
		if k == "expiration_date" {
			continue
		}
		out[k] = v
	}
	return out
}

func (p *optionParser) Batch(ctx context.Context, ids []string) ([]rhood.Instrument, error) {
	options, err := p.client.SearchOptions(ctx, rhood.Params{"ids": ids})
	if err != nil {
		return nil, err
	}
	return optionInstruments(options), nil
}

func (p *optionParser) Decode(raw json.RawMessage) (rhood.Instrument, error) {
	return rhood.DecodeOption(raw)
}

func (p *optionParser) BaseURL() string { return p.client.OptionBaseURL() }

func (p *optionParser) SearchURL(params rhood.Params) string {
	return p.client.OptionSearchURL(params)
}

func optionInstruments(options []*rhood.Option) []rhood.Instrument {
	out := make([]rhood.Instrument, len(options))
	for i, o := range options {
		out[i] = o
	}
	return out
}
