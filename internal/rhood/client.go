// Package rhood is the authenticated, cached, retrying client for the
// upstream brokerage HTTP API. It exposes typed resource fetches over a
// single request pipeline with a fixed error taxonomy.
package rhood

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"stockbot/internal/cache"
)

// DefaultBaseURL is the production upstream endpoint.
const DefaultBaseURL = "https://api.robinhood.com"

// TokenPath is the OAuth token endpoint path.
const TokenPath = "/oauth2/token/"

// Params are query parameters for a search or list call. Values may be
// strings, string slices (joined as sorted comma lists), or any value
// with a natural fmt rendering.
type Params map[string]any

// AuthProvider attaches credentials to outgoing requests and supports
// reactive refresh after an upstream auth rejection.
type AuthProvider interface {
	Apply(ctx context.Context, req *resty.Request) error
	ForceRefresh(ctx context.Context) error
}

// resource describes an endpoint's pipeline behavior, mirroring the
// per-resource cache and auth settings of the upstream's resource kinds.
type resource struct {
	name          string
	path          string
	authenticated bool
	cacheable     bool
	ttl           time.Duration
}

var (
	resStock             = resource{name: "stock", path: "/instruments", cacheable: true, ttl: cache.TTLInstrument}
	resOption            = resource{name: "option", path: "/options/instruments", authenticated: true, cacheable: true, ttl: cache.TTLInstrument}
	resStockQuote        = resource{name: "quote", path: "/quotes", authenticated: true}
	resOptionQuote       = resource{name: "option quote", path: "/marketdata/options", authenticated: true}
	resStockHistoricals  = resource{name: "historicals", path: "/quotes/historicals", authenticated: true, cacheable: true, ttl: cache.TTLHistoricals}
	resOptionHistoricals = resource{name: "option historicals", path: "/marketdata/options/historicals", authenticated: true, cacheable: true, ttl: cache.TTLHistoricals}
	resFundamentals      = resource{name: "fundamentals", path: "/fundamentals", authenticated: true, cacheable: true, ttl: cache.TTLFundamentals}
	resMarket            = resource{name: "market", path: "/markets", cacheable: true, ttl: cache.TTLMarketHours}
	resNews              = resource{name: "news", path: "/midlands/news", authenticated: true}
)

// ClientConfig assembles a Client.
type ClientConfig struct {
	BaseURL  string
	HTTP     *resty.Client
	Cache    *cache.Cache
	Auth     AuthProvider
	Attempts int
	Logger   *slog.Logger
}

// Client is the explicit context object for all upstream access. Build
// one at process start and inject it into the resolver and aggregator;
// there is no package-level shared state.
type Client struct {
	base     string
	httpc    *resty.Client
	cache    *cache.Cache
	mock     *cache.MockTable
	auth     AuthProvider
	attempts int
	log      *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTP == nil {
		cfg.HTTP = NewHTTPClient()
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		base:     strings.TrimSuffix(cfg.BaseURL, "/"),
		httpc:    cfg.HTTP,
		cache:    cfg.Cache,
		auth:     cfg.Auth,
		attempts: cfg.Attempts,
		log:      cfg.Logger,
	}
}

// EnableMock switches the client into mock mode: every request resolves
// from the table, and unmocked requests fail hard.
func (c *Client) EnableMock(t *cache.MockTable) { c.mock = t }

// BaseURL returns the configured upstream base, without trailing slash.
func (c *Client) BaseURL() string { return c.base }

func (c *Client) resourceBase(res resource) string {
	return c.base + res.path + "/"
}

func (c *Client) resourceURL(res resource, id string) string {
	if id == "" {
		return c.resourceBase(res)
	}
	return c.resourceBase(res) + id + "/"
}

// StockBaseURL is the canonical prefix of stock resource URLs.
func (c *Client) StockBaseURL() string { return c.resourceBase(resStock) }

// OptionBaseURL is the canonical prefix of option resource URLs.
func (c *Client) OptionBaseURL() string { return c.resourceBase(resOption) }

// StockSearchURL builds the canonical stock search URL for params,
// exactly as the pipeline would key it in the cache.
func (c *Client) StockSearchURL(params Params) string {
	return c.CanonicalURL(c.resourceBase(resStock), params)
}

// OptionSearchURL builds the canonical option search URL for params.
func (c *Client) OptionSearchURL(params Params) string {
	return c.CanonicalURL(c.resourceBase(resOption), params)
}

// CanonicalURL produces the normalized request URL: path made absolute,
// parameters sorted by key, list values sorted and comma-joined. Two
// semantically identical requests always produce the same string, which
// maximizes cache hit rate.
func (c *Client) CanonicalURL(resourceURL string, params Params) string {
	requestURL := resourceURL
	if strings.HasPrefix(requestURL, "/") {
		requestURL = c.base + requestURL
	}
	if len(params) == 0 {
		return requestURL
	}
	values := url.Values{}
	for key, v := range params {
		values.Set(key, canonicalParamValue(v))
	}
	sep := "?"
	if strings.Contains(requestURL, "?") {
		sep = "&"
	}
	// url.Values.Encode emits keys in sorted order.
	return requestURL + sep + values.Encode()
}

func canonicalParamValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		sorted := append([]string(nil), val...)
		sort.Strings(sorted)
		return strings.Join(sorted, ",")
	case Instrument:
		return val.InstrumentURL()
	default:
		return fmt.Sprint(val)
	}
}

// request runs one pipeline call: canonical URL, mock table, cache,
// authentication, then the network with a bounded retry budget.
func (c *Client) request(ctx context.Context, resourceURL string, params Params, res resource) (json.RawMessage, error) {
	requestURL := c.CanonicalURL(resourceURL, params)

	if c.mock != nil {
		if raw, ok := c.mock.Get(requestURL); ok {
			return raw, nil
		}
		return nil, &MockMissError{URL: requestURL}
	}

	if res.cacheable && c.cache != nil {
		if raw, ok := c.cache.Get(requestURL); ok {
			c.log.Debug("cache hit", "url", requestURL)
			return raw, nil
		}
	}

	for attempt := c.attempts; attempt > 0; attempt-- {
		req := c.httpc.R().SetContext(ctx)
		if res.authenticated && c.auth != nil {
			if err := c.auth.Apply(ctx, req); err != nil {
				return nil, err
			}
		}

		resp, err := req.Get(requestURL)
		if err != nil {
			if attempt > 1 {
				c.log.Warn("connection error, retrying", "url", requestURL, "error", err)
				continue
			}
			return nil, &InternalError{Message: fmt.Sprintf("repeated connection errors calling %s: %v", requestURL, err)}
		}

		status := resp.StatusCode()
		body := resp.Body()
		switch {
		case status == 200:
			raw := json.RawMessage(append([]byte(nil), body...))
			if res.cacheable && c.cache != nil {
				// Only successful calls are cached.
				c.cache.Set(requestURL, raw, res.ttl)
			}
			return raw, nil
		case status == 400:
			return nil, &BadRequestError{Message: string(body), URL: requestURL}
		case status == 401:
			if !res.authenticated {
				return nil, &UnauthorizedError{Message: "this API endpoint requires authentication: " + res.path}
			}
			if c.auth != nil && attempt > 1 {
				// Credentials may have expired mid-flight.
				if err := c.auth.ForceRefresh(ctx); err != nil {
					return nil, err
				}
				continue
			}
			return nil, &UnauthorizedError{Message: "authentication credentials were not accepted"}
		case status == 403:
			if c.auth != nil && attempt > 1 {
				c.log.Warn("request rejected, refreshing credentials", "url", requestURL)
				if err := c.auth.ForceRefresh(ctx); err != nil {
					return nil, err
				}
				continue
			}
			return nil, &ForbiddenError{Message: "not authorized to access this resource: " + requestURL}
		case status == 404:
			// Absence is not an error.
			return nil, nil
		case status == 429:
			return nil, &ThrottledError{Message: string(body)}
		case status >= 500:
			if attempt > 1 {
				c.log.Warn("upstream internal error, retrying", "url", requestURL, "status", status)
				continue
			}
			return nil, &InternalError{Status: status, Message: string(body)}
		default:
			return nil, &CallError{Status: status, Body: string(body), URL: requestURL}
		}
	}
	return nil, &InternalError{Message: "request attempts exhausted"}
}

// page is the upstream search envelope.
type page struct {
	Results []json.RawMessage `json:"results"`
	Next    string            `json:"next"`
}

// searchRaw auto-paginates a search, following the next cursor until
// exhausted.
func (c *Client) searchRaw(ctx context.Context, res resource, params Params) ([]json.RawMessage, error) {
	raw, err := c.request(ctx, c.resourceBase(res), params, res)
	if err != nil {
		return nil, err
	}
	var results []json.RawMessage
	for raw != nil {
		var p page
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s search page: %w", res.name, err)
		}
		if p.Results == nil {
			break
		}
		for _, r := range p.Results {
			if len(r) > 0 && string(r) != "null" {
				results = append(results, r)
			}
		}
		if p.Next == "" {
			break
		}
		raw, err = c.request(ctx, p.Next, nil, res)
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// getRaw fetches a single resource by id or fully-qualified URL. Returns
// (nil, nil) when the resource does not exist.
func (c *Client) getRaw(ctx context.Context, res resource, idOrURL string, params Params) (json.RawMessage, error) {
	u := idOrURL
	if !strings.HasPrefix(u, "https://") {
		u = c.resourceURL(res, idOrURL)
	}
	return c.request(ctx, u, params, res)
}

func searchTyped[T any](ctx context.Context, c *Client, res resource, params Params) ([]*T, error) {
	raws, err := c.searchRaw(ctx, res, params)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(raws))
	for _, raw := range raws {
		v, err := decodeResource[T](res.name, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// SearchStocks queries the instrument endpoint.
func (c *Client) SearchStocks(ctx context.Context, params Params) ([]*Stock, error) {
	raws, err := c.searchRaw(ctx, resStock, params)
	if err != nil {
		return nil, err
	}
	out := make([]*Stock, 0, len(raws))
	for _, raw := range raws {
		s, err := DecodeStock(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// SearchOptions queries the option instrument endpoint.
func (c *Client) SearchOptions(ctx context.Context, params Params) ([]*Option, error) {
	raws, err := c.searchRaw(ctx, resOption, params)
	if err != nil {
		return nil, err
	}
	out := make([]*Option, 0, len(raws))
	for _, raw := range raws {
		o, err := DecodeOption(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// GetStock fetches one stock by UUID or resource URL; nil when absent.
func (c *Client) GetStock(ctx context.Context, idOrURL string) (*Stock, error) {
	raw, err := c.getRaw(ctx, resStock, idOrURL, nil)
	if err != nil || raw == nil {
		return nil, err
	}
	return DecodeStock(raw)
}

// GetOption fetches one option by UUID or resource URL; nil when absent.
func (c *Client) GetOption(ctx context.Context, idOrURL string) (*Option, error) {
	raw, err := c.getRaw(ctx, resOption, idOrURL, nil)
	if err != nil || raw == nil {
		return nil, err
	}
	return DecodeOption(raw)
}

// SearchStockQuotes batch-fetches quotes for instrument URLs.
func (c *Client) SearchStockQuotes(ctx context.Context, instrumentURLs []string) ([]*Quote, error) {
	return searchTyped[Quote](ctx, c, resStockQuote, Params{"instruments": instrumentURLs})
}

// SearchOptionQuotes batch-fetches option quotes for instrument URLs.
func (c *Client) SearchOptionQuotes(ctx context.Context, instrumentURLs []string) ([]*OptionQuote, error) {
	return searchTyped[OptionQuote](ctx, c, resOptionQuote, Params{"instruments": instrumentURLs})
}

// SearchStockHistoricals batch-fetches stock price series. spanParams
// come from aggregate.HistoricalParams.
func (c *Client) SearchStockHistoricals(ctx context.Context, instrumentURLs []string, spanParams Params) ([]*Historicals, error) {
	return searchTyped[Historicals](ctx, c, resStockHistoricals, mergeParams(spanParams, Params{"instruments": instrumentURLs}))
}

// SearchOptionHistoricals batch-fetches option price series.
func (c *Client) SearchOptionHistoricals(ctx context.Context, instrumentURLs []string, spanParams Params) ([]*Historicals, error) {
	return searchTyped[Historicals](ctx, c, resOptionHistoricals, mergeParams(spanParams, Params{"instruments": instrumentURLs}))
}

// GetFundamentals fetches company fundamentals by symbol; nil when absent.
func (c *Client) GetFundamentals(ctx context.Context, symbol string) (*Fundamentals, error) {
	raw, err := c.getRaw(ctx, resFundamentals, symbol, nil)
	if err != nil || raw == nil {
		return nil, err
	}
	return decodeResource[Fundamentals](resFundamentals.name, raw)
}

// GetMarket fetches an exchange venue by MIC; nil when absent.
func (c *Client) GetMarket(ctx context.Context, mic string) (*Market, error) {
	raw, err := c.getRaw(ctx, resMarket, mic, nil)
	if err != nil || raw == nil {
		return nil, err
	}
	return decodeResource[Market](resMarket.name, raw)
}

// GetMarketHours fetches the trading session for a venue and date.
func (c *Client) GetMarketHours(ctx context.Context, mic string, day time.Time) (*MarketHours, error) {
	u := fmt.Sprintf("%s/markets/%s/hours/%s/", c.base, mic, day.Format("2006-01-02"))
	raw, err := c.request(ctx, u, nil, resMarket)
	if err != nil || raw == nil {
		return nil, err
	}
	return decodeResource[MarketHours]("market hours", raw)
}

// FetchMarketRef resolves a lazy market reference URL.
func (c *Client) FetchMarketRef(ctx context.Context, refURL string) (*Market, error) {
	raw, err := c.request(ctx, refURL, nil, resMarket)
	if err != nil || raw == nil {
		return nil, err
	}
	return decodeResource[Market](resMarket.name, raw)
}

// FetchMarketHoursRef resolves a lazy market-hours reference URL, such as
// MarketHours.PreviousOpenHoursURL.
func (c *Client) FetchMarketHoursRef(ctx context.Context, refURL string) (*MarketHours, error) {
	raw, err := c.request(ctx, refURL, nil, resMarket)
	if err != nil || raw == nil {
		return nil, err
	}
	return decodeResource[MarketHours]("market hours", raw)
}

// FetchFundamentalsRef resolves a stock's lazy fundamentals reference.
func (c *Client) FetchFundamentalsRef(ctx context.Context, refURL string) (*Fundamentals, error) {
	raw, err := c.request(ctx, refURL, nil, resFundamentals)
	if err != nil || raw == nil {
		return nil, err
	}
	return decodeResource[Fundamentals](resFundamentals.name, raw)
}

// GetNews fetches the article list for a symbol; nil when absent.
func (c *Client) GetNews(ctx context.Context, symbol string) (*News, error) {
	raw, err := c.getRaw(ctx, resNews, symbol, nil)
	if err != nil || raw == nil {
		return nil, err
	}
	return decodeResource[News](resNews.name, raw)
}

func mergeParams(a, b Params) Params {
	merged := Params{}
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		merged[k] = v
	}
	return merged
}
