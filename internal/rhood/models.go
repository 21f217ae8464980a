package rhood

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind distinguishes the two concrete instrument types.
type Kind string

const (
	KindStock  Kind = "stock"
	KindOption Kind = "option"
)

// Instrument is a tradable security or derivative with a stable upstream
// identity. The resolver and aggregator dispatch through this interface
// rather than inspecting concrete types.
type Instrument interface {
	InstrumentID() string
	InstrumentURL() string
	Kind() Kind
	// Identifier is the canonical human-readable form (ticker symbol for
	// stocks, SYMBOL<strike><C|P>@<M/D/YY> for options).
	Identifier() string
	FullName() string
	ShortName() string
	// RawData is the upstream JSON this instrument was decoded from, kept
	// for cache writes.
	RawData() json.RawMessage
}

// Stock is a listed security.
type Stock struct {
	ID              string `json:"id"`
	URL             string `json:"url"`
	Symbol          string `json:"symbol"`
	SimpleName      string `json:"simple_name"`
	Name            string `json:"name"`
	ListDate        Date   `json:"list_date"`
	TradableChainID string `json:"tradable_chain_id"`
	MarketURL       string `json:"market"`
	FundamentalsURL string `json:"fundamentals"`
	QuoteURL        string `json:"quote"`
	Tradeable       Bool   `json:"tradeable"`
	State           string `json:"state"`

	raw json.RawMessage
}

func (s *Stock) InstrumentID() string     { return s.ID }
func (s *Stock) InstrumentURL() string    { return s.URL }
func (s *Stock) Kind() Kind               { return KindStock }
func (s *Stock) Identifier() string       { return s.Symbol }
func (s *Stock) FullName() string         { return fmt.Sprintf("%s (%s)", s.Name, s.Symbol) }
func (s *Stock) ShortName() string        { return s.SimpleName }
func (s *Stock) RawData() json.RawMessage { return s.raw }

// Option is a single options contract.
type Option struct {
	ID             string `json:"id"`
	URL            string `json:"url"`
	ChainID        string `json:"chain_id"`
	ChainSymbol    string `json:"chain_symbol"`
	StrikePrice    Price  `json:"strike_price"`
	ExpirationDate Date   `json:"expiration_date"`
	IssueDate      Date   `json:"issue_date"`
	Type           string `json:"type"` // call | put
	Tradability    string `json:"tradability"`
	Tradeable      Bool   `json:"tradeable"`
	State          string `json:"state"`

	raw json.RawMessage
}

func (o *Option) InstrumentID() string  { return o.ID }
func (o *Option) InstrumentURL() string { return o.URL }
func (o *Option) Kind() Kind            { return KindOption }

// Identifier renders the canonical option expression, with the strike at
// one decimal place and the expiration as M/D/YY. Equivalent spellings of
// the same contract normalize to this exact string.
func (o *Option) Identifier() string {
	return fmt.Sprintf("%s%s%s@%s",
		o.ChainSymbol,
		strconv.FormatFloat(roundTenth(o.StrikePrice.Float()), 'f', 1, 64),
		typeInitial(o.Type),
		o.ExpirationDate.Format("01/02/06"))
}

func (o *Option) FullName() string {
	return fmt.Sprintf("%s $%s %s exp. %s",
		o.ChainSymbol, displayStrike(o.StrikePrice.Float()),
		capitalize(o.Type), o.ExpirationDate.Format("01/02/06"))
}

func (o *Option) ShortName() string {
	return fmt.Sprintf("%s $%s%s %s",
		o.ChainSymbol, displayStrike(o.StrikePrice.Float()),
		typeInitial(o.Type), o.ExpirationDate.Format("01/02/06"))
}

func (o *Option) RawData() json.RawMessage { return o.raw }

func roundTenth(f float64) float64 { return math.Round(f*10) / 10 }

// displayStrike drops the fraction for whole-dollar strikes.
func displayStrike(f float64) string {
	if f == math.Trunc(f) {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	return strconv.FormatFloat(roundTenth(f), 'f', 1, 64)
}

func typeInitial(t string) string {
	if t == "" {
		return ""
	}
	return capitalize(t[:1])
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}

// Snapshot is a point-in-time price for one instrument. Quote and
// OptionQuote both satisfy it.
type Snapshot interface {
	// CurrentPrice picks the extended-hours price when present, else the
	// last trade price.
	CurrentPrice() float64
	PreviousClosePrice() float64
	// Instrument is the canonical resource URL of the quoted instrument.
	Instrument() string
}

// Quote is a stock price snapshot. Never cached.
type Quote struct {
	Symbol                      string `json:"symbol"`
	LastTradePrice              Price  `json:"last_trade_price"`
	LastExtendedHoursTradePrice Price  `json:"last_extended_hours_trade_price"`
	PreviousClose               Price  `json:"previous_close"`
	UpdatedAt                   Time   `json:"updated_at"`
	InstrumentURL               string `json:"instrument"`
}

func (q *Quote) CurrentPrice() float64 {
	if q.LastExtendedHoursTradePrice != 0 {
		return q.LastExtendedHoursTradePrice.Float()
	}
	return q.LastTradePrice.Float()
}

func (q *Quote) PreviousClosePrice() float64 { return q.PreviousClose.Float() }
func (q *Quote) Instrument() string          { return q.InstrumentURL }

// OptionQuote is an option price snapshot. Never cached.
type OptionQuote struct {
	AdjustedMarkPrice Price  `json:"adjusted_mark_price"`
	PreviousClose     Price  `json:"previous_close_price"`
	InstrumentURL     string `json:"instrument"`
}

func (q *OptionQuote) CurrentPrice() float64       { return q.AdjustedMarkPrice.Float() }
func (q *OptionQuote) PreviousClosePrice() float64 { return q.PreviousClose.Float() }
func (q *OptionQuote) Instrument() string          { return q.InstrumentURL }

// HistoricalItem is one time bucket of a historical price series.
type HistoricalItem struct {
	BeginsAt     Time  `json:"begins_at"`
	OpenPrice    Price `json:"open_price"`
	ClosePrice   Price `json:"close_price"`
	Interpolated Bool  `json:"interpolated"`
}

// Historicals is a reference price plus an ordered bucketed price series
// for one instrument. Stock series arrive under "historicals", option
// series under "data_points"; Points returns whichever is populated.
type Historicals struct {
	PreviousClosePrice Price  `json:"previous_close_price"`
	PreviousCloseTime  Time   `json:"previous_close_time"`
	OpenPrice          Price  `json:"open_price"`
	OpenTime           Time   `json:"open_time"`
	InstrumentURL      string `json:"instrument"`
	Bounds             string `json:"bounds"`
	Span               string `json:"span"`
	Interval           string `json:"interval"`

	StockItems  []HistoricalItem `json:"historicals"`
	OptionItems []HistoricalItem `json:"data_points"`
}

func (h *Historicals) Points() []HistoricalItem {
	if len(h.StockItems) > 0 {
		return h.StockItems
	}
	return h.OptionItems
}

// Fundamentals carries descriptive company data.
type Fundamentals struct {
	Description string `json:"description"`
}

// MarketHours describes one trading session. PreviousOpenHoursURL is a
// lazy reference; fetch it with Client.FetchMarketHoursRef.
type MarketHours struct {
	OpensAt              Time   `json:"opens_at"`
	ClosesAt             Time   `json:"closes_at"`
	ExtendedOpensAt      Time   `json:"extended_opens_at"`
	ExtendedClosesAt     Time   `json:"extended_closes_at"`
	IsOpen               Bool   `json:"is_open"`
	PreviousOpenHoursURL string `json:"previous_open_hours"`
}

// Market is an exchange venue. TodaysHoursURL is a lazy reference.
type Market struct {
	Name           string `json:"name"`
	Acronym        string `json:"acronym"`
	MIC            string `json:"mic"`
	Timezone       string `json:"timezone"`
	URL            string `json:"url"`
	TodaysHoursURL string `json:"todays_hours"`
}

// NewsItem is one article attached to an instrument.
type NewsItem struct {
	URL             string `json:"url"`
	APISource       string `json:"api_source"`
	Source          string `json:"source"`
	Summary         string `json:"summary"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	InstrumentURL   string `json:"instrument"`
	NumClicks       int    `json:"num_clicks"`
	PreviewImageURL string `json:"preview_image_url"`
	PublishedAt     Time   `json:"published_at"`
	UpdatedAt       Time   `json:"updated_at"`
	RelayURL        string `json:"relay_url"`
}

// News is a paginated item-list container.
type News struct {
	Items []NewsItem `json:"results"`
}

// DecodeStock rehydrates a Stock from raw upstream JSON, retaining the
// raw form for later cache writes.
func DecodeStock(raw json.RawMessage) (*Stock, error) {
	s, err := decodeResource[Stock]("stock", raw)
	if err != nil {
		return nil, err
	}
	s.raw = raw
	return s, nil
}

// DecodeOption rehydrates an Option from raw upstream JSON.
func DecodeOption(raw json.RawMessage) (*Option, error) {
	o, err := decodeResource[Option]("option", raw)
	if err != nil {
		return nil, err
	}
	o.raw = raw
	return o, nil
}
