// Package aggregate flattens instruments, baskets, and raw identifiers
// into deduplicated instrument sets and fetches their quotes and
// historical price series in concurrent per-kind batches.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"stockbot/internal/basket"
	"stockbot/internal/resolve"
	"stockbot/internal/rhood"
)

// Entity is an aggregation input: an rhood.Instrument, a raw identifier
// string, or a *basket.Basket.
type Entity = any

// Aggregator combines entities into batch quote and historicals queries,
// producing maps addressable by every alias an instrument is known by.
type Aggregator struct {
	client   *rhood.Client
	resolver *resolve.Resolver
	log      *slog.Logger
}

func New(client *rhood.Client, resolver *resolve.Resolver, log *slog.Logger) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{client: client, resolver: resolver, log: log}
}

// Instruments flattens and resolves entities into an alias-keyed
// instrument map.
func (a *Aggregator) Instruments(ctx context.Context, entities ...Entity) (map[string]rhood.Instrument, error) {
	instruments := make(map[string]rhood.Instrument)
	var identifiers []string

	for _, entity := range entities {
		switch e := entity.(type) {
		case rhood.Instrument:
			instruments[e.InstrumentURL()] = e
			instruments[e.Identifier()] = e
		case string:
			identifiers = append(identifiers, e)
		case *basket.Basket:
			if err := e.Validate(); err != nil {
				return nil, err
			}
			for _, h := range e.Holdings {
				identifiers = append(identifiers, h.Ref())
			}
		default:
			return nil, fmt.Errorf("cannot determine an identifier for type %T", entity)
		}
	}

	if len(identifiers) > 0 {
		resolved, err := a.resolver.Resolve(ctx, dedupe(identifiers)...)
		if err != nil {
			return nil, err
		}
		for alias, inst := range resolved {
			instruments[alias] = inst
		}
	}
	return instruments, nil
}

// Quotes fetches a price snapshot for every entity. Instruments with no
// quote data are logged and excluded rather than failing the call.
func (a *Aggregator) Quotes(ctx context.Context, entities ...Entity) (map[string]rhood.Snapshot, error) {
	instruments, err := a.Instruments(ctx, entities...)
	if err != nil {
		return nil, err
	}
	quotes, _, err := a.fetch(ctx, instruments, nil)
	return quotes, err
}

// QuotesAndHistoricals fetches snapshots plus bucketed price series over
// [start, end] for every entity.
func (a *Aggregator) QuotesAndHistoricals(ctx context.Context, start, end time.Time, entities ...Entity) (map[string]rhood.Snapshot, map[string]*rhood.Historicals, error) {
	instruments, err := a.Instruments(ctx, entities...)
	if err != nil {
		return nil, nil, err
	}
	return a.fetch(ctx, instruments, HistoricalParams(start, end))
}

// fetch issues one batched quote call per kind (and one historicals call
// per kind when histParams is set), concurrently, then joins and builds
// the alias-keyed output maps. No partial map is ever observed: outputs
// are assembled only after every dispatched task completes.
func (a *Aggregator) fetch(ctx context.Context, instruments map[string]rhood.Instrument, histParams rhood.Params) (map[string]rhood.Snapshot, map[string]*rhood.Historicals, error) {
	urls := map[rhood.Kind][]string{}
	seen := map[string]bool{}
	for _, inst := range instruments {
		u := inst.InstrumentURL()
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		urls[inst.Kind()] = append(urls[inst.Kind()], u)
	}

	var (
		stockQuotes  []*rhood.Quote
		optionQuotes []*rhood.OptionQuote
		stockHist    []*rhood.Historicals
		optionHist   []*rhood.Historicals
	)

	g, gctx := errgroup.WithContext(ctx)
	if stockURLs := urls[rhood.KindStock]; len(stockURLs) > 0 {
		g.Go(func() error {
			var err error
			stockQuotes, err = a.client.SearchStockQuotes(gctx, stockURLs)
			return err
		})
		if histParams != nil {
			g.Go(func() error {
				var err error
				stockHist, err = a.client.SearchStockHistoricals(gctx, stockURLs, histParams)
				return err
			})
		}
	}
	if optionURLs := urls[rhood.KindOption]; len(optionURLs) > 0 {
		g.Go(func() error {
			var err error
			optionQuotes, err = a.client.SearchOptionQuotes(gctx, optionURLs)
			return err
		})
		if histParams != nil {
			g.Go(func() error {
				var err error
				optionHist, err = a.client.SearchOptionHistoricals(gctx, optionURLs, histParams)
				return err
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	snapshots := make([]rhood.Snapshot, 0, len(stockQuotes)+len(optionQuotes))
	for _, q := range stockQuotes {
		snapshots = append(snapshots, q)
	}
	for _, q := range optionQuotes {
		snapshots = append(snapshots, q)
	}
	quotesMap := make(map[string]rhood.Snapshot)
	for _, q := range snapshots {
		inst, ok := instruments[q.Instrument()]
		if !ok {
			a.log.Warn("quote for unknown instrument", "instrument", q.Instrument())
			continue
		}
		quotesMap[inst.InstrumentURL()] = q
		quotesMap[inst.Identifier()] = q
	}
	for alias, inst := range instruments {
		if q, ok := quotesMap[inst.InstrumentURL()]; ok {
			quotesMap[alias] = q
		}
	}
	a.logMissing("quote", instruments, seen, func(u string) bool { _, ok := quotesMap[u]; return ok })

	if histParams == nil {
		return quotesMap, nil, nil
	}

	historicalsMap := make(map[string]*rhood.Historicals)
	for _, h := range append(stockHist, optionHist...) {
		inst, ok := instruments[h.InstrumentURL]
		if !ok {
			a.log.Warn("historicals for unknown instrument", "instrument", h.InstrumentURL)
			continue
		}
		historicalsMap[inst.InstrumentURL()] = h
		historicalsMap[inst.Identifier()] = h
	}
	for alias, inst := range instruments {
		if h, ok := historicalsMap[inst.InstrumentURL()]; ok {
			historicalsMap[alias] = h
		}
	}
	a.logMissing("historicals", instruments, seen, func(u string) bool { _, ok := historicalsMap[u]; return ok })

	return quotesMap, historicalsMap, nil
}

// logMissing reports instruments a batch returned no data for, e.g.
// delisted stocks. They are excluded from the output rather than
// failing the aggregate.
func (a *Aggregator) logMissing(what string, instruments map[string]rhood.Instrument, seen map[string]bool, has func(string) bool) {
	for u := range seen {
		if !has(u) {
			inst := instruments[u]
			a.log.Warn("no "+what+" data for instrument, excluding", "identifier", inst.Identifier(), "url", u)
		}
	}
}

// HistoricalParams selects the finest span/interval the upstream
// supports for the requested window, capping at weekly buckets for
// multi-year spans. A zero end means now.
func HistoricalParams(start, end time.Time) rhood.Params {
	if end.IsZero() {
		end = time.Now()
	}
	span := end.Sub(start)

	const day = 24 * time.Hour
	switch {
	case span <= day:
		// Day charts can request bounds covering all trading hours.
		return rhood.Params{"span": "day", "interval": "5minute", "bounds": "trading"}
	case span <= 7*day:
		return rhood.Params{"span": "week", "interval": "10minute"}
	case span <= 30*day:
		return rhood.Params{"span": "month", "interval": "hour"}
	case span <= 90*day:
		return rhood.Params{"span": "3month", "interval": "hour"}
	case span <= 365*day:
		return rhood.Params{"span": "year", "interval": "day"}
	default:
		return rhood.Params{"span": "5year", "interval": "week"}
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
