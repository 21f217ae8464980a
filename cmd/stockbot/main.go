package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"stockbot/internal/aggregate"
	"stockbot/internal/rhood"
	"stockbot/internal/slogx"
)

func init() {
	slog.SetDefault(slogx.NewDefault("info"))
}

func main() {
	lookback := flag.Duration("lookback", 0, "also fetch historicals covering this much time before now (e.g. 168h)")
	flag.Parse()

	identifiers := flag.Args()
	if len(identifiers) == 0 {
		fmt.Fprintf(os.Stderr, "usage: %s [-lookback 168h] IDENTIFIER...\n", os.Args[0])
		os.Exit(2)
	}

	a, err := InitializeApp()
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slogx.NewDefault(a.Config.LogLevel))

	ctx := context.Background()
	entities := make([]aggregate.Entity, len(identifiers))
	for i, id := range identifiers {
		entities[i] = id
	}

	var (
		quotes      map[string]rhood.Snapshot
		historicals map[string]*rhood.Historicals
	)
	if *lookback > 0 {
		end := time.Now()
		quotes, historicals, err = a.Aggregator.QuotesAndHistoricals(ctx, end.Add(-*lookback), end, entities...)
	} else {
		quotes, err = a.Aggregator.Quotes(ctx, entities...)
	}
	if err != nil {
		slog.Error("failed to fetch quotes", "error", err)
		os.Exit(1)
	}

	for _, id := range identifiers {
		std, err := a.Resolver.StandardIdentifier(id)
		if err != nil {
			std = id
		}
		q, ok := quotes[std]
		if !ok {
			q, ok = quotes[id]
		}
		if !ok {
			fmt.Printf("%-16s no quote\n", id)
			continue
		}
		fmt.Printf("%-16s %10.2f (prev close %10.2f)\n", std, q.CurrentPrice(), q.PreviousClosePrice())

		h := historicals[std]
		if h == nil {
			h = historicals[id]
		}
		if h == nil {
			continue
		}
		for _, pt := range h.Points() {
			fmt.Printf("  %s  open %10.2f  close %10.2f\n",
				pt.BeginsAt.Format("2006-01-02 15:04"), float64(pt.OpenPrice), float64(pt.ClosePrice))
		}
	}
}
