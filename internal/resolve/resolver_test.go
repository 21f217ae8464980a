package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"stockbot/internal/cache"
	"stockbot/internal/rhood"
)

const (
	aaplUUID = "450dfc6d-5510-4d40-abfb-f633b7d9be3e"
	aaplURL  = rhood.DefaultBaseURL + "/instruments/" + aaplUUID + "/"
)

func aaplJSON() string {
	return `{"id":"` + aaplUUID + `","url":"` + aaplURL + `","symbol":"AAPL","name":"Apple Inc.","tradable_chain_id":"chain-aapl"}`
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newMockedResolver builds a resolver over a client in mock mode, so any
// unmocked request fails the test instead of reaching the network.
func newMockedResolver(t *testing.T) (*Resolver, *rhood.Client, *cache.MockTable, *cache.Cache) {
	t.Helper()
	client := rhood.NewClient(rhood.ClientConfig{Logger: quietLogger()})
	table := cache.NewMockTable()
	client.EnableMock(table)
	store, err := cache.New(1<<20, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	return New(client, store, 4, quietLogger()), client, table, store
}

func TestResolveStockCaseInsensitive(t *testing.T) {
	r, client, table, _ := newMockedResolver(t)
	table.Set(client.StockSearchURL(rhood.Params{"symbol": "AAPL"}),
		json.RawMessage(`{"results":[`+aaplJSON()+`],"next":""}`))

	resolved, err := r.Resolve(context.Background(), "AAPL", "aapl")
	if err != nil {
		t.Fatal(err)
	}

	upper, ok := resolved["AAPL"]
	if !ok {
		t.Fatal("missing canonical alias")
	}
	lower, ok := resolved["aapl"]
	if !ok {
		t.Fatal("missing caller's exact alias")
	}
	if upper != lower {
		t.Error("case variants should resolve to the same instrument")
	}
	if byURL, ok := resolved[aaplURL]; !ok || byURL != upper {
		t.Error("missing resource URL alias")
	}
}

func TestResolveByResourceURL(t *testing.T) {
	r, client, table, _ := newMockedResolver(t)
	table.Set(client.StockSearchURL(rhood.Params{"ids": []string{aaplUUID}}),
		json.RawMessage(`{"results":[`+aaplJSON()+`],"next":""}`))

	resolved, err := r.Resolve(context.Background(), aaplURL)
	if err != nil {
		t.Fatal(err)
	}
	inst, ok := resolved[aaplURL]
	if !ok {
		t.Fatal("missing URL alias")
	}
	if inst.Identifier() != "AAPL" || inst.Kind() != rhood.KindStock {
		t.Errorf("got %s (%s)", inst.Identifier(), inst.Kind())
	}

	badURL := rhood.DefaultBaseURL + "/instruments/not-a-uuid/"
	if _, err := r.Resolve(context.Background(), badURL); err == nil {
		t.Error("expected error for a URL without a UUID")
	}
}

func TestResolveReusesCachedSearches(t *testing.T) {
	r, client, table, store := newMockedResolver(t)
	table.Set(client.StockSearchURL(rhood.Params{"symbol": "AAPL"}),
		json.RawMessage(`{"results":[`+aaplJSON()+`],"next":""}`))

	if _, err := r.Resolve(context.Background(), "AAPL"); err != nil {
		t.Fatal(err)
	}
	store.Wait()

	// A fresh client with an empty mock table fails hard on any request,
	// so success here proves the second resolution was served from cache.
	cold := rhood.NewClient(rhood.ClientConfig{Logger: quietLogger()})
	cold.EnableMock(cache.NewMockTable())
	cached := New(cold, store, 4, quietLogger())

	resolved, err := cached.Resolve(context.Background(), "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := resolved["AAPL"]; !ok {
		t.Error("missing alias after cached resolution")
	}

	// Direct URL resolution is likewise cache-first.
	if _, err := cached.Resolve(context.Background(), aaplURL); err != nil {
		t.Errorf("URL resolution should hit the per-URL cache entry: %v", err)
	}
}

func TestResolveOptionIdentifier(t *testing.T) {
	r, client, table, _ := newMockedResolver(t)
	table.Set(client.StockSearchURL(rhood.Params{"symbol": "MU"}),
		json.RawMessage(`{"results":[{"id":"a","url":"`+rhood.DefaultBaseURL+`/instruments/a/","symbol":"MU","tradable_chain_id":"chain-mu"}],"next":""}`))

	optURL := rhood.DefaultBaseURL + "/options/instruments/7f9c78f7-8b7a-4d3f-a7c6-2f0d9a3d8a11/"
	otherURL := rhood.DefaultBaseURL + "/options/instruments/0d6e8f35-4c4b-4b3f-9d91-0a0f4e1b2c3d/"
	searchParams := rhood.Params{"chain_id": "chain-mu", "strike_price": "50.5000", "type": "call"}
	table.Set(client.OptionSearchURL(searchParams), json.RawMessage(`{"results":[
		{"id":"opt-2","url":"`+otherURL+`","chain_id":"chain-mu","chain_symbol":"MU","strike_price":"50.5000","expiration_date":"2027-02-19","type":"call","state":"active"},
		{"id":"opt-1","url":"`+optURL+`","chain_id":"chain-mu","chain_symbol":"MU","strike_price":"50.5000","expiration_date":"2027-01-15","type":"call","state":"active"}
	],"next":""}`))

	resolved, err := r.Resolve(context.Background(), "MU50.5C@1/15/27")
	if err != nil {
		t.Fatal(err)
	}

	inst, ok := resolved["MU50.5C@1/15/27"]
	if !ok {
		t.Fatal("missing caller's exact alias")
	}
	if inst.Kind() != rhood.KindOption {
		t.Errorf("kind: got %s", inst.Kind())
	}
	if inst.Identifier() != "MU50.5C@01/15/27" {
		t.Errorf("canonical identifier: got %q", inst.Identifier())
	}
	if inst.InstrumentURL() != optURL {
		t.Errorf("picked the wrong contract: %s", inst.InstrumentURL())
	}
	if _, ok := resolved[inst.Identifier()]; !ok {
		t.Error("missing canonical alias")
	}
}

func TestResolveRejectsInvalidIdentifierUpfront(t *testing.T) {
	r, _, _, _ := newMockedResolver(t)
	_, err := r.Resolve(context.Background(), "12!34")
	var badReq *rhood.BadRequestError
	if !errors.As(err, &badReq) {
		t.Fatalf("expected BadRequestError, got %v", err)
	}
}

func TestResolverStandardIdentifier(t *testing.T) {
	r, _, _, _ := newMockedResolver(t)

	got, err := r.StandardIdentifier("aapl")
	if err != nil || got != "AAPL" {
		t.Errorf("got %q, %v", got, err)
	}

	got, err = r.StandardIdentifier(aaplURL)
	if err != nil || got != aaplURL {
		t.Errorf("URLs pass through, got %q, %v", got, err)
	}

	if _, err := r.StandardIdentifier("12!34"); err == nil {
		t.Error("expected error")
	}

	if !r.ValidIdentifier("MU50.5C@1225") || r.ValidIdentifier("12!34") {
		t.Error("ValidIdentifier disagrees with the grammars")
	}
}

func TestResolveNotFound(t *testing.T) {
	r, client, table, _ := newMockedResolver(t)
	table.Set(client.StockSearchURL(rhood.Params{"symbol": "ZZZZ"}),
		json.RawMessage(`{"results":[],"next":""}`))

	_, err := r.Resolve(context.Background(), "ZZZZ")
	var notFound *rhood.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
