package basket

import (
	"testing"

	"stockbot/internal/rhood"
)

func TestHoldingRef(t *testing.T) {
	h := Holding{Identifier: "AAPL", InstrumentURL: "https://api.robinhood.com/instruments/x/"}
	if h.Ref() != h.InstrumentURL {
		t.Errorf("the stable URL should win, got %q", h.Ref())
	}

	h = Holding{Identifier: "AAPL"}
	if h.Ref() != "AAPL" {
		t.Errorf("got %q", h.Ref())
	}
}

func TestHoldingValue(t *testing.T) {
	stock := Holding{Identifier: "AAPL", Kind: rhood.KindStock, Count: 10}
	if got := stock.Value(230); got != 2300 {
		t.Errorf("stock value: got %v", got)
	}

	option := Holding{Identifier: "MU50.5C@12/25/26", Kind: rhood.KindOption, Count: 2}
	if got := option.Value(1.5); got != 300 {
		t.Errorf("option value should apply the contract multiplier, got %v", got)
	}
}

func TestBasketValidate(t *testing.T) {
	good := &Basket{
		Name:        "tech",
		CashBalance: 500,
		Holdings: []Holding{
			{Identifier: "AAPL", Count: 10},
			{Identifier: "MSFT", Count: 0},
		},
	}
	if err := good.Validate(); err != nil {
		t.Errorf("got %v", err)
	}

	negative := &Basket{Name: "bad", Holdings: []Holding{{Identifier: "AAPL", Count: -1}}}
	if err := negative.Validate(); err == nil {
		t.Error("expected error for negative count")
	}

	anonymous := &Basket{Name: "bad", Holdings: []Holding{{Count: 1}}}
	if err := anonymous.Validate(); err == nil {
		t.Error("expected error for a holding with no identifier")
	}
}
