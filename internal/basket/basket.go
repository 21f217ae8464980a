// Package basket defines the weighted instrument groups callers hand to
// the aggregator. Baskets are owned and persisted elsewhere; this core
// only consumes them as aggregation input.
package basket

import (
	"fmt"

	"stockbot/internal/rhood"
)

// OptionUnitCount is the per-contract share multiplier applied when
// computing an option holding's monetary value.
const OptionUnitCount = 100

// Holding is one weighted member of a basket. Either InstrumentURL or
// Identifier locates the instrument; Count is its non-negative weight.
type Holding struct {
	Identifier    string
	InstrumentURL string
	Kind          rhood.Kind
	Count         float64
}

// Ref returns the identifier form to resolve this holding by, preferring
// the stable resource URL.
func (h Holding) Ref() string {
	if h.InstrumentURL != "" {
		return h.InstrumentURL
	}
	return h.Identifier
}

// UnitCount is the share multiplier for one unit of this holding.
func (h Holding) UnitCount() float64 {
	if h.Kind == rhood.KindOption {
		return OptionUnitCount
	}
	return 1
}

// Value computes the holding's monetary value at the given unit price.
func (h Holding) Value(price float64) float64 {
	return price * h.Count * h.UnitCount()
}

// Basket is a named, weighted collection of instruments plus an optional
// cash balance.
type Basket struct {
	Name        string
	CashBalance float64
	Holdings    []Holding
}

// Validate rejects negative weights and holdings with no way to locate
// their instrument.
func (b *Basket) Validate() error {
	for _, h := range b.Holdings {
		if h.Count < 0 {
			return fmt.Errorf("basket %s: negative count %v for %s", b.Name, h.Count, h.Ref())
		}
		if h.Ref() == "" {
			return fmt.Errorf("basket %s: holding with no identifier", b.Name)
		}
	}
	return nil
}

func (b *Basket) String() string { return b.Name }
