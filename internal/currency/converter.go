// Package currency converts amounts between the currencies the ledger supports.
package currency

import (
	"maps"
	"sync"

	"cuentas/internal/core"
)

// Pair is a directed conversion: one unit of From buys Rate units of To.
type Pair struct {
	From core.Currency
	To   core.Currency
}

// Rates is a table of directed conversion factors.
type Rates map[Pair]float64

// DefaultRates is the table used until a refresh succeeds.
func DefaultRates() Rates {
	return Rates{
		{From: core.USD, To: core.COP}: 4000,
	}
}

// Converter resolves conversions against a replaceable rate table.
// It never fails: unresolvable pairs fall back to the identity.
type Converter struct {
	mu      sync.RWMutex
	rates   Rates
	version uint64
}

// NewConverter builds a converter seeded with rates, or DefaultRates when rates is empty.
func NewConverter(rates Rates) *Converter {
	if len(rates) == 0 {
		rates = DefaultRates()
	}
	return &Converter{rates: sanitize(rates)}
}

// Convert returns amount expressed in to.
func (c *Converter) Convert(amount float64, from, to core.Currency) float64 {
	if from == to {
		return amount
	}
	rate, inverse, ok := c.lookup(from, to)
	if !ok {
		return amount
	}
	if inverse {
		return amount / rate
	}
	return amount * rate
}

// Rate returns the effective factor for from→to and whether the table could resolve it.
func (c *Converter) Rate(from, to core.Currency) (float64, bool) {
	if from == to {
		return 1, true
	}
	rate, inverse, ok := c.lookup(from, to)
	if !ok {
		return 1, false
	}
	if inverse {
		return 1 / rate, true
	}
	return rate, true
}

func (c *Converter) lookup(from, to core.Currency) (rate float64, inverse, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if r, found := c.rates[Pair{From: from, To: to}]; found {
		return r, false, true
	}
	if r, found := c.rates[Pair{From: to, To: from}]; found {
		return r, true, true
	}
	return 0, false, false
}

// Replace swaps the whole table. Non-positive rates are dropped; an empty
// result keeps the current table.
func (c *Converter) Replace(rates Rates) bool {
	clean := sanitize(rates)
	if len(clean) == 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates = clean
	c.version++
	return true
}

// Rates returns a copy of the current table.
func (c *Converter) Rates() Rates {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.rates)
}

// Version increases every time the table is replaced.
func (c *Converter) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

func sanitize(in Rates) Rates {
	out := make(Rates, len(in))
	for p, r := range in {
		if p.From == p.To || !(r > 0) {
			continue
		}
		out[p] = r
	}
	return out
}
