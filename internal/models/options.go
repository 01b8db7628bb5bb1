package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// OptionGreeks represents option Greeks.
type OptionGreeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

// OptionQuote is one side (call or put) of a strike row.
type OptionQuote struct {
	Instrument string        `json:"tradingsymbol"`
	LastPrice  float64       `json:"ltp"`
	IV         float64       `json:"iv"` // percent
	OI         int64         `json:"oi"`
	Greeks     *OptionGreeks `json:"greeks,omitempty"`
}

// Strike represents a single strike row in an option chain.
type Strike struct {
	Price float64      `json:"strike"`
	Call  *OptionQuote `json:"ce,omitempty"`
	Put   *OptionQuote `json:"pe,omitempty"`
}

// Side returns the quote for the given option side, or nil.
func (s Strike) Side(side OptionSide) *OptionQuote {
	if side == Call {
		return s.Call
	}
	return s.Put
}

func (s Strike) clone() Strike {
	out := Strike{Price: s.Price}
	if s.Call != nil {
		c := *s.Call
		if c.Greeks != nil {
			g := *c.Greeks
			c.Greeks = &g
		}
		out.Call = &c
	}
	if s.Put != nil {
		p := *s.Put
		if p.Greeks != nil {
			g := *p.Greeks
			p.Greeks = &g
		}
		out.Put = &p
	}
	return out
}

// OptionChain is an immutable, strike-ordered set of rows for a single expiry.
type OptionChain struct {
	symbol     string
	expiry     time.Time
	provenance Provenance
	strikes    []Strike
}

// NewOptionChain copies rows, sorts them by strike, and rejects duplicate strikes.
func NewOptionChain(symbol string, expiry time.Time, provenance Provenance, rows []Strike) (*OptionChain, error) {
	if provenance != Live && provenance != Derived {
		return nil, fmt.Errorf("invalid provenance: %q", provenance)
	}
	strikes := make([]Strike, len(rows))
	for i, r := range rows {
		strikes[i] = r.clone()
	}
	sort.SliceStable(strikes, func(i, j int) bool {
		return strikes[i].Price < strikes[j].Price
	})
	for i := 1; i < len(strikes); i++ {
		if strikes[i].Price == strikes[i-1].Price {
			return nil, fmt.Errorf("duplicate strike %.2f in %s chain", strikes[i].Price, symbol)
		}
	}
	return &OptionChain{
		symbol:     symbol,
		expiry:     expiry,
		provenance: provenance,
		strikes:    strikes,
	}, nil
}

// Symbol returns the underlying symbol.
func (c *OptionChain) Symbol() string { return c.symbol }

// Expiry returns the expiry shared by every row.
func (c *OptionChain) Expiry() time.Time { return c.expiry }

// Provenance reports whether the chain is live or synthesized.
func (c *OptionChain) Provenance() Provenance { return c.provenance }

// Len returns the number of strike rows.
func (c *OptionChain) Len() int { return len(c.strikes) }

// At returns a copy of the i-th row.
func (c *OptionChain) At(i int) Strike { return c.strikes[i].clone() }

// Strikes returns a copy of all rows in ascending strike order.
func (c *OptionChain) Strikes() []Strike {
	out := make([]Strike, len(c.strikes))
	for i, s := range c.strikes {
		out[i] = s.clone()
	}
	return out
}

// Prices returns the strike prices in ascending order.
func (c *OptionChain) Prices() []float64 {
	out := make([]float64, len(c.strikes))
	for i, s := range c.strikes {
		out[i] = s.Price
	}
	return out
}

// Contains reports whether the chain has a row at the given strike.
func (c *OptionChain) Contains(price float64) bool {
	i := sort.Search(len(c.strikes), func(i int) bool {
		return c.strikes[i].Price >= price
	})
	return i < len(c.strikes) && c.strikes[i].Price == price
}

type chainJSON struct {
	Symbol     string     `json:"symbol"`
	Expiry     time.Time  `json:"expiry"`
	Provenance Provenance `json:"provenance"`
	Strikes    []Strike   `json:"chain"`
}

// MarshalJSON emits the chain with its metadata.
func (c *OptionChain) MarshalJSON() ([]byte, error) {
	return json.Marshal(chainJSON{
		Symbol:     c.symbol,
		Expiry:     c.expiry,
		Provenance: c.provenance,
		Strikes:    c.strikes,
	})
}

// UnmarshalJSON restores a chain, re-checking its invariants.
func (c *OptionChain) UnmarshalJSON(data []byte) error {
	var raw chainJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	chain, err := NewOptionChain(raw.Symbol, raw.Expiry, raw.Provenance, raw.Strikes)
	if err != nil {
		return err
	}
	*c = *chain
	return nil
}
