// Package models provides domain models for the options decision pipeline.
package models

import (
	"time"
)

// Exchange represents a stock exchange segment.
type Exchange string

const (
	NSE Exchange = "NSE"
	NFO Exchange = "NFO" // F&O
)

// OptionSide represents the option type of a contract.
type OptionSide string

const (
	Call OptionSide = "CE"
	Put  OptionSide = "PE"
)

// OrderAction represents the side of an order.
type OrderAction string

const (
	ActionBuy  OrderAction = "BUY"
	ActionSell OrderAction = "SELL"
)

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// Provenance states where option chain prices came from.
type Provenance string

const (
	// Live means prices came from a market data feed.
	Live Provenance = "LIVE"
	// Derived means prices were synthesized from spot and volatility.
	Derived Provenance = "DERIVED"
)

// Quote represents a market quote.
type Quote struct {
	Symbol    string
	LTP       float64
	Close     float64
	Change    float64
	OI        int64
	Timestamp time.Time
}

// Instrument represents a tradeable instrument from the exchange master.
type Instrument struct {
	Token     uint32
	Symbol    string
	Name      string
	Exchange  Exchange
	LotSize   int
	TickSize  float64
	Expiry    time.Time
	Strike    float64
	InstrType string // CE, PE, FUT, EQ
}

// MarketSnapshot is the scanner's view of the market for one run.
type MarketSnapshot struct {
	Symbol       string       `json:"symbol"`
	Spot         float64      `json:"spot_price"`
	VolIndex     float64      `json:"iv"`
	DaysToExpiry int          `json:"days_to_expiry"`
	Expiry       time.Time    `json:"expiry_date"`
	Chain        *OptionChain `json:"option_chain"`
	Provenance   Provenance   `json:"data_source"`
	FetchedAt    time.Time    `json:"fetched_at"`
}

// NewMarketSnapshot builds a snapshot whose expiry and days-to-expiry are
// taken from the chain itself.
func NewMarketSnapshot(spot, volIndex float64, chain *OptionChain, now time.Time) *MarketSnapshot {
	return &MarketSnapshot{
		Symbol:       chain.Symbol(),
		Spot:         spot,
		VolIndex:     volIndex,
		DaysToExpiry: DaysToExpiry(chain.Expiry(), now),
		Expiry:       chain.Expiry(),
		Chain:        chain,
		Provenance:   chain.Provenance(),
		FetchedAt:    now,
	}
}

// IST is the exchange timezone. Falls back to a fixed offset when tzdata is missing.
var IST = loadIST()

func loadIST() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.FixedZone("IST", 5*3600+1800)
	}
	return loc
}

// DaysToExpiry returns the number of calendar days from now until expiry,
// counted on exchange-local dates. Never negative.
func DaysToExpiry(expiry, now time.Time) int {
	e := expiry.In(IST)
	n := now.In(IST)
	ed := time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, IST)
	nd := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, IST)
	days := int(ed.Sub(nd).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
