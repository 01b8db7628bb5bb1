// Package chain synthesizes option chains from spot and volatility when no
// live chain is available.
package chain

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sigma-trader/internal/errors"
	"sigma-trader/internal/models"
	"sigma-trader/internal/pricing"
)

// Defaults for the reference index.
const (
	DefaultTick  = 50.0
	DefaultSteps = 20
	DefaultRate  = 0.07
)

const (
	putSkewFactor = 20.0
	callSkew      = 0.5
	oiBase        = 1e6
	oiDecay       = 1e-4
	minYears      = 1.0 / 365
)

// Params are the inputs to Synthesize. Zero Tick, Steps and Rate take the defaults.
type Params struct {
	Symbol   string
	Spot     float64
	VolIndex float64 // percent
	Expiry   time.Time
	Now      time.Time
	Tick     float64
	Steps    int
	Rate     float64
}

func (p *Params) applyDefaults() {
	if p.Tick <= 0 {
		p.Tick = DefaultTick
	}
	if p.Steps <= 0 {
		p.Steps = DefaultSteps
	}
	if p.Rate == 0 {
		p.Rate = DefaultRate
	}
	if p.Now.IsZero() {
		p.Now = time.Now()
	}
	if p.Expiry.IsZero() {
		p.Expiry = NextWeeklyExpiry(p.Now, time.Thursday)
	}
	p.Symbol = strings.ToUpper(p.Symbol)
}

// ATMStrike rounds spot to the nearest tick multiple.
func ATMStrike(spot, tick float64) float64 {
	return math.Round(spot/tick) * tick
}

// YearsToExpiry returns the time to expiry in years, floored at one day.
func YearsToExpiry(expiry, now time.Time) float64 {
	years := expiry.Sub(now).Hours() / 24 / 365
	if years < minYears {
		return minYears
	}
	return years
}

// Synthesize builds a DERIVED chain of 2*Steps+1 strikes centred on the ATM
// strike. Spot and volatility must come from a live source; non-positive
// values are rejected rather than replaced, and spot below one tick has no
// ATM strike.
func Synthesize(p Params) (*models.OptionChain, error) {
	p.applyDefaults()
	if p.Spot <= 0 || math.IsNaN(p.Spot) || math.IsInf(p.Spot, 0) {
		return nil, errors.Unavailable("spot", p.Symbol, nil)
	}
	if p.Spot < p.Tick {
		return nil, errors.NewDataError("spot", p.Symbol, "spot below one strike tick", errors.ErrDataUnavailable)
	}
	if p.VolIndex <= 0 || math.IsNaN(p.VolIndex) || math.IsInf(p.VolIndex, 0) {
		return nil, errors.Unavailable("volatility", p.Symbol, nil)
	}

	atm := ATMStrike(p.Spot, p.Tick)
	t := YearsToExpiry(p.Expiry, p.Now)
	sigma := p.VolIndex / 100

	rows := make([]models.Strike, 0, 2*p.Steps+1)
	for i := -p.Steps; i <= p.Steps; i++ {
		k := atm + float64(i)*p.Tick
		if k <= 0 {
			continue
		}
		oi := int64(oiBase * math.Exp(-oiDecay*math.Abs(k-p.Spot)))
		rows = append(rows, models.Strike{
			Price: k,
			Call:  p.quote(models.Call, k, t, sigma, oi),
			Put:   p.quote(models.Put, k, t, sigma, oi),
		})
	}

	return models.NewOptionChain(p.Symbol, p.Expiry, models.Derived, rows)
}

func (p Params) quote(side models.OptionSide, strike, t, sigma float64, oi int64) *models.OptionQuote {
	price := pricing.Price(side, p.Spot, strike, t, p.Rate, sigma)
	greeks := pricing.Greeks(side, p.Spot, strike, t, p.Rate, sigma)
	return &models.OptionQuote{
		Instrument: InstrumentID(p.Symbol, p.Expiry, strike, side),
		LastPrice:  round2(price),
		IV:         round2(SkewedIV(side, p.VolIndex, p.Spot, strike)),
		OI:         oi,
		Greeks:     &greeks,
	}
}

// SkewedIV returns the quoted implied volatility for a strike. Puts below
// spot gain (S-K)/S*20 points; calls above spot gain half a point.
func SkewedIV(side models.OptionSide, vol, spot, strike float64) float64 {
	switch {
	case side == models.Put && strike < spot:
		return vol + (spot-strike)/spot*putSkewFactor
	case side == models.Call && strike > spot:
		return vol + callSkew
	default:
		return vol
	}
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
