// Package strikes computes target strikes for the supported strategies and
// realizes them against an option chain.
package strikes

import (
	"fmt"
	"math"

	"sigma-trader/internal/chain"
	"sigma-trader/internal/errors"
	"sigma-trader/internal/models"
)

// DefaultWing is the distance of the protective wings from ATM for defined-risk flies.
const DefaultWing = 300.0

// ExpectedRange returns the one-sigma move in points over days.
func ExpectedRange(spot, vol float64, days int) float64 {
	if days < 0 {
		days = 0
	}
	return spot * (vol / 100) * math.Sqrt(float64(days)/365)
}

// SigmaRange places the short strikes at spot plus and minus the expected
// range scaled by mult, each snapped to the nearest tick.
func SigmaRange(spot, vol float64, days int, mult, tick float64) models.StrikeAnalysis {
	rng := ExpectedRange(spot, vol, days)
	adjusted := rng * mult
	upper := spot + adjusted
	lower := spot - adjusted
	return models.StrikeAnalysis{
		Mode:           models.ModeSigmaRange,
		Spot:           spot,
		ATMStrike:      chain.ATMStrike(spot, tick),
		RangePoints:    rng,
		SigmaMult:      mult,
		UpperBound:     upper,
		LowerBound:     lower,
		SellCallStrike: chain.ATMStrike(upper, tick),
		SellPutStrike:  chain.ATMStrike(lower, tick),
	}
}

// ATM places both short strikes at the rounded at-the-money strike.
func ATM(spot, tick float64) models.StrikeAnalysis {
	atm := chain.ATMStrike(spot, tick)
	return models.StrikeAnalysis{
		Mode:           models.ModeATM,
		Spot:           spot,
		ATMStrike:      atm,
		UpperBound:     atm,
		LowerBound:     atm,
		SellCallStrike: atm,
		SellPutStrike:  atm,
	}
}

// DefinedRisk is ATM plus long wings at ATM +/- wing.
func DefinedRisk(spot, tick, wing float64) models.StrikeAnalysis {
	a := ATM(spot, tick)
	a.Mode = models.ModeDefinedRisk
	a.BuyCallStrike = a.ATMStrike + wing
	a.BuyPutStrike = a.ATMStrike - wing
	return a
}

// Inputs carries the market numbers a strike selection needs.
type Inputs struct {
	Spot      float64
	Vol       float64
	Days      int
	SigmaMult float64
	Tick      float64
	Wing      float64
}

// ForStrategy selects target strikes for a strategy.
func ForStrategy(strategy models.Strategy, in Inputs) (models.StrikeAnalysis, error) {
	if in.Tick <= 0 {
		in.Tick = chain.DefaultTick
	}
	if in.Wing <= 0 {
		in.Wing = DefaultWing
	}
	switch strategy {
	case models.ShortStrangle:
		return SigmaRange(in.Spot, in.Vol, in.Days, in.SigmaMult, in.Tick), nil
	case models.ShortStraddle:
		return ATM(in.Spot, in.Tick), nil
	case models.IronFly:
		return DefinedRisk(in.Spot, in.Tick, in.Wing), nil
	default:
		return models.StrikeAnalysis{}, fmt.Errorf("unsupported strategy: %q", strategy)
	}
}

// Target is one leg to be realized against a chain.
type Target struct {
	Side   models.OptionSide
	Strike float64
	Action models.OrderAction
}

// Targets lists the legs implied by an analysis: short call and put, plus
// long wings when present.
func Targets(a models.StrikeAnalysis) []Target {
	out := []Target{
		{Side: models.Call, Strike: a.SellCallStrike, Action: models.ActionSell},
		{Side: models.Put, Strike: a.SellPutStrike, Action: models.ActionSell},
	}
	if a.Mode == models.ModeDefinedRisk {
		out = append(out,
			Target{Side: models.Call, Strike: a.BuyCallStrike, Action: models.ActionBuy},
			Target{Side: models.Put, Strike: a.BuyPutStrike, Action: models.ActionBuy},
		)
	}
	return out
}

// Nearest returns a new leg bound to the chain row closest to target among
// rows that carry the requested side. Ties go to the row seen first. The
// chain is not modified.
func Nearest(c *models.OptionChain, target float64, side models.OptionSide) (models.Leg, error) {
	best := -1
	bestDist := math.Inf(1)
	for i := 0; i < c.Len(); i++ {
		row := c.At(i)
		q := row.Side(side)
		if q == nil || q.Instrument == "" {
			continue
		}
		if d := math.Abs(row.Price - target); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return models.Leg{}, errors.Wrapf(errors.ErrChainIncomplete, "no %s rows in %s chain", side, c.Symbol())
	}
	row := c.At(best)
	q := row.Side(side)
	return models.Leg{
		Side:       side,
		Strike:     row.Price,
		Instrument: q.Instrument,
		Price:      q.LastPrice,
	}, nil
}

// Realize binds every target to its nearest chain strike.
func Realize(c *models.OptionChain, targets []Target, quantity int) ([]models.Leg, error) {
	legs := make([]models.Leg, 0, len(targets))
	for _, t := range targets {
		leg, err := Nearest(c, t.Strike, t.Side)
		if err != nil {
			return nil, err
		}
		leg.Action = t.Action
		leg.Quantity = quantity
		legs = append(legs, leg)
	}
	return legs, nil
}
