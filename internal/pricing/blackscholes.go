// Package pricing provides Black-Scholes valuation for European index options.
package pricing

import (
	"fmt"
	"math"

	"sigma-trader/internal/models"
)

// MinTick is the smallest tradable option price.
const MinTick = 0.05

const (
	sqrt2Pi      = 2.5066282746310002
	daysPerYear  = 365.0
	maxIVIter    = 100
	ivTolerance  = 1e-6
	ivInitial    = 0.20
	ivUpperBound = 5.0
)

// Intrinsic returns the exercise value of an option.
func Intrinsic(side models.OptionSide, spot, strike float64) float64 {
	if side == models.Call {
		return math.Max(0, spot-strike)
	}
	return math.Max(0, strike-spot)
}

// Theoretical returns the unfloored Black-Scholes price. T is in years and
// sigma is a decimal volatility. For T <= 0 it returns intrinsic value, and
// for sigma <= 0 the discounted forward intrinsic.
func Theoretical(side models.OptionSide, spot, strike, t, r, sigma float64) float64 {
	if t <= 0 {
		return Intrinsic(side, spot, strike)
	}
	df := math.Exp(-r * t)
	if sigma <= 0 {
		if side == models.Call {
			return math.Max(0, spot-strike*df)
		}
		return math.Max(0, strike*df-spot)
	}

	d1, d2 := d1d2(spot, strike, t, r, sigma)
	if side == models.Call {
		return spot*normCDF(d1) - strike*df*normCDF(d2)
	}
	return strike*df*normCDF(-d2) - spot*normCDF(-d1)
}

// Price returns the option value used for quoting. At or past expiry it is
// exact intrinsic value; otherwise the theoretical value floored at MinTick.
func Price(side models.OptionSide, spot, strike, t, r, sigma float64) float64 {
	if t <= 0 {
		return Intrinsic(side, spot, strike)
	}
	return math.Max(MinTick, Theoretical(side, spot, strike, t, r, sigma))
}

// Greeks returns delta, gamma, theta per calendar day, vega per one
// volatility point, and rho per one rate point.
func Greeks(side models.OptionSide, spot, strike, t, r, sigma float64) models.OptionGreeks {
	if t <= 0 || sigma <= 0 {
		var delta float64
		switch {
		case side == models.Call && spot > strike:
			delta = 1
		case side == models.Put && spot < strike:
			delta = -1
		}
		return models.OptionGreeks{Delta: delta}
	}

	d1, d2 := d1d2(spot, strike, t, r, sigma)
	sqrtT := math.Sqrt(t)
	df := math.Exp(-r * t)
	pdf := normPDF(d1)

	g := models.OptionGreeks{
		Gamma: pdf / (spot * sigma * sqrtT),
		Vega:  spot * pdf * sqrtT / 100,
	}
	decay := -spot * pdf * sigma / (2 * sqrtT)
	if side == models.Call {
		g.Delta = normCDF(d1)
		g.Theta = (decay - r*strike*df*normCDF(d2)) / daysPerYear
		g.Rho = strike * t * df * normCDF(d2) / 100
	} else {
		g.Delta = normCDF(d1) - 1
		g.Theta = (decay + r*strike*df*normCDF(-d2)) / daysPerYear
		g.Rho = -strike * t * df * normCDF(-d2) / 100
	}
	return g
}

// ImpliedVol solves for the decimal volatility that reproduces price using
// Newton-Raphson on vega.
func ImpliedVol(side models.OptionSide, price, spot, strike, t, r float64) (float64, error) {
	if t <= 0 {
		return 0, fmt.Errorf("invalid expiry")
	}
	if price <= Intrinsic(side, spot, strike) {
		return 0, fmt.Errorf("price %.2f at or below intrinsic", price)
	}

	sigma := ivInitial
	for i := 0; i < maxIVIter; i++ {
		diff := Theoretical(side, spot, strike, t, r, sigma) - price
		if math.Abs(diff) < ivTolerance {
			return sigma, nil
		}

		d1, _ := d1d2(spot, strike, t, r, sigma)
		vega := spot * normPDF(d1) * math.Sqrt(t)
		if vega < 1e-8 {
			break
		}

		sigma -= diff / vega
		if sigma <= 0 {
			sigma = 1e-4
		}
		if sigma > ivUpperBound {
			sigma = ivUpperBound
		}
	}
	return 0, fmt.Errorf("implied vol did not converge")
}

// YearFraction converts a duration in days to years.
func YearFraction(days float64) float64 {
	return days / daysPerYear
}

func d1d2(spot, strike, t, r, sigma float64) (float64, float64) {
	sqrtT := math.Sqrt(t)
	d1 := (math.Log(spot/strike) + (r+0.5*sigma*sigma)*t) / (sigma * sqrtT)
	return d1, d1 - sigma*sqrtT
}

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / sqrt2Pi
}

func normCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}
