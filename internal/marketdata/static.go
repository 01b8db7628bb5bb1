package marketdata

import (
	"context"
	"strings"
	"time"

	"sigma-trader/internal/errors"
	"sigma-trader/internal/models"
)

// StaticProvider serves fixed values for offline runs and tests. A zero spot
// or volatility reports data-unavailable; a nil chain reports the chain as
// unavailable so a FallbackProvider can derive one.
type StaticProvider struct {
	Spot  float64
	Vol   float64
	Chain *models.OptionChain
}

// FetchSpot returns the fixed spot.
func (s *StaticProvider) FetchSpot(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.Spot <= 0 {
		return 0, errors.Unavailable("spot", strings.ToUpper(symbol), nil)
	}
	return s.Spot, nil
}

// FetchVolatilityIndex returns the fixed volatility index.
func (s *StaticProvider) FetchVolatilityIndex(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.Vol <= 0 {
		return 0, errors.Unavailable("volatility", "INDIA VIX", nil)
	}
	return s.Vol, nil
}

// FetchOptionChain returns the fixed chain when it matches symbol and expiry.
func (s *StaticProvider) FetchOptionChain(ctx context.Context, symbol string, expiry *time.Time) (*models.OptionChain, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sym := strings.ToUpper(symbol)
	if s.Chain == nil || s.Chain.Symbol() != sym {
		return nil, errors.Unavailable("chain", sym, nil)
	}
	if expiry != nil {
		e := expiry.In(models.IST)
		c := s.Chain.Expiry().In(models.IST)
		if e.Year() != c.Year() || e.YearDay() != c.YearDay() {
			return nil, errors.Unavailable("chain", sym, errors.ErrDataNotFound)
		}
	}
	return s.Chain, nil
}

var (
	_ Provider = (*StaticProvider)(nil)
	_ Provider = (*FallbackProvider)(nil)
	_ Provider = (*KiteProvider)(nil)
)
