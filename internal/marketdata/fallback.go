package marketdata

import (
	"context"
	"time"

	"sigma-trader/internal/chain"
	"sigma-trader/internal/errors"
	"sigma-trader/internal/logging"
	"sigma-trader/internal/models"
)

// FallbackProvider serves the primary provider's chain and, when that fails,
// a DERIVED chain synthesized from the primary's live spot and volatility.
// Spot and volatility are never substituted.
type FallbackProvider struct {
	primary Provider
	tick    float64
	steps   int
	rate    float64
	weekday time.Weekday
	now     func() time.Time
}

// FallbackConfig holds synthesis settings for the fallback path.
type FallbackConfig struct {
	Tick          float64
	Steps         int
	Rate          float64
	ExpiryWeekday time.Weekday
	Now           func() time.Time
}

// NewFallbackProvider wraps primary.
func NewFallbackProvider(primary Provider, cfg FallbackConfig) *FallbackProvider {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &FallbackProvider{
		primary: primary,
		tick:    cfg.Tick,
		steps:   cfg.Steps,
		rate:    cfg.Rate,
		weekday: cfg.ExpiryWeekday,
		now:     cfg.Now,
	}
}

// FetchSpot delegates to the primary provider.
func (f *FallbackProvider) FetchSpot(ctx context.Context, symbol string) (float64, error) {
	return f.primary.FetchSpot(ctx, symbol)
}

// FetchVolatilityIndex delegates to the primary provider.
func (f *FallbackProvider) FetchVolatilityIndex(ctx context.Context) (float64, error) {
	return f.primary.FetchVolatilityIndex(ctx)
}

// FetchOptionChain returns the live chain or a synthesized one.
func (f *FallbackProvider) FetchOptionChain(ctx context.Context, symbol string, expiry *time.Time) (*models.OptionChain, error) {
	live, err := f.primary.FetchOptionChain(ctx, symbol, expiry)
	if err == nil && live.Len() > 0 {
		return live, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	logger := logging.WithSymbol(logging.FromContext(ctx), symbol)
	logger.Warn().Err(err).Msg("Live chain unavailable, synthesizing from live spot and volatility")

	spot, spotErr := f.primary.FetchSpot(ctx, symbol)
	if spotErr != nil {
		return nil, spotErr
	}
	vol, volErr := f.primary.FetchVolatilityIndex(ctx)
	if volErr != nil {
		return nil, volErr
	}

	now := f.now()
	var target time.Time
	if expiry != nil {
		target = *expiry
	} else {
		weekday := f.weekday
		if weekday == time.Sunday {
			// zero value; index weeklies expire on Thursday
			weekday = time.Thursday
		}
		target = chain.NextWeeklyExpiry(now, weekday)
	}
	if target.Before(now) {
		return nil, errors.Unavailable("chain", symbol, errors.Wrapf(errors.ErrDataNotFound, "expiry %s has passed", chain.FormatExpiry(target)))
	}

	return chain.Synthesize(chain.Params{
		Symbol:   symbol,
		Spot:     spot,
		VolIndex: vol,
		Expiry:   target,
		Now:      now,
		Tick:     f.tick,
		Steps:    f.steps,
		Rate:     f.rate,
	})
}
