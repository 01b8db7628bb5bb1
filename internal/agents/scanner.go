package agents

import (
	"context"
	"strings"
	"time"

	"sigma-trader/internal/errors"
	"sigma-trader/internal/logging"
	"sigma-trader/internal/marketdata"
	"sigma-trader/internal/models"
)

// Scanner fetches live spot, volatility index and an option chain. It is the
// pipeline entry point and fails the run when any of them is unavailable.
type Scanner struct {
	provider marketdata.Provider
	symbol   string
	now      func() time.Time
}

// NewScanner creates a scanner for symbol. A nil now uses time.Now.
func NewScanner(provider marketdata.Provider, symbol string, now func() time.Time) *Scanner {
	if now == nil {
		now = time.Now
	}
	return &Scanner{provider: provider, symbol: strings.ToUpper(symbol), now: now}
}

// Symbol returns the scanned underlying.
func (s *Scanner) Symbol() string {
	return s.symbol
}

// Scan builds the run's market snapshot. Days to expiry come from the chain's
// own expiry.
func (s *Scanner) Scan(ctx context.Context, expiry *time.Time) (*models.MarketSnapshot, error) {
	logger := logging.FromContext(ctx)

	spot, err := s.provider.FetchSpot(ctx, s.symbol)
	if err != nil {
		return nil, unavailable("spot", s.symbol, err)
	}
	vol, err := s.provider.FetchVolatilityIndex(ctx)
	if err != nil {
		return nil, unavailable("volatility", marketdata.VolatilityIndexSymbol, err)
	}
	chain, err := s.provider.FetchOptionChain(ctx, s.symbol, expiry)
	if err != nil {
		return nil, unavailable("chain", s.symbol, err)
	}
	if chain == nil || chain.Len() == 0 {
		return nil, errors.Unavailable("chain", s.symbol, errors.New("option chain returned empty data"))
	}

	now := s.now()
	if chain.Expiry().IsZero() {
		return nil, errors.Unavailable("expiry", s.symbol, errors.New("chain has no expiry"))
	}
	if chain.Expiry().In(models.IST).Before(startOfDay(now)) {
		return nil, errors.Unavailable("expiry", s.symbol, errors.New("chain expiry is in the past"))
	}

	snap := models.NewMarketSnapshot(spot, vol, chain, now)
	logger.Info().
		Str("symbol", snap.Symbol).
		Float64("spot", snap.Spot).
		Float64("iv", snap.VolIndex).
		Int("dte", snap.DaysToExpiry).
		Str("source", string(snap.Provenance)).
		Msg("Market data fetched")
	return snap, nil
}

// unavailable keeps provider errors in the data-unavailable category.
func unavailable(dataType, symbol string, err error) error {
	if errors.Is(err, errors.ErrDataUnavailable) {
		return err
	}
	return errors.Unavailable(dataType, symbol, err)
}

func startOfDay(t time.Time) time.Time {
	t = t.In(models.IST)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, models.IST)
}
