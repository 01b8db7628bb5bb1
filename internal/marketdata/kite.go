package marketdata

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"sigma-trader/internal/broker"
	"sigma-trader/internal/chain"
	"sigma-trader/internal/errors"
	"sigma-trader/internal/logging"
	"sigma-trader/internal/models"
	"sigma-trader/internal/pricing"
	"sigma-trader/pkg/utils"
)

// maxQuoteBatch is the Kite limit on instruments per quote call.
const maxQuoteBatch = 500

// KiteProvider reads live data through a broker quote source.
type KiteProvider struct {
	source broker.QuoteSource
	retry  utils.RetryConfig
	tick   float64
	steps  int
	rate   float64
	now    func() time.Time
}

// KiteProviderConfig holds configuration for the Kite provider.
type KiteProviderConfig struct {
	Retry utils.RetryConfig
	// Tick and Steps bound the strike window fetched around spot.
	Tick  float64
	Steps int
	// Rate is used to back out implied volatility from last prices.
	Rate float64
	Now  func() time.Time
}

// NewKiteProvider creates a provider over source.
func NewKiteProvider(source broker.QuoteSource, cfg KiteProviderConfig) *KiteProvider {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = utils.DefaultRetryConfig()
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = func(err error) bool {
			return !errors.Is(err, errors.ErrNotAuthenticated)
		}
	}
	if cfg.Tick <= 0 {
		cfg.Tick = chain.DefaultTick
	}
	if cfg.Steps <= 0 {
		cfg.Steps = chain.DefaultSteps
	}
	if cfg.Rate == 0 {
		cfg.Rate = chain.DefaultRate
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &KiteProvider{
		source: source,
		retry:  cfg.Retry,
		tick:   cfg.Tick,
		steps:  cfg.Steps,
		rate:   cfg.Rate,
		now:    cfg.Now,
	}
}

// FetchSpot returns the live index level.
func (k *KiteProvider) FetchSpot(ctx context.Context, symbol string) (float64, error) {
	return k.lastPrice(ctx, "spot", symbol, IndexQuoteName(symbol))
}

// FetchVolatilityIndex returns the live India VIX level.
func (k *KiteProvider) FetchVolatilityIndex(ctx context.Context) (float64, error) {
	return k.lastPrice(ctx, "volatility", "INDIA VIX", VolatilityIndexSymbol)
}

func (k *KiteProvider) lastPrice(ctx context.Context, dataType, symbol, quoteName string) (float64, error) {
	start := time.Now()
	ltp, err := utils.RetryWithResult(ctx, k.retry, func() (float64, error) {
		quotes, err := k.source.GetQuotes(ctx, quoteName)
		if err != nil {
			return 0, err
		}
		q, ok := quotes[quoteName]
		if !ok || q.LTP <= 0 {
			return 0, errors.ErrDataNotFound
		}
		return q.LTP, nil
	})
	logging.LogAPICall(logging.FromContext(ctx), "quote", quoteName, time.Since(start), err)
	if err != nil {
		return 0, errors.Unavailable(dataType, symbol, err)
	}
	return ltp, nil
}

// FetchOptionChain assembles a LIVE chain from the NFO instrument master and
// quotes for strikes within the configured window around spot.
func (k *KiteProvider) FetchOptionChain(ctx context.Context, symbol string, expiry *time.Time) (*models.OptionChain, error) {
	symbol = strings.ToUpper(symbol)

	spot, err := k.FetchSpot(ctx, symbol)
	if err != nil {
		return nil, err
	}

	instruments, err := k.source.GetInstruments(ctx, models.NFO)
	if err != nil {
		return nil, errors.Unavailable("chain", symbol, err)
	}

	now := k.now()
	options := filterOptions(instruments, symbol)
	target, ok := selectExpiry(options, expiry, now)
	if !ok {
		return nil, errors.Unavailable("chain", symbol, errors.Wrapf(errors.ErrDataNotFound, "no option expiry for %s", symbol))
	}

	atm := chain.ATMStrike(spot, k.tick)
	window := float64(k.steps) * k.tick
	var selected []models.Instrument
	for _, inst := range options {
		if chain.SameDay(expiryDate(inst.Expiry), target) && math.Abs(inst.Strike-atm) <= window {
			selected = append(selected, inst)
		}
	}
	if len(selected) == 0 {
		return nil, errors.Unavailable("chain", symbol, errors.ErrDataNotFound)
	}

	quotes, err := k.quoteAll(ctx, selected)
	if err != nil {
		return nil, errors.Unavailable("chain", symbol, err)
	}

	t := chain.YearsToExpiry(target, now)
	rows := make(map[float64]*models.Strike)
	for _, inst := range selected {
		q, ok := quotes["NFO:"+inst.Symbol]
		if !ok {
			continue
		}
		row, ok := rows[inst.Strike]
		if !ok {
			row = &models.Strike{Price: inst.Strike}
			rows[inst.Strike] = row
		}
		side := models.OptionSide(inst.InstrType)
		oq := &models.OptionQuote{
			Instrument: inst.Symbol,
			LastPrice:  q.LTP,
			OI:         q.OI,
		}
		if iv, err := pricing.ImpliedVol(side, q.LTP, spot, inst.Strike, t, k.rate); err == nil {
			oq.IV = math.Round(iv*10000) / 100
			g := pricing.Greeks(side, spot, inst.Strike, t, k.rate, iv)
			oq.Greeks = &g
		}
		if side == models.Call {
			row.Call = oq
		} else {
			row.Put = oq
		}
	}

	strikes := make([]models.Strike, 0, len(rows))
	for _, r := range rows {
		strikes = append(strikes, *r)
	}
	return models.NewOptionChain(symbol, target, models.Live, strikes)
}

func (k *KiteProvider) quoteAll(ctx context.Context, instruments []models.Instrument) (map[string]models.Quote, error) {
	out := make(map[string]models.Quote, len(instruments))
	for start := 0; start < len(instruments); start += maxQuoteBatch {
		end := start + maxQuoteBatch
		if end > len(instruments) {
			end = len(instruments)
		}
		names := make([]string, 0, end-start)
		for _, inst := range instruments[start:end] {
			names = append(names, "NFO:"+inst.Symbol)
		}
		batch, err := utils.RetryWithResult(ctx, k.retry, func() (map[string]models.Quote, error) {
			return k.source.GetQuotes(ctx, names...)
		})
		if err != nil {
			return nil, err
		}
		for name, q := range batch {
			out[name] = q
		}
	}
	return out, nil
}

func filterOptions(instruments []models.Instrument, symbol string) []models.Instrument {
	var out []models.Instrument
	for _, inst := range instruments {
		if inst.Name == symbol && (inst.InstrType == string(models.Call) || inst.InstrType == string(models.Put)) {
			out = append(out, inst)
		}
	}
	return out
}

// selectExpiry picks the requested expiry, or the nearest one that has not closed.
func selectExpiry(options []models.Instrument, requested *time.Time, now time.Time) (time.Time, bool) {
	seen := make(map[string]time.Time)
	for _, inst := range options {
		e := expiryDate(inst.Expiry)
		seen[chain.FormatExpiry(e)] = e
	}
	if requested != nil {
		e, ok := seen[chain.FormatExpiry(*requested)]
		return e, ok
	}

	var expiries []time.Time
	for _, e := range seen {
		if !e.Before(now) {
			expiries = append(expiries, e)
		}
	}
	if len(expiries) == 0 {
		return time.Time{}, false
	}
	sort.Slice(expiries, func(i, j int) bool { return expiries[i].Before(expiries[j]) })
	return expiries[0], true
}

// expiryDate moves an instrument-master expiry date to market close IST.
func expiryDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 15, 30, 0, 0, models.IST)
}
