package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"golang.org/x/time/rate"

	"sigma-trader/internal/errors"
	"sigma-trader/internal/models"
)

// KiteGateway implements Gateway and QuoteSource on Zerodha Kite Connect.
type KiteGateway struct {
	client        *kiteconnect.Client
	limiter       *rate.Limiter
	product       string
	tokenPath     string
	authenticated bool

	// instruments caches the instrument master per exchange
	instruments map[models.Exchange][]models.Instrument
	loadedAt    map[models.Exchange]time.Time
	cacheTTL    time.Duration

	mu sync.RWMutex
}

// KiteConfig holds configuration for the Kite gateway.
type KiteConfig struct {
	APIKey      string
	AccessToken string
	TokenPath   string
	// RequestsPerSecond throttles quote and instrument calls. Kite allows 3/s for quotes.
	RequestsPerSecond float64
	Product           string
	CacheTTL          time.Duration
}

// sessionData represents a persisted session.
type sessionData struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewKiteGateway creates a Kite gateway. Without an explicit access token it
// falls back to a saved, unexpired session file.
func NewKiteGateway(cfg KiteConfig) *KiteGateway {
	client := kiteconnect.New(cfg.APIKey)

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 3
	}
	product := cfg.Product
	if product == "" {
		product = "NRML"
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	tokenPath := cfg.TokenPath
	if tokenPath == "" {
		homeDir, _ := os.UserHomeDir()
		tokenPath = filepath.Join(homeDir, ".config", "sigma-trader", "session.json")
	}

	kg := &KiteGateway{
		client:      client,
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
		product:     product,
		tokenPath:   tokenPath,
		instruments: make(map[models.Exchange][]models.Instrument),
		loadedAt:    make(map[models.Exchange]time.Time),
		cacheTTL:    ttl,
	}

	if cfg.AccessToken != "" {
		client.SetAccessToken(cfg.AccessToken)
		kg.authenticated = true
	} else {
		_ = kg.loadSession()
	}
	return kg
}

// IsAuthenticated returns whether an access token is set.
func (z *KiteGateway) IsAuthenticated() bool {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.authenticated
}

func (z *KiteGateway) loadSession() error {
	data, err := os.ReadFile(z.tokenPath)
	if err != nil {
		return err
	}

	var session sessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return err
	}

	// Kite tokens expire at 6 AM the next day
	if time.Now().After(session.ExpiresAt) {
		return fmt.Errorf("session expired")
	}

	z.mu.Lock()
	z.authenticated = true
	z.client.SetAccessToken(session.AccessToken)
	z.mu.Unlock()
	return nil
}

func (z *KiteGateway) ready(ctx context.Context) error {
	if !z.IsAuthenticated() {
		return errors.ErrNotAuthenticated
	}
	if err := z.limiter.Wait(ctx); err != nil {
		return errors.Wrap(errors.ErrRateLimited, err.Error())
	}
	return nil
}

// GetQuotes fetches quotes keyed by the requested "EXCHANGE:SYMBOL" names.
func (z *KiteGateway) GetQuotes(ctx context.Context, symbols ...string) (map[string]models.Quote, error) {
	if err := z.ready(ctx); err != nil {
		return nil, err
	}

	quotes, err := z.client.GetQuote(symbols...)
	if err != nil {
		return nil, errors.NewBrokerError("QUOTE", "failed to get quote", err)
	}

	out := make(map[string]models.Quote, len(quotes))
	for name, q := range quotes {
		out[name] = models.Quote{
			Symbol:    name,
			LTP:       q.LastPrice,
			Close:     q.OHLC.Close,
			Change:    q.NetChange,
			OI:        int64(q.OI),
			Timestamp: q.LastTradeTime.Time,
		}
	}
	return out, nil
}

// GetInstruments returns the instrument master for an exchange, cached for the configured TTL.
func (z *KiteGateway) GetInstruments(ctx context.Context, exchange models.Exchange) ([]models.Instrument, error) {
	z.mu.RLock()
	cached, ok := z.instruments[exchange]
	fresh := ok && time.Since(z.loadedAt[exchange]) < z.cacheTTL
	z.mu.RUnlock()
	if fresh {
		return cached, nil
	}

	if err := z.ready(ctx); err != nil {
		return nil, err
	}

	instruments, err := z.client.GetInstruments()
	if err != nil {
		return nil, errors.NewBrokerError("INSTRUMENTS", "failed to get instruments", err)
	}

	var result []models.Instrument
	for _, inst := range instruments {
		if inst.Exchange != string(exchange) {
			continue
		}
		result = append(result, models.Instrument{
			Token:     uint32(inst.InstrumentToken),
			Symbol:    inst.Tradingsymbol,
			Name:      inst.Name,
			Exchange:  models.Exchange(inst.Exchange),
			LotSize:   int(inst.LotSize),
			TickSize:  inst.TickSize,
			Expiry:    inst.Expiry.Time,
			Strike:    inst.StrikePrice,
			InstrType: inst.InstrumentType,
		})
	}

	z.mu.Lock()
	z.instruments[exchange] = result
	z.loadedAt[exchange] = time.Now()
	z.mu.Unlock()

	return result, nil
}

// PlaceOrder places a regular NFO order for one option leg.
func (z *KiteGateway) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if err := z.ready(ctx); err != nil {
		return "", err
	}

	resp, err := z.client.PlaceOrder(kiteconnect.VarietyRegular, orderParams(req, z.product))
	if err != nil {
		return "", errors.NewOrderError("", req.Instrument, string(req.Action), "placement failed", err)
	}
	return resp.OrderID, nil
}

func orderParams(req OrderRequest, product string) kiteconnect.OrderParams {
	params := kiteconnect.OrderParams{
		Exchange:        string(models.NFO),
		Tradingsymbol:   req.Instrument,
		TransactionType: string(req.Action),
		OrderType:       string(req.Type),
		Product:         product,
		Quantity:        req.Quantity,
		Validity:        "DAY",
	}
	if req.Type == models.OrderTypeLimit {
		params.Price = req.Price
	}
	return params
}

// GetLotSize returns the lot size of the nearest-expiry option on symbol,
// falling back to the known table when the master is unavailable.
func (z *KiteGateway) GetLotSize(ctx context.Context, symbol string) (int, error) {
	instruments, err := z.GetInstruments(ctx, models.NFO)
	if err != nil {
		return KnownLotSize(symbol), nil
	}
	name := strings.ToUpper(symbol)
	var best models.Instrument
	for _, inst := range instruments {
		if inst.Name != name || (inst.InstrType != "CE" && inst.InstrType != "PE") || inst.LotSize <= 0 {
			continue
		}
		if best.LotSize == 0 || inst.Expiry.Before(best.Expiry) {
			best = inst
		}
	}
	if best.LotSize == 0 {
		return KnownLotSize(symbol), nil
	}
	return best.LotSize, nil
}

// LoginURL returns the Kite login URL used to obtain a request token.
func (z *KiteGateway) LoginURL() string {
	return z.client.GetLoginURL()
}

// CompleteLogin exchanges a request token for an access token and persists
// the session until 6 AM IST the next day.
func (z *KiteGateway) CompleteLogin(ctx context.Context, requestToken, apiSecret string) error {
	if requestToken == "" || apiSecret == "" {
		return errors.NewValidationError("kite", "", "request token and api secret are required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	session, err := z.client.GenerateSession(requestToken, apiSecret)
	if err != nil {
		return errors.NewBrokerError("SESSION", "failed to generate session", err)
	}

	z.mu.Lock()
	z.authenticated = true
	z.client.SetAccessToken(session.AccessToken)
	z.mu.Unlock()

	return z.saveSession(session.AccessToken, time.Now())
}

// Logout invalidates the session and removes the saved session file.
func (z *KiteGateway) Logout() error {
	z.mu.Lock()
	defer z.mu.Unlock()

	var invalidateErr error
	if z.authenticated {
		if _, err := z.client.InvalidateAccessToken(); err != nil {
			invalidateErr = errors.NewBrokerError("SESSION", "failed to invalidate token", err)
		}
	}
	z.authenticated = false

	if err := os.Remove(z.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return invalidateErr
}

func (z *KiteGateway) saveSession(accessToken string, now time.Time) error {
	if err := os.MkdirAll(filepath.Dir(z.tokenPath), 0700); err != nil {
		return err
	}
	n := now.In(models.IST)
	data, err := json.Marshal(sessionData{
		AccessToken: accessToken,
		ExpiresAt:   time.Date(n.Year(), n.Month(), n.Day()+1, 6, 0, 0, 0, models.IST),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(z.tokenPath, data, 0600)
}

var (
	_ Gateway     = (*KiteGateway)(nil)
	_ QuoteSource = (*KiteGateway)(nil)
	_ Gateway     = (*PaperGateway)(nil)
)
