// Package marketdata provides spot, volatility index and option chain data.
package marketdata

import (
	"context"
	"strings"
	"time"

	"sigma-trader/internal/models"
)

// Provider fetches the market inputs of a pipeline run.
type Provider interface {
	FetchSpot(ctx context.Context, symbol string) (float64, error)
	FetchVolatilityIndex(ctx context.Context) (float64, error)
	// FetchOptionChain returns the chain for expiry, or the nearest expiry when nil.
	FetchOptionChain(ctx context.Context, symbol string, expiry *time.Time) (*models.OptionChain, error)
}

// VolatilityIndexSymbol is the Kite quote name of India VIX.
const VolatilityIndexSymbol = "NSE:INDIA VIX"

// indexQuoteNames maps underlyings to their Kite index quote names.
var indexQuoteNames = map[string]string{
	"NIFTY":      "NSE:NIFTY 50",
	"BANKNIFTY":  "NSE:NIFTY BANK",
	"FINNIFTY":   "NSE:NIFTY FIN SERVICE",
	"MIDCPNIFTY": "NSE:NIFTY MID SELECT",
}

// IndexQuoteName returns the Kite quote name for an underlying.
func IndexQuoteName(symbol string) string {
	s := strings.ToUpper(symbol)
	if name, ok := indexQuoteNames[s]; ok {
		return name
	}
	return "NSE:" + s
}
