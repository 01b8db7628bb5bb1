package chain

import (
	"fmt"
	"strings"
	"time"

	"sigma-trader/internal/models"
)

// ExpiryLayout is the user-facing expiry format, e.g. 24-Oct-2024.
const ExpiryLayout = "02-Jan-2006"

// Market close on expiry day, IST.
const (
	closeHour   = 15
	closeMinute = 30
)

// NextWeeklyExpiry returns the next occurrence of weekday strictly after
// today's exchange date, at market close. An expiry is never today.
func NextWeeklyExpiry(now time.Time, weekday time.Weekday) time.Time {
	n := now.In(models.IST)
	days := (int(weekday) - int(n.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	d := n.AddDate(0, 0, days)
	return time.Date(d.Year(), d.Month(), d.Day(), closeHour, closeMinute, 0, 0, models.IST)
}

// ParseExpiry parses a DD-MMM-YYYY expiry string as an exchange-local
// date at market close. Month names are case-insensitive.
func ParseExpiry(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) == len(ExpiryLayout) {
		// Normalize "24-OCT-2024" to "24-Oct-2024".
		s = s[:3] + strings.ToUpper(s[3:4]) + strings.ToLower(s[4:6]) + s[6:]
	}
	d, err := time.ParseInLocation(ExpiryLayout, s, models.IST)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid expiry %q, want DD-MMM-YYYY: %w", s, err)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), closeHour, closeMinute, 0, 0, models.IST), nil
}

// FormatExpiry renders an expiry as DD-MMM-YYYY in exchange time.
func FormatExpiry(t time.Time) string {
	return t.In(models.IST).Format(ExpiryLayout)
}

// ExpiryCode renders the contract code used in trading symbols, e.g. 24OCT24.
func ExpiryCode(t time.Time) string {
	return strings.ToUpper(t.In(models.IST).Format("02Jan06"))
}

// InstrumentID builds a trading symbol from its parts, e.g. NIFTY24OCT2425000CE.
func InstrumentID(symbol string, expiry time.Time, strike float64, side models.OptionSide) string {
	return fmt.Sprintf("%s%s%d%s", strings.ToUpper(symbol), ExpiryCode(expiry), int64(strike), side)
}

// SameDay reports whether two instants fall on the same exchange date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.In(models.IST).Date()
	by, bm, bd := b.In(models.IST).Date()
	return ay == by && am == bm && ad == bd
}
