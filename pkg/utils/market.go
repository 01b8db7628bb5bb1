package utils

import (
	"time"

	"sigma-trader/internal/models"
)

// MarketStatus represents the NSE session phase.
type MarketStatus string

const (
	MarketClosed  MarketStatus = "CLOSED"
	MarketPreOpen MarketStatus = "PRE_OPEN"
	MarketOpen    MarketStatus = "OPEN"
)

// GetMarketStatus returns the session phase at t. Holidays are not modelled.
func GetMarketStatus(t time.Time) MarketStatus {
	now := t.In(models.IST)

	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return MarketClosed
	}

	timeMinutes := now.Hour()*60 + now.Minute()

	// Pre-open: 9:00 - 9:15
	if timeMinutes >= 540 && timeMinutes < 555 {
		return MarketPreOpen
	}
	// Market open: 9:15 - 15:30
	if timeMinutes >= 555 && timeMinutes < 930 {
		return MarketOpen
	}
	return MarketClosed
}

// IsMarketOpen returns true if the market is open at t.
func IsMarketOpen(t time.Time) bool {
	return GetMarketStatus(t) == MarketOpen
}

// GetNextMarketOpen returns the next market opening time after t.
func GetNextMarketOpen(t time.Time) time.Time {
	now := t.In(models.IST)
	next := time.Date(now.Year(), now.Month(), now.Day(), 9, 15, 0, 0, models.IST)
	if now.After(next) {
		next = next.AddDate(0, 0, 1)
	}
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
