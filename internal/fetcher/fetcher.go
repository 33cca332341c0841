package fetcher

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoQuote indicates a provider answered without a usable quote.
	ErrNoQuote = errors.New("no quote available")
	// ErrUnsupportedOverride indicates the override provider cannot quote a currency.
	ErrUnsupportedOverride = errors.New("override not supported for currency")
)

// PrimaryRateFetcher retrieves the broad-coverage table: units of each
// currency per one unit of the reference currency.
type PrimaryRateFetcher interface {
	FetchPrimary(ctx context.Context) (map[string]float64, error)
}

// OverrideRateFetcher retrieves an authoritative multiplier for one currency
// on a given calendar date.
type OverrideRateFetcher interface {
	FetchOverride(ctx context.Context, code string, date time.Time) (float64, error)
}
