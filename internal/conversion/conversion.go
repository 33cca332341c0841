// Package conversion holds the pure currency conversion step and the request
// and result types exchanged between the codec and the service.
package conversion

import (
	"errors"
	"fmt"
	"time"

	"fx-converter/internal/rates"
)

// ErrInvalidAmount reports a non-positive amount.
var ErrInvalidAmount = errors.New("amount must be greater than zero")

// UnknownCurrencyError reports a currency absent from the rate table.
type UnknownCurrencyError struct {
	Code string
}

func (e *UnknownCurrencyError) Error() string {
	return fmt.Sprintf("currency %s not supported", e.Code)
}

// SourceLabel tells the client which providers produced the rate.
type SourceLabel string

const (
	SourcePrimary             SourceLabel = "PRIMARY"
	SourcePrimaryWithOverride SourceLabel = "PRIMARY_WITH_OVERRIDE"
)

// Request is one decoded conversion query.
type Request struct {
	From   string
	To     string
	Amount float64
}

// Result is the answer to a Request.
type Result struct {
	Amount    float64
	Rate      float64
	UpdatedAt time.Time
	Source    SourceLabel
}

// Convert turns amount of from into to using table. The amount is first
// normalised to the reference currency and then scaled to the target.
func Convert(from, to string, amount float64, table rates.Table) (result, rate float64, err error) {
	if !(amount > 0) {
		return 0, 0, ErrInvalidAmount
	}
	fromRate, ok := table.Get(from)
	if !ok {
		return 0, 0, &UnknownCurrencyError{Code: from}
	}
	toRate, ok := table.Get(to)
	if !ok {
		return 0, 0, &UnknownCurrencyError{Code: to}
	}

	result = (amount / fromRate) * toRate
	rate = toRate / fromRate
	return result, rate, nil
}
