package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fx-converter/internal/conversion"
	"fx-converter/internal/rates"
)

type staticRates struct {
	entry rates.Entry
	err   error
}

func (s staticRates) Rates(ctx context.Context) (rates.Entry, error) {
	return s.entry, s.err
}

func overriddenEntry(t *testing.T) rates.Entry {
	t.Helper()
	table, err := rates.NewTable("USD", map[string]float64{"BRL": 5.0, "EUR": 0.92})
	require.NoError(t, err)
	table, err = table.WithOverride("BRL", 5.12)
	require.NoError(t, err)
	return rates.Entry{Table: table, FetchedAt: time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC), TTL: time.Hour}
}

func TestServiceConvertLabelsOverride(t *testing.T) {
	entry := overriddenEntry(t)
	svc := New(staticRates{entry: entry}, zerolog.Nop())

	res, err := svc.Convert(context.Background(), conversion.Request{From: "USD", To: "BRL", Amount: 100})
	require.NoError(t, err)
	assert.InDelta(t, 512, res.Amount, 1e-9)
	assert.InDelta(t, 5.12, res.Rate, 1e-12)
	assert.Equal(t, conversion.SourcePrimaryWithOverride, res.Source)
	assert.True(t, res.UpdatedAt.Equal(entry.FetchedAt))

	res, err = svc.Convert(context.Background(), conversion.Request{From: "USD", To: "EUR", Amount: 1})
	require.NoError(t, err)
	assert.Equal(t, conversion.SourcePrimary, res.Source)
}

func TestServiceConvertErrors(t *testing.T) {
	svc := New(staticRates{entry: overriddenEntry(t)}, zerolog.Nop())

	_, err := svc.Convert(context.Background(), conversion.Request{From: "XYZ", To: "BRL", Amount: 1})
	var unknown *conversion.UnknownCurrencyError
	assert.True(t, errors.As(err, &unknown))

	svc = New(staticRates{err: rates.ErrCacheClosed}, zerolog.Nop())
	_, err = svc.Convert(context.Background(), conversion.Request{From: "USD", To: "BRL", Amount: 1})
	assert.ErrorIs(t, err, rates.ErrCacheClosed)
}
