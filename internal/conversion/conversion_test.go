package conversion

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fx-converter/internal/rates"
)

func testTable(t *testing.T) rates.Table {
	t.Helper()
	table, err := rates.NewTable("USD", map[string]float64{"BRL": 5.12, "EUR": 0.92, "JPY": 149.5})
	require.NoError(t, err)
	return table
}

func TestConvertUSDToBRL(t *testing.T) {
	result, rate, err := Convert("USD", "BRL", 100, testTable(t))
	require.NoError(t, err)
	assert.InDelta(t, 512.0, result, 1e-9)
	assert.InDelta(t, 5.12, rate, 1e-12)
}

func TestConvertCrossRate(t *testing.T) {
	table := testTable(t)
	pairs := []struct {
		from, to string
		amount   float64
	}{
		{"EUR", "BRL", 10},
		{"BRL", "JPY", 0.01},
		{"JPY", "EUR", 123456.78},
		{"BRL", "BRL", 42},
	}
	for _, p := range pairs {
		fromRate, _ := table.Get(p.from)
		toRate, _ := table.Get(p.to)

		result, rate, err := Convert(p.from, p.to, p.amount, table)
		require.NoError(t, err)
		assert.InEpsilon(t, p.amount*toRate/fromRate, result, 1e-12, "%s->%s", p.from, p.to)
		assert.InEpsilon(t, toRate/fromRate, rate, 1e-12)
	}
}

func TestConvertRoundTrip(t *testing.T) {
	table := testTable(t)
	there, rateAB, err := Convert("EUR", "JPY", 250, table)
	require.NoError(t, err)
	back, rateBA, err := Convert("JPY", "EUR", there, table)
	require.NoError(t, err)

	assert.InDelta(t, 250, back, 1e-9)
	assert.InDelta(t, 1, rateAB*rateBA, 1e-12)
}

func TestConvertUnknownCurrency(t *testing.T) {
	_, _, err := Convert("XYZ", "BRL", 1, testTable(t))
	var unknown *UnknownCurrencyError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "XYZ", unknown.Code)
	assert.Contains(t, err.Error(), "XYZ")
	assert.Contains(t, err.Error(), "not supported")

	_, _, err = Convert("USD", "QQQ", 1, testTable(t))
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "QQQ", unknown.Code)
}

func TestConvertInvalidAmount(t *testing.T) {
	for _, amount := range []float64{0, -5, math.NaN()} {
		_, _, err := Convert("USD", "BRL", amount, testTable(t))
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}
}
