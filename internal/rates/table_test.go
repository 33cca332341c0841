package rates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTableAddsReference(t *testing.T) {
	table, err := NewTable("usd", map[string]float64{"brl": 5.12, "EUR": 0.92})
	require.NoError(t, err)

	assert.Equal(t, "USD", table.Reference())
	assert.Equal(t, 3, table.Len())
	ref, ok := table.Get("USD")
	require.True(t, ok)
	assert.Equal(t, 1.0, ref)
	brl, ok := table.Get("BRL")
	require.True(t, ok)
	assert.Equal(t, 5.12, brl)
	assert.Equal(t, []string{"BRL", "EUR", "USD"}, table.Codes())
}

func TestNewTableRejectsInvalidInput(t *testing.T) {
	cases := map[string]map[string]float64{
		"empty":          {},
		"zero value":     {"BRL": 0},
		"negative value": {"BRL": -1},
		"bad code":       {"BR1": 2},
		"long code":      {"BRLX": 2},
		"reference != 1": {"USD": 2},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewTable("USD", values)
			assert.Error(t, err)
		})
	}
}

func TestNewTableCopiesInput(t *testing.T) {
	values := map[string]float64{"BRL": 5}
	table, err := NewTable("USD", values)
	require.NoError(t, err)

	values["BRL"] = 99
	got, _ := table.Get("BRL")
	assert.Equal(t, 5.0, got)
}

func TestWithOverrideLeavesOriginalUntouched(t *testing.T) {
	base, err := NewTable("USD", map[string]float64{"BRL": 5.0, "EUR": 0.9})
	require.NoError(t, err)

	patched, err := base.WithOverride("BRL", 5.3)
	require.NoError(t, err)

	got, _ := patched.Get("BRL")
	assert.Equal(t, 5.3, got)
	assert.True(t, patched.Overridden("BRL"))
	assert.False(t, patched.Overridden("EUR"))

	orig, _ := base.Get("BRL")
	assert.Equal(t, 5.0, orig)
	assert.False(t, base.Overridden("BRL"))

	_, err = base.WithOverride("USD", 2)
	assert.Error(t, err)
	_, err = base.WithOverride("BRL", 0)
	assert.Error(t, err)
}

func TestFallbackTable(t *testing.T) {
	table := FallbackTable()
	assert.Equal(t, DefaultReference, table.Reference())
	brl, ok := table.Get("BRL")
	require.True(t, ok)
	assert.Equal(t, 5.12, brl)
	for _, code := range table.Codes() {
		v, _ := table.Get(code)
		assert.Greater(t, v, 0.0, code)
	}
}
