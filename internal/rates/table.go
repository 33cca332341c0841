package rates

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DefaultReference is the currency every multiplier is expressed against.
const DefaultReference = "USD"

var (
	// ErrEmptyTable is returned when a table would contain no currencies.
	ErrEmptyTable = errors.New("rates: empty table")
)

// Table is an immutable snapshot mapping currency codes to units of that
// currency per one unit of the reference currency.
type Table struct {
	reference  string
	values     map[string]float64
	overridden map[string]struct{}
}

// NewTable validates values and copies them into a new snapshot. Codes are
// upper-cased; codes that are not three ASCII letters are rejected, as are
// non-positive multipliers. A missing reference entry is added as 1.0.
func NewTable(reference string, values map[string]float64) (Table, error) {
	reference = strings.ToUpper(strings.TrimSpace(reference))
	if !ValidCode(reference) {
		return Table{}, fmt.Errorf("rates: invalid reference currency %q", reference)
	}
	if len(values) == 0 {
		return Table{}, ErrEmptyTable
	}

	copied := make(map[string]float64, len(values)+1)
	for code, value := range values {
		normalized := strings.ToUpper(code)
		if !ValidCode(normalized) {
			return Table{}, fmt.Errorf("rates: invalid currency code %q", code)
		}
		if !(value > 0) {
			return Table{}, fmt.Errorf("rates: non-positive multiplier %v for %s", value, normalized)
		}
		copied[normalized] = value
	}

	if ref, ok := copied[reference]; !ok {
		copied[reference] = 1.0
	} else if ref != 1.0 {
		return Table{}, fmt.Errorf("rates: reference %s must map to 1, got %v", reference, ref)
	}

	return Table{reference: reference, values: copied}, nil
}

// ValidCode reports whether code is exactly three upper-case ASCII letters.
func ValidCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

// Reference returns the reference currency code.
func (t Table) Reference() string { return t.reference }

// Len returns the number of currencies in the table.
func (t Table) Len() int { return len(t.values) }

// IsZero reports whether the table was never populated.
func (t Table) IsZero() bool { return t.values == nil }

// Get returns the multiplier for code.
func (t Table) Get(code string) (float64, bool) {
	v, ok := t.values[code]
	return v, ok
}

// Codes returns the currency codes in lexical order.
func (t Table) Codes() []string {
	codes := make([]string, 0, len(t.values))
	for code := range t.values {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Overridden reports whether code was patched by an override provider.
func (t Table) Overridden(code string) bool {
	_, ok := t.overridden[code]
	return ok
}

// WithOverride returns a copy of t with code set to value and marked as
// overridden. The receiver is left untouched.
func (t Table) WithOverride(code string, value float64) (Table, error) {
	code = strings.ToUpper(code)
	if !ValidCode(code) {
		return Table{}, fmt.Errorf("rates: invalid currency code %q", code)
	}
	if !(value > 0) {
		return Table{}, fmt.Errorf("rates: non-positive override %v for %s", value, code)
	}
	if code == t.reference {
		return Table{}, fmt.Errorf("rates: cannot override reference currency %s", code)
	}

	values := make(map[string]float64, len(t.values)+1)
	for k, v := range t.values {
		values[k] = v
	}
	values[code] = value

	overridden := make(map[string]struct{}, len(t.overridden)+1)
	for k := range t.overridden {
		overridden[k] = struct{}{}
	}
	overridden[code] = struct{}{}

	return Table{reference: t.reference, values: values, overridden: overridden}, nil
}
