package enums

import "fmt"

// TaxMode controls how a tax rate is applied to line item totals.
type TaxMode string

const (
	TaxModeNone      TaxMode = "NONE"
	TaxModeExclusive TaxMode = "EXCLUSIVE"
	TaxModeInclusive TaxMode = "INCLUSIVE"
)

var validTaxModes = []TaxMode{
	TaxModeNone,
	TaxModeExclusive,
	TaxModeInclusive,
}

// String implements fmt.Stringer.
func (m TaxMode) String() string {
	return string(m)
}

// IsValid reports whether the value is a known TaxMode.
func (m TaxMode) IsValid() bool {
	for _, candidate := range validTaxModes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseTaxMode converts raw input into a TaxMode.
func ParseTaxMode(value string) (TaxMode, error) {
	for _, candidate := range validTaxModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid tax mode %q", value)
}
