package menu

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// SoldOutLabel is the persisted marker for an item the platform shows as unavailable
const SoldOutLabel = "sold out"

// PriceState distinguishes the three terminal states of a dish price
type PriceState int

const (
	// PriceUnresolved means the price element was absent or could not be parsed
	PriceUnresolved PriceState = iota
	// PriceResolved means Minor holds the price in minor currency units
	PriceResolved
	// PriceSoldOut means the platform marked the dish unavailable
	PriceSoldOut
)

// Price is a dish price in minor currency units (cents).
// It serializes as an integer, "sold out" or null.
type Price struct {
	State PriceState
	Minor int64
}

// Cents returns a resolved price
func Cents(minor int64) Price {
	return Price{State: PriceResolved, Minor: minor}
}

// SoldOut returns the sold-out marker
func SoldOut() Price {
	return Price{State: PriceSoldOut}
}

// Unresolved returns the absent/unparseable marker
func Unresolved() Price {
	return Price{State: PriceUnresolved}
}

// Resolved reports whether p carries an amount
func (p Price) Resolved() bool {
	return p.State == PriceResolved
}

func (p Price) String() string {
	switch p.State {
	case PriceResolved:
		return fmt.Sprintf("%d.%02d", p.Minor/100, abs(p.Minor%100))
	case PriceSoldOut:
		return SoldOutLabel
	default:
		return "unresolved"
	}
}

// MarshalJSON implements json.Marshaler
func (p Price) MarshalJSON() ([]byte, error) {
	switch p.State {
	case PriceResolved:
		return []byte(strconv.FormatInt(p.Minor, 10)), nil
	case PriceSoldOut:
		return json.Marshal(SoldOutLabel)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler
func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = Unresolved()
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != SoldOutLabel {
			return fmt.Errorf("unknown price marker %q", s)
		}
		*p = SoldOut()
		return nil
	}

	minor, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("price must be an integer number of cents: %w", err)
	}
	*p = Cents(minor)
	return nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
