package extract

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"sjsage522/menucrawler/internal/menu"
)

// FailurePolicy decides what an unparseable price becomes
type FailurePolicy string

const (
	// FallbackSoldOut records unparseable prices as "sold out"
	FallbackSoldOut FailurePolicy = "sold_out"
	// FallbackUnresolved records unparseable prices as null
	FallbackUnresolved FailurePolicy = "unresolved"
)

// ParseFailurePolicy validates a policy name read from configuration
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case FallbackSoldOut, FallbackUnresolved:
		return p, nil
	case "":
		return FallbackUnresolved, nil
	default:
		return "", fmt.Errorf("unknown price failure policy %q", s)
	}
}

// Fallback returns the price recorded when parsing fails
func (p FailurePolicy) Fallback() menu.Price {
	if p == FallbackSoldOut {
		return menu.SoldOut()
	}
	return menu.Unresolved()
}

// ParsePrice converts displayed price text to minor units. Everything but
// digits and '.' is dropped, the rest is parsed as a decimal and scaled by
// 100 with rounding. Anything unparseable or out of int64 range yields the
// policy's fallback.
func ParsePrice(raw string, onFailure FailurePolicy) menu.Price {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, raw)
	if cleaned == "" {
		return onFailure.Fallback()
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsInf(value, 0) || math.IsNaN(value) {
		return onFailure.Fallback()
	}
	minor := math.Round(value * 100)
	if minor >= math.MaxInt64 {
		return onFailure.Fallback()
	}
	return menu.Cents(int64(minor))
}
