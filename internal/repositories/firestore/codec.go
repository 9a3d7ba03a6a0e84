package firestore

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Monetary amounts are persisted as decimal strings so no precision is lost
// crossing the storage boundary.
func parseDecimal(value string, field string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return decimal.Zero, nil
	}
	parsed, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("firestore: parse %s %q: %w", field, value, err)
	}
	return parsed, nil
}
