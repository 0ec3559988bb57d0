package connectors

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/channelsync/backend/internal/domain/connector"
)

// parseAmount parses a provider money string into decimal major units.
// An empty string means the provider omitted the field and maps to zero.
func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: bad amount %q", connector.ErrMapping, s)
	}
	return d, nil
}

// unmarshalRecord decodes a provider record, wrapping failures as mapping
// errors so callers can skip the offending record
func unmarshalRecord(raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", connector.ErrMapping, err)
	}
	return nil
}
