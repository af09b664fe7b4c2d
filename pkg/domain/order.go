package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// OrderID identifies an order. On the wire it may be a JSON string or number.
type OrderID string

// String returns the raw identifier.
func (id OrderID) String() string {
	return string(id)
}

// UnmarshalJSON accepts both "42" and 42.
func (id *OrderID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = OrderID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("order id must be a string or number: %w", err)
	}
	*id = OrderID(n.String())
	return nil
}
