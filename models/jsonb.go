package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB column support for the catalog value types.

func jsonValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func jsonScan(src interface{}, dst interface{}) error {
	switch data := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(data, dst)
	case string:
		return json.Unmarshal([]byte(data), dst)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", src)
	}
}

// Value implements driver.Valuer
func (c ModelCapabilities) Value() (driver.Value, error) { return jsonValue(c) }

// Scan implements sql.Scanner
func (c *ModelCapabilities) Scan(src interface{}) error { return jsonScan(src, c) }

// Value implements driver.Valuer
func (p PriceTable) Value() (driver.Value, error) { return jsonValue(p) }

// Scan implements sql.Scanner
func (p *PriceTable) Scan(src interface{}) error { return jsonScan(src, p) }

// Value implements driver.Valuer
func (r RegionTable) Value() (driver.Value, error) { return jsonValue(r) }

// Scan implements sql.Scanner
func (r *RegionTable) Scan(src interface{}) error { return jsonScan(src, r) }

// Value implements driver.Valuer
func (r RoutingPolicy) Value() (driver.Value, error) { return jsonValue(r) }

// Scan implements sql.Scanner
func (r *RoutingPolicy) Scan(src interface{}) error { return jsonScan(src, r) }

// Value implements driver.Valuer. A nil override is stored as SQL NULL.
func (o *CapabilitiesOverride) Value() (driver.Value, error) {
	if o == nil {
		return nil, nil
	}
	return jsonValue(o)
}

// Scan implements sql.Scanner
func (o *CapabilitiesOverride) Scan(src interface{}) error { return jsonScan(src, o) }
