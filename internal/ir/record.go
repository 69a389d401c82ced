package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// DefaultIDField is the record field holding the identifier unless a
// resource is configured otherwise.
const DefaultIDField = "id"

// ID identifies a record within a resource. It holds either a string or an
// int64; the zero value is the empty string id.
//
// ID is comparable and can key maps. IntID(5) and StringID("5") are
// different identifiers.
type ID struct {
	str   string
	num   int64
	isInt bool
}

// StringID returns a string identifier.
func StringID(s string) ID {
	return ID{str: s}
}

// IntID returns an integer identifier.
func IntID(n int64) ID {
	return ID{num: n, isInt: true}
}

// ParseID converts a decoded JSON/YAML value into an ID.
func ParseID(v any) (ID, error) {
	switch val := v.(type) {
	case ID:
		return val, nil
	case string:
		return StringID(val), nil
	case IRString:
		return StringID(string(val)), nil
	case IRInt:
		return IntID(int64(val)), nil
	case int:
		return IntID(int64(val)), nil
	case int32:
		return IntID(int64(val)), nil
	case int64:
		return IntID(val), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return ID{}, fmt.Errorf("identifier must be an integer or string: %s", val)
		}
		return IntID(n), nil
	case float64:
		// encoding/json without UseNumber; accept only integral values.
		if val != float64(int64(val)) {
			return ID{}, fmt.Errorf("identifier must be an integer or string: %v", val)
		}
		return IntID(int64(val)), nil
	default:
		return ID{}, fmt.Errorf("unsupported identifier type: %T", v)
	}
}

// IsInt reports whether the identifier is an integer.
func (id ID) IsInt() bool {
	return id.isInt
}

// String renders the identifier without type information.
func (id ID) String() string {
	if id.isInt {
		return strconv.FormatInt(id.num, 10)
	}
	return id.str
}

// Value returns the identifier as an IRValue for canonical serialization.
func (id ID) Value() IRValue {
	if id.isInt {
		return IRInt(id.num)
	}
	return IRString(id.str)
}

// Any returns the identifier as a plain Go value (int64 or string).
func (id ID) Any() any {
	if id.isInt {
		return id.num
	}
	return id.str
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.Any())
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseID(raw)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler so IDs can key JSON objects.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalYAML accepts scalar identifiers in scenario and seed files.
func (id *ID) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := ParseID(raw)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Record is a materialized record: field name to value.
type Record map[string]any

// ID extracts the identifier stored under field.
func (r Record) ID(field string) (ID, error) {
	v, ok := r[field]
	if !ok {
		return ID{}, fmt.Errorf("record has no %q field", field)
	}
	return ParseID(v)
}

// DecodeRecords decodes a JSON array of objects, keeping integers exact.
func DecodeRecords(data []byte) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out []Record
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeRecord decodes a single JSON object, keeping integers exact.
func DecodeRecord(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out Record
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// IDFields maps a resource to the record field holding its identifier.
// Resources not listed use DefaultIDField.
type IDFields map[string]string

// For returns the identifier field of resource.
func (f IDFields) For(resource string) string {
	if field, ok := f[resource]; ok && field != "" {
		return field
	}
	return DefaultIDField
}
