package feishu

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Record is one row of Bitable data: a field-name-to-value mapping that
// preserves insertion order. Values are strings, numbers, booleans, epoch
// milliseconds, or nil. Records are transient; the remote table is the
// authoritative store.
type Record struct {
	names  []string
	values map[string]any
}

// NewRecord creates an empty record.
func NewRecord() *Record {
	return &Record{values: make(map[string]any)}
}

// Set stores a field value, appending the field to the order on first use.
// Returns the record for chaining. Safe on a zero-value Record.
func (r *Record) Set(field string, value any) *Record {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[field]; !ok {
		r.names = append(r.names, field)
	}
	r.values[field] = value
	return r
}

// Get returns a field value and whether the field is present.
func (r *Record) Get(field string) (any, bool) {
	v, ok := r.values[field]
	return v, ok
}

// Fields returns the field names in insertion order.
func (r *Record) Fields() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return len(r.names)
}

/// Sanitize coerces field values into the forms the vendor accepts:
// timestamps become integer epoch milliseconds, NaN and infinite floats and
// nil become empty strings, everything else passes through. Applied once per
// record before any write; applying it again is a no-op.
func (r *Record) Sanitize() *Record {
	for _, name := range r.names {
		r.values[name] = sanitizeValue(r.values[name])
	}
	return r
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return ""
	case time.Time:
		return val.UnixMilli()
	case *time.Time:
		if val == nil {
			return ""
		}
		return val.UnixMilli()
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return ""
		}
		return val
	case float32:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ""
		}
		return val
	default:
		return v
	}
}

// Decode maps the record's fields onto a caller struct. Field names match
// struct fields via mapstructure tags, falling back to case-insensitive name
// matching.
func (r *Record) Decode(out any) error {
	if err := mapstructure.WeakDecode(r.values, out); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	return nil
}

// MarshalJSON emits the fields as a JSON object in insertion order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.values[name])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal field %q: %w", name, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, preserving the order fields appear in
// the document.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("record must be a JSON object")
	}

	r.names = nil
	r.values = make(map[string]any)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v in record", keyTok)
		}

		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("failed to decode field %q: %w", key, err)
		}
		r.Set(key, normalizeJSONValue(value))
	}

	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// normalizeJSONValue converts json.Number into int64 when the value is
// integral (timestamps arrive this way) and float64 otherwise.
func normalizeJSONValue(v any) any {
	num, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := num.Int64(); err == nil {
		return i
	}
	if f, err := num.Float64(); err == nil {
		return f
	}
	return num.String()
}
