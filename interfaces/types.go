// Package interfaces defines the core types and contracts of the
// confidential computation engine. It provides the boundary between the
// envelope codec, the dispatcher and the domain engines without
// implementation details.
package interfaces

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is a single plaintext payload sealed into an envelope: a mapping
// of named numeric and string fields (bid price, quantity, investor
// attributes, ...). Records are immutable once sealed. JSON numbers
// decode as float64, which all field accessors account for.
type Record map[string]any

// Float64 returns a numeric field. Integers stored by callers before
// serialization surface as float64 after a JSON round trip, so both are
// accepted.
func (r Record) Float64(field string) (float64, error) {
	v, ok := r[field]
	if !ok {
		return 0, fmt.Errorf("%w: missing field %q", ErrPolicyInputInvalid, field)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: field %q is not numeric", ErrPolicyInputInvalid, field)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: field %q is not numeric", ErrPolicyInputInvalid, field)
	}
}

// String returns a string field.
func (r Record) String(field string) (string, error) {
	v, ok := r[field]
	if !ok {
		return "", fmt.Errorf("%w: missing field %q", ErrPolicyInputInvalid, field)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: field %q is not a string", ErrPolicyInputInvalid, field)
	}
	return s, nil
}

// Time returns a timestamp field stored as RFC 3339 text or as epoch
// milliseconds.
func (r Record) Time(field string) (time.Time, error) {
	v, ok := r[field]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: missing field %q", ErrPolicyInputInvalid, field)
	}
	switch t := v.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: field %q is not a timestamp", ErrPolicyInputInvalid, field)
		}
		return parsed, nil
	case float64:
		return time.UnixMilli(int64(t)).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%w: field %q is not a timestamp", ErrPolicyInputInvalid, field)
	}
}

// Marshal serializes the record for sealing.
func (r Record) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalRecord reverses Record.Marshal.
func UnmarshalRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("malformed record payload: %w", err)
	}
	return r, nil
}

// Envelope is the opaque wire form of one sealed Record or computation
// result: a single base64url token encoding key fingerprint, nonce and
// ciphertext. Opaque to all non-owning components.
type Envelope string

// String returns the token.
func (e Envelope) String() string {
	return string(e)
}
