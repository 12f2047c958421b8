package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope is a JSON response object wrapping one or more named record arrays plus
// metadata such as count, timestamp and period.
type Envelope map[string]any

// Envelope metadata keys.
const (
	FieldCount            = "count"
	FieldTimestamp        = "timestamp"
	FieldPeriod           = "period"
	FieldFromExpiredCache = "fromExpiredCache"
)

// Clone returns a shallow copy of the envelope. Record slices are shared, so callers that
// replace an array field must assign a new slice rather than mutate the old one in place.
func (e Envelope) Clone() Envelope {
	out := make(Envelope, len(e)+2)
	for k, v := range e {
		out[k] = v
	}
	return out
}

// ArrayFields returns the names of all fields holding a JSON array.
func (e Envelope) ArrayFields() []string {
	var names []string
	for k, v := range e {
		if _, ok := v.([]any); ok {
			names = append(names, k)
		}
	}
	return names
}

// RecordCount sums the lengths of every array field. It falls back to the count field
// when the envelope carries no arrays.
func (e Envelope) RecordCount() int {
	total := 0
	found := false
	for _, v := range e {
		if arr, ok := v.([]any); ok {
			total += len(arr)
			found = true
		}
	}
	if found {
		return total
	}
	if n, ok := e[FieldCount].(float64); ok {
		return int(n)
	}
	if n, ok := e[FieldCount].(int); ok {
		return n
	}
	return 0
}

// DecodeEnvelope parses a JSON object into an Envelope with generic values
// ([]any, map[string]any, float64, string, bool, nil).
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	if e == nil {
		return nil, errors.New("decoding envelope: not a JSON object")
	}
	return e, nil
}

// Canonical round-trips the envelope through JSON so typed record slices become the
// same generic shape a cache read produces.
func (e Envelope) Canonical() (Envelope, []byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding envelope: %w", err)
	}
	out, err := DecodeEnvelope(data)
	if err != nil {
		return nil, nil, err
	}
	return out, data, nil
}
