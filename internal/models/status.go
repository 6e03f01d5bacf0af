package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotStatus is returned when a payload is not a status report.
var ErrNotStatus = errors.New("payload is not a status report")

// Status is a device status report broadcast on the shared topic. Field
// values are kept as decoded; their types are not constrained.
type Status struct {
	State    any `json:"estado"`  // Clothesline position reported by the firmware
	Mode     any `json:"modo"`    // Automatic or manual operation
	Humidity any `json:"umidade"` // Humidity reading
	Motor    any `json:"motor"`   // Motor state

	// Fields holds the whole decoded object, including keys not listed above.
	Fields map[string]any `json:"-"`
}

// statusFields lists, per required field, the keys accepted for it.
var statusFields = []struct {
	aliases []string
	assign  func(*Status, any)
}{
	{aliases: []string{"estado", "state"}, assign: func(s *Status, v any) { s.State = v }},
	{aliases: []string{"modo", "mode"}, assign: func(s *Status, v any) { s.Mode = v }},
	{aliases: []string{"umidade", "humidity"}, assign: func(s *Status, v any) { s.Humidity = v }},
	{aliases: []string{"motor"}, assign: func(s *Status, v any) { s.Motor = v }},
}

// ParseStatus decodes raw as a JSON object carrying all four required status
// fields. Keys may be present with a null value.
func ParseStatus(raw []byte) (Status, error) {
	raw = bytes.TrimSpace(raw)

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrNotStatus, err)
	}
	if fields == nil {
		return Status{}, ErrNotStatus
	}

	status := Status{Fields: fields}
	for _, f := range statusFields {
		found := false
		for _, key := range f.aliases {
			if v, ok := fields[key]; ok {
				f.assign(&status, v)
				found = true
				break
			}
		}
		if !found {
			return Status{}, fmt.Errorf("%w: missing %q", ErrNotStatus, f.aliases[0])
		}
	}

	return status, nil
}
