// Package secret provides a wrapper type for credential material that must
// never appear in logs, traces, or error messages.
package secret

import (
	"encoding/json"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Redacted is the placeholder emitted in place of a secret value.
const Redacted = "[REDACTED]"

// Secret holds a sensitive string value. Every default rendering path
// (fmt verbs, JSON, YAML, zap fields) yields Redacted instead of the value.
// The raw value is only reachable through Value.
type Secret string

// Value returns the underlying sensitive value.
func (s Secret) Value() string {
	return string(s)
}

// IsZero reports whether the secret is empty.
func (s Secret) IsZero() bool {
	return s == ""
}

// String implements fmt.Stringer.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return Redacted
}

// GoString implements fmt.GoStringer, covering the %#v verb.
func (s Secret) GoString() string {
	return "secret.Secret(" + s.String() + ")"
}

// MarshalJSON implements json.Marshaler.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte(`""`), nil
	}
	return []byte(`"` + Redacted + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Secret) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = ""
		return nil
	}
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = Secret(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s Secret) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Secret) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var v string
	if err := unmarshal(&v); err != nil {
		return err
	}
	*s = Secret(v)
	return nil
}

// Field returns a zap field that logs the redacted placeholder. Presence of
// a credential may be logged; its value may not.
func Field(key string, s Secret) zap.Field {
	return zap.String(key, s.String())
}

// MarshalLogObject implements zapcore.ObjectMarshaler so that embedding
// structs can add secrets as objects without leaking them.
func (s Secret) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("value", s.String())
	return nil
}
