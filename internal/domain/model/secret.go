package model

import "log/slog"

// redacted replaces secret values in every textual representation.
const redacted = "[REDACTED]"

// Secret wraps a sensitive string so it cannot leak through logging or
// serialization by accident. Every formatting path renders a redaction
// marker; the raw value is only reachable through Value.
type Secret struct {
	value string
}

// NewSecret wraps a raw secret value.
func NewSecret(value string) Secret {
	return Secret{value: value}
}

// Value returns the raw secret. Call sites are the only places a secret
// may surface, which keeps them auditable.
func (s Secret) Value() string {
	return s.value
}

// IsEmpty reports whether no value is set.
func (s Secret) IsEmpty() bool {
	return s.value == ""
}

// String implements fmt.Stringer.
func (s Secret) String() string {
	return redacted
}

// GoString implements fmt.GoStringer, covering %#v formatting.
func (s Secret) GoString() string {
	return "model.Secret{" + redacted + "}"
}

// MarshalText implements encoding.TextMarshaler.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// MarshalJSON implements json.Marshaler.
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(redacted)
}
