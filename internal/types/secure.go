package types

import "log/slog"

const redactedPlaceholder = "***REDACTED***"

// SecretString holds a credential (API secret, database URL, token) and keeps
// it out of logs. String and MarshalJSON both return a placeholder; only
// Unmask exposes the value.
type SecretString string

// String implements fmt.Stringer with the redacted placeholder.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// LogValue keeps the secret redacted when passed as a slog attribute.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(redactedPlaceholder)
}

// MarshalJSON encodes the redacted placeholder.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redactedPlaceholder + `"`), nil
}

// Unmask returns the plaintext. Call it only where the raw credential is
// handed to a client (token request form, connection string).
func (s SecretString) Unmask() string {
	return string(s)
}

// IsZero reports whether no secret was configured.
func (s SecretString) IsZero() bool {
	return s == ""
}
