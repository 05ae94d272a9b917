package model

import "github.com/google/uuid"

// NewID mints a fresh entity identifier: a dash-separated 36-character
// string, matching the "universally unique 128-bit value" identifiers
// named throughout the data model and wire format.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether s parses as a UUID in the canonical form.
func ValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
