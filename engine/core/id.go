// Package core holds the small, dependency-light primitives shared by every
// Tasquencer package: identity, tagged errors, and the clock seam.
package core

import (
	"fmt"

	"github.com/segmentio/ksuid"
)

// ID is a sortable, globally unique identifier for workflows, tasks, and
// work items.
type ID string

// String returns the string representation of the ID.
func (id ID) String() string {
	return string(id)
}

// IsZero reports whether the ID is the zero value ("").
func (id ID) IsZero() bool {
	return id == ""
}

// NewID generates a new random, time-sortable ID.
func NewID() (ID, error) {
	id, err := ksuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate new ID: %w", err)
	}
	return ID(id.String()), nil
}

// MustNewID generates a new ID, panicking on failure. Use only where
// failure is impossible (e.g., in tests or after a successful entropy read
// earlier in the same process).
func MustNewID() ID {
	id, err := NewID()
	if err != nil {
		panic(err)
	}
	return id
}

// ParseID validates that s is a well-formed ID.
func ParseID(s string) (ID, error) {
	if s == "" {
		return "", fmt.Errorf("empty ID")
	}
	if _, err := ksuid.Parse(s); err != nil {
		return "", fmt.Errorf("invalid ID format: %w", err)
	}
	return ID(s), nil
}
