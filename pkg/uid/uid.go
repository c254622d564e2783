package uid

import (
	"strings"

	"github.com/google/uuid"
)

// New generates a new unique identifier.
func New() string {
	return uuid.New().String()
}

// IsValid checks if a string is a valid UUID.
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Compact returns a new identifier without dashes, usable as part of an SQL identifier.
func Compact() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
