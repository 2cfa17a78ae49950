package shared

import (
	"strings"
	"unicode"
)

// MaxUserIDLength bounds identifiers accepted from callers.
const MaxUserIDLength = 128

// UserID identifies the owner of tasks, progress and streak rows.
// The engine treats it as an opaque string.
type UserID string

// IsValid checks the identifier is non-empty, bounded and printable.
func (u UserID) IsValid() bool {
	if u == "" || len(u) > MaxUserIDLength {
		return false
	}
	for _, r := range string(u) {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// NewUserID trims and validates a caller-supplied identifier.
func NewUserID(raw string) (UserID, error) {
	id := UserID(strings.TrimSpace(raw))
	if id == "" {
		return "", ErrEmptyUserID
	}
	if !id.IsValid() {
		return "", NewValidationInputError("engine", "NewUserID", "user id is malformed")
	}
	return id, nil
}
