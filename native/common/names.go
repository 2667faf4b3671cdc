package common

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxNameLength bounds vault and pool names so every persisted record keeps a
// fixed maximum size.
const MaxNameLength = 32

// ValidateName trims the supplied name and ensures it is printable and within
// MaxNameLength bytes.
func ValidateName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: name required", ErrInvalidName)
	}
	if len(trimmed) > MaxNameLength {
		return "", fmt.Errorf("%w: name exceeds %d bytes", ErrInvalidName, MaxNameLength)
	}
	for _, r := range trimmed {
		if !unicode.IsPrint(r) {
			return "", fmt.Errorf("%w: name contains non-printable characters", ErrInvalidName)
		}
	}
	return trimmed, nil
}
