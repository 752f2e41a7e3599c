package identity

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	handleLengthLimit      = 30
	displayNameLengthLimit = 30
)

// NormalizeHandle performs case-insensitive canonicalization.
// Only trim + lower-case for now; unicode confusable rules can be added later
// behind a versioned policy.
func NormalizeHandle(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateHandle checks handle shape: letters, digits and underscores,
// non-empty, bounded length.
func ValidateHandle(handle string) error {
	if handle == "" {
		return OpError{Op: "identity.ValidateHandle", Kind: ErrInvalidInput, Msg: "handle cannot be empty"}
	}
	if utf8.RuneCountInString(handle) > handleLengthLimit {
		return OpError{Op: "identity.ValidateHandle", Kind: ErrInvalidInput, Msg: "handle too long"}
	}
	for _, r := range handle {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return OpError{Op: "identity.ValidateHandle", Kind: ErrInvalidInput, Msg: "handle can only contain letters, numbers and underscores"}
		}
	}
	return nil
}

// ValidateDisplayName checks display-name shape: non-empty, no surrounding
// whitespace, bounded length.
func ValidateDisplayName(name string) error {
	if name == "" {
		return OpError{Op: "identity.ValidateDisplayName", Kind: ErrInvalidInput, Msg: "display name cannot be empty"}
	}
	if strings.TrimSpace(name) != name {
		return OpError{Op: "identity.ValidateDisplayName", Kind: ErrInvalidInput, Msg: "display name cannot be surrounded with whitespace"}
	}
	if utf8.RuneCountInString(name) > displayNameLengthLimit {
		return OpError{Op: "identity.ValidateDisplayName", Kind: ErrInvalidInput, Msg: "display name too long"}
	}
	return nil
}
