package db

import (
	"strings"

	"golang.org/x/text/cases"
)

// PlaceholderMarker prefixes the stored email of every placeholder user.
// ':' cannot appear unquoted in an RFC 5322 local part, so no real address starts with the marker.
const PlaceholderMarker = "placeholder:"

// NormalizeEmail trims and case-folds an address so lookups are case-insensitive
func NormalizeEmail(email string) string {
	// Casers are stateful; never share one across goroutines.
	return cases.Fold().String(strings.TrimSpace(email))
}

// MarkPlaceholder returns the stored form of a placeholder user's email
func MarkPlaceholder(email string) string {
	email = NormalizeEmail(email)
	if strings.HasPrefix(email, PlaceholderMarker) {
		return email
	}
	return PlaceholderMarker + email
}

// UnmarkPlaceholder recovers the original address. ok is false when email was not marked.
func UnmarkPlaceholder(email string) (string, bool) {
	return strings.CutPrefix(email, PlaceholderMarker)
}

// IsPlaceholderEmail reports whether email carries the placeholder marker
func IsPlaceholderEmail(email string) bool {
	return strings.HasPrefix(email, PlaceholderMarker)
}
