package unit

import (
	"regexp"
	"strings"
)

// Units of value are short tokens: plain currency codes ("USD") or
// namespaced instruments ("stock:aapl"). Currency segments are uppercased,
// namespaced tokens are lowercased.
var reUnit = regexp.MustCompile(`^[a-z0-9]{1,12}(:[a-z0-9._-]{1,24})?$`)

// Default is applied when an account declares no unit.
const Default = "USD"

// IsValid reports whether s is a well-formed unit token.
func IsValid(s string) bool {
	return reUnit.MatchString(strings.ToLower(s))
}

// Normalize canonicalizes a unit token: empty becomes Default, bare currency
// codes are uppercased, namespaced tokens are lowercased.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return Default
	}
	if strings.Contains(s, ":") {
		return strings.ToLower(s)
	}
	return strings.ToUpper(s)
}
