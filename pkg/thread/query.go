package thread

import "strings"

// IsSHALike reports whether query looks like a (possibly abbreviated) git
// commit SHA: length 7-40, no whitespace, all hex digits.
func IsSHALike(query string) bool {
	if len(query) < 7 || len(query) > 40 {
		return false
	}
	for _, r := range query {
		isHexDigit := (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
		if !isHexDigit {
			return false
		}
	}
	return true
}

// NormalizeCacheQuery collapses internal whitespace runs to a single space
// and lowercases, so equivalent-looking queries share one cache entry.
func NormalizeCacheQuery(query string) string {
	fields := strings.Fields(query)
	return strings.ToLower(strings.Join(fields, " "))
}

// FTSQuery renders a raw search string as a double-quoted FTS5 match
// expression, replacing embedded double quotes with spaces so a
// user-supplied quote can never break out of the phrase match.
func FTSQuery(query string) string {
	escaped := strings.ReplaceAll(query, `"`, " ")
	return `"` + escaped + `"`
}
