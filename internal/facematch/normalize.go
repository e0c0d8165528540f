package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeStudentID canonicalizes a student identifier: trimmed, upper-cased,
// diacritics removed, spaces collapsed to underscores. Registration and
// lookup both go through this so the same student never gets two identities.
func NormalizeStudentID(id string) string {
	id = RemoveDiacritics(strings.TrimSpace(id))
	id = strings.ToUpper(id)
	id = strings.Join(strings.Fields(id), "_")
	return id
}

// NormalizeStudentName normalizes a display name for comparison
// (lowercase, no diacritics, underscores and dashes as spaces).
func NormalizeStudentName(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.ReplaceAll(name, "_", " ")
	return strings.Join(strings.Fields(name), " ")
}
