package appointment

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTransformer strips diacritics: decompose, drop nonspacing marks,
// recompose.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func foldFilter(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// matchesFilter reports whether the appointment's patient name or phone
// contains q, ignoring case and diacritics. An empty q matches everything.
func matchesFilter(a Appointment, q string) bool {
	if q == "" {
		return true
	}
	needle := foldFilter(q)
	return strings.Contains(foldFilter(a.PatientName), needle) ||
		strings.Contains(foldFilter(a.PatientPhone), needle)
}
