package pipeline

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripDiacritics decomposes and removes combining marks so registry names
// like "Handwerkskammer Köln" become stable ASCII filename parts.
var stripDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func slugify(s string) string {
	clean, _, err := transform.String(stripDiacritics, s)
	if err != nil {
		clean = s
	}
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(clean) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// DocumentFilename builds the deterministic filename for a downloaded
// document: the company identifier, plus the human-readable certificate name
// when the provider supplied one, plus a 1-based index when a provider
// returns multiple unnamed documents.
func DocumentFilename(companyID, certName string, index, total int, format string) string {
	ext := "pdf"
	switch format {
	case "jpeg":
		ext = "jpg"
	case "png":
		ext = "png"
	}

	parts := []string{slugify(companyID)}
	if name := slugify(certName); name != "" {
		parts = append(parts, name)
	} else if total > 1 {
		parts = append(parts, fmt.Sprintf("%d", index+1))
	}
	return strings.Join(parts, "_") + "." + ext
}
