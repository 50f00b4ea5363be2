package blueprint

import (
	"strings"
	"unicode"
)

// asciiFold maps the latin-1 accented range onto plain ASCII so slugs stay in
// the [a-z0-9-] alphabet without dropping whole words.
var asciiFold = map[rune]string{
	'à': "a", 'á': "a", 'â': "a", 'ã': "a", 'ä': "a", 'å': "a",
	'è': "e", 'é': "e", 'ê': "e", 'ë': "e",
	'ì': "i", 'í': "i", 'î': "i", 'ï': "i",
	'ò': "o", 'ó': "o", 'ô': "o", 'õ': "o", 'ö': "o",
	'ù': "u", 'ú': "u", 'û': "u", 'ü': "u",
	'ç': "c", 'ñ': "n", 'ý': "y", 'ß': "ss",
	'æ': "ae", 'ø': "o",
}

// Slugify turns an arbitrary string into a url-safe slug: lowercase, accents
// folded, every run of non-alphanumerics collapsed to a single hyphen, and no
// leading or trailing hyphens. The transform is deterministic; uniqueness is
// enforced by storage, not here.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	b.Grow(len(s))
	lastHyphen := true // suppress a leading hyphen
	for _, r := range s {
		if folded, ok := asciiFold[r]; ok {
			b.WriteString(folded)
			lastHyphen = false
			continue
		}
		if unicode.IsLetter(r) && r < 128 || unicode.IsDigit(r) && r < 128 {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}

	return strings.Trim(b.String(), "-")
}
