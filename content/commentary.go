package content

import (
	"strings"
	"unicode"
)

// characters with meaning in LinkedIn's "little text" commentary format
const reservedChars = `\|{}@[]()<>#*_~`

func isTagRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// scanText walks s and calls tag for each hashtag and text for every other run
func scanText(s string, tag func(name string), text func(r rune)) {
	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if r == '#' && i+1 < len(rs) && isTagRune(rs[i+1]) && (i == 0 || !isTagRune(rs[i-1])) {
			j := i + 1
			for j < len(rs) && isTagRune(rs[j]) {
				j++
			}
			tag(string(rs[i+1 : j]))
			i = j - 1
			continue
		}
		text(r)
	}
}

// Hashtags returns the hashtags in the body, without the leading #, in the
// order they first appear
func (u *Unit) Hashtags() []string {
	var tags []string
	seen := make(map[string]bool)
	scanText(u.Body, func(name string) {
		if !seen[strings.ToLower(name)] {
			seen[strings.ToLower(name)] = true
			tags = append(tags, name)
		}
	}, func(rune) {})
	return tags
}

// Commentary converts plain text to LinkedIn's little text format. Reserved
// characters are escaped and hashtags become hashtag templates.
func Commentary(s string) string {
	var b strings.Builder
	scanText(s, func(name string) {
		b.WriteString(`{hashtag|\#|`)
		b.WriteString(name)
		b.WriteString("}")
	}, func(r rune) {
		if strings.ContainsRune(reservedChars, r) {
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	})
	return b.String()
}
