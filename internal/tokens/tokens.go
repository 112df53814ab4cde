// Package tokens substitutes {{ key }} and {{ key | default }} placeholders
// in fragment markup.
package tokens

import (
	"regexp"
	"strings"

	"htmlinc/internal/params"
)

// Pattern matches one token. Group 1 is the key, group 2 the optional
// default text.
var Pattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.\-]+)(?:\s*\|\s*([^}]+))?\s*\}\}`)

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// Escape makes s safe for HTML text and quoted attribute positions.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Apply replaces every token in markup. A key resolves exactly first, then
// case-insensitively (attribute names arrive lowercased), then falls back
// to the token default, then to the empty string. Every substituted value
// is escaped, defaults included.
func Apply(markup string, p *params.Set) string {
	if p == nil {
		p = params.NewSet()
	}
	folded := p.Folded()

	matches := Pattern.FindAllStringSubmatchIndex(markup, -1)
	if len(matches) == 0 {
		return markup
	}

	var b strings.Builder
	b.Grow(len(markup))
	last := 0
	for _, m := range matches {
		b.WriteString(markup[last:m[0]])

		key := markup[m[2]:m[3]]
		v, ok := p.Lookup(key)
		if !ok {
			v, ok = folded[strings.ToLower(key)]
		}

		var out string
		switch {
		case ok && !v.Null:
			out = v.Str
		case m[4] >= 0:
			out = strings.TrimRight(markup[m[4]:m[5]], " \t\r\n\f\v")
		}
		b.WriteString(Escape(out))
		last = m[1]
	}
	b.WriteString(markup[last:])
	return b.String()
}

// Keys returns the distinct token keys referenced by markup in order of
// first appearance.
func Keys(markup string) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, m := range Pattern.FindAllStringSubmatch(markup, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			keys = append(keys, m[1])
		}
	}
	return keys
}
