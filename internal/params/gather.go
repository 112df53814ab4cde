package params

import (
	"net/url"
	"strings"

	"htmlinc/internal/dom"

	"go.uber.org/zap"
)

// Gather builds the parameter set for one host. Layers, lowest precedence
// first: query string of the resolved fetch URL, the data-include-params
// blob, then data-include-<key> attributes.
func Gather(h dom.Host, fetchURL *url.URL, log *zap.Logger) *Set {
	s := NewSet()

	if fetchURL != nil {
		for _, kv := range QueryPairs(fetchURL.RawQuery) {
			s.Set(kv[0], kv[1])
		}
	}

	if blob, ok := h.Attr(dom.AttrParams); ok && blob != "" {
		if pairs, ok := ParseBlob(blob, log); ok {
			for _, p := range pairs {
				s.Put(p.Key, p.Value)
			}
		}
	}

	for _, a := range h.Attrs() {
		if a.Name == dom.AttrSource || a.Name == dom.AttrParams {
			continue
		}
		if key, ok := strings.CutPrefix(a.Name, dom.AttrParamPrefix); ok && key != "" {
			s.Set(key, a.Value)
		}
	}

	return s
}

// QueryPairs decodes a form-encoded query in order. Malformed percent
// escapes are kept as written; valid ones around them still decode.
func QueryPairs(raw string) [][2]string {
	var out [][2]string
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		out = append(out, [2]string{unescape(k), unescape(v)})
	}
	return out
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '+':
			buf = append(buf, ' ')
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			buf = append(buf, unhex(s[i+1])<<4|unhex(s[i+2]))
			i += 2
		default:
			buf = append(buf, c)
		}
	}
	return strings.ToValidUTF8(string(buf), "\uFFFD")
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case c >= 'a':
		return c - 'a' + 10
	case c >= 'A':
		return c - 'A' + 10
	}
	return c - '0'
}
