package params

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/tailscale/hujson"
	"go.uber.org/zap"
)

// Pair is one key/value from a parameter blob, in source order.
type Pair struct {
	Key   string
	Value Value
}

// ParseBlob decodes a data-include-params value. Strict JSON is tried
// first; on failure the text is cleaned (BOM, comments, trailing commas,
// bare keys) and decoded again. Text that still fails is logged as a
// warning and reported with ok == false.
//
// Objects yield their members in order and arrays their indices, the way
// Object.assign would copy them. Other JSON values parse but contribute
// nothing.
func ParseBlob(text string, log *zap.Logger) (pairs []Pair, ok bool) {
	pairs, err := decodeBlob([]byte(text))
	if err == nil {
		return pairs, true
	}
	cleaned, err2 := cleanBlob(text)
	if err2 == nil {
		if pairs, err2 = decodeBlob(cleaned); err2 == nil {
			return pairs, true
		}
	}
	if log != nil {
		log.Warn("data-include-params is not valid JSON", zap.Error(err2), zap.NamedError("strict", err))
	}
	return nil, false
}

func decodeBlob(data []byte) ([]Pair, error) {
	if err := validate(data); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return nil, nil
	}

	var pairs []Pair
	switch delim {
	case '{':
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, _ := keyTok.(string)
			var v any
			if err := dec.Decode(&v); err != nil {
				return nil, err
			}
			pairs = append(pairs, Pair{Key: key, Value: toValue(v)})
		}
	case '[':
		for i := 0; dec.More(); i++ {
			var v any
			if err := dec.Decode(&v); err != nil {
				return nil, err
			}
			pairs = append(pairs, Pair{Key: strconv.Itoa(i), Value: toValue(v)})
		}
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, err
	}
	return pairs, nil
}

// validate checks that data holds exactly one JSON value. Numbers are kept
// as text so out-of-range literals such as 1e400 still parse.
func validate(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = errors.New("invalid character after top-level value")
		}
		return err
	}
	return nil
}

func toValue(v any) Value {
	if v == nil {
		return Null()
	}
	return String(jsString(v))
}

// jsString renders a decoded JSON value as script String(v) would.
func jsString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return x.String()
		}
		// out-of-range literals come back as ±Inf or 0, as script parsing gives
		return jsNumber(f)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = jsString(e)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		return "[object Object]"
	default:
		return fmt.Sprint(x)
	}
}

func jsNumber(f float64) string {
	if f == 0 {
		return "0"
	}
	if math.IsInf(f, 0) {
		if f > 0 {
			return "Infinity"
		}
		return "-Infinity"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		digits := strings.TrimLeft(exp[1:], "0")
		if digits == "" {
			digits = "0"
		}
		return mant + "e" + sign + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// cleanBlob rewrites lenient text into standard JSON. Bare keys are quoted
// first, then hujson drops comments and trailing commas.
func cleanBlob(text string) ([]byte, error) {
	s := strings.TrimPrefix(text, "\uFEFF")
	s = quoteBareKeys(s)
	return hujson.Standardize([]byte(s))
}

// skipString returns the index just past the string literal starting at
// s[i] == '"'. Unterminated literals run to the end of s.
func skipString(s string, i int) int {
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case '"':
			return j + 1
		}
	}
	return len(s)
}

// skipComment returns the index just past a comment starting at s[i], or i
// when there is none.
func skipComment(s string, i int) int {
	switch {
	case strings.HasPrefix(s[i:], "//"):
		if end := strings.IndexByte(s[i:], '\n'); end >= 0 {
			return i + end
		}
		return len(s)
	case strings.HasPrefix(s[i:], "/*"):
		if end := strings.Index(s[i+2:], "*/"); end >= 0 {
			return i + 2 + end + 2
		}
		return len(s)
	}
	return i
}

// quoteBareKeys rewrites {a:1} as {"a":1}. Only identifiers that follow
// '{' or ',' and precede ':' are touched; strings and comments are copied
// through.
func quoteBareKeys(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	var last byte
	for i := 0; i < len(s); {
		c := s[i]
		if end := skipComment(s, i); end > i {
			b.WriteString(s[i:end])
			i = end
			continue
		}
		switch {
		case c == '"':
			end := skipString(s, i)
			b.WriteString(s[i:end])
			i = end
			last = '"'
		case isIdentStart(c) && (last == '{' || last == ','):
			j := i + 1
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			k := j
			for k < len(s) {
				if isSpace(s[k]) {
					k++
					continue
				}
				if n := skipComment(s, k); n > k {
					k = n
					continue
				}
				break
			}
			if k < len(s) && s[k] == ':' {
				b.WriteString(strconv.Quote(s[i:j]))
			} else {
				b.WriteString(s[i:j])
			}
			i = j
			last = 'a'
		default:
			b.WriteByte(c)
			if !isSpace(c) {
				last = c
			}
			i++
		}
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c == '-' || (c >= '0' && c <= '9')
}
