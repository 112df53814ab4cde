// Package alias maps short include prefixes such as "@ui/" onto directories
// and resolves include sources into fetchable URLs.
package alias

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

var absoluteHTTP = regexp.MustCompile(`^https?://`)

// Entry maps one prefix to a directory relative to the resolver base.
type Entry struct {
	Prefix string
	Dir    string
}

// Table is an ordered, immutable list of alias entries.
// The first entry whose prefix matches a path wins.
type Table struct {
	entries []Entry
}

// NewTable builds a table from entries in declaration order.
func NewTable(entries ...Entry) Table {
	return Table{entries: append([]Entry(nil), entries...)}
}

// DefaultTable returns the stock component aliases.
func DefaultTable() Table {
	return NewTable(
		Entry{Prefix: "@components/", Dir: "components/"},
		Entry{Prefix: "@layout/", Dir: "components/layout/"},
		Entry{Prefix: "@ui/", Dir: "components/ui/"},
		Entry{Prefix: "@sections/", Dir: "components/sections/"},
		Entry{Prefix: "@partials/", Dir: "components/partials/"},
		Entry{Prefix: "@forms/", Dir: "components/forms/"},
		Entry{Prefix: "@modals/", Dir: "components/modals/"},
	)
}

// Entries returns a copy of the table entries.
func (t Table) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Len returns the number of entries.
func (t Table) Len() int {
	return len(t.entries)
}

// Match returns the first entry whose prefix starts path.
func (t Table) Match(path string) (Entry, bool) {
	for _, e := range t.entries {
		if strings.HasPrefix(path, e.Prefix) {
			return e, true
		}
	}
	return Entry{}, false
}

// Resolver turns include sources into absolute URLs.
type Resolver struct {
	base  *url.URL
	table Table
}

// NewResolver returns a resolver rooted at base. base should name a
// directory (trailing slash); use DirOf to derive one from a page URL.
func NewResolver(base *url.URL, table Table) *Resolver {
	b := *base
	return &Resolver{base: &b, table: table}
}

// Base returns a copy of the resolver base.
func (r *Resolver) Base() *url.URL {
	b := *r.base
	return &b
}

// Table returns the alias table in use.
func (r *Resolver) Table() Table {
	return r.table
}

// Resolve returns the absolute URL for path. Absolute http(s) URLs pass
// through untouched. Unparsable references are returned as given and fail
// later at fetch time.
func (r *Resolver) Resolve(path string) string {
	if absoluteHTTP.MatchString(path) {
		return path
	}
	if e, ok := r.table.Match(path); ok {
		return r.against(e.Dir + strings.TrimPrefix(path, e.Prefix))
	}
	return r.against(path)
}

func (r *Resolver) against(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return r.base.ResolveReference(u).String()
}

// DirOf returns the directory URL containing u, the way a document's
// relative references are resolved.
func DirOf(u *url.URL) *url.URL {
	return u.ResolveReference(&url.URL{Path: "."})
}

// BaseFromPath returns a file:// directory URL for a filesystem directory.
func BaseFromPath(dir string) (*url.URL, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve base dir %s: %w", dir, err)
	}
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return &url.URL{Scheme: "file", Path: p}, nil
}

// ParseBase accepts either a URL (http, https, file) or a filesystem
// directory and returns a directory URL suitable for NewResolver.
func ParseBase(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err == nil {
		switch u.Scheme {
		case "http", "https", "file":
			if !strings.HasSuffix(u.Path, "/") {
				u.Path += "/"
			}
			return u, nil
		case "":
		default:
			// a single letter is a Windows drive, not a scheme
			if len(u.Scheme) > 1 {
				return nil, fmt.Errorf("unsupported base scheme %q", u.Scheme)
			}
		}
	}
	return BaseFromPath(raw)
}
