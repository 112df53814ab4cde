package alias

import (
	"net/url"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustBase(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestResolve(t *testing.T) {
	r := NewResolver(mustBase(t, "https://example.com/site/"), DefaultTable())

	tests := []struct {
		name string
		path string
		want string
	}{
		{"absolute https passes through", "https://cdn.test/a.html?x=1", "https://cdn.test/a.html?x=1"},
		{"absolute http passes through", "http://cdn.test/a.html", "http://cdn.test/a.html"},
		{"ui alias", "@ui/button.html", "https://example.com/site/components/ui/button.html"},
		{"layout alias keeps query", "@layout/header.html?title=Hi", "https://example.com/site/components/layout/header.html?title=Hi"},
		{"components alias", "@components/card.html", "https://example.com/site/components/card.html"},
		{"relative path", "partials/nav.html", "https://example.com/site/partials/nav.html"},
		{"root-relative path", "/shared/footer.html", "https://example.com/shared/footer.html"},
		{"parent path", "../other.html", "https://example.com/other.html"},
		{"unknown alias treated as relative", "@unknown/x.html", "https://example.com/site/@unknown/x.html"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.path))
		})
	}
}

func TestResolve_AliasMatchesResolvingSuffix(t *testing.T) {
	base := mustBase(t, "https://example.com/app/")
	r := NewResolver(base, DefaultTable())

	for _, e := range DefaultTable().Entries() {
		suffix := "deep/file.html?k=v"
		ref, err := url.Parse(e.Dir + suffix)
		require.NoError(t, err)
		assert.Equal(t, base.ResolveReference(ref).String(), r.Resolve(e.Prefix+suffix), e.Prefix)
	}
}

func TestResolve_OverlappingPrefixesFirstDeclaredWins(t *testing.T) {
	table := NewTable(
		Entry{Prefix: "@a/", Dir: "short/"},
		Entry{Prefix: "@a/b/", Dir: "long/"},
	)
	r := NewResolver(mustBase(t, "https://example.com/"), table)

	assert.Equal(t, "https://example.com/short/b/x.html", r.Resolve("@a/b/x.html"))
}

func TestResolve_MalformedReferenceReturnedAsIs(t *testing.T) {
	r := NewResolver(mustBase(t, "https://example.com/"), DefaultTable())

	assert.Equal(t, "%zz", r.Resolve("%zz"))
}

func TestTableIsCopied(t *testing.T) {
	entries := []Entry{{Prefix: "@x/", Dir: "x/"}}
	table := NewTable(entries...)
	entries[0].Dir = "mutated/"

	got := table.Entries()
	got[0].Prefix = "@y/"

	e, ok := table.Match("@x/file")
	require.True(t, ok)
	assert.Equal(t, "x/", e.Dir)
	assert.Equal(t, 1, table.Len())
}

func TestNewResolverCopiesBase(t *testing.T) {
	base := mustBase(t, "https://example.com/a/")
	r := NewResolver(base, DefaultTable())
	base.Path = "/b/"

	assert.Equal(t, "https://example.com/a/x.html", r.Resolve("x.html"))
}

func TestDirOf(t *testing.T) {
	u := mustBase(t, "https://example.com/docs/page.html?q=1")
	assert.Equal(t, "https://example.com/docs/", DirOf(u).String())
}

func TestBaseFromPath(t *testing.T) {
	dir := t.TempDir()
	u, err := BaseFromPath(dir)
	require.NoError(t, err)

	assert.Equal(t, "file", u.Scheme)
	assert.Equal(t, filepath.ToSlash(dir)+"/", u.Path)

	r := NewResolver(u, DefaultTable())
	assert.Equal(t, "file://"+filepath.ToSlash(dir)+"/components/ui/b.html", r.Resolve("@ui/b.html"))
}

func TestParseBase(t *testing.T) {
	u, err := ParseBase("https://example.com/site")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/site/", u.String())

	dir := t.TempDir()
	u, err = ParseBase(dir)
	require.NoError(t, err)
	assert.Equal(t, "file", u.Scheme)

	_, err = ParseBase("ftp://example.com/")
	assert.Error(t, err)
}
