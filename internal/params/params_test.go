package params

import (
	"encoding/json"
	"net/url"
	"testing"

	"htmlinc/internal/dom"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeHost []dom.Attribute

func (h fakeHost) Attr(name string) (string, bool) { return dom.AttrValue(h, name) }
func (h fakeHost) Attrs() []dom.Attribute          { return h }

func pairsMap(pairs []Pair) map[string]Value {
	out := make(map[string]Value, len(pairs))
	for _, p := range pairs {
		out[p.Key] = p.Value
	}
	return out
}

func TestParseBlob_StrictJSON(t *testing.T) {
	pairs, ok := ParseBlob(`{"buttonText":"Click me","n":1.50,"on":true,"tags":["a","b"],"o":{"x":1},"none":null}`, nil)
	require.True(t, ok)

	want := []Pair{
		{Key: "buttonText", Value: String("Click me")},
		{Key: "n", Value: String("1.5")},
		{Key: "on", Value: String("true")},
		{Key: "tags", Value: String("a,b")},
		{Key: "o", Value: String("[object Object]")},
		{Key: "none", Value: Null()},
	}
	if diff := cmp.Diff(want, pairs); diff != "" {
		t.Errorf("ParseBlob mismatch (-want +got):\n%s", diff)
	}
}

func TestParseBlob_RoundTripsValidObjects(t *testing.T) {
	objects := []map[string]string{
		{},
		{"a": "1"},
		{"title": "Hello, world", "url": "https://example.com/x?y=1//z", "q": `say "hi"`},
	}
	for _, obj := range objects {
		data, err := json.Marshal(obj)
		require.NoError(t, err)

		pairs, ok := ParseBlob(string(data), nil)
		require.True(t, ok, string(data))

		got := map[string]string{}
		for _, p := range pairs {
			got[p.Key] = p.Value.Str
		}
		assert.Equal(t, obj, got)
	}
}

func TestParseBlob_Lenient(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[string]Value
	}{
		{
			name: "trailing comma with bare keys",
			in:   `{a:1, b:2,}`,
			want: map[string]Value{"a": String("1"), "b": String("2")},
		},
		{
			name: "trailing comma in nested array",
			in:   `{"list": [1, 2, ], }`,
			want: map[string]Value{"list": String("1,2")},
		},
		{
			name: "block and line comments",
			in: `{
				/* heading */
				"title": "Hi", // inline note
				"url": "http://example.com/a" // the // in the string survives
			}`,
			want: map[string]Value{"title": String("Hi"), "url": String("http://example.com/a")},
		},
		{
			name: "byte order mark",
			in:   "\uFEFF{\"k\":\"v\",}",
			want: map[string]Value{"k": String("v")},
		},
		{
			name: "bare keys next to comments",
			in: `{ // settings
				title /* shown */ : "Hi",
				/* flag */ open: true,
			}`,
			want: map[string]Value{"title": String("Hi"), "open": String("true")},
		},
		{
			name: "comment markers inside strings survive",
			in:   `{a: "/* not a comment */", b: "x // y",}`,
			want: map[string]Value{"a": String("/* not a comment */"), "b": String("x // y")},
		},
		{
			name: "comma inside string is not a trailing comma",
			in:   `{"s": "a,}", }`,
			want: map[string]Value{"s": String("a,}")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pairs, ok := ParseBlob(tt.in, nil)
			require.True(t, ok)
			assert.Equal(t, tt.want, pairsMap(pairs))
		})
	}
}

func TestParseBlob_InvalidWarnsAndReturnsNil(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	log := zap.New(core)

	for _, in := range []string{`{{{`, `{"a":`, `not json`, `{"a" 1}`} {
		assert.NotPanics(t, func() {
			pairs, ok := ParseBlob(in, log)
			assert.False(t, ok, in)
			assert.Nil(t, pairs, in)
		})
	}
	assert.Equal(t, 4, logs.FilterMessage("data-include-params is not valid JSON").Len())
}

func TestParseBlob_NonObjects(t *testing.T) {
	pairs, ok := ParseBlob(`"just a string"`, nil)
	assert.True(t, ok)
	assert.Empty(t, pairs)

	pairs, ok = ParseBlob(`null`, nil)
	assert.True(t, ok)
	assert.Empty(t, pairs)

	pairs, ok = ParseBlob(`["x","y"]`, nil)
	assert.True(t, ok)
	assert.Equal(t, map[string]Value{"0": String("x"), "1": String("y")}, pairsMap(pairs))
}

func TestParseBlob_OutOfRangeNumbers(t *testing.T) {
	pairs, ok := ParseBlob(`{"big": 1e400, "neg": -1e400, "tiny": 1e-400}`, nil)
	require.True(t, ok)
	assert.Equal(t, map[string]Value{
		"big":  String("Infinity"),
		"neg":  String("-Infinity"),
		"tiny": String("0"),
	}, pairsMap(pairs))

	pairs, ok = ParseBlob(`{n: 1e400,}`, nil)
	require.True(t, ok)
	assert.Equal(t, map[string]Value{"n": String("Infinity")}, pairsMap(pairs))
}

func TestJSNumber(t *testing.T) {
	tests := map[float64]string{
		1:       "1",
		-2.5:    "-2.5",
		0.1:     "0.1",
		1e21:    "1e+21",
		1.5e-7:  "1.5e-7",
		0.00001: "0.00001",
		123456:  "123456",
	}
	for in, want := range tests {
		assert.Equal(t, want, jsNumber(in), "%v", in)
	}
}

func TestSet_OrderAndOverwrite(t *testing.T) {
	s := NewSet()
	s.Set("b", "1")
	s.Set("a", "2")
	s.Set("b", "3")
	s.Put("c", Null())

	assert.Equal(t, []string{"b", "a", "c"}, s.Keys())
	v, ok := s.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, "3", v.Str)
	assert.Equal(t, map[string]string{"a": "2", "b": "3"}, s.Map())
	assert.Equal(t, 3, s.Len())
}

func TestSet_FoldedLastWins(t *testing.T) {
	s := NewSet()
	s.Set("Name", "first")
	s.Set("NAME", "second")

	assert.Equal(t, String("second"), s.Folded()["name"])
}

func TestGather_Precedence(t *testing.T) {
	u, err := url.Parse("https://example.com/components/ui/button.html?x=1&q=from+query&only=query")
	require.NoError(t, err)

	host := fakeHost{
		{Name: dom.AttrSource, Value: "@ui/button.html?x=1"},
		{Name: dom.AttrParams, Value: `{"x": 2, "q": "from blob", "blobonly": "yes",}`},
		{Name: "data-include-x", Value: "3"},
		{Name: "class", Value: "ignored"},
		{Name: "data-include-", Value: "empty key ignored"},
	}

	s := Gather(host, u, nil)

	assert.Equal(t, map[string]string{
		"x":        "3",
		"q":        "from blob",
		"only":     "query",
		"blobonly": "yes",
	}, s.Map())
	assert.Equal(t, []string{"x", "q", "only", "blobonly"}, s.Keys())
}

func TestGather_InvalidBlobKeepsOtherLayers(t *testing.T) {
	u, err := url.Parse("https://example.com/a.html?k=v")
	require.NoError(t, err)

	host := fakeHost{
		{Name: dom.AttrSource, Value: "a.html?k=v"},
		{Name: dom.AttrParams, Value: `{{{`},
		{Name: "data-include-label", Value: "Go"},
	}

	s := Gather(host, u, zap.NewNop())
	assert.Equal(t, map[string]string{"k": "v", "label": "Go"}, s.Map())
}

func TestGather_BlobNullShadowsQuery(t *testing.T) {
	u, err := url.Parse("https://example.com/a.html?k=v")
	require.NoError(t, err)

	s := Gather(fakeHost{{Name: dom.AttrParams, Value: `{"k": null}`}}, u, nil)

	v, ok := s.Lookup("k")
	require.True(t, ok)
	assert.True(t, v.Null)
}

func TestQueryPairs(t *testing.T) {
	got := QueryPairs("a=1&b=two+words&a=2&&c&bad=%zz")
	want := [][2]string{{"a", "1"}, {"b", "two words"}, {"a", "2"}, {"c", ""}, {"bad", "%zz"}}
	assert.Equal(t, want, got)
}

func TestQueryPairs_MalformedEscapesDecodeAround(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"v=%zz%20b", "%zz b"},
		{"v=50%25+off%", "50% off%"},
		{"v=%E2%9C%93%2", "\u2713%2"},
		{"v=%FF%zz", "\uFFFD%zz"},
	}
	for _, tt := range tests {
		got := QueryPairs(tt.in)
		require.Len(t, got, 1, tt.in)
		assert.Equal(t, tt.want, got[0][1], tt.in)
	}
}
