// Package dom defines the document capabilities the include engine needs.
// Backends live in subpackages: static rewrites a parsed page with
// golang.org/x/net/html, live drives a browser page through go-rod.
package dom

// Attribute names of the markup contract.
const (
	AttrSource      = "data-include"
	AttrParams      = "data-include-params"
	AttrParamPrefix = "data-include-"
)

// DefaultSelector matches every element carrying a source attribute.
const DefaultSelector = "[" + AttrSource + "]"

// Attribute is a name/value pair as exposed by the document. Names are
// lowercase for HTML elements.
type Attribute struct {
	Name  string
	Value string
}

// Host is an element slated for replacement by an included fragment.
type Host interface {
	// Attr returns the named attribute and whether it is present.
	Attr(name string) (string, bool)
	// Attrs returns all attributes in document order.
	Attrs() []Attribute
}

// Identifier is implemented by hosts that can report a stable identity
// across repeated Hosts calls on the same document.
type Identifier interface {
	Identity() any
}

// Fragment is a parsed, detached subtree produced by ParseFragment.
type Fragment interface {
	// Markup serializes the fragment's current content.
	Markup() (string, error)
}

// Script is a script element found inside a Fragment.
type Script interface {
	Attrs() []Attribute
	// Text is the script's inline source (textContent).
	Text() string
}

// Document is the capability set used by the include engine. Markup parsed
// outside the live tree does not run its scripts, so the engine replaces
// every script with a freshly built one via ExecuteScript before insertion.
//
// Implementations need not be safe for concurrent use; the engine
// serializes calls.
type Document interface {
	// Hosts returns the elements matching selector at call time.
	Hosts(selector string) ([]Host, error)
	// ParseFragment parses markup into a detached fragment, as a template
	// element's content would be parsed.
	ParseFragment(markup string) (Fragment, error)
	// QueryScripts lists the script elements of f in document order.
	QueryScripts(f Fragment) ([]Script, error)
	// ExecuteScript swaps s for a new script element carrying the same
	// attributes and inline text.
	ExecuteScript(f Fragment, s Script) error
	// ReplaceNode replaces h with the children of f, preserving order.
	ReplaceNode(h Host, f Fragment) error
}

// AttrValue is a helper for implementations that hold attributes as a slice.
func AttrValue(attrs []Attribute, name string) (string, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}
