// Package static implements dom.Document over a golang.org/x/net/html tree.
// It is used to expand includes at build or serve time; the rewritten page
// is written back with Render.
package static

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"htmlinc/internal/dom"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrForeignHandle is returned when a Host, Fragment or Script from another
// backend is passed in.
var ErrForeignHandle = errors.New("static: handle does not belong to this backend")

// Document is a parsed HTML page.
type Document struct {
	root *html.Node
}

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseString is Parse for in-memory markup.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	return d.root
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// String renders the document, returning "" on error.
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

type host struct {
	n *html.Node
}

func (h *host) Attr(name string) (string, bool) {
	for _, a := range h.n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func (h *host) Attrs() []dom.Attribute {
	return attrsOf(h.n)
}

// Identity implements dom.Identifier.
func (h *host) Identity() any {
	return h.n
}

// Node returns the underlying element.
func (h *host) Node() *html.Node {
	return h.n
}

type fragment struct {
	root *html.Node
}

func (f *fragment) Markup() (string, error) {
	var buf bytes.Buffer
	for c := f.root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

type script struct {
	n *html.Node
}

func (s *script) Attrs() []dom.Attribute {
	return attrsOf(s.n)
}

func (s *script) Text() string {
	return textContent(s.n)
}

// Hosts returns the elements matching a CSS selector.
func (d *Document) Hosts(selector string) ([]dom.Host, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("compile selector %q: %w", selector, err)
	}
	nodes := sel.MatchAll(d.root)
	hosts := make([]dom.Host, 0, len(nodes))
	for _, n := range nodes {
		hosts = append(hosts, &host{n: n})
	}
	return hosts, nil
}

// ParseFragment parses markup in template context, so table rows and other
// context-sensitive content survive as they would in a template element.
func (d *Document) ParseFragment(markup string) (dom.Fragment, error) {
	context := &html.Node{Type: html.ElementNode, Data: "template", DataAtom: atom.Template}
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	root := &html.Node{Type: html.DocumentNode}
	for _, n := range nodes {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		root.AppendChild(n)
	}
	return &fragment{root: root}, nil
}

// QueryScripts lists script elements of f in document order.
func (d *Document) QueryScripts(f dom.Fragment) ([]dom.Script, error) {
	fr, ok := f.(*fragment)
	if !ok {
		return nil, ErrForeignHandle
	}
	var out []dom.Script
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if isScript(n) {
			out = append(out, &script{n: n})
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(fr.root)
	return out, nil
}

// ExecuteScript replaces s with a freshly built script node. A static
// document has no script engine; the fresh node is what reaches the output.
func (d *Document) ExecuteScript(f dom.Fragment, s dom.Script) error {
	old, ok := s.(*script)
	if !ok {
		return ErrForeignHandle
	}
	if old.n.Parent == nil {
		return fmt.Errorf("static: script is detached")
	}

	fresh := &html.Node{
		Type:      html.ElementNode,
		Data:      "script",
		DataAtom:  atom.Script,
		Namespace: old.n.Namespace,
	}
	for _, a := range s.Attrs() {
		fresh.Attr = append(fresh.Attr, html.Attribute{Key: a.Name, Val: a.Value})
	}
	if text := s.Text(); text != "" {
		fresh.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}

	parent := old.n.Parent
	parent.InsertBefore(fresh, old.n)
	parent.RemoveChild(old.n)
	old.n = fresh
	return nil
}

// ReplaceNode swaps h for the children of f.
func (d *Document) ReplaceNode(h dom.Host, f dom.Fragment) error {
	hn, ok := h.(*host)
	if !ok {
		return ErrForeignHandle
	}
	fr, ok := f.(*fragment)
	if !ok {
		return ErrForeignHandle
	}
	parent := hn.n.Parent
	if parent == nil {
		return fmt.Errorf("static: host <%s> is detached", hn.n.Data)
	}
	for c := fr.root.FirstChild; c != nil; c = fr.root.FirstChild {
		fr.root.RemoveChild(c)
		parent.InsertBefore(c, hn.n)
	}
	parent.RemoveChild(hn.n)
	return nil
}

func isScript(n *html.Node) bool {
	return n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.Data == "script")
}

func attrsOf(n *html.Node) []dom.Attribute {
	out := make([]dom.Attribute, 0, len(n.Attr))
	for _, a := range n.Attr {
		name := a.Key
		if a.Namespace != "" {
			name = a.Namespace + ":" + a.Key
		}
		out = append(out, dom.Attribute{Name: name, Value: a.Val})
	}
	return out
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
