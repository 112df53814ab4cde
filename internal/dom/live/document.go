// Package live implements dom.Document against a page in a real browser,
// driven over the DevTools protocol with go-rod. Inserted scripts run in
// the page.
package live

import (
	"encoding/json"
	"errors"
	"fmt"

	"htmlinc/internal/dom"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// ErrForeignHandle is returned when a handle from another backend is
// passed in.
var ErrForeignHandle = errors.New("live: handle does not belong to this backend")

const (
	jsAttrs = `() => JSON.stringify(Array.from(this.attributes, a => [a.name, a.value]))`

	jsParseFragment = `(markup) => {
		const t = document.createElement('template');
		t.innerHTML = markup;
		return t.content;
	}`

	jsFragmentMarkup = `(f) => {
		const d = document.createElement('div');
		d.appendChild(f.cloneNode(true));
		return d.innerHTML;
	}`

	jsScriptCount = `(f) => f.querySelectorAll('script').length`

	jsScriptAt = `(f, i) => f.querySelectorAll('script')[i]`

	jsScriptInfo = `(s) => JSON.stringify({
		attrs: Array.from(s.attributes, a => [a.name, a.value]),
		text: s.textContent || ''
	})`

	jsReplaceScript = `(old, attrs, text) => {
		const n = document.createElement('script');
		for (const [k, v] of attrs) n.setAttribute(k, v);
		n.textContent = text;
		old.parentNode.replaceChild(n, old);
		return n;
	}`

	jsReplaceWith = `(f) => { this.replaceWith(f) }`
)

// Document wraps a loaded page.
type Document struct {
	page *rod.Page
}

// New returns a Document over page. The page's context bounds every call.
func New(page *rod.Page) *Document {
	return &Document{page: page}
}

// HTML returns the page's current outer HTML.
func (d *Document) HTML() (string, error) {
	res, err := d.page.Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("read document html: %w", err)
	}
	return res.Value.Str(), nil
}

type host struct {
	el    *rod.Element
	attrs []dom.Attribute
	id    proto.DOMBackendNodeID
}

func (h *host) Attr(name string) (string, bool) {
	return dom.AttrValue(h.attrs, name)
}

func (h *host) Attrs() []dom.Attribute {
	return h.attrs
}

// Identity implements dom.Identifier with the backend node id, which is
// stable for the lifetime of the node.
func (h *host) Identity() any {
	return h.id
}

type fragment struct {
	d   *Document
	obj *proto.RuntimeRemoteObject
}

func (f *fragment) Markup() (string, error) {
	res, err := f.d.page.Evaluate(rod.Eval(jsFragmentMarkup, f.obj))
	if err != nil {
		return "", fmt.Errorf("serialize fragment: %w", err)
	}
	return res.Value.Str(), nil
}

type script struct {
	obj   *proto.RuntimeRemoteObject
	attrs []dom.Attribute
	text  string
}

func (s *script) Attrs() []dom.Attribute { return s.attrs }
func (s *script) Text() string           { return s.text }

// Hosts snapshots the attributes of every element matching selector.
func (d *Document) Hosts(selector string) ([]dom.Host, error) {
	els, err := d.page.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	hosts := make([]dom.Host, 0, len(els))
	for _, el := range els {
		res, err := el.Eval(jsAttrs)
		if err != nil {
			return nil, fmt.Errorf("read attributes: %w", err)
		}
		attrs, err := decodeAttrs(res.Value.Str())
		if err != nil {
			return nil, err
		}
		node, err := el.Describe(0, false)
		if err != nil {
			return nil, fmt.Errorf("describe host: %w", err)
		}
		hosts = append(hosts, &host{el: el, attrs: attrs, id: node.BackendNodeID})
	}
	return hosts, nil
}

// ParseFragment parses markup into a template's content fragment.
func (d *Document) ParseFragment(markup string) (dom.Fragment, error) {
	obj, err := d.page.Evaluate(rod.Eval(jsParseFragment, markup).ByObject())
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	return &fragment{d: d, obj: obj}, nil
}

// QueryScripts lists the fragment's script elements in document order.
func (d *Document) QueryScripts(f dom.Fragment) ([]dom.Script, error) {
	fr, ok := f.(*fragment)
	if !ok {
		return nil, ErrForeignHandle
	}
	res, err := d.page.Evaluate(rod.Eval(jsScriptCount, fr.obj))
	if err != nil {
		return nil, fmt.Errorf("count scripts: %w", err)
	}
	n := res.Value.Int()

	out := make([]dom.Script, 0, n)
	for i := 0; i < n; i++ {
		obj, err := d.page.Evaluate(rod.Eval(jsScriptAt, fr.obj, i).ByObject())
		if err != nil {
			return nil, fmt.Errorf("script %d: %w", i, err)
		}
		info, err := d.page.Evaluate(rod.Eval(jsScriptInfo, obj))
		if err != nil {
			return nil, fmt.Errorf("script %d: %w", i, err)
		}
		var raw struct {
			Attrs [][2]string `json:"attrs"`
			Text  string      `json:"text"`
		}
		if err := json.Unmarshal([]byte(info.Value.Str()), &raw); err != nil {
			return nil, fmt.Errorf("decode script %d: %w", i, err)
		}
		out = append(out, &script{obj: obj, attrs: pairsToAttrs(raw.Attrs), text: raw.Text})
	}
	return out, nil
}

// ExecuteScript swaps s for a script created by the page's document, which
// the browser runs once the fragment is connected.
func (d *Document) ExecuteScript(f dom.Fragment, s dom.Script) error {
	old, ok := s.(*script)
	if !ok {
		return ErrForeignHandle
	}
	attrs := make([][2]string, 0, len(old.attrs))
	for _, a := range old.attrs {
		attrs = append(attrs, [2]string{a.Name, a.Value})
	}
	obj, err := d.page.Evaluate(rod.Eval(jsReplaceScript, old.obj, attrs, old.text).ByObject())
	if err != nil {
		return fmt.Errorf("replace script: %w", err)
	}
	old.obj = obj
	return nil
}

// ReplaceNode replaces h with the fragment's children.
func (d *Document) ReplaceNode(h dom.Host, f dom.Fragment) error {
	hn, ok := h.(*host)
	if !ok {
		return ErrForeignHandle
	}
	fr, ok := f.(*fragment)
	if !ok {
		return ErrForeignHandle
	}
	if _, err := hn.el.Eval(jsReplaceWith, fr.obj); err != nil {
		return fmt.Errorf("replace host: %w", err)
	}
	return nil
}

func decodeAttrs(s string) ([]dom.Attribute, error) {
	var pairs [][2]string
	if err := json.Unmarshal([]byte(s), &pairs); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	return pairsToAttrs(pairs), nil
}

func pairsToAttrs(pairs [][2]string) []dom.Attribute {
	out := make([]dom.Attribute, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, dom.Attribute{Name: p[0], Value: p[1]})
	}
	return out
}
