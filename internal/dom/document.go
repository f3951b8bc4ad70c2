package dom

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// ErrNoSuchElement is returned by queries that found nothing where the
// engine reports absence as an error.
var ErrNoSuchElement = errors.New("no such element")

// Document is a parsed snapshot of a rendered page
type Document struct {
	root *html.Node
	base *url.URL
}

// Element is a node inside a Document
type Element struct {
	node *html.Node
	doc  *Document
}

// Parse parses rendered HTML. baseURL is used to absolutize links.
func Parse(r io.Reader, baseURL string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	doc := &Document{root: root}
	if baseURL != "" {
		base, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
		}
		doc.base = base
	}
	return doc, nil
}

// ParseString is Parse for an in-memory page
func ParseString(page, baseURL string) (*Document, error) {
	return Parse(strings.NewReader(page), baseURL)
}

// Root returns the document node as an Element
func (d *Document) Root() *Element {
	return &Element{node: d.root, doc: d}
}

// BaseURL returns the URL the snapshot was taken from
func (d *Document) BaseURL() string {
	if d.base == nil {
		return ""
	}
	return d.base.String()
}

// QueryAll returns every element matching loc inside scope, in document
// order. A nil scope searches the whole document. Scoped queries only see
// the scope's descendants; absolute XPath expressions are made relative to
// the scope.
func (d *Document) QueryAll(loc Locator, scope *Element) ([]*Element, error) {
	node := d.root
	if scope != nil {
		node = scope.node
	}

	var nodes []*html.Node
	switch loc.Kind {
	case CSS:
		matcher, err := cascadia.Compile(loc.Expr)
		if err != nil {
			return nil, fmt.Errorf("invalid css locator %q: %w", loc.Expr, err)
		}
		nodes = goquery.NewDocumentFromNode(node).FindMatcher(matcher).Nodes
	case XPath:
		expr := loc.Expr
		if scope != nil && strings.HasPrefix(expr, "/") {
			expr = "." + expr
		}
		found, err := htmlquery.QueryAll(node, expr)
		if err != nil {
			return nil, fmt.Errorf("invalid xpath locator %q: %w", loc.Expr, err)
		}
		nodes = found
	default:
		return nil, fmt.Errorf("unsupported locator kind %q", loc.Kind)
	}

	elements := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, &Element{node: n, doc: d})
	}
	return elements, nil
}

// Resolve makes ref absolute against the document's base URL
func (d *Document) Resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || d.base == nil {
		return ref
	}
	u, err := d.base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

// Node returns the underlying html node
func (e *Element) Node() *html.Node {
	return e.node
}

// Text returns the element's text with whitespace runs collapsed
func (e *Element) Text() string {
	text := goquery.NewDocumentFromNode(e.node).Text()
	return strings.Join(strings.Fields(text), " ")
}

// RawText returns the element's text exactly as it appears in the page
func (e *Element) RawText() string {
	return htmlquery.InnerText(e.node)
}

// Attr returns the named attribute
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.node.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// Href returns the absolutized href attribute, or "" when missing
func (e *Element) Href() string {
	href, ok := e.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	return e.doc.Resolve(href)
}

// ImageURL returns the absolutized image source of an img-like element.
// src wins over data-src, which wins over the first srcset candidate.
func (e *Element) ImageURL() string {
	for _, name := range []string{"src", "data-src"} {
		if v, ok := e.Attr(name); ok && strings.TrimSpace(v) != "" && !strings.HasPrefix(v, "data:") {
			return e.doc.Resolve(v)
		}
	}
	if srcset, ok := e.Attr("srcset"); ok {
		first := strings.TrimSpace(strings.Split(srcset, ",")[0])
		if fields := strings.Fields(first); len(fields) > 0 {
			return e.doc.Resolve(fields[0])
		}
	}
	return ""
}
