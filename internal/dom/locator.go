package dom

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind is the query language of a Locator
type Kind string

const (
	// XPath locators are evaluated with antchfx/htmlquery
	XPath Kind = "xpath"
	// CSS locators are evaluated with cascadia through goquery
	CSS Kind = "css"
)

// Locator is one way of finding an element
type Locator struct {
	Kind Kind
	Expr string
}

// X returns an XPath locator
func X(expr string) Locator {
	return Locator{Kind: XPath, Expr: expr}
}

// C returns a CSS locator
func C(expr string) Locator {
	return Locator{Kind: CSS, Expr: expr}
}

func (l Locator) String() string {
	return string(l.Kind) + ":" + l.Expr
}

// UnmarshalYAML reads a locator written as a single-key map:
//
//	- xpath: '//h1'
//	- css: 'h1.title'
func (l *Locator) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode || len(value.Content) != 2 {
		return fmt.Errorf("line %d: locator must be a single-key map of xpath or css", value.Line)
	}

	kind := Kind(strings.ToLower(value.Content[0].Value))
	if kind != XPath && kind != CSS {
		return fmt.Errorf("line %d: unknown locator kind %q", value.Line, value.Content[0].Value)
	}
	expr := strings.TrimSpace(value.Content[1].Value)
	if expr == "" {
		return fmt.Errorf("line %d: empty %s locator", value.Line, kind)
	}

	*l = Locator{Kind: kind, Expr: expr}
	return nil
}

// MarshalYAML writes the single-key map form
func (l Locator) MarshalYAML() (interface{}, error) {
	return map[string]string{string(l.Kind): l.Expr}, nil
}

// LocatorSet is an ordered list of locators for one logical field.
// Earlier entries take priority.
type LocatorSet []Locator

// Empty reports whether the set has no locators
func (s LocatorSet) Empty() bool {
	return len(s) == 0
}
