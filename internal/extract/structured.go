package extract

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/titanous/json5"
	"golang.org/x/net/html"

	"sjsage522/menucrawler/internal/dom"
	"sjsage522/menucrawler/internal/menu"
	"sjsage522/menucrawler/pkg/errors"
)

// StructuredFields locates embedded schema.org data blocks
type StructuredFields struct {
	Blocks   dom.LocatorSet `yaml:"blocks"`
	Types    []string       `yaml:"types"`
	Exclude  []string       `yaml:"exclude"`
	Fallback MerchantFields `yaml:"fallback"`
}

var defaultRestaurantTypes = []string{"Restaurant", "FoodEstablishment"}

// Structured builds a merchant from the page's JSON-LD restaurant block.
// Header fields missing from the block are read from the page with the
// fallback locators.
func (x *Extractor) Structured(doc *dom.Document, f StructuredFields) (*menu.Merchant, error) {
	blocks, err := dom.ResolveMany(doc, nil, f.Blocks)
	if err != nil {
		return nil, fieldError(doc, "structured data", err)
	}
	if len(blocks) == 0 {
		return nil, errors.NewNotFound(doc.BaseURL(), "no structured data block on page")
	}

	types := f.Types
	if len(types) == 0 {
		types = defaultRestaurantTypes
	}

	var parseErr error
	for _, block := range blocks {
		data, err := decodeBlock(block.RawText())
		if err != nil {
			parseErr = err
			continue
		}
		restaurant := findTyped(data, types)
		if restaurant == nil {
			continue
		}
		return x.restaurant(doc, restaurant, f)
	}

	if parseErr != nil {
		return nil, errors.NewParsing(doc.BaseURL(), "decode structured data", parseErr)
	}
	return nil, errors.NewNotFound(doc.BaseURL(), "no restaurant in structured data")
}

func (x *Extractor) restaurant(doc *dom.Document, r map[string]any, f StructuredFields) (*menu.Merchant, error) {
	m := &menu.Merchant{
		Name:           unescape(str(r["name"])),
		Address:        address(r["address"]),
		BannerImageURL: doc.Resolve(imageRef(r["image"])),
		Phone:          str(r["telephone"]),
		Cuisine:        strs(r["servesCuisine"]),
		OpeningHours:   strs(r["openingHours"]),
		SourceURL:      doc.BaseURL(),
		Menu:           menu.Menu{},
	}

	if m.Name == "" {
		name, err := text(doc, nil, f.Fallback.Name, menu.NotFound)
		if err != nil {
			return nil, fieldError(doc, "merchant name", err)
		}
		m.Name = name
	}
	if m.Address == "" {
		addr, err := text(doc, nil, f.Fallback.Address, menu.NotFound)
		if err != nil {
			return nil, fieldError(doc, "merchant address", err)
		}
		m.Address = addr
	}
	if m.BannerImageURL == "" {
		banner, err := image(doc, nil, f.Fallback.BannerImage)
		if err != nil {
			return nil, fieldError(doc, "banner image", err)
		}
		m.BannerImageURL = banner
	}

	for _, menuNode := range flatten(r["hasMenu"]) {
		x.sections(doc, obj(menuNode), f.Exclude, &m.Menu)
	}
	return m, nil
}

func (x *Extractor) sections(doc *dom.Document, node map[string]any, exclude []string, out *menu.Menu) {
	if node == nil {
		return
	}
	for _, raw := range flatten(node["hasMenuSection"]) {
		section := obj(raw)
		if section == nil {
			continue
		}
		name := unescape(str(section["name"]))
		if name == "" {
			name = menu.UncategorizedName
		}
		if !slices.Contains(exclude, name) {
			items := flatten(section["hasMenuItem"])
			dishes := make([]menu.Dish, 0, len(items))
			for _, rawItem := range items {
				if item := obj(rawItem); item != nil {
					dishes = append(dishes, x.structuredDish(doc, item))
				}
			}
			if len(dishes) > 0 || section["hasMenuSection"] == nil {
				out.Add(name, dishes...)
			}
		}

		// Sections may nest further sections
		x.sections(doc, section, exclude, out)
	}
}

func (x *Extractor) structuredDish(doc *dom.Document, item map[string]any) menu.Dish {
	dish := menu.Dish{
		Name:        unescape(str(item["name"])),
		Description: unescape(str(item["description"])),
		ImageURL:    doc.Resolve(imageRef(item["image"])),
		Price:       menu.Unresolved(),
	}
	if dish.Name == "" {
		dish.Name = menu.NotFound
	}

	for _, rawOffer := range flatten(item["offers"]) {
		offer := obj(rawOffer)
		if offer == nil {
			continue
		}
		if strings.HasSuffix(str(offer["availability"]), "OutOfStock") {
			dish.Price = menu.SoldOut()
			break
		}
		if price := str(offer["price"]); price != "" {
			dish.Price = ParsePrice(price, x.OnPriceFailure)
			break
		}
	}
	return dish
}

// decodeBlock parses a JSON-LD block, falling back to the lenient JSON5
// grammar for blocks with trailing commas or comments.
func decodeBlock(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty structured data block")
	}

	var data any
	if err := json.Unmarshal([]byte(raw), &data); err == nil {
		return data, nil
	}
	if err := json5.Unmarshal([]byte(raw), &data); err != nil {
		return nil, err
	}
	return data, nil
}

// findTyped walks objects, arrays and @graph containers for the first
// object whose @type is one of types.
func findTyped(v any, types []string) map[string]any {
	switch node := v.(type) {
	case []any:
		for _, child := range node {
			if found := findTyped(child, types); found != nil {
				return found
			}
		}
	case map[string]any:
		for _, t := range strs(node["@type"]) {
			if slices.Contains(types, t) {
				return node
			}
		}
		if graph, ok := node["@graph"]; ok {
			return findTyped(graph, types)
		}
	}
	return nil
}

func flatten(v any) []any {
	switch node := v.(type) {
	case nil:
		return nil
	case []any:
		var out []any
		for _, child := range node {
			out = append(out, flatten(child)...)
		}
		return out
	default:
		return []any{node}
	}
}

func obj(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func str(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	default:
		return ""
	}
}

func strs(v any) []string {
	var out []string
	for _, item := range flatten(v) {
		if s := unescape(str(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func unescape(s string) string {
	return html.UnescapeString(s)
}

func imageRef(v any) string {
	for _, item := range flatten(v) {
		switch img := item.(type) {
		case string:
			if img != "" {
				return img
			}
		case map[string]any:
			if u := str(img["url"]); u != "" {
				return u
			}
			if u := str(img["contentUrl"]); u != "" {
				return u
			}
		}
	}
	return ""
}

func address(v any) string {
	switch a := v.(type) {
	case string:
		return unescape(strings.TrimSpace(a))
	case map[string]any:
		var parts []string
		for _, key := range []string{"streetAddress", "addressLocality", "addressRegion", "postalCode", "addressCountry"} {
			part := str(a[key])
			if part == "" {
				part = str(obj(a[key])["name"])
			}
			if part != "" {
				parts = append(parts, unescape(part))
			}
		}
		return strings.Join(parts, ", ")
	case []any:
		if len(a) > 0 {
			return address(a[0])
		}
	}
	return ""
}
