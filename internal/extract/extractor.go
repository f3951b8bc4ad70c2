package extract

import (
	"slices"
	"strings"

	"golang.org/x/net/html"

	"sjsage522/menucrawler/internal/dom"
	"sjsage522/menucrawler/internal/menu"
	"sjsage522/menucrawler/pkg/errors"
)

// MerchantFields locates the merchant header fields
type MerchantFields struct {
	Name        dom.LocatorSet `yaml:"name"`
	Address     dom.LocatorSet `yaml:"address"`
	BannerImage dom.LocatorSet `yaml:"banner_image"`
}

// DishFields locates dish fields inside one dish item
type DishFields struct {
	Name        dom.LocatorSet `yaml:"name"`
	Description dom.LocatorSet `yaml:"description"`
	Price       dom.LocatorSet `yaml:"price"`
	Image       dom.LocatorSet `yaml:"image"`
}

// MenuFields locates categories and the dishes inside each of them
type MenuFields struct {
	Categories   dom.LocatorSet `yaml:"categories"`
	CategoryName dom.LocatorSet `yaml:"category_name"`
	Items        dom.LocatorSet `yaml:"items"`
	Dish         DishFields     `yaml:"dish"`
	Exclude      []string       `yaml:"exclude"`
}

// Extractor turns page snapshots into records
type Extractor struct {
	OnPriceFailure FailurePolicy
}

// New creates an extractor with the given price failure policy
func New(onPriceFailure FailurePolicy) *Extractor {
	return &Extractor{OnPriceFailure: onPriceFailure}
}

// Merchant extracts the merchant header. Absent text fields become
// menu.NotFound and an absent banner becomes "".
func (x *Extractor) Merchant(doc *dom.Document, f MerchantFields) (*menu.Merchant, error) {
	name, err := text(doc, nil, f.Name, menu.NotFound)
	if err != nil {
		return nil, fieldError(doc, "merchant name", err)
	}
	address, err := text(doc, nil, f.Address, menu.NotFound)
	if err != nil {
		return nil, fieldError(doc, "merchant address", err)
	}
	banner, err := image(doc, nil, f.BannerImage)
	if err != nil {
		return nil, fieldError(doc, "banner image", err)
	}

	return &menu.Merchant{
		Name:           name,
		Address:        address,
		BannerImageURL: banner,
		SourceURL:      doc.BaseURL(),
	}, nil
}

// Menu extracts categories in page order. Dishes are searched only inside
// their own category. A page without category containers is read as one
// uncategorized list.
func (x *Extractor) Menu(doc *dom.Document, f MenuFields) (menu.Menu, error) {
	categories, err := dom.ResolveMany(doc, nil, f.Categories)
	if err != nil {
		return nil, fieldError(doc, "categories", err)
	}
	categories = innermost(categories)

	out := menu.Menu{}
	if len(categories) == 0 {
		dishes, err := x.dishes(doc, nil, f)
		if err != nil {
			return nil, err
		}
		if len(dishes) > 0 {
			out.Add(menu.UncategorizedName, dishes...)
		}
		return out, nil
	}

	for _, category := range categories {
		name, err := text(doc, category, f.CategoryName, menu.UncategorizedName)
		if err != nil {
			return nil, fieldError(doc, "category name", err)
		}
		if name == "" {
			name = menu.UncategorizedName
		}
		if slices.Contains(f.Exclude, name) {
			continue
		}

		dishes, err := x.dishes(doc, category, f)
		if err != nil {
			return nil, err
		}
		out.Add(name, dishes...)
	}
	return out, nil
}

// innermost drops containers that enclose another matched container, so a
// wrapper matched by a loose locator never collects its children's dishes
func innermost(containers []*dom.Element) []*dom.Element {
	if len(containers) < 2 {
		return containers
	}
	matched := make(map[*html.Node]bool, len(containers))
	for _, c := range containers {
		matched[c.Node()] = true
	}
	enclosing := make(map[*html.Node]bool)
	for _, c := range containers {
		for n := c.Node().Parent; n != nil; n = n.Parent {
			if matched[n] {
				enclosing[n] = true
			}
		}
	}

	out := make([]*dom.Element, 0, len(containers))
	for _, c := range containers {
		if !enclosing[c.Node()] {
			out = append(out, c)
		}
	}
	return out
}

func (x *Extractor) dishes(doc *dom.Document, scope *dom.Element, f MenuFields) ([]menu.Dish, error) {
	items, err := dom.ResolveMany(doc, scope, f.Items)
	if err != nil {
		return nil, fieldError(doc, "dish items", err)
	}

	dishes := make([]menu.Dish, 0, len(items))
	for _, item := range items {
		dish, err := x.Dish(doc, item, f.Dish)
		if err != nil {
			return nil, err
		}
		dishes = append(dishes, dish)
	}
	return dishes, nil
}

// Dish extracts one dish from its item element
func (x *Extractor) Dish(doc *dom.Document, item *dom.Element, f DishFields) (menu.Dish, error) {
	var dish menu.Dish
	var err error

	if dish.Name, err = text(doc, item, f.Name, menu.NotFound); err != nil {
		return dish, fieldError(doc, "dish name", err)
	}
	if dish.Description, err = text(doc, item, f.Description, ""); err != nil {
		return dish, fieldError(doc, "dish description", err)
	}
	if dish.ImageURL, err = image(doc, item, f.Image); err != nil {
		return dish, fieldError(doc, "dish image", err)
	}

	priceEl, err := dom.ResolveOne(doc, item, f.Price)
	if err != nil {
		return dish, fieldError(doc, "dish price", err)
	}
	if priceEl == nil {
		dish.Price = menu.Unresolved()
	} else {
		dish.Price = ParsePrice(priceEl.Text(), x.OnPriceFailure)
	}
	return dish, nil
}

func text(doc *dom.Document, scope *dom.Element, set dom.LocatorSet, absent string) (string, error) {
	el, err := dom.ResolveOne(doc, scope, set)
	if err != nil {
		return "", err
	}
	if el == nil {
		return absent, nil
	}
	return strings.TrimSpace(el.Text()), nil
}

func image(doc *dom.Document, scope *dom.Element, set dom.LocatorSet) (string, error) {
	el, err := dom.ResolveOne(doc, scope, set)
	if err != nil || el == nil {
		return "", err
	}
	return el.ImageURL(), nil
}

func fieldError(doc *dom.Document, field string, err error) error {
	return errors.NewParsing(doc.BaseURL(), "resolve "+field, err)
}
