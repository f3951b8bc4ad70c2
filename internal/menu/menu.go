package menu

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// UncategorizedName is used when a category label cannot be resolved
const UncategorizedName = "Uncategorized"

// Dish represents one menu item
type Dish struct {
	Name        string `json:"dish_name"`
	Description string `json:"dish_description"`
	ImageURL    string `json:"dish_img_url"`
	Price       Price  `json:"dish_price"`
}

// Category is a named, ordered group of dishes
type Category struct {
	Name   string
	Dishes []Dish
}

// Menu is an ordered list of categories. It serializes as a JSON object
// keyed by category name, preserving category order.
type Menu []Category

// Add appends dishes to the category with the given name, creating it at
// the end of the menu if it does not exist yet.
func (m *Menu) Add(name string, dishes ...Dish) {
	if name == "" {
		name = UncategorizedName
	}
	for i := range *m {
		if (*m)[i].Name == name {
			(*m)[i].Dishes = append((*m)[i].Dishes, dishes...)
			return
		}
	}
	*m = append(*m, Category{Name: name, Dishes: append([]Dish{}, dishes...)})
}

// Category returns the category with the given name
func (m Menu) Category(name string) (Category, bool) {
	for _, c := range m {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// Names returns category names in menu order
func (m Menu) Names() []string {
	names := make([]string, 0, len(m))
	for _, c := range m {
		names = append(names, c.Name)
	}
	return names
}

// DishCount returns the number of dishes across all categories
func (m Menu) DishCount() int {
	n := 0
	for _, c := range m {
		n += len(c.Dishes)
	}
	return n
}

// MarshalJSON implements json.Marshaler
func (m Menu) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		dishes := c.Dishes
		if dishes == nil {
			dishes = []Dish{}
		}
		value, err := json.Marshal(dishes)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Menu) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("menu must be a JSON object, got %v", tok)
	}

	out := Menu{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected menu key %v", tok)
		}
		var dishes []Dish
		if err := dec.Decode(&dishes); err != nil {
			return fmt.Errorf("category %q: %w", name, err)
		}
		out.Add(name, dishes...)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*m = out
	return nil
}
