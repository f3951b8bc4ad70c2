package menu

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceJSON(t *testing.T) {
	tests := []struct {
		name  string
		price Price
		json  string
	}{
		{"resolved", Cents(1250), "1250"},
		{"sold out", SoldOut(), `"sold out"`},
		{"unresolved", Unresolved(), "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.price)
			require.NoError(t, err)
			assert.Equal(t, tt.json, string(data))

			var back Price
			require.NoError(t, json.Unmarshal(data, &back))
			assert.Equal(t, tt.price, back)
		})
	}
}

func TestPriceUnmarshalRejectsUnknownValues(t *testing.T) {
	var p Price
	assert.Error(t, json.Unmarshal([]byte(`"free"`), &p))
	assert.Error(t, json.Unmarshal([]byte(`12.5`), &p))
}

func TestPriceString(t *testing.T) {
	assert.Equal(t, "12.05", Cents(1205).String())
	assert.Equal(t, "sold out", SoldOut().String())
	assert.Equal(t, "unresolved", Unresolved().String())
}

func TestMenuAddMergesDuplicateCategories(t *testing.T) {
	var m Menu
	m.Add("Mains", Dish{Name: "Burger"})
	m.Add("Drinks", Dish{Name: "Cola"})
	m.Add("Mains", Dish{Name: "Fries"})
	m.Add("", Dish{Name: "Mystery"})

	assert.Equal(t, []string{"Mains", "Drinks", UncategorizedName}, m.Names())
	mains, ok := m.Category("Mains")
	require.True(t, ok)
	assert.Equal(t, []string{"Burger", "Fries"}, []string{mains.Dishes[0].Name, mains.Dishes[1].Name})
	assert.Equal(t, 4, m.DishCount())
}

func TestMenuJSONPreservesCategoryOrder(t *testing.T) {
	m := Menu{
		{Name: "Zucchini", Dishes: []Dish{{Name: "Z1", Price: Cents(100)}}},
		{Name: "Apples", Dishes: []Dish{{Name: "A1", Price: SoldOut()}}},
		{Name: "Middle", Dishes: nil},
	}

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t,
		`{"Zucchini":[{"dish_name":"Z1","dish_description":"","dish_img_url":"","dish_price":100}],`+
			`"Apples":[{"dish_name":"A1","dish_description":"","dish_img_url":"","dish_price":"sold out"}],`+
			`"Middle":[]}`,
		string(data))

	var back Menu
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, []string{"Zucchini", "Apples", "Middle"}, back.Names())
}

func TestMenuUnmarshalRejectsArrays(t *testing.T) {
	var m Menu
	assert.Error(t, json.Unmarshal([]byte(`[]`), &m))
}

func TestMerchantRoundTrip(t *testing.T) {
	original := Merchant{
		Name:           "Noodle Box",
		Address:        "1 Main St, Vancouver",
		BannerImageURL: "https://cdn.example.com/banner.jpg",
		Menu: Menu{
			{Name: "Mains", Dishes: []Dish{
				{Name: "Pad Thai", Description: "Rice noodles", ImageURL: "https://cdn.example.com/p.jpg", Price: Cents(1599)},
				{Name: "Ramen", Price: Unresolved()},
			}},
			{Name: "Drinks", Dishes: []Dish{{Name: "Tea", Price: SoldOut()}}},
		},
		City:      "vancouver",
		SourceURL: "https://www.example.com/noodle-box?ref=home",
	}

	path := filepath.Join(t.TempDir(), "noodle-box.json")
	data, err := json.MarshalIndent(original, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := LoadMerchant(path)
	require.NoError(t, err)
	assert.Equal(t, original, *loaded)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"merchant_name", "address", "banner_image_url", "menu", "city", "merchant_url"} {
		assert.Contains(t, raw, key)
	}
	assert.NotContains(t, raw, "phone")
}

func TestIndexEntry(t *testing.T) {
	m := Merchant{
		Name:           "Cafe",
		Address:        "Somewhere",
		BannerImageURL: "https://cdn/x.png",
		SourceURL:      "https://site/store/cafe?x=1",
		CanonicalURL:   "https://site/store/cafe",
	}
	assert.Equal(t, IndexEntry{
		Name:     "Cafe",
		URL:      "https://site/store/cafe?x=1",
		Address:  "Somewhere",
		IconURL:  "https://cdn/x.png",
		CleanURL: "https://site/store/cafe",
	}, m.IndexEntry())
}
