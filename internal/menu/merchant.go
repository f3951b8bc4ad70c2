package menu

import (
	"encoding/json"
	"os"
)

// NotFound is the sentinel stored for text fields that could not be resolved
const NotFound = "Not found"

// Merchant is the per-merchant record persisted by the sink
type Merchant struct {
	Name           string `json:"merchant_name"`
	Address        string `json:"address"`
	BannerImageURL string `json:"banner_image_url"`
	Menu           Menu   `json:"menu"`
	City           string `json:"city"`
	SourceURL      string `json:"merchant_url"`

	// Filled by the structured-data extractor only
	Phone        string   `json:"phone,omitempty"`
	Cuisine      []string `json:"cuisine,omitempty"`
	OpeningHours []string `json:"opening_hours,omitempty"`

	// CanonicalURL is the dedup key; Key is its platform id used for file names.
	CanonicalURL string `json:"-"`
	Key          string `json:"-"`
}

// IndexEntry is the lightweight summary kept in the master index
type IndexEntry struct {
	Name     string `json:"merchant_name"`
	URL      string `json:"url"`
	Address  string `json:"address"`
	IconURL  string `json:"merchant_icon"`
	CleanURL string `json:"clean_url"`
}

// IndexEntry summarizes the merchant for the master index
func (m *Merchant) IndexEntry() IndexEntry {
	return IndexEntry{
		Name:     m.Name,
		URL:      m.SourceURL,
		Address:  m.Address,
		IconURL:  m.BannerImageURL,
		CleanURL: m.CanonicalURL,
	}
}

// LoadMerchant reads a persisted merchant record
func LoadMerchant(path string) (*Merchant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Merchant
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
