package config

import (
	"bytes"
	"embed"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sjsage522/menucrawler/helpers"
	"sjsage522/menucrawler/internal/dom"
	"sjsage522/menucrawler/internal/extract"
	"sjsage522/menucrawler/internal/loader"
	"sjsage522/menucrawler/pkg/errors"
)

//go:embed platforms/*.yaml
var builtin embed.FS

// Listing locates links on a page that grows while scrolling
type Listing struct {
	Links  dom.LocatorSet `yaml:"links"`
	Scroll loader.Policy  `yaml:"scroll"`
}

// MerchantPage describes how a merchant page is loaded and read. When
// Structured is set the page is read from its JSON-LD block.
type MerchantPage struct {
	Settle       time.Duration             `yaml:"settle"`
	Scroll       loader.Policy             `yaml:"scroll"`
	Fields       extract.MerchantFields    `yaml:"fields"`
	Menu         extract.MenuFields        `yaml:"menu"`
	Structured   *extract.StructuredFields `yaml:"structured"`
	PriceFailure extract.FailurePolicy     `yaml:"price_failure"`
}

// Platform is the selector table and crawl shape of one delivery site
type Platform struct {
	Name          string         `yaml:"name"`
	BaseURL       string         `yaml:"base_url"`
	CityURL       string         `yaml:"city_url"`
	Cities        []string       `yaml:"cities"`
	Canonicalizer string         `yaml:"canonicalizer"`
	Captcha       dom.LocatorSet `yaml:"captcha"`
	Categories    *Listing       `yaml:"categories"`
	Listing       Listing        `yaml:"listing"`
	Merchant      MerchantPage   `yaml:"merchant"`
}

// ListingURL fills the city placeholder of the platform's URL template
func (p *Platform) ListingURL(city string) string {
	return strings.ReplaceAll(p.CityURL, "{city}", helpers.FormatCityName(city))
}

// Validate reports the first missing piece of the definition
func (p *Platform) Validate() error {
	fail := func(msg string) error {
		return errors.NewConfiguration("platform "+p.Name+": "+msg, nil)
	}
	switch {
	case p.Name == "":
		return errors.NewConfiguration("platform without a name", nil)
	case p.BaseURL == "":
		return fail("base_url is required")
	case !strings.Contains(p.CityURL, "{city}"):
		return fail("city_url must contain {city}")
	case p.Listing.Links.Empty():
		return fail("listing.links is required")
	case p.Listing.Scroll.MaxSteps < 0:
		return fail("listing.scroll.max_steps must not be negative")
	case p.Categories != nil && p.Categories.Links.Empty():
		return fail("categories.links is required when categories is set")
	case p.Merchant.Structured == nil && p.Merchant.Menu.Items.Empty():
		return fail("merchant.menu.items or merchant.structured is required")
	case p.Merchant.Structured != nil && p.Merchant.Structured.Blocks.Empty():
		return fail("merchant.structured.blocks is required")
	}
	if _, err := extract.ParseFailurePolicy(string(p.Merchant.PriceFailure)); err != nil {
		return fail(err.Error())
	}
	return nil
}

// LoadPlatforms returns the built-in platform tables, with any platform
// defined in overrideFile replacing the built-in one of the same name.
// overrideFile may hold several YAML documents.
func LoadPlatforms(overrideFile string) (map[string]*Platform, error) {
	platforms := map[string]*Platform{}

	entries, err := builtin.ReadDir("platforms")
	if err != nil {
		return nil, errors.NewConfiguration("read built-in platforms", err)
	}
	for _, entry := range entries {
		data, err := builtin.ReadFile(path.Join("platforms", entry.Name()))
		if err != nil {
			return nil, errors.NewConfiguration("read "+entry.Name(), err)
		}
		if err := decodePlatforms(data, platforms); err != nil {
			return nil, err
		}
	}

	if overrideFile != "" {
		data, err := os.ReadFile(overrideFile)
		if err != nil {
			return nil, errors.NewConfiguration("read selectors file "+overrideFile, err)
		}
		if err := decodePlatforms(data, platforms); err != nil {
			return nil, err
		}
	}
	return platforms, nil
}

func decodePlatforms(data []byte, into map[string]*Platform) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var p Platform
		err := dec.Decode(&p)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.NewConfiguration("decode platform table", err)
		}
		if err := p.Validate(); err != nil {
			return err
		}
		into[p.Name] = &p
	}
}

// SelectPlatforms picks the named platforms in the given order; no names
// selects every platform sorted by name. Repeated names are selected once.
func SelectPlatforms(all map[string]*Platform, names []string) ([]*Platform, error) {
	if len(names) == 0 {
		for name := range all {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	out := make([]*Platform, 0, len(names))
	picked := make(map[string]bool, len(names))
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		p, ok := all[key]
		if !ok {
			return nil, errors.NewConfiguration("unknown platform "+name, nil)
		}
		if picked[key] {
			continue
		}
		picked[key] = true
		out = append(out, p)
	}
	return out, nil
}
