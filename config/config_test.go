package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"sjsage522/menucrawler/internal/dom"
	"sjsage522/menucrawler/internal/extract"
	"sjsage522/menucrawler/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// Test with default values
	config := LoadConfig()
	assert.Equal(t, "data", config.SaveDir)
	assert.Empty(t, config.Platforms)
	assert.Equal(t, 2, config.Workers)
	assert.True(t, config.Headless)
	assert.Equal(t, 180*time.Second, config.MerchantTimeout)
	assert.Equal(t, 24*time.Hour, config.CrawlTimeout)
	assert.Equal(t, 3, config.MaxAttempts)
	assert.Equal(t, time.Duration(0), config.CrawlInterval)
	assert.Equal(t, "", config.RedisAddr)
	assert.Equal(t, 1, config.RedisStreamCount)
	assert.Equal(t, "", config.MemcacheAddr)
	assert.NoError(t, config.Validate())

	// Test with environment variables
	t.Setenv("PLATFORMS", "ubereats, doordash,,")
	t.Setenv("CITIES", "Vancouver,North Vancouver")
	t.Setenv("WORKERS", "4")
	t.Setenv("HEADLESS", "false")
	t.Setenv("NAVIGATE_RATE", "0.5")
	t.Setenv("REDIS_ADDR", "redis.example.com:6379")
	t.Setenv("REDIS_DB", "1")
	t.Setenv("MEMCACHE_ADDR", "memcache.example.com:11211")
	t.Setenv("CRAWL_INTERVAL_SECONDS", "30")
	t.Setenv("MAX_ATTEMPTS", "not-a-number")

	config = LoadConfig()
	assert.Equal(t, []string{"ubereats", "doordash"}, config.Platforms)
	assert.Equal(t, []string{"Vancouver", "North Vancouver"}, config.Cities)
	assert.Equal(t, 4, config.Workers)
	assert.False(t, config.Headless)
	assert.Equal(t, 0.5, config.NavigateRate)
	assert.Equal(t, "redis.example.com:6379", config.RedisAddr)
	assert.Equal(t, 1, config.RedisDB)
	assert.Equal(t, "memcache.example.com:11211", config.MemcacheAddr)
	assert.Equal(t, 30*time.Second, config.CrawlInterval)
	assert.Equal(t, 3, config.MaxAttempts)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"workers":     func(c *Config) { c.Workers = 0 },
		"save dir":    func(c *Config) { c.SaveDir = "" },
		"rate":        func(c *Config) { c.NavigateRate = 0 },
		"attempts":    func(c *Config) { c.MaxAttempts = 0 },
		"reconnects":  func(c *Config) { c.MaxReconnects = -1 },
		"redis topic": func(c *Config) { c.RedisAddr = "localhost:6379"; c.RedisStream = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := LoadConfig()
			mutate(c)
			err := c.Validate()
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration), "got %v", err)
		})
	}
}

func TestBuiltinPlatforms(t *testing.T) {
	all, err := LoadPlatforms("")
	require.NoError(t, err)
	for _, name := range []string{"ubereats", "skipthedishes", "doordash", "fantuan"} {
		require.Contains(t, all, name)
	}

	uber := all["ubereats"]
	assert.Equal(t, "https://www.ubereats.com/ca/category/north-vancouver-bc/", uber.ListingURL("North Vancouver"))
	assert.Equal(t, dom.X(`//*[@id="main-content"]/div[4]/div/div/a`), uber.Listing.Links[0])
	assert.Equal(t, 100*time.Millisecond, uber.Listing.Scroll.Pause)
	assert.Equal(t, 5, uber.Listing.Scroll.StableSteps)
	require.NotNil(t, uber.Categories)
	assert.Equal(t, []string{"Buy 1, Get 1 Free", "Offers"}, uber.Merchant.Menu.Exclude)
	assert.Equal(t, extract.FallbackUnresolved, uber.Merchant.PriceFailure)

	skip := all["skipthedishes"]
	assert.Nil(t, skip.Categories)
	assert.Equal(t, extract.FallbackSoldOut, skip.Merchant.PriceFailure)
	assert.Equal(t, time.Second, skip.Listing.Scroll.Pause)

	door := all["doordash"]
	require.NotNil(t, door.Merchant.Structured)
	assert.Equal(t, dom.C(`script[type="application/ld+json"]`), door.Merchant.Structured.Blocks[0])
}

func TestSkipTheDishesMenuKeepsCategoriesApart(t *testing.T) {
	all, err := LoadPlatforms("")
	require.NoError(t, err)
	skip := all["skipthedishes"]

	page := `<html><body><div id="root">
		<div id="c1"><h2 class="sc-8992fe5b-3 ljZFdy">Mains</h2>
			<div class="sc-fUnMCh sc-87c0b655-0"><h3 class="sc-87c0b655-1 jscDUi">Burger</h3><h4 class="sc-87c0b655-3 fXBchI">$9.00</h4></div>
		</div>
		<div id="c2"><h2 class="sc-8992fe5b-3 ljZFdy">Drinks</h2>
			<div class="sc-fUnMCh sc-87c0b655-0"><h3 class="sc-87c0b655-1 jscDUi">Cola</h3><h4 class="sc-87c0b655-3 fXBchI">$2.00</h4></div>
		</div>
	</div></body></html>`
	doc, err := dom.ParseString(page, "https://www.skipthedishes.com/burger-place")
	require.NoError(t, err)

	m, err := extract.New(skip.Merchant.PriceFailure).Menu(doc, skip.Merchant.Menu)
	require.NoError(t, err)
	require.Equal(t, []string{"Mains", "Drinks"}, m.Names())

	mains, _ := m.Category("Mains")
	require.Len(t, mains.Dishes, 1)
	assert.Equal(t, "Burger", mains.Dishes[0].Name)
	drinks, _ := m.Category("Drinks")
	require.Len(t, drinks.Dishes, 1)
	assert.Equal(t, "Cola", drinks.Dishes[0].Name)
}

func TestLoadPlatformsOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: ubereats
base_url: https://www.ubereats.com
city_url: https://www.ubereats.com/us/city/{city}
canonicalizer: ubereats
listing:
  links:
    - css: 'a.store'
merchant:
  menu:
    items:
      - css: 'li.item'
---
name: testsite
base_url: https://test.example
city_url: https://test.example/{city}
canonicalizer: path
listing:
  links:
    - xpath: '//a'
merchant:
  price_failure: sold_out
  menu:
    items:
      - css: 'li'
`), 0o644))

	all, err := LoadPlatforms(path)
	require.NoError(t, err)
	assert.Equal(t, "https://www.ubereats.com/us/city/vancouver", all["ubereats"].ListingURL("Vancouver"))
	assert.Nil(t, all["ubereats"].Categories)
	assert.Contains(t, all, "testsite")
	assert.Contains(t, all, "doordash")

	selected, err := SelectPlatforms(all, []string{"testsite", "UberEats"})
	require.NoError(t, err)
	assert.Equal(t, "testsite", selected[0].Name)
	assert.Equal(t, "ubereats", selected[1].Name)

	_, err = SelectPlatforms(all, []string{"grubhub"})
	assert.Error(t, err)

	// Each platform owns one save directory, so repeats are selected once
	selected, err = SelectPlatforms(all, []string{"ubereats", "UberEats", "testsite", "ubereats"})
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, "ubereats", selected[0].Name)
	assert.Equal(t, "testsite", selected[1].Name)
}

func TestLoadPlatformsRejectsInvalidTables(t *testing.T) {
	cases := map[string]string{
		"no template": "name: x\nbase_url: https://x\ncity_url: https://x/\nlisting:\n  links:\n    - css: a\nmerchant:\n  menu:\n    items:\n      - css: li\n",
		"no links":    "name: x\nbase_url: https://x\ncity_url: https://x/{city}\nmerchant:\n  menu:\n    items:\n      - css: li\n",
		"bad policy":  "name: x\nbase_url: https://x\ncity_url: https://x/{city}\nlisting:\n  links:\n    - css: a\nmerchant:\n  price_failure: maybe\n  menu:\n    items:\n      - css: li\n",
		"bad locator": "name: x\nbase_url: https://x\ncity_url: https://x/{city}\nlisting:\n  links:\n    - regex: a\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "selectors.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := LoadPlatforms(path)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration), "got %v", err)
		})
	}
}
