package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"sjsage522/menucrawler/pkg/errors"
)

// Config represents the application configuration
type Config struct {
	// Crawl scope
	Platforms []string
	Cities    []string
	SaveDir   string

	// Browser configuration
	Headless        bool
	ChromeRemoteURL string
	UserAgent       string
	NavigateRate    float64

	// Crawler configuration
	Workers          int
	MerchantTimeout  time.Duration
	CrawlTimeout     time.Duration
	MaxAttempts      int
	MaxReconnects    int
	Interactive      bool
	CaptchaBlockTime time.Duration
	CrawlInterval    time.Duration
	SelectorsFile    string

	// Redis configuration
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// Cache configuration
	MemcacheAddr string
	CacheSize    int

	// Mirrors and logs
	SQLitePath   string
	ErrorLogFile string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	return &Config{
		Platforms:            getList("PLATFORMS", nil),
		Cities:               getList("CITIES", nil),
		SaveDir:              getEnv("SAVE_DIR", "data"),
		Headless:             getBool("HEADLESS", true),
		ChromeRemoteURL:      getEnv("CHROME_REMOTE_URL", ""),
		UserAgent:            getEnv("USER_AGENT", ""),
		NavigateRate:         getFloat("NAVIGATE_RATE", 1),
		Workers:              getInt("WORKERS", 2),
		MerchantTimeout:      getSeconds("MERCHANT_TIMEOUT_SECONDS", 180),
		CrawlTimeout:         getSeconds("CRAWL_TIMEOUT_SECONDS", 24*60*60),
		MaxAttempts:          getInt("MAX_ATTEMPTS", 3),
		MaxReconnects:        getInt("MAX_RECONNECTS", 2),
		Interactive:          getBool("INTERACTIVE", false),
		CaptchaBlockTime:     getSeconds("CAPTCHA_BLOCK_SECONDS", 600),
		CrawlInterval:        getSeconds("CRAWL_INTERVAL_SECONDS", 0),
		SelectorsFile:        getEnv("SELECTORS_FILE", ""),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisDB:              getInt("REDIS_DB", 0),
		RedisStream:          getEnv("REDIS_STREAM", "menus"),
		RedisStreamCount:     getInt("REDIS_STREAM_COUNT", 1),
		RedisStreamMaxLength: getInt("REDIS_STREAM_MAX_LENGTH", 10000),
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", ""),
		CacheSize:            getInt("CACHE_SIZE", 4096),
		SQLitePath:           getEnv("SQLITE_PATH", ""),
		ErrorLogFile:         getEnv("ERROR_LOG_FILE", "crawl_errors.log"),
		Environment:          getEnv("MENUCRAWLER_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration for values the crawler cannot run with
func (c *Config) Validate() error {
	switch {
	case c.SaveDir == "":
		return errors.NewConfiguration("SAVE_DIR must not be empty", nil)
	case c.Workers < 1:
		return errors.NewConfiguration("WORKERS must be at least 1", nil)
	case c.NavigateRate <= 0:
		return errors.NewConfiguration("NAVIGATE_RATE must be positive", nil)
	case c.MerchantTimeout <= 0:
		return errors.NewConfiguration("MERCHANT_TIMEOUT_SECONDS must be positive", nil)
	case c.CrawlTimeout < 0 || c.CrawlInterval < 0 || c.CaptchaBlockTime < 0:
		return errors.NewConfiguration("durations must not be negative", nil)
	case c.MaxAttempts < 1:
		return errors.NewConfiguration("MAX_ATTEMPTS must be at least 1", nil)
	case c.MaxReconnects < 0:
		return errors.NewConfiguration("MAX_RECONNECTS must not be negative", nil)
	case c.RedisAddr != "" && c.RedisStream == "":
		return errors.NewConfiguration("REDIS_STREAM is required when REDIS_ADDR is set", nil)
	case c.RedisStreamCount < 1:
		return errors.NewConfiguration("REDIS_STREAM_COUNT must be at least 1", nil)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return v
}

func getFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return v
}

func getSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getInt(key, defaultValue)) * time.Second
}

// getList splits a comma separated variable, dropping empty items
func getList(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
