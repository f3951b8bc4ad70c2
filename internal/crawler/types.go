package crawler

import (
	"context"
	"time"

	"sjsage522/menucrawler/internal/menu"
	"sjsage522/menucrawler/pkg/errors"
)

// Crawler interface defines the contract for all crawler implementations
type Crawler interface {
	// Crawl walks every configured city once and returns the run summary
	Crawl(ctx context.Context) (*Summary, error)

	// GetName returns the crawler's name for logging and identification
	GetName() string

	// GetPlatform returns the platform the crawler extracts
	GetPlatform() string

	// Close releases the crawler's browser session
	Close() error
}

// Sink persists merchants and remembers which ones are done
type Sink interface {
	IsProcessed(canonicalURL string) bool
	Attempts(canonicalURL string) int
	Commit(ctx context.Context, m *menu.Merchant) (bool, error)
	RecordFailure(canonicalURL string, cause error) (int, error)
}

// Options tunes a crawl
type Options struct {
	Cities           []string
	Workers          int
	MerchantTimeout  time.Duration
	CrawlTimeout     time.Duration
	MaxAttempts      int
	MaxReconnects    int
	CaptchaBlockTime time.Duration
	NavigateRate     float64
}

// ErrorEntry is one failure listed in the run summary
type ErrorEntry struct {
	URL   string
	Type  errors.ErrorType
	Cause string
}

// Summary reports one crawl run of one platform
type Summary struct {
	RunID    string
	Platform string
	Cities   int
	Counts
	Errors   []ErrorEntry
	Started  time.Time
	Duration time.Duration
}

// target is a merchant queued for extraction
type target struct {
	City         string
	SourceURL    string
	CanonicalURL string
	Key          string
}
