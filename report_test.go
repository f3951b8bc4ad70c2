package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sjsage522/menucrawler/config"
	"sjsage522/menucrawler/internal/crawler"
	"sjsage522/menucrawler/internal/menu"
	"sjsage522/menucrawler/pkg/errors"
)

func TestRenderSummariesListsFailures(t *testing.T) {
	var out bytes.Buffer
	renderSummaries(&out, []*crawler.Summary{
		{
			Platform: "ubereats",
			Cities:   2,
			Counts:   crawler.Counts{Discovered: 12, Processed: 10, Skipped: 3, Failed: 2},
			Duration: 90 * time.Second,
			Errors: []crawler.ErrorEntry{
				{URL: "https://www.ubereats.com/store/a/1", Type: errors.ErrorTypeCaptcha, Cause: "captcha challenge in non-interactive run"},
			},
		},
	})

	s := out.String()
	assert.Contains(t, s, "ubereats")
	assert.Contains(t, s, "1m30s")
	assert.Contains(t, s, "https://www.ubereats.com/store/a/1")
	assert.Contains(t, s, "captcha")
}

func TestRenderSummariesWithoutFailures(t *testing.T) {
	var out bytes.Buffer
	renderSummaries(&out, []*crawler.Summary{{Platform: "fantuan"}})
	assert.Contains(t, out.String(), "fantuan")
	assert.NotContains(t, out.String(), "CAUSE")
}

func TestRenderPlatformsFromBuiltins(t *testing.T) {
	all, err := config.LoadPlatforms("")
	assert.NoError(t, err)
	platforms, err := config.SelectPlatforms(all, nil)
	assert.NoError(t, err)

	var out bytes.Buffer
	renderPlatforms(&out, platforms)
	for _, name := range []string{"ubereats", "skipthedishes", "doordash", "fantuan"} {
		assert.Contains(t, out.String(), name)
	}
}

func TestRenderIndex(t *testing.T) {
	var out bytes.Buffer
	renderIndex(&out, []menu.IndexEntry{
		{Name: "Noodle Bar", Address: "1 Main St", CleanURL: "https://www.skipthedishes.com/noodle-bar"},
	}, 1)
	assert.Contains(t, out.String(), "Noodle Bar")
	assert.Contains(t, out.String(), "1 indexed")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
