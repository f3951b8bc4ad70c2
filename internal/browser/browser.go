package browser

import (
	"context"

	"sjsage522/menucrawler/internal/dom"
)

// Browser is a running browser session
type Browser interface {
	// OpenTab opens an isolated tab
	OpenTab(ctx context.Context) (Tab, error)

	// Tabs lists the ids of open page tabs
	Tabs(ctx context.Context) ([]string, error)

	// Ping fails with a disconnected error when the session is dead
	Ping(ctx context.Context) error

	// Close shuts the session down
	Close() error
}

// Tab is one browsing context
type Tab interface {
	ID() string

	// Navigate loads url and waits for the load event
	Navigate(ctx context.Context, url string) error

	// Evaluate runs script and decodes its result into res (nil discards it)
	Evaluate(ctx context.Context, script string, res any) error

	// Document snapshots the rendered DOM of the current page
	Document(ctx context.Context) (*dom.Document, error)

	// Close closes the tab; it is safe to call more than once
	Close() error
}

// Launcher starts a new browser session
type Launcher func(ctx context.Context) (Browser, error)
