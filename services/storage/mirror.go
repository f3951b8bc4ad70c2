package storage

import (
	"context"

	"sjsage522/menucrawler/internal/menu"
	"sjsage522/menucrawler/pkg/errors"
	"sjsage522/menucrawler/services/publisher"
)

// Mirror receives every record after it has been committed to disk
type Mirror interface {
	Mirror(ctx context.Context, platform string, m *menu.Merchant, record []byte) error
	Close() error
}

// PublisherMirror forwards committed records to a stream publisher
type PublisherMirror struct {
	pub publisher.Publisher
}

// NewPublisherMirror wraps pub
func NewPublisherMirror(pub publisher.Publisher) *PublisherMirror {
	return &PublisherMirror{pub: pub}
}

// Mirror publishes the record under the platform name
func (p *PublisherMirror) Mirror(ctx context.Context, platform string, m *menu.Merchant, record []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.pub.Publish(platform, record); err != nil {
		return errors.NewPublisher(m.CanonicalURL, "publish record", err)
	}
	return nil
}

// Close is a no-op; the publisher is owned by the caller and trimmed and
// closed by the worker.
func (p *PublisherMirror) Close() error {
	return nil
}
