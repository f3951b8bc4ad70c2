package storage

import (
	"context"
	"database/sql"
	"sync"

	"sjsage522/menucrawler/internal/menu"
	"sjsage522/menucrawler/pkg/errors"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS merchants (
	platform      TEXT NOT NULL,
	clean_url     TEXT NOT NULL,
	merchant_name TEXT NOT NULL,
	url           TEXT NOT NULL,
	address       TEXT NOT NULL,
	merchant_icon TEXT NOT NULL,
	city          TEXT NOT NULL,
	dish_count    INTEGER NOT NULL,
	record        TEXT NOT NULL,
	updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (platform, clean_url)
);`

const upsert = `
INSERT INTO merchants (platform, clean_url, merchant_name, url, address, merchant_icon, city, dish_count, record)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (platform, clean_url) DO UPDATE SET
	merchant_name = excluded.merchant_name,
	url           = excluded.url,
	address       = excluded.address,
	merchant_icon = excluded.merchant_icon,
	city          = excluded.city,
	dish_count    = excluded.dish_count,
	record        = excluded.record,
	updated_at    = CURRENT_TIMESTAMP;`

// SQLiteMirror keeps a queryable copy of the master index and records
type SQLiteMirror struct {
	db        *sql.DB
	closeOnce sync.Once
	closeErr  error
}

// OpenSQLite opens (or creates) the database at path
func OpenSQLite(path string) (*SQLiteMirror, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.NewStorage(path, "open sqlite", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.NewStorage(path, "create sqlite schema", err)
	}
	return &SQLiteMirror{db: db}, nil
}

// Mirror upserts the merchant
func (s *SQLiteMirror) Mirror(ctx context.Context, platform string, m *menu.Merchant, record []byte) error {
	e := m.IndexEntry()
	_, err := s.db.ExecContext(ctx, upsert,
		platform, e.CleanURL, e.Name, e.URL, e.Address, e.IconURL, m.City, m.Menu.DishCount(), string(record))
	if err != nil {
		return errors.NewStorage(m.CanonicalURL, "upsert sqlite row", err)
	}
	return nil
}

// Count returns the number of mirrored merchants for platform
func (s *SQLiteMirror) Count(ctx context.Context, platform string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM merchants WHERE platform = ?`, platform).Scan(&n)
	return n, err
}

// Close closes the database; later calls return the first result
func (s *SQLiteMirror) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.db.Close() })
	return s.closeErr
}
