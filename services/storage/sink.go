// Package storage persists merchant records, the master index and the
// resumability ledgers for one platform.
package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"sjsage522/menucrawler/helpers"
	"sjsage522/menucrawler/internal/menu"
	"sjsage522/menucrawler/logger"
	"sjsage522/menucrawler/pkg/errors"
)

const (
	IndexFile     = "all_merchants.json"
	ProcessedFile = "processed_urls.txt"
	FailedFile    = "failed_urls.txt"
)

// Sink writes under root/<platform>. All mutations of the ledgers and the
// index happen under one lock; mirrors run after the lock is released.
type Sink struct {
	platform string
	dir      string
	mirrors  []Mirror
	log      *logger.Logger

	mu        sync.Mutex
	processed map[string]struct{}
	attempts  map[string]int
	index     []menu.IndexEntry
	indexPos  map[string]int
}

// Open creates the platform directory if needed and reloads the processed
// ledger, the failed ledger and the master index.
func Open(root, platform string, mirrors ...Mirror) (*Sink, error) {
	dir := filepath.Join(root, helpers.SanitizeFilename(platform))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewStorage(dir, "create save directory", err)
	}

	s := &Sink{
		platform:  platform,
		dir:       dir,
		mirrors:   mirrors,
		log:       logger.ForStorage().WithFields(logger.Fields{"platform": platform, "dir": dir}),
		processed: map[string]struct{}{},
		attempts:  map[string]int{},
		indexPos:  map[string]int{},
	}

	err := readLines(filepath.Join(dir, ProcessedFile), func(line string) {
		s.processed[line] = struct{}{}
	})
	if err != nil {
		return nil, errors.NewStorage(dir, "load processed ledger", err)
	}

	err = readLines(filepath.Join(dir, FailedFile), func(line string) {
		url, _, _ := strings.Cut(line, "\t")
		s.attempts[url]++
	})
	if err != nil {
		return nil, errors.NewStorage(dir, "load failed ledger", err)
	}

	if err := s.loadIndex(); err != nil {
		return nil, err
	}

	s.log.Info().
		Int("processed", len(s.processed)).
		Int("failed", len(s.attempts)).
		Int("indexed", len(s.index)).
		Msg("Sink opened")
	return s, nil
}

func (s *Sink) loadIndex() error {
	path := filepath.Join(s.dir, IndexFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.NewStorage(path, "read master index", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &s.index); err != nil {
		return errors.NewStorage(path, "decode master index", err)
	}
	for i, e := range s.index {
		s.indexPos[e.CleanURL] = i
	}
	return nil
}

// Dir returns the platform directory
func (s *Sink) Dir() string {
	return s.dir
}

// RecordPath returns where the record for m is written
func (s *Sink) RecordPath(m *menu.Merchant) string {
	city := helpers.SanitizeFilename(helpers.FormatCityName(m.City))
	return filepath.Join(s.dir, city, helpers.SanitizeFilename(m.Key)+".json")
}

// IsProcessed reports whether canonicalURL was committed by this or an
// earlier run.
func (s *Sink) IsProcessed(canonicalURL string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[canonicalURL]
	return ok
}

// Attempts returns how many failed attempts are recorded for canonicalURL
func (s *Sink) Attempts(canonicalURL string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[canonicalURL]
}

// ProcessedCount returns the size of the processed set
func (s *Sink) ProcessedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processed)
}

// Index returns a copy of the master index in commit order
func (s *Sink) Index() []menu.IndexEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]menu.IndexEntry(nil), s.index...)
}

// Commit persists m. It returns false without writing anything when the
// merchant was already committed. The record and the index are durable
// before the processed ledger names the merchant.
func (s *Sink) Commit(ctx context.Context, m *menu.Merchant) (bool, error) {
	if m.CanonicalURL == "" || m.Key == "" {
		return false, errors.NewValidation(m.SourceURL, "merchant has no canonical url")
	}

	record, committed, err := s.commit(m)
	if err != nil || !committed {
		return committed, err
	}

	for _, mirror := range s.mirrors {
		if err := mirror.Mirror(ctx, s.platform, m, record); err != nil {
			s.log.Warn().Err(err).Str("url", m.CanonicalURL).Msg("Mirror failed")
		}
	}
	return true, nil
}

func (s *Sink) commit(m *menu.Merchant) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.processed[m.CanonicalURL]; ok {
		return nil, false, nil
	}

	record, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, false, errors.NewStorage(m.CanonicalURL, "encode record", err)
	}
	path := s.RecordPath(m)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, false, errors.NewStorage(path, "create city directory", err)
	}
	if err := writeAtomic(path, record); err != nil {
		return nil, false, errors.NewStorage(path, "write record", err)
	}

	entry := m.IndexEntry()
	index := append([]menu.IndexEntry(nil), s.index...)
	pos, replaced := s.indexPos[entry.CleanURL]
	if replaced {
		index[pos] = entry
	} else {
		pos = len(index)
		index = append(index, entry)
	}
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return nil, false, errors.NewStorage(m.CanonicalURL, "encode master index", err)
	}
	indexPath := filepath.Join(s.dir, IndexFile)
	if err := writeAtomic(indexPath, data); err != nil {
		return nil, false, errors.NewStorage(indexPath, "write master index", err)
	}
	s.index = index
	s.indexPos[entry.CleanURL] = pos

	ledger := filepath.Join(s.dir, ProcessedFile)
	if err := appendLine(ledger, m.CanonicalURL); err != nil {
		return nil, false, errors.NewStorage(ledger, "append processed ledger", err)
	}
	s.processed[m.CanonicalURL] = struct{}{}

	s.log.Debug().Str("url", m.CanonicalURL).Str("path", path).Msg("Merchant committed")
	return record, true, nil
}

// RecordFailure appends canonicalURL and its cause to the failed ledger and
// returns the new attempt count.
func (s *Sink) RecordFailure(canonicalURL string, cause error) (int, error) {
	msg := "unknown error"
	if cause != nil {
		msg = strings.Join(strings.Fields(cause.Error()), " ")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ledger := filepath.Join(s.dir, FailedFile)
	if err := appendLine(ledger, canonicalURL+"\t"+msg); err != nil {
		return s.attempts[canonicalURL], errors.NewStorage(ledger, "append failed ledger", err)
	}
	s.attempts[canonicalURL]++
	return s.attempts[canonicalURL], nil
}

// Close closes every mirror
func (s *Sink) Close() error {
	var first error
	for _, mirror := range s.mirrors {
		if err := mirror.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func readLines(path string, fn func(line string)) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			fn(line)
		}
	}
	return scanner.Err()
}

// writeAtomic replaces path with data through a synced temp file in the
// same directory.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer os.Remove(name)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(name, path)
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
