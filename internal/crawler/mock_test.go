package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sjsage522/menucrawler/internal/menu"
	"sjsage522/menucrawler/services/cache"
)

// MockCacheService implements a simple in-memory cache for testing
type MockCacheService struct {
	mu    sync.Mutex
	cache map[string][]byte
}

func NewMockCacheService() *MockCacheService {
	return &MockCacheService{
		cache: make(map[string][]byte),
	}
}

func (m *MockCacheService) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.cache[key]; ok {
		return val, nil
	}
	return nil, cache.ErrCacheMiss
}

func (m *MockCacheService) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = value
	return nil
}

func (m *MockCacheService) Add(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cache[key]; ok {
		return cache.ErrNotStored
	}
	m.cache[key] = value
	return nil
}

func (m *MockCacheService) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, key)
	return nil
}

// MockLogger records errors instead of writing them to a file
type MockLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *MockLogger) LogError(source string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf("%s: %v", source, err))
}

func (l *MockLogger) LogInfo(format string, args ...interface{}) {}

func (l *MockLogger) Errors() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errors...)
}

// afterSink calls fn once n merchants were committed, to simulate a run
// that is interrupted or loses its browser part way through
type afterSink struct {
	Sink
	n  int
	fn func()

	mu        sync.Mutex
	committed int
}

func (s *afterSink) Commit(ctx context.Context, m *menu.Merchant) (bool, error) {
	ok, err := s.Sink.Commit(ctx, m)
	if err != nil {
		return ok, err
	}
	s.mu.Lock()
	s.committed++
	if s.committed == s.n {
		s.fn()
	}
	s.mu.Unlock()
	return ok, err
}

// mockOperator clears the challenge by calling solve
type mockOperator struct {
	mu    sync.Mutex
	calls int
	solve func()
	err   error
}

func (o *mockOperator) Resolve(ctx context.Context, platform, url string) error {
	o.mu.Lock()
	o.calls++
	o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	if o.solve != nil {
		o.solve()
	}
	return nil
}

func (o *mockOperator) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}
