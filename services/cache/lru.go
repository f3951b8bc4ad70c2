package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type lruEntry struct {
	value   []byte
	expires time.Time
}

// LRUService implements CacheService in process memory. It is used when
// no memcache server is configured.
type LRUService struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, lruEntry]
	now   func() time.Time
}

// NewLRUService creates an in-memory cache holding at most size keys.
// maxTTL caps every entry's lifetime.
func NewLRUService(size int, maxTTL time.Duration) *LRUService {
	if size <= 0 {
		size = 4096
	}
	return &LRUService{
		cache: expirable.NewLRU[string, lruEntry](size, nil, maxTTL),
		now:   time.Now,
	}
}

// Get retrieves a value from the cache
func (l *LRUService) Get(key string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.get(key)
}

func (l *LRUService) get(key string) ([]byte, error) {
	entry, ok := l.cache.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	if !entry.expires.IsZero() && !l.now().Before(entry.expires) {
		l.cache.Remove(key)
		return nil, ErrCacheMiss
	}
	return entry.value, nil
}

// Set stores a value; a zero expiration keeps it until evicted
func (l *LRUService) Set(key string, value []byte, expiration time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.set(key, value, expiration)
	return nil
}

func (l *LRUService) set(key string, value []byte, expiration time.Duration) {
	entry := lruEntry{value: append([]byte(nil), value...)}
	if expiration > 0 {
		entry.expires = l.now().Add(expiration)
	}
	l.cache.Add(key, entry)
}

// Add stores a value only if the key is absent
func (l *LRUService) Add(key string, value []byte, expiration time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.get(key); err == nil {
		return ErrNotStored
	}
	l.set(key, value, expiration)
	return nil
}

// Delete removes a value from the cache
func (l *LRUService) Delete(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache.Remove(key)
	return nil
}
