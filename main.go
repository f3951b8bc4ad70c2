package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"sjsage522/menucrawler/config"
	"sjsage522/menucrawler/internal/crawler"
	"sjsage522/menucrawler/logger"
	"sjsage522/menucrawler/services/cache"
	"sjsage522/menucrawler/services/publisher"
	"sjsage522/menucrawler/services/storage"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()

	// Cancel the run on the first interrupt so sinks stop at a merchant boundary
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		logger.Fatal("%v", err)
	}
}

// Services holds all the initialized services
type Services struct {
	Cache     cache.CacheService
	Publisher publisher.Publisher
	SQLite    *storage.SQLiteMirror

	mu    sync.Mutex
	sinks []*storage.Sink
}

// Mirrors returns the secondary stores every sink copies records to
func (s *Services) Mirrors() []storage.Mirror {
	var mirrors []storage.Mirror
	if s.Publisher != nil {
		mirrors = append(mirrors, storage.NewPublisherMirror(s.Publisher))
	}
	if s.SQLite != nil {
		mirrors = append(mirrors, s.SQLite)
	}
	return mirrors
}

// OpenSink opens the sink of one platform under saveDir
func (s *Services) OpenSink(saveDir string) func(platform string) (crawler.Sink, error) {
	return func(platform string) (crawler.Sink, error) {
		sink, err := storage.Open(saveDir, platform, s.Mirrors()...)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.sinks = append(s.sinks, sink)
		s.mu.Unlock()
		return sink, nil
	}
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	s.mu.Lock()
	sinks := s.sinks
	s.sinks = nil
	s.mu.Unlock()

	for _, sink := range sinks {
		if err := sink.Close(); err != nil {
			logger.ForStorage().WithError(err).Warn().Str("dir", sink.Dir()).Msg("Failed to close sink")
		}
	}
	if s.SQLite != nil {
		s.SQLite.Close()
	}
	if s.Publisher != nil {
		s.Publisher.Close()
	}
}

// initializeServices initializes the cache and the optional mirrors
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	// In-flight claims must outlive a merchant; captcha pauses last longer
	ttl := cfg.MerchantTimeout + time.Minute
	if cfg.CaptchaBlockTime > ttl {
		ttl = cfg.CaptchaBlockTime
	}

	cacheLog := logger.ForCache()
	if cfg.MemcacheAddr != "" {
		memcache := cache.NewMemcacheService(cfg.MemcacheAddr)
		if err := memcache.Ping(); err != nil {
			cacheLog.WithError(err).Warn().Str("addr", cfg.MemcacheAddr).Msg("Memcache unreachable, using in-process cache")
			services.Cache = cache.NewLRUService(cfg.CacheSize, ttl)
		} else {
			services.Cache = memcache
			cacheLog.Info().Str("addr", cfg.MemcacheAddr).Msg("Connected to Memcache")
		}
	} else {
		services.Cache = cache.NewLRUService(cfg.CacheSize, ttl)
		cacheLog.Info().Int("size", cfg.CacheSize).Dur("ttl", ttl).Msg("Using in-process cache")
	}

	if cfg.RedisAddr != "" {
		redisPublisher := publisher.NewRedisPublisher(
			ctx,
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.RedisStream,
			cfg.RedisStreamCount,
			cfg.RedisStreamMaxLength,
		)
		if err := redisPublisher.Ping(); err != nil {
			redisPublisher.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		services.Publisher = redisPublisher

		logger.ForPublisher().Info().
			Str("addr", cfg.RedisAddr).
			Int("db", cfg.RedisDB).
			Str("stream", cfg.RedisStream).
			Msg("Connected to Redis")
	}

	if cfg.SQLitePath != "" {
		mirror, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			services.Cleanup()
			return nil, err
		}
		services.SQLite = mirror
		logger.Info("Mirroring records to SQLite at %s", cfg.SQLitePath)
	}

	return services, nil
}
