package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"sjsage522/menucrawler/helpers"
	"sjsage522/menucrawler/internal/crawler"
	"sjsage522/menucrawler/services/publisher"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockCrawler implements the crawler.Crawler interface for testing
type MockCrawler struct {
	name     string
	platform string
	summary  *crawler.Summary
	crawlErr error

	mu     sync.Mutex
	calls  int
	closed bool
}

// Ensure MockCrawler implements crawler.Crawler
var _ crawler.Crawler = (*MockCrawler)(nil)

func (m *MockCrawler) Crawl(ctx context.Context) (*crawler.Summary, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.summary, m.crawlErr
}

func (m *MockCrawler) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockCrawler) GetName() string {
	return m.name
}

func (m *MockCrawler) GetPlatform() string {
	return m.platform
}

func (m *MockCrawler) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// MockPublisher implements the publisher.Publisher interface for testing
type MockPublisher struct {
	mu       sync.Mutex
	messages map[string][]byte
	trims    int
	trimErr  error
}

// Ensure MockPublisher implements publisher.Publisher
var _ publisher.Publisher = (*MockPublisher)(nil)

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		messages: make(map[string][]byte),
	}
}

func (m *MockPublisher) Publish(key string, message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[key] = append([]byte(nil), message...)
	return nil
}

func (m *MockPublisher) TrimStreams() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trims++
	return m.trimErr
}

func (m *MockPublisher) Close() error {
	return nil
}

// MockLogger implements the helpers.LoggerInterface for testing
type MockLogger struct {
	mu     sync.Mutex
	errors []string
	infos  []string
}

// Ensure MockLogger implements helpers.LoggerInterface
var _ helpers.LoggerInterface = (*MockLogger)(nil)

func NewMockLogger() *MockLogger {
	return &MockLogger{
		errors: make([]string, 0),
		infos:  make([]string, 0),
	}
}

func (m *MockLogger) LogError(crawlerName string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, crawlerName+": "+err.Error())
}

func (m *MockLogger) LogInfo(format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, fmt.Sprintf(format, args...))
}

func summaryFor(platform string, processed, failed int) *crawler.Summary {
	return &crawler.Summary{
		Platform: platform,
		Counts:   crawler.Counts{Discovered: processed + failed, Processed: processed, Failed: failed},
		Duration: 2 * time.Second,
	}
}

// TestWorkerRunCrawlers tests the runCrawlers method
func TestWorkerRunCrawlers(t *testing.T) {
	mockLogger := NewMockLogger()
	mockPublisher := NewMockPublisher()

	crawler1 := &MockCrawler{name: "TestCrawler1", platform: "ubereats", summary: summaryFor("ubereats", 4, 1)}
	crawler2 := &MockCrawler{name: "TestCrawler2", platform: "skipthedishes", summary: summaryFor("skipthedishes", 2, 0)}

	w := NewWorker(
		context.Background(),
		[]crawler.Crawler{crawler1, crawler2},
		mockPublisher,
		mockLogger,
		0,
	)

	summaries := w.runCrawlers()

	require.Len(t, summaries, 2)
	assert.Equal(t, "ubereats", summaries[0].Platform)
	assert.Equal(t, "skipthedishes", summaries[1].Platform)
	assert.Equal(t, 1, mockPublisher.trims, "Streams should be trimmed once per cycle")
	assert.Empty(t, mockLogger.errors, "No errors should have been logged")
	assert.Len(t, mockLogger.infos, 2)
	assert.Contains(t, mockLogger.infos[0]+mockLogger.infos[1], "ubereats: 4 processed, 1 failed")
}

// TestWorkerWithError tests error handling in the worker
func TestWorkerWithError(t *testing.T) {
	mockLogger := NewMockLogger()

	mockCrawler := &MockCrawler{
		name:     "ErrorCrawler",
		platform: "doordash",
		crawlErr: errors.New("test error"),
	}

	w := NewWorker(context.Background(), []crawler.Crawler{mockCrawler}, nil, mockLogger, 0)
	summaries := w.runCrawlers()

	assert.Empty(t, summaries)
	require.NotEmpty(t, mockLogger.errors, "An error should have been logged")
	assert.Contains(t, mockLogger.errors[0], "ErrorCrawler", "Error should mention the crawler name")
	assert.Contains(t, mockLogger.errors[0], "test error", "Error should contain the error message")
}

func TestWorkerIgnoresCancellation(t *testing.T) {
	mockLogger := NewMockLogger()
	mockCrawler := &MockCrawler{
		name:     "Interrupted",
		platform: "ubereats",
		summary:  summaryFor("ubereats", 3, 0),
		crawlErr: context.Canceled,
	}

	w := NewWorker(context.Background(), []crawler.Crawler{mockCrawler}, nil, mockLogger, 0)
	summaries := w.runCrawlers()

	require.Len(t, summaries, 1)
	assert.Empty(t, mockLogger.errors)
}

func TestWorkerLogsTrimFailure(t *testing.T) {
	mockLogger := NewMockLogger()
	mockPublisher := NewMockPublisher()
	mockPublisher.trimErr = errors.New("redis down")

	w := NewWorker(context.Background(), nil, mockPublisher, mockLogger, 0)
	w.runCrawlers()

	require.Len(t, mockLogger.errors, 1)
	assert.Contains(t, mockLogger.errors[0], "StreamTrimming")
}

func TestWorkerStartRunsOnceWithoutInterval(t *testing.T) {
	mockCrawler := &MockCrawler{name: "Once", platform: "fantuan", summary: summaryFor("fantuan", 1, 0)}
	w := NewWorker(context.Background(), []crawler.Crawler{mockCrawler}, nil, NewMockLogger(), 0)

	var cycles int
	w.OnCycle = func(summaries []*crawler.Summary) {
		cycles++
		assert.Len(t, summaries, 1)
	}

	require.NoError(t, w.Start())
	assert.Equal(t, 1, cycles)
	assert.Equal(t, 1, mockCrawler.Calls())
}

func TestWorkerStartRepeatsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mockCrawler := &MockCrawler{name: "Loop", platform: "skipthedishes", summary: summaryFor("skipthedishes", 1, 0)}
	w := NewWorker(ctx, []crawler.Crawler{mockCrawler}, nil, NewMockLogger(), 10*time.Millisecond)

	var cycles int
	w.OnCycle = func([]*crawler.Summary) {
		cycles++
		if cycles == 3 {
			cancel()
		}
	}

	err := w.Start()
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, cycles)
	assert.Equal(t, 3, mockCrawler.Calls())
}
