package worker

import (
	"context"
	stderrors "errors"
	"reflect"
	"sync"
	"time"

	"sjsage522/menucrawler/helpers"
	"sjsage522/menucrawler/internal/crawler"
	"sjsage522/menucrawler/logger"
	"sjsage522/menucrawler/services/publisher"
)

// Worker runs every platform crawler and repeats on an interval
type Worker struct {
	ctx           context.Context
	crawlers      []crawler.Crawler
	publisher     publisher.Publisher
	logger        helpers.LoggerInterface
	crawlInterval time.Duration
	log           *logger.Logger

	// OnCycle receives the summaries of every finished cycle
	OnCycle func(summaries []*crawler.Summary)
}

// NewWorker creates a new worker. pub may be nil when no stream mirror is
// configured. A zero crawlInterval runs a single cycle.
func NewWorker(
	ctx context.Context,
	crawlers []crawler.Crawler,
	pub publisher.Publisher,
	errLog helpers.LoggerInterface,
	crawlInterval time.Duration,
) *Worker {
	return &Worker{
		ctx:           ctx,
		crawlers:      crawlers,
		publisher:     pub,
		logger:        errLog,
		crawlInterval: crawlInterval,
		log:           logger.ForWorker(),
	}
}

// Start runs crawl cycles until the context ends, or once when no interval
// is set.
func (w *Worker) Start() error {
	for {
		start := time.Now()
		summaries := w.runCrawlers()
		w.log.Info().
			Dur("elapsed", time.Since(start)).
			Int("crawlers", len(summaries)).
			Msg("Crawl cycle finished")
		if w.OnCycle != nil {
			w.OnCycle(summaries)
		}

		if w.crawlInterval <= 0 {
			return w.ctx.Err()
		}

		timer := time.NewTimer(w.crawlInterval)
		select {
		case <-w.ctx.Done():
			timer.Stop()
			return w.ctx.Err()
		case <-timer.C:
		}
	}
}

// runCrawlers runs all the crawlers in parallel and then trims the streams
func (w *Worker) runCrawlers() []*crawler.Summary {
	summaries := make([]*crawler.Summary, len(w.crawlers))

	var wg sync.WaitGroup
	for i, c := range w.crawlers {
		wg.Add(1)
		go func(i int, c crawler.Crawler) {
			defer wg.Done()
			summaries[i] = w.crawl(c)
		}(i, c)
	}
	wg.Wait()

	// Trim all streams after crawling
	if w.publisher != nil {
		if err := w.publisher.TrimStreams(); err != nil {
			w.logger.LogError("StreamTrimming", err)
		}
	}

	out := summaries[:0]
	for _, s := range summaries {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// crawl runs one crawler and logs its outcome
func (w *Worker) crawl(c crawler.Crawler) *crawler.Summary {
	crawlerName := c.GetName()
	if crawlerName == "" {
		crawlerName = reflect.TypeOf(c).Elem().Name()
	}

	summary, err := c.Crawl(w.ctx)
	if err != nil && !stderrors.Is(err, context.Canceled) {
		w.logger.LogError(crawlerName, err)
	}
	if summary == nil {
		return nil
	}

	w.logger.LogInfo("%s: %d processed, %d failed, %d skipped in %s",
		c.GetPlatform(), summary.Processed, summary.Failed, summary.Skipped, summary.Duration.Round(time.Second))
	return summary
}
