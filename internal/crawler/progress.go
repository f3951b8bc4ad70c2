package crawler

import (
	"sync"

	"sjsage522/menucrawler/logger"
)

// Counts is a snapshot of a run's progress
type Counts struct {
	Discovered int
	Processed  int
	Skipped    int
	Failed     int
}

// Done is the number of discovered merchants that reached an outcome
func (c Counts) Done() int {
	return c.Processed + c.Failed
}

// Fraction is the completed share of discovered merchants
func (c Counts) Fraction() float64 {
	if c.Discovered == 0 {
		return 0
	}
	return float64(c.Done()) / float64(c.Discovered)
}

// Progress counts merchants for reporting. It never affects control flow.
type Progress struct {
	mu     sync.Mutex
	counts Counts
	log    *logger.Logger
}

// NewProgress creates a progress counter logging through log
func NewProgress(log *logger.Logger) *Progress {
	return &Progress{log: log}
}

// Discovered counts a merchant queued for extraction
func (p *Progress) Discovered() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts.Discovered++
}

// Skipped counts a merchant that was not extracted (already done, claimed
// elsewhere, or out of attempts)
func (p *Progress) Skipped() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts.Skipped++
}

// Processed counts a committed merchant
func (p *Progress) Processed(url string) {
	p.finish(url, func(c *Counts) { c.Processed++ })
}

// Failed counts a merchant whose extraction failed
func (p *Progress) Failed(url string) {
	p.finish(url, func(c *Counts) { c.Failed++ })
}

func (p *Progress) finish(url string, apply func(*Counts)) {
	p.mu.Lock()
	apply(&p.counts)
	c := p.counts
	p.mu.Unlock()

	p.log.Info().
		Str("url", url).
		Int("done", c.Done()).
		Int("discovered", c.Discovered).
		Float64("percent", c.Fraction()*100).
		Msg("Merchant finished")
}

// Snapshot returns the current counts
func (p *Progress) Snapshot() Counts {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts
}
