package crawler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"sjsage522/menucrawler/internal/browser"
	"sjsage522/menucrawler/logger"
	"sjsage522/menucrawler/pkg/errors"
)

// Controller owns the browser session of one crawler. Every session gets a
// generation number; a disconnect seen on generation g discards that
// session once, however many workers report it.
type Controller struct {
	launch  browser.Launcher
	limiter *rate.Limiter
	log     *logger.Logger

	mu         sync.Mutex
	current    browser.Browser
	gen        int
	primary    browser.Tab
	primaryGen int
}

// NewController creates a controller that starts sessions with launch and
// allows at most navigateRate navigations per second.
func NewController(launch browser.Launcher, navigateRate float64, log *logger.Logger) *Controller {
	limit := rate.Inf
	if navigateRate > 0 {
		limit = rate.Limit(navigateRate)
	}
	return &Controller{
		launch:  launch,
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
	}
}

// session returns the live session, launching one if there is none
func (c *Controller) session(ctx context.Context) (browser.Browser, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		return c.current, c.gen, nil
	}

	b, err := c.launch(ctx)
	if err != nil {
		return nil, c.gen, err
	}
	c.current = b
	c.gen++
	c.log.Info().Int("generation", c.gen).Msg("Browser session started")
	return b, c.gen, nil
}

// Generation returns the generation of the current session
func (c *Controller) Generation() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Reconnect discards the session of generation gen. The next operation
// starts a fresh one. Calls for an already replaced generation do nothing.
func (c *Controller) Reconnect(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || gen != c.gen {
		return
	}
	c.log.Warn().Int("generation", gen).Msg("Browser session lost, reconnecting")
	c.discard()
}

// discard must be called with mu held
func (c *Controller) discard() {
	if c.primary != nil {
		c.primary.Close()
		c.primary = nil
	}
	if c.current != nil {
		c.current.Close()
		c.current = nil
	}
}

// Alive checks the current session and reconnects when it is dead
func (c *Controller) Alive(ctx context.Context) error {
	b, gen, err := c.session(ctx)
	if err != nil {
		return err
	}
	if err := b.Ping(ctx); err != nil {
		if errors.IsDisconnected(err) {
			c.Reconnect(gen)
			_, _, err = c.session(ctx)
		}
		return err
	}
	return nil
}

// Primary returns the long-lived listing tab of the current session and
// the session's generation.
func (c *Controller) Primary(ctx context.Context) (browser.Tab, int, error) {
	b, gen, err := c.session(ctx)
	if err != nil {
		return nil, gen, err
	}

	c.mu.Lock()
	if c.primary != nil && c.primaryGen == gen {
		tab := c.primary
		c.mu.Unlock()
		return tab, gen, nil
	}
	c.mu.Unlock()

	tab, err := b.OpenTab(ctx)
	if err != nil {
		if errors.IsDisconnected(err) {
			c.Reconnect(gen)
		}
		return nil, gen, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		tab.Close()
		return nil, gen, errors.NewDisconnected("", "session replaced while opening listing tab", nil)
	}
	if c.primary != nil {
		c.primary.Close()
	}
	c.primary, c.primaryGen = tab, gen
	return tab, gen, nil
}

// WithTab runs fn in a fresh tab and closes the tab on every exit path,
// panics included. A disconnected error from the tab retires its session.
func (c *Controller) WithTab(ctx context.Context, fn func(ctx context.Context, tab browser.Tab) error) error {
	b, gen, err := c.session(ctx)
	if err != nil {
		return err
	}

	tab, err := b.OpenTab(ctx)
	if err != nil {
		if errors.IsDisconnected(err) {
			c.Reconnect(gen)
		}
		return err
	}
	defer tab.Close()

	err = fn(ctx, tab)
	if errors.IsDisconnected(err) {
		c.Reconnect(gen)
	}
	return err
}

// Navigate loads url in tab, waiting for the navigation rate limit first
func (c *Controller) Navigate(ctx context.Context, tab browser.Tab, url string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.NewNetwork(url, "navigation rate limit", err)
	}
	return tab.Navigate(ctx, url)
}

// Close ends the current session
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discard()
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
