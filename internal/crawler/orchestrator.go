package crawler

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sjsage522/menucrawler/config"
	"sjsage522/menucrawler/helpers"
	"sjsage522/menucrawler/internal/browser"
	"sjsage522/menucrawler/internal/dom"
	"sjsage522/menucrawler/internal/extract"
	"sjsage522/menucrawler/internal/loader"
	"sjsage522/menucrawler/internal/menu"
	"sjsage522/menucrawler/logger"
	"sjsage522/menucrawler/pkg/errors"
	"sjsage522/menucrawler/services/cache"
)

// PlatformCrawler walks one platform's cities, listings and merchants
type PlatformCrawler struct {
	platform  *config.Platform
	base      *url.URL
	canon     Canonicalizer
	ctrl      *Controller
	sink      Sink
	cache     cache.CacheService
	extractor *extract.Extractor
	operator  Operator
	errLog    helpers.LoggerInterface
	opts      Options
	log       *logger.Logger
}

// NewPlatformCrawler wires a crawler for p. A nil operator makes captchas
// fail the page and pause the platform.
func NewPlatformCrawler(
	p *config.Platform,
	launch browser.Launcher,
	sink Sink,
	cacheSvc cache.CacheService,
	operator Operator,
	errLog helpers.LoggerInterface,
	opts Options,
) (*PlatformCrawler, error) {
	base, err := url.Parse(p.BaseURL)
	if err != nil {
		return nil, errors.NewConfiguration("platform "+p.Name+": bad base_url", err)
	}
	canon, err := CanonicalizerFor(p.Canonicalizer)
	if err != nil {
		return nil, errors.NewConfiguration("platform "+p.Name, err)
	}
	policy, err := extract.ParseFailurePolicy(string(p.Merchant.PriceFailure))
	if err != nil {
		return nil, errors.NewConfiguration("platform "+p.Name, err)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if len(opts.Cities) == 0 {
		opts.Cities = p.Cities
	}

	log := logger.ForCrawler(p.Name)
	return &PlatformCrawler{
		platform:  p,
		base:      base,
		canon:     canon,
		ctrl:      NewController(launch, opts.NavigateRate, log),
		sink:      sink,
		cache:     cacheSvc,
		extractor: extract.New(policy),
		operator:  operator,
		errLog:    errLog,
		opts:      opts,
		log:       log,
	}, nil
}

// GetName implements Crawler
func (c *PlatformCrawler) GetName() string {
	return "PlatformCrawler(" + c.platform.Name + ")"
}

// GetPlatform implements Crawler
func (c *PlatformCrawler) GetPlatform() string {
	return c.platform.Name
}

// Close implements Crawler
func (c *PlatformCrawler) Close() error {
	return c.ctrl.Close()
}

// run holds the state of one Crawl call
type run struct {
	*PlatformCrawler
	id       string
	progress *Progress

	mu     sync.Mutex
	seen   map[string]struct{}
	errors []ErrorEntry
}

// Crawl implements Crawler. City setup failures are recorded and the next
// city is tried; merchant failures never leave their merchant.
func (c *PlatformCrawler) Crawl(ctx context.Context) (*Summary, error) {
	r := &run{
		PlatformCrawler: c,
		id:              uuid.NewString(),
		progress:        NewProgress(c.log),
		seen:            map[string]struct{}{},
	}
	started := time.Now()

	if c.opts.CrawlTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.CrawlTimeout)
		defer cancel()
	}

	c.log.Info().
		Str("run_id", r.id).
		Strs("cities", c.opts.Cities).
		Int("workers", c.opts.Workers).
		Msg("Crawl started")

	for i, city := range c.opts.Cities {
		if ctx.Err() != nil {
			break
		}
		c.log.Info().Str("city", city).Msgf("Processing city %d/%d", i+1, len(c.opts.Cities))
		if err := r.city(ctx, city); err != nil {
			if ctx.Err() != nil {
				break
			}
			r.record(c.platform.ListingURL(city), err)
			c.errLog.LogError(c.platform.ListingURL(city), err)
			c.log.Error().Err(err).Str("city", city).Msg("City aborted")
		}
	}

	summary := &Summary{
		RunID:    r.id,
		Platform: c.platform.Name,
		Cities:   len(c.opts.Cities),
		Counts:   r.progress.Snapshot(),
		Errors:   r.errorList(),
		Started:  started,
		Duration: time.Since(started),
	}
	c.log.Info().
		Str("run_id", r.id).
		Int("processed", summary.Processed).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Dur("duration", summary.Duration).
		Msg("Crawl finished")

	return summary, ctx.Err()
}

// city discovers the city's listings and extracts their merchants with a
// bounded pool of workers.
func (r *run) city(ctx context.Context, city string) error {
	if err := r.ctrl.Alive(ctx); err != nil {
		return errors.NewSetup(r.platform.ListingURL(city), "browser unavailable", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	err := r.listings(gctx, g, city)
	waitErr := g.Wait()
	if err != nil {
		return err
	}
	return waitErr
}

func (r *run) listings(ctx context.Context, g *errgroup.Group, city string) error {
	start := r.platform.ListingURL(city)
	if r.platform.Categories == nil {
		if err := r.discover(ctx, g, city, start); err != nil {
			return errors.NewSetup(start, "open city listing", err)
		}
		return nil
	}

	categories, err := r.categoryLinks(ctx, start)
	if err != nil {
		return errors.NewSetup(start, "discover categories", err)
	}
	r.log.Info().Str("city", city).Int("categories", len(categories)).Msg("Categories discovered")

	for i, category := range categories {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.log.Info().Str("category", category).Msgf("Scraping category %d/%d", i+1, len(categories))
		if err := r.discover(ctx, g, city, category); err != nil {
			r.record(category, err)
			r.errLog.LogError(category, err)
		}
	}
	return nil
}

// categoryLinks collects the deduplicated category URLs of a city page
func (r *run) categoryLinks(ctx context.Context, start string) ([]string, error) {
	var links []string
	seen := map[string]struct{}{}
	collect := func(doc *dom.Document) error {
		found, err := dom.ResolveMany(doc, nil, r.platform.Categories.Links)
		if err != nil {
			return err
		}
		for _, el := range found {
			u, err := NormalizeLink(r.base, el.Href())
			if err != nil {
				continue
			}
			u.Fragment = ""
			link := u.String()
			if _, ok := seen[link]; ok || link == start {
				continue
			}
			seen[link] = struct{}{}
			links = append(links, link)
		}
		return nil
	}

	err := r.onPrimary(ctx, start, r.platform.Categories.Scroll, collect)
	return links, err
}

// discover scans one listing, dispatching merchants as they appear. A
// disconnect restarts the scan once on a fresh session; merchants already
// dispatched are not dispatched again.
func (r *run) discover(ctx context.Context, g *errgroup.Group, city, listing string) error {
	collect := func(doc *dom.Document) error {
		links, err := dom.ResolveMany(doc, nil, r.platform.Listing.Links)
		if err != nil {
			return err
		}
		for _, el := range links {
			r.dispatch(ctx, g, city, el.Href())
		}
		return nil
	}

	err := r.onPrimary(ctx, listing, r.platform.Listing.Scroll, collect)
	if errors.IsDisconnected(err) && ctx.Err() == nil {
		r.log.Warn().Str("listing", listing).Msg("Restarting listing after reconnect")
		err = r.onPrimary(ctx, listing, r.platform.Listing.Scroll, collect)
	}
	return err
}

// onPrimary loads page in the primary tab and calls collect with a fresh
// snapshot before scrolling and after every scroll step.
func (r *run) onPrimary(ctx context.Context, page string, policy loader.Policy, collect func(*dom.Document) error) error {
	tab, gen, err := r.ctrl.Primary(ctx)
	if err != nil {
		return err
	}

	err = r.scan(ctx, tab, page, policy, collect)
	if errors.IsDisconnected(err) {
		r.ctrl.Reconnect(gen)
	}
	return err
}

func (r *run) scan(ctx context.Context, tab browser.Tab, page string, policy loader.Policy, collect func(*dom.Document) error) error {
	if err := r.ctrl.Navigate(ctx, tab, page); err != nil {
		return err
	}
	if err := sleep(ctx, r.platform.Merchant.Settle); err != nil {
		return err
	}

	doc, err := tab.Document(ctx)
	if err != nil {
		return err
	}
	if doc, err = r.guardCaptcha(ctx, tab, page, doc); err != nil {
		return err
	}
	if err := collect(doc); err != nil {
		return err
	}

	_, err = loader.Expand(ctx, tab, policy, nil, func(ctx context.Context, step loader.Step) error {
		if logger.IsDebugEnabled() {
			r.log.Debug().Str("page", page).Int("step", step.Index).Float64("height", step.Height).Msg("Scrolled")
		}
		doc, err := tab.Document(ctx)
		if err != nil {
			return err
		}
		return collect(doc)
	})
	return err
}

// dispatch canonicalizes a discovered link and queues it unless it was
// seen in this run, committed earlier or has used up its attempts.
func (r *run) dispatch(ctx context.Context, g *errgroup.Group, city, raw string) {
	canonical, key, err := r.canon(r.base, raw)
	if err != nil {
		r.log.Debug().Str("link", raw).Err(err).Msg("Ignoring link")
		return
	}

	r.mu.Lock()
	if _, ok := r.seen[canonical]; ok {
		r.mu.Unlock()
		return
	}
	r.seen[canonical] = struct{}{}
	r.mu.Unlock()

	if r.sink.IsProcessed(canonical) {
		r.progress.Skipped()
		return
	}
	if n := r.sink.Attempts(canonical); n >= r.opts.MaxAttempts {
		r.log.Debug().Str("url", canonical).Int("attempts", n).Msg("Skipping permanently failed merchant")
		r.progress.Skipped()
		return
	}

	source := raw
	if u, err := NormalizeLink(r.base, raw); err == nil {
		source = u.String()
	}
	t := target{City: city, SourceURL: source, CanonicalURL: canonical, Key: key}
	r.progress.Discovered()
	g.Go(func() error {
		r.merchant(ctx, t)
		return nil
	})
}

// merchant is the failure boundary of one merchant: nothing that happens
// here, panics included, reaches the next merchant.
func (r *run) merchant(ctx context.Context, t target) {
	defer func() {
		if rec := recover(); rec != nil {
			r.fail(t, errors.NewUnexpected(t.SourceURL, fmt.Sprintf("panic: %v", rec), nil))
		}
	}()

	if r.blocked() {
		r.progress.Skipped()
		return
	}

	claim := "inflight:" + r.platform.Name + ":" + t.Key
	if r.cache != nil {
		err := r.cache.Add(claim, []byte(r.id), r.opts.MerchantTimeout+time.Minute)
		if stderrors.Is(err, cache.ErrNotStored) {
			r.log.Debug().Str("url", t.CanonicalURL).Msg("Merchant claimed by another worker")
			r.progress.Skipped()
			return
		}
		if err != nil {
			r.log.WithError(err).Warn().Str("url", t.CanonicalURL).Msg("Could not claim merchant, extracting anyway")
		} else {
			defer r.cache.Delete(claim)
		}
	}

	var err error
	for attempt := 0; attempt <= r.opts.MaxReconnects; attempt++ {
		var m *menu.Merchant
		m, err = r.extract(ctx, t)
		if err == nil {
			committed, cerr := r.sink.Commit(ctx, m)
			switch {
			case cerr != nil:
				r.fail(t, cerr)
			case committed:
				r.progress.Processed(t.CanonicalURL)
			default:
				r.progress.Skipped()
			}
			return
		}
		if !errors.IsDisconnected(err) || ctx.Err() != nil {
			break
		}
		r.log.Warn().Str("url", t.SourceURL).Int("attempt", attempt+1).Msg("Session lost during merchant, retrying")
	}

	if ctx.Err() != nil {
		// Interrupted runs do not count against the merchant
		r.progress.Skipped()
		return
	}
	r.fail(t, err)
}

// extract loads the merchant page in its own tab and reads the record
func (r *run) extract(ctx context.Context, t target) (*menu.Merchant, error) {
	if r.opts.MerchantTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.MerchantTimeout)
		defer cancel()
	}

	var m *menu.Merchant
	err := r.ctrl.WithTab(ctx, func(ctx context.Context, tab browser.Tab) error {
		page := r.platform.Merchant
		if err := r.ctrl.Navigate(ctx, tab, t.SourceURL); err != nil {
			return err
		}
		if err := sleep(ctx, page.Settle); err != nil {
			return err
		}

		doc, err := tab.Document(ctx)
		if err != nil {
			return err
		}
		if doc, err = r.guardCaptcha(ctx, tab, t.SourceURL, doc); err != nil {
			return err
		}
		if page.Scroll.MaxSteps > 0 {
			if _, err := loader.Expand(ctx, tab, page.Scroll, nil, nil); err != nil {
				return err
			}
			if doc, err = tab.Document(ctx); err != nil {
				return err
			}
		}

		if page.Structured != nil {
			m, err = r.extractor.Structured(doc, *page.Structured)
			if err != nil {
				return err
			}
		} else {
			if m, err = r.extractor.Merchant(doc, page.Fields); err != nil {
				return err
			}
			if m.Menu, err = r.extractor.Menu(doc, page.Menu); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.City = t.City
	m.SourceURL = t.SourceURL
	m.CanonicalURL = t.CanonicalURL
	m.Key = t.Key
	return m, nil
}

func (r *run) blockKey() string {
	return "captcha_blocked:" + r.platform.Name
}

func (r *run) blocked() bool {
	if r.cache == nil {
		return false
	}
	_, err := r.cache.Get(r.blockKey())
	return err == nil
}

func (r *run) block() {
	if r.cache == nil || r.opts.CaptchaBlockTime <= 0 {
		return
	}
	if err := r.cache.Set(r.blockKey(), []byte(r.id), r.opts.CaptchaBlockTime); err != nil {
		r.log.Warn().Err(err).Msg("Could not set captcha block")
	}
}

// guardCaptcha returns doc unchanged when no challenge is shown. Otherwise
// the operator is asked to solve it and a fresh snapshot is returned; with
// no operator, or if the challenge stays, the platform is paused.
func (r *run) guardCaptcha(ctx context.Context, tab browser.Tab, page string, doc *dom.Document) (*dom.Document, error) {
	if r.blocked() {
		return nil, errors.NewCaptcha(page, "platform paused after a captcha")
	}
	if r.platform.Captcha.Empty() {
		return doc, nil
	}

	challenge, err := dom.ResolveOne(doc, nil, r.platform.Captcha)
	if err != nil {
		return nil, errors.NewParsing(page, "resolve captcha locator", err)
	}
	if challenge == nil {
		return doc, nil
	}
	if r.operator == nil {
		r.block()
		return nil, errors.NewCaptcha(page, "captcha challenge in non-interactive run")
	}

	r.log.Warn().Str("url", page).Msg("Captcha detected, waiting for operator")
	if err := r.operator.Resolve(ctx, r.platform.Name, page); err != nil {
		r.block()
		return nil, errors.NewCaptcha(page, "captcha not resolved: "+err.Error())
	}

	if doc, err = tab.Document(ctx); err != nil {
		return nil, err
	}
	if challenge, err = dom.ResolveOne(doc, nil, r.platform.Captcha); err != nil || challenge != nil {
		r.block()
		return nil, errors.NewCaptcha(page, "captcha still present after operator")
	}
	return doc, nil
}

// fail records a merchant failure in the ledger, the error log and the summary
func (r *run) fail(t target, err error) {
	n, lerr := r.sink.RecordFailure(t.CanonicalURL, err)
	if lerr != nil {
		r.log.Error().Err(lerr).Msg("Could not record failure")
	}
	r.errLog.LogError(t.SourceURL, err)
	r.record(t.SourceURL, err)
	r.progress.Failed(t.CanonicalURL)

	r.log.Warn().
		Err(err).
		Str("url", t.SourceURL).
		Int("attempts", n).
		Int("max_attempts", r.opts.MaxAttempts).
		Msg("Merchant failed")
}

func (r *run) record(page string, err error) {
	entry := ErrorEntry{URL: page, Type: errors.TypeOf(err), Cause: err.Error()}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, entry)
}

func (r *run) errorList() []ErrorEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ErrorEntry(nil), r.errors...)
}
