package browser

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"sjsage522/menucrawler/helpers"
	"sjsage522/menucrawler/internal/dom"
	"sjsage522/menucrawler/logger"
	"sjsage522/menucrawler/pkg/errors"
)

// Options configures how Chrome is started or attached to
type Options struct {
	Headless  bool
	RemoteURL string
	UserAgent string
	Width     int
	Height    int
}

// Chrome is a Browser backed by chromedp
type Chrome struct {
	allocCtx      context.Context
	cancelAlloc   context.CancelFunc
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	log           *logger.Logger

	closeOnce sync.Once
}

// NewLauncher returns a Launcher that starts Chrome with opts
func NewLauncher(opts Options) Launcher {
	return func(ctx context.Context) (Browser, error) {
		return Launch(ctx, opts)
	}
}

// Launch starts a local Chrome, or attaches to a running one when
// opts.RemoteURL is set. The session outlives ctx; ctx bounds startup only.
func Launch(ctx context.Context, opts Options) (*Chrome, error) {
	log := logger.ForComponent("browser")

	var allocCtx context.Context
	var cancelAlloc context.CancelFunc
	if opts.RemoteURL != "" {
		wsURL, err := helpers.ResolveDevToolsURL(ctx, opts.RemoteURL)
		if err != nil {
			return nil, errors.NewSetup(opts.RemoteURL, "resolve devtools endpoint", err)
		}
		log.Info().Str("ws", wsURL).Msg("Attaching to remote Chrome")
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), wsURL)
	} else {
		width, height := opts.Width, opts.Height
		if width <= 0 || height <= 0 {
			width, height = 1366, 900
		}
		flags := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.WindowSize(width, height),
		)
		if opts.UserAgent != "" {
			flags = append(flags, chromedp.UserAgent(opts.UserAgent))
		}
		log.Info().Bool("headless", opts.Headless).Msg("Launching Chrome")
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(context.Background(), flags...)
	}

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	c := &Chrome{
		allocCtx:      allocCtx,
		cancelAlloc:   cancelAlloc,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		log:           log,
	}

	// The first Run allocates the browser and must use the session context
	stop := context.AfterFunc(ctx, func() { c.Close() })
	err := chromedp.Run(browserCtx)
	stop()
	if err != nil {
		c.Close()
		return nil, errors.NewSetup(opts.RemoteURL, "start browser", err)
	}
	return c, nil
}

// OpenTab implements Browser
func (c *Chrome) OpenTab(ctx context.Context) (Tab, error) {
	if c.browserCtx.Err() != nil {
		return nil, errors.NewDisconnected("", "browser is closed", c.browserCtx.Err())
	}

	tabCtx, cancelTab := chromedp.NewContext(c.browserCtx)
	stop := context.AfterFunc(ctx, cancelTab)
	err := chromedp.Run(tabCtx)
	stop()
	if err != nil {
		cancelTab()
		return nil, classify(ctx, c.browserCtx, "", err)
	}

	tab := &chromeTab{ctx: tabCtx, cancel: cancelTab}
	if cd := chromedp.FromContext(tabCtx); cd != nil && cd.Target != nil {
		tab.id = string(cd.Target.TargetID)
	}
	return tab, nil
}

// Tabs implements Browser
func (c *Chrome) Tabs(ctx context.Context) ([]string, error) {
	var infos []*target.Info
	err := c.do(ctx, "", func(runCtx context.Context) error {
		var err error
		infos, err = chromedp.Targets(runCtx)
		return err
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.Type == "page" {
			ids = append(ids, string(info.TargetID))
		}
	}
	return ids, nil
}

// Ping implements Browser
func (c *Chrome) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := c.Tabs(ctx)
	return err
}

// Close implements Browser
func (c *Chrome) Close() error {
	c.closeOnce.Do(func() {
		c.cancelBrowser()
		c.cancelAlloc()
		c.log.Debug().Msg("Chrome session closed")
	})
	return nil
}

func (c *Chrome) do(ctx context.Context, url string, fn func(runCtx context.Context) error) error {
	runCtx, cancel := context.WithCancel(c.browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return classify(ctx, c.browserCtx, url, fn(runCtx))
}

type chromeTab struct {
	ctx    context.Context
	cancel context.CancelFunc
	id     string
	url    string

	closeOnce sync.Once
}

func (t *chromeTab) ID() string {
	return t.id
}

// run executes actions on the tab. Cancelling ctx aborts the actions
// without closing the tab.
func (t *chromeTab) run(ctx context.Context, url string, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return classify(ctx, t.ctx, url, chromedp.Run(runCtx, actions...))
}

func (t *chromeTab) Navigate(ctx context.Context, url string) error {
	t.url = url
	return t.run(ctx, url, chromedp.Navigate(url))
}

func (t *chromeTab) Evaluate(ctx context.Context, script string, res any) error {
	return t.run(ctx, t.url, chromedp.Evaluate(script, res))
}

func (t *chromeTab) Document(ctx context.Context) (*dom.Document, error) {
	var page, location string
	err := t.run(ctx, t.url,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &page, chromedp.ByQuery),
	)
	if err != nil {
		return nil, err
	}
	doc, err := dom.ParseString(page, location)
	if err != nil {
		return nil, errors.NewParsing(location, "parse page snapshot", err)
	}
	return doc, nil
}

func (t *chromeTab) Close() error {
	t.closeOnce.Do(t.cancel)
	return nil
}

var disconnectMarkers = []string{
	"websocket",
	"target closed",
	"no target with given id",
	"connection refused",
	"connection reset",
	"broken pipe",
	"invalid context",
	"eof",
}

// classify maps a chromedp error to the crawler taxonomy. A dead session
// or tab context always means disconnected; the caller's own deadline
// wins over everything else.
func classify(ctx, session context.Context, url string, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return errors.NewNetwork(url, "page operation interrupted", ctx.Err())
	}
	if session.Err() != nil {
		return errors.NewDisconnected(url, "browser session ended", err)
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range disconnectMarkers {
		if strings.Contains(msg, marker) {
			return errors.NewDisconnected(url, "lost connection to browser", err)
		}
	}
	if strings.Contains(msg, "net::err_") {
		return errors.NewNetwork(url, "navigation failed", err)
	}
	return errors.NewUnexpected(url, "browser action failed", err)
}
