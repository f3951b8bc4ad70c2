// Package browsertest provides an in-memory browser for tests.
package browsertest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"sjsage522/menucrawler/internal/browser"
	"sjsage522/menucrawler/internal/dom"
	"sjsage522/menucrawler/pkg/errors"
)

// Page is a scripted page. Each scroll step advances to the next entry of
// Grow (the last one sticks); Heights follows the same rule.
type Page struct {
	HTML    string
	Grow    []string
	Heights []float64
	// Panic makes Document panic, to exercise crash containment
	Panic bool
}

// Fake is a browser whose pages are served from memory. Launch revives it
// as a new session; sessions from earlier launches stay dead.
type Fake struct {
	mu    sync.Mutex
	pages map[string]*Page

	gen      int
	dead     bool
	launches int
	opened   int
	closed   int
	visits   map[string]int
	evals    []string

	// disconnectOn kills the session the next n times url is navigated to
	disconnectOn map[string]int
	navErrors    map[string]error
}

// New creates a fake browser
func New() *Fake {
	return &Fake{
		pages:        map[string]*Page{},
		visits:       map[string]int{},
		disconnectOn: map[string]int{},
		navErrors:    map[string]error{},
	}
}

// Serve registers a page
func (f *Fake) Serve(url string, page *Page) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = page
}

// ServeHTML registers a static page
func (f *Fake) ServeHTML(url, html string) {
	f.Serve(url, &Page{HTML: html})
}

// SetHTML replaces the markup of a served page, as a page changing under
// an open tab would
func (f *Fake) SetHTML(url, html string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if page, ok := f.pages[url]; ok {
		page.HTML = html
	}
}

// DisconnectOn makes the next n navigations to url kill the session
func (f *Fake) DisconnectOn(url string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnectOn[url] = n
}

// FailNavigation makes navigation to url return err
func (f *Fake) FailNavigation(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navErrors[url] = err
}

// Kill ends the current session
func (f *Fake) Kill() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dead = true
}

// Launch implements browser.Launcher
func (f *Fake) Launch(ctx context.Context) (browser.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	f.dead = false
	f.launches++
	return &session{fake: f, gen: f.gen}, nil
}

// Launches returns how many sessions were started
func (f *Fake) Launches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.launches
}

// TabCounts returns how many tabs were opened and closed
func (f *Fake) TabCounts() (opened, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened, f.closed
}

// Visits returns how many times url was navigated to
func (f *Fake) Visits(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visits[url]
}

// Evaluations returns every script run against any tab
func (f *Fake) Evaluations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.evals...)
}

type session struct {
	fake *Fake
	gen  int

	mu   sync.Mutex
	tabs map[string]*tab
	next int
}

var _ browser.Browser = (*session)(nil)

// alive must be called with fake.mu held
func (s *session) alive() error {
	if s.fake.dead || s.fake.gen != s.gen {
		return errors.NewDisconnected("", "fake session is dead", fmt.Errorf("websocket: close 1006"))
	}
	return nil
}

func (s *session) OpenTab(ctx context.Context) (browser.Tab, error) {
	s.fake.mu.Lock()
	if err := s.alive(); err != nil {
		s.fake.mu.Unlock()
		return nil, err
	}
	s.fake.opened++
	s.fake.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tabs == nil {
		s.tabs = map[string]*tab{}
	}
	s.next++
	t := &tab{session: s, id: "tab-" + strconv.Itoa(s.next)}
	s.tabs[t.id] = t
	return t, nil
}

func (s *session) Tabs(ctx context.Context) ([]string, error) {
	s.fake.mu.Lock()
	err := s.alive()
	s.fake.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.tabs))
	for id := range s.tabs {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *session) Ping(ctx context.Context) error {
	s.fake.mu.Lock()
	defer s.fake.mu.Unlock()
	return s.alive()
}

func (s *session) Close() error {
	s.mu.Lock()
	tabs := make([]*tab, 0, len(s.tabs))
	for _, t := range s.tabs {
		tabs = append(tabs, t)
	}
	s.mu.Unlock()
	for _, t := range tabs {
		t.Close()
	}
	return nil
}

type tab struct {
	session *session
	id      string

	url    string
	page   *Page
	step   int
	closed bool
}

var _ browser.Tab = (*tab)(nil)

func (t *tab) ID() string {
	return t.id
}

func (t *tab) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.NewNetwork(t.url, "page operation interrupted", err)
	}
	if err := t.session.alive(); err != nil {
		return err
	}
	if t.closed {
		return errors.NewDisconnected(t.url, "tab closed", fmt.Errorf("target closed"))
	}
	return nil
}

func (t *tab) Navigate(ctx context.Context, url string) error {
	f := t.session.fake
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := t.check(ctx); err != nil {
		return err
	}

	f.visits[url]++
	if n := f.disconnectOn[url]; n > 0 {
		f.disconnectOn[url] = n - 1
		f.dead = true
		return errors.NewDisconnected(url, "lost connection to browser", fmt.Errorf("websocket: close 1006"))
	}
	if err, ok := f.navErrors[url]; ok {
		return err
	}
	page, ok := f.pages[url]
	if !ok {
		return errors.NewNetwork(url, "navigation failed", fmt.Errorf("net::ERR_NAME_NOT_RESOLVED"))
	}

	t.url, t.page, t.step = url, page, 0
	return nil
}

func (t *tab) Evaluate(ctx context.Context, script string, res any) error {
	f := t.session.fake
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := t.check(ctx); err != nil {
		return err
	}
	f.evals = append(f.evals, script)

	if t.page == nil {
		return nil
	}
	if strings.Contains(script, "scrollBy") {
		t.step++
	}
	if h, ok := res.(*float64); ok {
		*h = pick(t.page.Heights, t.step-1, 0)
	}
	return nil
}

func (t *tab) Document(ctx context.Context) (*dom.Document, error) {
	f := t.session.fake
	f.mu.Lock()
	if err := t.check(ctx); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	page, url, step := t.page, t.url, t.step
	var html string
	if page != nil {
		html = page.HTML
		if step > 0 && len(page.Grow) > 0 {
			html = pick(page.Grow, step-1, html)
		}
	}
	f.mu.Unlock()

	if page == nil {
		return dom.ParseString("<html></html>", "about:blank")
	}
	if page.Panic {
		panic("renderer crashed on " + url)
	}
	return dom.ParseString(html, url)
}

func (t *tab) Close() error {
	f := t.session.fake
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	f.closed++

	t.session.mu.Lock()
	delete(t.session.tabs, t.id)
	t.session.mu.Unlock()
	return nil
}

func pick[T any](items []T, i int, fallback T) T {
	if len(items) == 0 || i < 0 {
		return fallback
	}
	if i >= len(items) {
		return items[len(items)-1]
	}
	return items[i]
}
