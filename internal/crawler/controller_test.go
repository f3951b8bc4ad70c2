package crawler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/menucrawler/internal/browser"
	"sjsage522/menucrawler/internal/browser/browsertest"
	"sjsage522/menucrawler/logger"
	"sjsage522/menucrawler/pkg/errors"
)

func newTestController(fake *browsertest.Fake) *Controller {
	return NewController(fake.Launch, 0, logger.ForComponent("controller-test"))
}

func TestControllerReconnectsOncePerGeneration(t *testing.T) {
	fake := browsertest.New()
	ctrl := newTestController(fake)
	ctx := context.Background()

	_, gen, err := ctrl.Primary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, gen)

	// Several workers report the same dead session
	ctrl.Reconnect(gen)
	ctrl.Reconnect(gen)
	ctrl.Reconnect(gen)

	tab, newGen, err := ctrl.Primary(ctx)
	require.NoError(t, err)
	assert.NotNil(t, tab)
	assert.Equal(t, 2, newGen)
	assert.Equal(t, 2, fake.Launches())

	// A late report about the old session must not discard the new one
	ctrl.Reconnect(gen)
	assert.Equal(t, 2, ctrl.Generation())
	require.NoError(t, ctrl.Alive(ctx))
	assert.Equal(t, 2, fake.Launches())

	require.NoError(t, ctrl.Close())
	opened, closed := fake.TabCounts()
	assert.Equal(t, opened, closed)
}

func TestControllerReusesPrimaryTab(t *testing.T) {
	fake := browsertest.New()
	ctrl := newTestController(fake)
	defer ctrl.Close()

	first, _, err := ctrl.Primary(context.Background())
	require.NoError(t, err)
	second, _, err := ctrl.Primary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.ID(), second.ID())
	opened, _ := fake.TabCounts()
	assert.Equal(t, 1, opened)
}

func TestControllerAliveRelaunchesDeadSession(t *testing.T) {
	fake := browsertest.New()
	ctrl := newTestController(fake)
	defer ctrl.Close()
	ctx := context.Background()

	require.NoError(t, ctrl.Alive(ctx))
	fake.Kill()

	require.NoError(t, ctrl.Alive(ctx))
	assert.Equal(t, 2, fake.Launches())
	assert.Equal(t, 2, ctrl.Generation())
}

func TestWithTabClosesTabOnEveryExit(t *testing.T) {
	fake := browsertest.New()
	fake.ServeHTML("https://food.test/", "<html><body>ok</body></html>")
	ctrl := newTestController(fake)
	defer ctrl.Close()
	ctx := context.Background()

	err := ctrl.WithTab(ctx, func(ctx context.Context, tab browser.Tab) error {
		return ctrl.Navigate(ctx, tab, "https://food.test/")
	})
	require.NoError(t, err)

	err = ctrl.WithTab(ctx, func(ctx context.Context, tab browser.Tab) error {
		return errors.NewParsing("https://food.test/", "bad page", nil)
	})
	assert.True(t, errors.IsType(err, errors.ErrorTypeParsing))

	assert.Panics(t, func() {
		ctrl.WithTab(ctx, func(ctx context.Context, tab browser.Tab) error {
			panic("boom")
		})
	})

	opened, closed := fake.TabCounts()
	assert.Equal(t, 3, opened)
	assert.Equal(t, 3, closed)
	assert.Equal(t, 1, fake.Launches(), "non-session errors should keep the session")
}

func TestWithTabRetiresSessionOnDisconnect(t *testing.T) {
	fake := browsertest.New()
	fake.DisconnectOn("https://food.test/", 1)
	fake.ServeHTML("https://food.test/", "<html></html>")
	ctrl := newTestController(fake)
	defer ctrl.Close()
	ctx := context.Background()

	err := ctrl.WithTab(ctx, func(ctx context.Context, tab browser.Tab) error {
		return ctrl.Navigate(ctx, tab, "https://food.test/")
	})
	require.True(t, errors.IsDisconnected(err))

	err = ctrl.WithTab(ctx, func(ctx context.Context, tab browser.Tab) error {
		return ctrl.Navigate(ctx, tab, "https://food.test/")
	})
	require.NoError(t, err)
	assert.Equal(t, 2, fake.Launches())
}

func TestNavigateHonorsCancelledContext(t *testing.T) {
	fake := browsertest.New()
	fake.ServeHTML("https://food.test/", "<html></html>")
	ctrl := NewController(fake.Launch, 0.5, logger.ForComponent("controller-test"))
	defer ctrl.Close()

	tab, _, err := ctrl.Primary(context.Background())
	require.NoError(t, err)
	require.NoError(t, ctrl.Navigate(context.Background(), tab, "https://food.test/"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = ctrl.Navigate(ctx, tab, "https://food.test/")
	assert.Error(t, err)
	assert.Equal(t, 1, fake.Visits("https://food.test/"))
}
