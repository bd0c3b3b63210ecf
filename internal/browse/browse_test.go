package browse

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/birdhouse/internal/browser"
	"github.com/shehryarbajwa/birdhouse/internal/browser/browsertest"
	"github.com/shehryarbajwa/birdhouse/internal/config"
	"github.com/shehryarbajwa/birdhouse/internal/console"
	"github.com/shehryarbajwa/birdhouse/internal/cookies"
	"github.com/shehryarbajwa/birdhouse/internal/events"
	"github.com/shehryarbajwa/birdhouse/internal/ratelimit"
	"github.com/shehryarbajwa/birdhouse/internal/runs"
	"github.com/shehryarbajwa/birdhouse/pkg/models"
)

// fakeClock advances by the requested duration whenever After is called.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

const cookieExport = `[
  {"name": "auth_token", "value": "abc", "domain": ".twitter.com", "sameSite": "no_restriction", "secure": true},
  {"name": "ct0", "value": "def", "domain": ".twitter.com"}
]`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.CookiesFile = filepath.Join(t.TempDir(), "twitter_cookies.json")
	cfg.BrowseMin = 120 * time.Second
	cfg.BrowseMax = 600 * time.Second
	return cfg
}

func writeCookies(t *testing.T, cfg *config.Config) {
	t.Helper()
	require.NoError(t, os.WriteFile(cfg.CookiesFile, []byte(cookieExport), 0o600))
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func newTestBrowser(cfg *config.Config, l browser.Launcher, clk Clock, seed uint64, pub events.Publisher) (*Browser, *runs.Registry) {
	reg := runs.NewRegistry(0)
	return New(l, cfg, Options{
		Rand:    rand.New(rand.NewPCG(seed, seed+1)),
		Clock:   clk,
		Limiter: ratelimit.NewLimiter(0, time.Minute, 0),
		Events:  pub,
		Runs:    reg,
		Console: console.New(&bytes.Buffer{}),
	}), reg
}

func TestMissingCookiesDoesNotLaunch(t *testing.T) {
	cfg := testConfig(t)
	l := &browsertest.Launcher{}
	b, reg := newTestBrowser(cfg, l, newFakeClock(), 1, nil)

	run, err := b.Run(context.Background(), models.TriggerManual)
	require.Error(t, err)
	assert.ErrorIs(t, err, cookies.ErrNotFound)
	assert.Nil(t, run)
	assert.Empty(t, l.Launches())
	assert.Empty(t, reg.List("", ""))
}

func TestRunTerminatesWithinBudget(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		cfg := testConfig(t)
		writeCookies(t, cfg)
		l := &browsertest.Launcher{}
		clk := newFakeClock()
		start := clk.Now()
		b, reg := newTestBrowser(cfg, l, clk, seed, nil)

		run, err := b.Run(context.Background(), models.TriggerManual)
		require.NoError(t, err)
		require.NotNil(t, run)

		assert.GreaterOrEqual(t, run.Budget, 120*time.Second)
		assert.LessOrEqual(t, run.Budget, 600*time.Second)
		assert.Zero(t, run.Budget%time.Second)

		// The loop only exits once the budget has elapsed.
		assert.GreaterOrEqual(t, clk.Now().Sub(start), run.Budget)
		assert.Positive(t, run.Actions)
		assert.Equal(t, models.StatusCompleted, run.Status)

		stored, err := reg.Get(run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, stored.Status)
		assert.Equal(t, run.Actions, stored.Actions)

		sessions := l.Sessions()
		require.Len(t, sessions, 1)
		assert.Equal(t, 1, sessions[0].Closed())
	}
}

func TestRunLaunchOptions(t *testing.T) {
	cfg := testConfig(t)
	writeCookies(t, cfg)
	l := &browsertest.Launcher{}
	b, _ := newTestBrowser(cfg, l, newFakeClock(), 7, nil)

	_, err := b.Run(context.Background(), models.TriggerManual)
	require.NoError(t, err)

	launches := l.Launches()
	require.Len(t, launches, 1)
	opts := launches[0]
	assert.Equal(t, browser.Viewport{Width: 1280, Height: 720}, opts.Viewport)
	assert.Equal(t, "en-US", opts.Locale)
	assert.Equal(t, "America/New_York", opts.TimezoneID)
	require.Len(t, opts.Cookies, 2)
	assert.Equal(t, models.SameSiteNone, opts.Cookies[0].SameSite)
	assert.Equal(t, models.SameSiteLax, opts.Cookies[1].SameSite)

	calls := l.Sessions()[0].Calls()
	require.GreaterOrEqual(t, len(calls), 2)
	assert.Equal(t, browsertest.Call("goto https://twitter.com/home"), calls[0])
	assert.Equal(t, browsertest.Call("click app-bar-close"), calls[1])
}

func TestActionFailuresAreRecorded(t *testing.T) {
	cfg := testConfig(t)
	writeCookies(t, cfg)
	boom := errors.New("net::ERR_CONNECTION_RESET")
	l := &browsertest.Launcher{Fail: map[string]error{
		"scroll":                           boom,
		"goto https://twitter.com/explore": boom,
		"click app-bar-close":              browsertest.ErrElementNotFound,
	}}
	rec := &recorder{}
	b, _ := newTestBrowser(cfg, l, newFakeClock(), 3, rec)

	run, err := b.Run(context.Background(), models.TriggerSchedule)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, run.Status)
	require.NotEmpty(t, run.Errors)
	for _, msg := range run.Errors {
		assert.True(t,
			strings.HasPrefix(msg, "scroll ") || strings.HasPrefix(msg, "goto https://twitter.com/explore"),
			"unexpected error %q", msg)
	}

	types := rec.types()
	assert.Equal(t, events.RunStarted, types[0])
	assert.Equal(t, events.RunFinished, types[len(types)-1])
	assert.Contains(t, types, events.ActionFailed)
}

func TestCancelEndsRunEarly(t *testing.T) {
	cfg := testConfig(t)
	writeCookies(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := &browsertest.Launcher{}
	l.OnCall = func(c browsertest.Call) {
		if c == "click app-bar-close" {
			cancel()
		}
	}
	b, reg := newTestBrowser(cfg, l, newFakeClock(), 11, nil)

	run, err := b.Run(ctx, models.TriggerManual)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, run)
	assert.Equal(t, models.StatusError, run.Status)
	assert.Equal(t, 1, l.Sessions()[0].Closed())

	stored, err := reg.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, stored.Status)
}

func TestLaunchFailure(t *testing.T) {
	cfg := testConfig(t)
	writeCookies(t, cfg)
	l := &browsertest.Launcher{LaunchErr: errors.New("chromium not installed")}
	b, _ := newTestBrowser(cfg, l, newFakeClock(), 5, nil)

	run, err := b.Run(context.Background(), models.TriggerManual)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chromium not installed")
	require.NotNil(t, run)
	assert.Equal(t, models.StatusError, run.Status)
}

func TestPickIsUniformOverActions(t *testing.T) {
	cfg := testConfig(t)
	b, _ := newTestBrowser(cfg, &browsertest.Launcher{}, newFakeClock(), 42, nil)

	seen := map[string]int{}
	for i := 0; i < 1000; i++ {
		seen[b.pick()]++
	}
	assert.Len(t, seen, len(actions))
	for _, a := range actions {
		assert.Greater(t, seen[a], 100, a)
	}
}

func TestBetweenStaysInRange(t *testing.T) {
	cfg := testConfig(t)
	b, _ := newTestBrowser(cfg, &browsertest.Launcher{}, newFakeClock(), 9, nil)

	for i := 0; i < 500; i++ {
		d := b.between(2*time.Second, 5*time.Second)
		require.GreaterOrEqual(t, d, 2*time.Second)
		require.LessOrEqual(t, d, 5*time.Second)

		n := b.intn(300, 800)
		require.GreaterOrEqual(t, n, 300)
		require.LessOrEqual(t, n, 800)
	}
	assert.Equal(t, 3, b.intn(3, 3))
}
