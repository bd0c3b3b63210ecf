// Package browse drives a timed, randomized browsing session on the home
// timeline so the account sees ordinary activity between posts.
package browse

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/shehryarbajwa/birdhouse/internal/browser"
	"github.com/shehryarbajwa/birdhouse/internal/config"
	"github.com/shehryarbajwa/birdhouse/internal/console"
	"github.com/shehryarbajwa/birdhouse/internal/cookies"
	"github.com/shehryarbajwa/birdhouse/internal/events"
	"github.com/shehryarbajwa/birdhouse/internal/logging"
	"github.com/shehryarbajwa/birdhouse/internal/ratelimit"
	"github.com/shehryarbajwa/birdhouse/internal/runs"
	"github.com/shehryarbajwa/birdhouse/pkg/models"
)

// Clock is the part of clock.Clock the loop needs.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Actions the loop picks from, uniformly.
const (
	ActionScroll   = "scroll"
	ActionRead     = "read"
	ActionExplore  = "explore"
	ActionProfile  = "profile"
	ActionTrending = "trending"
)

var actions = []string{ActionScroll, ActionRead, ActionExplore, ActionProfile, ActionTrending}

// Options holds the optional collaborators of a Browser. Zero values get
// working defaults.
type Options struct {
	Rand    *rand.Rand
	Clock   Clock
	Limiter *ratelimit.Limiter
	Events  events.Publisher
	Runs    *runs.Registry
	Logger  logging.Logger
	Console *console.Printer
}

// Browser runs browsing sessions.
type Browser struct {
	launcher browser.Launcher
	cfg      *config.Config

	rngMu   sync.Mutex
	rng     *rand.Rand
	clock   Clock
	limiter *ratelimit.Limiter
	events  events.Publisher
	runs    *runs.Registry
	logger  logging.Logger
	out     *console.Printer
}

// New creates a Browser.
func New(launcher browser.Launcher, cfg *config.Config, opts Options) *Browser {
	b := &Browser{
		launcher: launcher,
		cfg:      cfg,
		rng:      opts.Rand,
		clock:    opts.Clock,
		limiter:  opts.Limiter,
		events:   opts.Events,
		runs:     opts.Runs,
		logger:   logging.Component(opts.Logger, "browse"),
		out:      opts.Console,
	}
	if b.rng == nil {
		b.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if b.clock == nil {
		b.clock = clock.WallClock
	}
	if b.limiter == nil {
		b.limiter = ratelimit.NewLimiter(cfg.NavigationsPerMinute, time.Minute, 2)
	}
	if b.events == nil {
		b.events = events.PublisherFunc(func(events.Event) {})
	}
	if b.runs == nil {
		b.runs = runs.NewRegistry(0)
	}
	if b.out == nil {
		b.out = console.New(nil)
	}
	return b
}

// Run performs one browsing session. A missing cookie export returns an
// error wrapping cookies.ErrNotFound before any browser is launched.
// Failed actions are recorded on the run and do not stop the loop; a
// cancelled ctx ends the run early with its error.
func (b *Browser) Run(ctx context.Context, trigger models.Trigger) (*models.Run, error) {
	b.out.Printf("Loading cookies from %s...", b.cfg.CookiesFile)
	jar, err := cookies.Load(b.cfg.CookiesFile)
	if err != nil {
		return nil, err
	}
	if host := b.host(); len(cookies.Filter(jar, host)) == 0 {
		b.out.Warn("No cookies for %s in %s; the session will not be logged in", host, b.cfg.CookiesFile)
	}

	budget := b.budget()
	run := b.runs.Begin(models.KindBrowse, trigger)
	run.Budget = budget
	b.runs.Save(run)

	b.out.Banner(
		"🤖 Starting natural browsing session",
		fmt.Sprintf("📅 Time: %s", b.clock.Now().Format("2006-01-02 15:04:05")),
		fmt.Sprintf("⏱️  Duration: %d minutes %d seconds", int(budget.Minutes()), int(budget.Seconds())%60),
	)
	b.publish(events.Event{Type: events.RunStarted, RunID: run.ID, Remaining: int(budget.Seconds())})
	b.logger.Info("browse run %s started, budget %s", run.ID, budget)

	sess, err := b.launcher.Launch(ctx, browser.LaunchOptions{
		Headless:   b.cfg.Headless,
		Viewport:   browser.Viewport{Width: b.cfg.ViewportWidth, Height: b.cfg.ViewportHeight},
		UserAgent:  b.cfg.UserAgent,
		Locale:     b.cfg.Locale,
		TimezoneID: b.cfg.TimezoneID,
		Cookies:    jar,
	})
	if err != nil {
		err = fmt.Errorf("failed to launch browser: %w", err)
		b.finish(run, err)
		return run, err
	}

	start := b.clock.Now()
	err = b.loop(ctx, browser.WithActionErrors(sess.Page()), run, start.Add(budget))

	elapsed := b.clock.Now().Sub(start)
	b.out.Banner(
		"✅ Browsing session completed!",
		fmt.Sprintf("⏱️  Total time: %d minutes %d seconds", int(elapsed.Minutes()), int(elapsed.Seconds())%60),
		fmt.Sprintf("🎯 Actions performed: %d", run.Actions),
	)

	if ctx.Err() == nil {
		_ = b.pause(ctx, 2*time.Second, 4*time.Second)
	}
	if cerr := sess.Close(); cerr != nil {
		b.logger.Warn("closing browser for run %s: %v", run.ID, cerr)
		if err == nil {
			err = fmt.Errorf("failed to close browser: %w", cerr)
		}
	}

	b.finish(run, err)
	return run, err
}

// loop performs random actions until deadline. Only context errors and the
// initial navigation abort it.
func (b *Browser) loop(ctx context.Context, page browser.Page, run *models.Run, deadline time.Time) error {
	b.out.Printf("🌐 Opening Twitter...")
	if err := b.navigate(ctx, page, "/home"); err != nil {
		return err
	}
	if err := b.pause(ctx, 2*time.Second, 4*time.Second); err != nil {
		return err
	}
	b.dismissPopup(ctx, page)

	for {
		remaining := deadline.Sub(b.clock.Now())
		if remaining <= 0 {
			return nil
		}

		action := b.pick()
		run.Actions++
		b.out.Step("\n[%d] ⏱️  %ds remaining - Action: %s", run.Actions, int(remaining.Seconds()), action)
		b.publish(events.Event{Type: events.Action, RunID: run.ID, Action: action, Remaining: int(remaining.Seconds())})

		if err := b.perform(ctx, page, action); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			b.out.Warn("Could not %s: %v", action, err)
			b.logger.Warn("run %s: %s failed: %v", run.ID, action, err)
			run.Errors = append(run.Errors, err.Error())
			b.publish(events.Event{Type: events.ActionFailed, RunID: run.ID, Action: action, Message: err.Error()})
		}
		b.runs.Save(run)

		if err := b.pause(ctx, 2*time.Second, 5*time.Second); err != nil {
			return err
		}
	}
}

func (b *Browser) perform(ctx context.Context, page browser.Page, action string) error {
	switch action {
	case ActionScroll:
		n := b.intn(2, 5)
		b.out.Printf("  📜 Scrolling %d times...", n)
		for i := 0; i < n; i++ {
			if err := b.scroll(ctx, page); err != nil {
				return err
			}
			if b.chance(0.3) {
				b.out.Printf("  👀 Reading a tweet...")
				if err := b.pause(ctx, 3*time.Second, 8*time.Second); err != nil {
					return err
				}
			}
		}
		return nil

	case ActionRead:
		b.out.Printf("  📖 Reading tweets...")
		return b.pause(ctx, 5*time.Second, 15*time.Second)

	case ActionExplore:
		b.out.Printf("  🔍 Checking Explore page...")
		return b.visit(ctx, page, "/explore", 2*time.Second, 4*time.Second, b.intn(1, 3), 3*time.Second, 7*time.Second)

	case ActionProfile:
		b.out.Printf("  👤 Checking profile...")
		if err := b.navigate(ctx, page, "/home"); err != nil {
			return err
		}
		if err := b.pause(ctx, 2*time.Second, 4*time.Second); err != nil {
			return err
		}
		if err := b.scroll(ctx, page); err != nil {
			return err
		}
		return b.pause(ctx, 3*time.Second, 6*time.Second)

	case ActionTrending:
		b.out.Printf("  🔥 Viewing trending topics...")
		return b.visit(ctx, page, "/explore/tabs/trending", 3*time.Second, 6*time.Second, b.intn(1, 3), 0, 0)
	}
	return fmt.Errorf("unknown action %q", action)
}

// visit opens path, scrolls a few times and returns to the home timeline.
func (b *Browser) visit(ctx context.Context, page browser.Page, path string, settleMin, settleMax time.Duration, scrolls int, lingerMin, lingerMax time.Duration) error {
	if err := b.navigate(ctx, page, path); err != nil {
		return err
	}
	if err := b.pause(ctx, settleMin, settleMax); err != nil {
		return err
	}
	for i := 0; i < scrolls; i++ {
		if err := b.scroll(ctx, page); err != nil {
			return err
		}
	}
	if lingerMax > 0 {
		if err := b.pause(ctx, lingerMin, lingerMax); err != nil {
			return err
		}
	}
	if err := b.navigate(ctx, page, "/home"); err != nil {
		return err
	}
	return b.pause(ctx, 2*time.Second, 3*time.Second)
}

func (b *Browser) scroll(ctx context.Context, page browser.Page) error {
	if err := page.ScrollBy(ctx, b.intn(300, 800)); err != nil {
		return err
	}
	return b.pause(ctx, time.Second, 3*time.Second)
}

func (b *Browser) navigate(ctx context.Context, page browser.Page, path string) error {
	if err := b.limiter.Wait(ctx, b.host()); err != nil {
		return fmt.Errorf("navigation to %s: %w", path, err)
	}
	return page.Goto(ctx, b.cfg.URL(path))
}

func (b *Browser) dismissPopup(ctx context.Context, page browser.Page) {
	if err := page.Click(ctx, "app-bar-close", 2*time.Second); err != nil {
		b.logger.Debug("no popup to dismiss: %v", err)
	}
}

// pause sleeps for a uniform duration in [min, max] or until ctx is done.
func (b *Browser) pause(ctx context.Context, min, max time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-b.clock.After(b.between(min, max)):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Browser) finish(run *models.Run, err error) {
	b.runs.Finish(run, err)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	b.publish(events.Event{Type: events.RunFinished, RunID: run.ID, Message: msg})
	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("browse run %s failed: %v", run.ID, err)
		return
	}
	b.logger.Info("browse run %s finished after %d actions", run.ID, run.Actions)
}

func (b *Browser) publish(e events.Event) {
	if e.Time.IsZero() {
		e.Time = b.clock.Now()
	}
	b.events.Publish(e)
}

func (b *Browser) host() string {
	u, err := url.Parse(b.cfg.BaseURL)
	if err != nil || u.Hostname() == "" {
		return b.cfg.BaseURL
	}
	return u.Hostname()
}

// budget picks a whole number of seconds in [BrowseMin, BrowseMax].
func (b *Browser) budget() time.Duration {
	lo := int(b.cfg.BrowseMin / time.Second)
	hi := int(b.cfg.BrowseMax / time.Second)
	return time.Duration(b.intn(lo, hi)) * time.Second
}

func (b *Browser) pick() string {
	b.rngMu.Lock()
	defer b.rngMu.Unlock()
	return actions[b.rng.IntN(len(actions))]
}

func (b *Browser) intn(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	b.rngMu.Lock()
	defer b.rngMu.Unlock()
	return lo + b.rng.IntN(hi-lo+1)
}

func (b *Browser) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	b.rngMu.Lock()
	defer b.rngMu.Unlock()
	return lo + time.Duration(b.rng.Int64N(int64(hi-lo)+1))
}

func (b *Browser) chance(p float64) bool {
	b.rngMu.Lock()
	defer b.rngMu.Unlock()
	return b.rng.Float64() < p
}
