// Package tweet logs in to the account and posts messages through the web
// UI, reusing a saved session, an exported cookie file or a local browser
// profile.
package tweet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/juju/clock"

	"github.com/shehryarbajwa/birdhouse/internal/browser"
	"github.com/shehryarbajwa/birdhouse/internal/config"
	"github.com/shehryarbajwa/birdhouse/internal/console"
	"github.com/shehryarbajwa/birdhouse/internal/cookies"
	"github.com/shehryarbajwa/birdhouse/internal/logging"
	"github.com/shehryarbajwa/birdhouse/internal/profile"
	"github.com/shehryarbajwa/birdhouse/internal/runs"
	"github.com/shehryarbajwa/birdhouse/pkg/models"
)

// MaxLength is the longest message the compose box accepts.
const MaxLength = 280

const keyDelay = 100 * time.Millisecond

// Test IDs of the elements the flows touch.
const (
	popupClose  = "app-bar-close"
	composeBox  = "tweetTextarea_0"
	postButton  = "tweetButtonInline"
	usernameBox = `input[autocomplete="username"]`
)

var (
	// ErrEmptyMessage is returned for blank messages.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrTooLong is returned for messages over MaxLength characters.
	ErrTooLong = fmt.Errorf("message is longer than %d characters", MaxLength)
	// ErrNoSession is returned when no saved session exists yet.
	ErrNoSession = errors.New("saved session not found, run login first")
	// ErrInterruptedLogin is returned when the session could not be saved
	// after the login wait was interrupted.
	ErrInterruptedLogin = errors.New("login interrupted before the session was saved, let the wait finish instead")
)

// Clock is the part of clock.Clock the flows need.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Options holds the optional collaborators of a Poster.
type Options struct {
	Clock    Clock
	Runs     *runs.Registry
	Profiles *profile.Manager
	Logger   logging.Logger
	Console  *console.Printer
}

// Poster runs the login and posting flows.
type Poster struct {
	launcher browser.Launcher
	cfg      *config.Config
	clock    Clock
	runs     *runs.Registry
	profiles *profile.Manager
	logger   logging.Logger
	out      *console.Printer
}

// New creates a Poster.
func New(launcher browser.Launcher, cfg *config.Config, opts Options) *Poster {
	p := &Poster{
		launcher: launcher,
		cfg:      cfg,
		clock:    opts.Clock,
		runs:     opts.Runs,
		profiles: opts.Profiles,
		logger:   logging.Component(opts.Logger, "tweet"),
		out:      opts.Console,
	}
	if p.clock == nil {
		p.clock = clock.WallClock
	}
	if p.runs == nil {
		p.runs = runs.NewRegistry(0)
	}
	if p.out == nil {
		p.out = console.New(nil)
	}
	return p
}

// Validate checks a message before any browser is opened.
func Validate(message string) error {
	if strings.TrimSpace(message) == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(message) > MaxLength {
		return ErrTooLong
	}
	return nil
}

// Login opens a visible browser on the login page and waits for the user to
// sign in, then saves the session state to AuthFile. Cancelling ctx ends
// the wait early and a save is attempted. A terminal Ctrl+C also reaches the
// playwright driver, which may exit first; the save then fails with
// ErrInterruptedLogin.
func (p *Poster) Login(ctx context.Context) error {
	p.out.Printf("Opening browser for manual login...")

	opts := p.baseOptions()
	opts.Headless = false

	return p.withSession(ctx, models.KindLogin, opts, func(page browser.Page) error {
		if err := page.Goto(ctx, p.cfg.URL("/i/flow/login")); err != nil {
			return err
		}
		if p.cfg.Username != "" {
			if err := page.FillSelector(ctx, usernameBox, p.cfg.Username); err != nil {
				p.out.Warn("Could not prefill the username: %v", err)
			}
		}

		p.out.Banner(
			"PLEASE LOG IN MANUALLY IN THE BROWSER WINDOW",
			fmt.Sprintf("The session is saved after %s", p.cfg.LoginWait),
			"Or press Ctrl+C when done",
		)

		select {
		case <-p.clock.After(p.cfg.LoginWait):
		case <-ctx.Done():
			p.logger.Info("login wait interrupted: %v", ctx.Err())
		}
		return nil
	}, func(sess browser.Session) error {
		if err := sess.SaveState(p.cfg.AuthFile); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %w", ErrInterruptedLogin, err)
			}
			return fmt.Errorf("failed to save session: %w", err)
		}
		p.out.Success("Session saved to %s", p.cfg.AuthFile)
		p.out.Printf("You can now use the 'post' command to send tweets automatically!")
		return nil
	})
}

// Post publishes message using the session saved by Login.
func (p *Poster) Post(ctx context.Context, message string) error {
	if err := Validate(message); err != nil {
		return err
	}
	if _, err := os.Stat(p.cfg.AuthFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", p.cfg.AuthFile, ErrNoSession)
		}
		return fmt.Errorf("failed to read session: %w", err)
	}

	p.out.Printf("Loading saved session...")
	opts := p.baseOptions()
	opts.StorageStatePath = p.cfg.AuthFile

	return p.withSession(ctx, models.KindPost, opts, func(page browser.Page) error {
		return p.composeDirect(ctx, page, message)
	}, nil)
}

// PostWithCookies publishes message using an exported cookie file.
func (p *Poster) PostWithCookies(ctx context.Context, message string) error {
	if err := Validate(message); err != nil {
		return err
	}
	jar, err := cookies.Load(p.cfg.CookiesFile)
	if err != nil {
		return err
	}
	p.out.Printf("Loaded %d cookies from %s", len(jar), p.cfg.CookiesFile)

	opts := p.baseOptions()
	opts.Cookies = jar

	return p.withSession(ctx, models.KindPost, opts, func(page browser.Page) error {
		return p.compose(ctx, page, message, 3*time.Second)
	}, nil)
}

// PostWithProfile publishes message from an installed Chrome using its
// existing profile. With CopyProfile set, a snapshot of the profile is used
// so the live one is left untouched.
func (p *Poster) PostWithProfile(ctx context.Context, message string) error {
	if err := Validate(message); err != nil {
		return err
	}
	dir, err := profile.Locate(p.cfg.ProfileDirs)
	if err != nil {
		return err
	}

	if p.cfg.CopyProfile {
		if p.profiles == nil {
			return fmt.Errorf("profile copies need a snapshot directory")
		}
		snap, err := p.profiles.Snapshot(dir)
		if err != nil {
			return err
		}
		defer func() {
			if derr := p.profiles.Delete(snap.ID); derr != nil {
				p.logger.Warn("removing profile snapshot %s: %v", snap.ID, derr)
			}
		}()

		copyDir, err := p.profiles.Extract(snap.ID)
		if err != nil {
			return err
		}
		defer os.RemoveAll(copyDir)

		p.logger.Info("using copy of %s at %s", dir, copyDir)
		dir = copyDir
	}

	p.out.Printf("Opening your Chrome browser with existing cookies...")
	opts := browser.LaunchOptions{
		Headless:    p.cfg.Headless,
		UserDataDir: dir,
		Channel:     "chrome",
	}

	return p.withSession(ctx, models.KindPost, opts, func(page browser.Page) error {
		return p.compose(ctx, page, message, 3*time.Second)
	}, nil)
}

// compose opens the home timeline, types message into the compose box and
// posts it.
func (p *Poster) compose(ctx context.Context, page browser.Page, message string, settle time.Duration) error {
	p.out.Step("Navigating to Twitter...")
	if err := page.Goto(ctx, p.cfg.URL("/home")); err != nil {
		return err
	}
	if err := p.wait(ctx, settle); err != nil {
		return err
	}

	if err := page.Click(ctx, popupClose, 2*time.Second); err != nil {
		p.logger.Debug("no popup to dismiss: %v", err)
	}

	p.out.Step("Composing tweet...")
	if err := page.Fill(ctx, composeBox, message); err != nil {
		return err
	}
	if err := p.wait(ctx, time.Second); err != nil {
		return err
	}

	p.out.Step("Posting tweet...")
	if err := page.Click(ctx, postButton, 0); err != nil {
		return err
	}
	p.out.Success("Tweet posted successfully!")
	return p.wait(ctx, 3*time.Second)
}

// composeDirect opens the standalone composer and types message key by key.
func (p *Poster) composeDirect(ctx context.Context, page browser.Page, message string) error {
	p.out.Step("Navigating to tweet composer...")
	if err := page.Goto(ctx, p.cfg.URL("/compose/tweet")); err != nil {
		return err
	}
	if err := page.WaitForIdle(ctx); err != nil {
		return err
	}
	if err := p.wait(ctx, 3*time.Second); err != nil {
		return err
	}

	p.out.Step("Typing tweet message...")
	if err := page.Click(ctx, composeBox, 0); err != nil {
		return err
	}
	if err := p.wait(ctx, 500*time.Millisecond); err != nil {
		return err
	}
	if err := page.Type(ctx, composeBox, message, keyDelay); err != nil {
		return err
	}
	if err := p.wait(ctx, time.Second); err != nil {
		return err
	}

	p.out.Step("Posting tweet...")
	if err := page.Click(ctx, postButton, 0); err != nil {
		return err
	}
	p.out.Success("Tweet posted successfully!")
	return p.wait(ctx, 3*time.Second)
}

// withSession launches a browser, runs fn on its page, then runs save (if
// any) and closes the session. The outcome is recorded as a run.
func (p *Poster) withSession(ctx context.Context, kind models.RunKind, opts browser.LaunchOptions, fn func(browser.Page) error, save func(browser.Session) error) (err error) {
	run := p.runs.Begin(kind, models.TriggerManual)
	defer func() {
		p.runs.Finish(run, err)
		if err != nil {
			p.logger.Error("%s run %s failed: %v", kind, run.ID, err)
		}
	}()

	sess, err := p.launcher.Launch(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			p.logger.Warn("closing browser: %v", cerr)
			if err == nil {
				err = fmt.Errorf("failed to close browser: %w", cerr)
			}
		}
	}()

	run.Actions++
	if err := fn(browser.WithActionErrors(sess.Page())); err != nil {
		return err
	}
	if save != nil {
		return save(sess)
	}
	return nil
}

func (p *Poster) baseOptions() browser.LaunchOptions {
	return browser.LaunchOptions{
		Headless:   p.cfg.Headless,
		Viewport:   browser.Viewport{Width: p.cfg.ViewportWidth, Height: p.cfg.ViewportHeight},
		UserAgent:  p.cfg.UserAgent,
		Locale:     p.cfg.Locale,
		TimezoneID: p.cfg.TimezoneID,
	}
}

func (p *Poster) wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-p.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
