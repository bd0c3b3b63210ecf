// Package browser is the boundary between birdhouse and the browser
// automation library. Flows depend on the interfaces here; the playwright
// launcher and the container pool implement them.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shehryarbajwa/birdhouse/pkg/models"
)

// Page is the subset of page interactions the flows use. Elements are
// addressed by their data-testid attribute.
type Page interface {
	Goto(ctx context.Context, url string) error
	// WaitForIdle blocks until the page has no network activity.
	WaitForIdle(ctx context.Context) error
	Click(ctx context.Context, testID string, timeout time.Duration) error
	Fill(ctx context.Context, testID, text string) error
	Type(ctx context.Context, testID, text string, delay time.Duration) error
	FillSelector(ctx context.Context, selector, text string) error
	ScrollBy(ctx context.Context, pixels int) error
}

// Session is an open browser context with a single page.
type Session interface {
	Page() Page
	// SaveState writes the context's cookies and local storage to path.
	SaveState(path string) error
	Close() error
}

// Launcher opens browser sessions.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Session, error)
}

// Viewport is the page size in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

// LaunchOptions configures a browser session.
type LaunchOptions struct {
	Headless   bool
	Viewport   Viewport
	UserAgent  string
	Locale     string
	TimezoneID string
	Args       []string

	// StorageStatePath restores a session state saved by SaveState.
	StorageStatePath string
	// Cookies are added to the context before the page opens.
	Cookies []models.Cookie

	// UserDataDir launches a persistent context on an existing profile.
	UserDataDir string
	// Channel selects an installed browser build, e.g. "chrome".
	Channel string
}

// ActionError names the UI interaction that failed.
type ActionError struct {
	Action string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// FailedAction returns the action name when err is or wraps an ActionError.
func FailedAction(err error) (string, bool) {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Action, true
	}
	return "", false
}

func wrap(action string, err error) error {
	if err == nil {
		return nil
	}
	var ae *ActionError
	if errors.As(err, &ae) {
		return err
	}
	return &ActionError{Action: action, Err: err}
}

type namedPage struct {
	page Page
}

// WithActionErrors wraps every error returned by p in an ActionError naming
// the interaction.
func WithActionErrors(p Page) Page {
	if _, ok := p.(namedPage); ok {
		return p
	}
	return namedPage{page: p}
}

func (n namedPage) Goto(ctx context.Context, url string) error {
	return wrap("goto "+url, n.page.Goto(ctx, url))
}

func (n namedPage) WaitForIdle(ctx context.Context) error {
	return wrap("wait for network idle", n.page.WaitForIdle(ctx))
}

func (n namedPage) Click(ctx context.Context, testID string, timeout time.Duration) error {
	return wrap("click "+testID, n.page.Click(ctx, testID, timeout))
}

func (n namedPage) Fill(ctx context.Context, testID, text string) error {
	return wrap("fill "+testID, n.page.Fill(ctx, testID, text))
}

func (n namedPage) Type(ctx context.Context, testID, text string, delay time.Duration) error {
	return wrap("type "+testID, n.page.Type(ctx, testID, text, delay))
}

func (n namedPage) FillSelector(ctx context.Context, selector, text string) error {
	return wrap("fill "+selector, n.page.FillSelector(ctx, selector, text))
}

func (n namedPage) ScrollBy(ctx context.Context, pixels int) error {
	return wrap(fmt.Sprintf("scroll %dpx", pixels), n.page.ScrollBy(ctx, pixels))
}
