// Package browsertest provides an in-memory Launcher for exercising flows
// without a browser.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shehryarbajwa/birdhouse/internal/browser"
)

// Call is one recorded page interaction, e.g. "goto https://twitter.com/home".
type Call string

// Launcher records every launch and hands out fake sessions.
type Launcher struct {
	mu       sync.Mutex
	launches []browser.LaunchOptions
	sessions []*Session

	// LaunchErr fails every launch when set.
	LaunchErr error
	// Fail maps a call prefix (e.g. "click app-bar-close") to the error the
	// page returns for it.
	Fail map[string]error
	// OnCall runs after every recorded page call.
	OnCall func(Call)
	// SaveErr fails SaveState when set.
	SaveErr error
}

// Launch implements browser.Launcher.
func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.launches = append(l.launches, opts)
	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &Session{launcher: l}
	s.page = &Page{session: s}
	l.sessions = append(l.sessions, s)
	return s, nil
}

// Launches returns the options of every launch so far.
func (l *Launcher) Launches() []browser.LaunchOptions {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]browser.LaunchOptions(nil), l.launches...)
}

// Sessions returns every session handed out.
func (l *Launcher) Sessions() []*Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Session(nil), l.sessions...)
}

func (l *Launcher) saveErr() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.SaveErr
}

func (l *Launcher) failure(c Call) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for prefix, err := range l.Fail {
		if len(c) >= len(prefix) && string(c[:len(prefix)]) == prefix {
			return err
		}
	}
	return nil
}

// Session is a fake browser session.
type Session struct {
	launcher *Launcher
	page     *Page

	mu     sync.Mutex
	closed int
	saved  []string
}

func (s *Session) Page() browser.Page {
	return s.page
}

// SaveState writes a minimal storage-state document to path.
func (s *Session) SaveState(path string) error {
	s.mu.Lock()
	s.saved = append(s.saved, path)
	s.mu.Unlock()
	if err := s.launcher.saveErr(); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(`{"cookies":[],"origins":[]}`), 0o600)
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// Closed reports how many times Close was called.
func (s *Session) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Saved returns the paths passed to SaveState.
func (s *Session) Saved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.saved...)
}

// Calls returns the interactions recorded on the session's page.
func (s *Session) Calls() []Call {
	return s.page.Calls()
}

// Page is a fake page that records interactions.
type Page struct {
	session *Session

	mu    sync.Mutex
	calls []Call
}

func (p *Page) record(ctx context.Context, c Call) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.calls = append(p.calls, c)
	p.mu.Unlock()

	l := p.session.launcher
	if l.OnCall != nil {
		l.OnCall(c)
	}
	return l.failure(c)
}

// Calls returns the recorded interactions in order.
func (p *Page) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

func (p *Page) Goto(ctx context.Context, url string) error {
	return p.record(ctx, Call("goto "+url))
}

func (p *Page) WaitForIdle(ctx context.Context) error {
	return p.record(ctx, Call("wait idle"))
}

func (p *Page) Click(ctx context.Context, testID string, _ time.Duration) error {
	return p.record(ctx, Call("click "+testID))
}

func (p *Page) Fill(ctx context.Context, testID, text string) error {
	return p.record(ctx, Call(fmt.Sprintf("fill %s %s", testID, text)))
}

func (p *Page) Type(ctx context.Context, testID, text string, _ time.Duration) error {
	return p.record(ctx, Call(fmt.Sprintf("type %s %s", testID, text)))
}

func (p *Page) FillSelector(ctx context.Context, selector, text string) error {
	return p.record(ctx, Call(fmt.Sprintf("fill %s %s", selector, text)))
}

func (p *Page) ScrollBy(ctx context.Context, pixels int) error {
	return p.record(ctx, Call(fmt.Sprintf("scroll %d", pixels)))
}

// ErrElementNotFound is a convenient failure for Fail maps.
var ErrElementNotFound = errors.New("element not found")
