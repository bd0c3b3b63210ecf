package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/birdhouse/internal/app"
	"github.com/shehryarbajwa/birdhouse/internal/browser/browsertest"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

func execute(t *testing.T, l *browsertest.Launcher, args ...string) (string, error) {
	t.Helper()
	t.Setenv("BIRDHOUSE_NAVIGATIONS_PER_MINUTE", "0")

	var out bytes.Buffer
	cmd := newRootCmd(app.Options{
		Stdout:    &out,
		LogOutput: &bytes.Buffer{},
		Launcher:  l,
		Clock:     &stepClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
	})
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := cmd.Execute()
	return out.String(), err
}

func TestNoArgsPrintsUsage(t *testing.T) {
	l := &browsertest.Launcher{}
	out, err := execute(t, l)
	require.ErrorIs(t, err, errUsage)
	assert.Contains(t, out, "Available commands:")
	assert.Empty(t, l.Launches())
}

func TestUnknownVerb(t *testing.T) {
	l := &browsertest.Launcher{}
	out, err := execute(t, l, "dance")
	require.ErrorIs(t, err, errUsage)
	assert.Contains(t, out, "Unknown command: dance")
	assert.Contains(t, out, "schedule  - Schedule random browsing sessions")
	assert.Empty(t, l.Launches())
}

func TestBrowseWithoutCookiesPrintsInstructions(t *testing.T) {
	l := &browsertest.Launcher{}
	missing := filepath.Join(t.TempDir(), "twitter_cookies.json")

	out, err := execute(t, l, "browse", "--cookies-file", missing)
	require.NoError(t, err)
	assert.Contains(t, out, "How to export cookies")
	assert.Empty(t, l.Launches())
}

func TestScheduleWithoutCookiesPrintsInstructions(t *testing.T) {
	l := &browsertest.Launcher{}
	missing := filepath.Join(t.TempDir(), "twitter_cookies.json")

	out, err := execute(t, l, "schedule", "--cookies-file", missing)
	require.NoError(t, err)
	assert.Contains(t, out, "How to export cookies")
	assert.Empty(t, l.Launches())
}

func TestBrowseRunsSession(t *testing.T) {
	l := &browsertest.Launcher{}
	path := filepath.Join(t.TempDir(), "twitter_cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name":"auth_token","value":"x","domain":".twitter.com"}]`), 0o600))

	out, err := execute(t, l, "browse", "--cookies-file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Browsing session completed!")

	require.Len(t, l.Launches(), 1)
	assert.Equal(t, 1, l.Sessions()[0].Closed())
}

func TestBrowseFailurePrintedOnce(t *testing.T) {
	l := &browsertest.Launcher{LaunchErr: errors.New("chrome not installed")}
	path := filepath.Join(t.TempDir(), "twitter_cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name":"auth_token","value":"x","domain":".twitter.com"}]`), 0o600))

	out, err := execute(t, l, "browse", "--cookies-file", path)
	require.Error(t, err)
	assert.Equal(t, 1, strings.Count(out, "chrome not installed"), out)
	assert.Contains(t, out, "Error during browsing")
	assert.NotContains(t, out, "Error: ")
}

func TestBrowseRejectsExtraArgs(t *testing.T) {
	l := &browsertest.Launcher{}
	_, err := execute(t, l, "browse", "now")
	require.Error(t, err)
	assert.Empty(t, l.Launches())
}
