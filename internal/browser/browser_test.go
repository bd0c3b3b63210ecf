package browser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/birdhouse/pkg/models"
)

type failingPage struct {
	err error
}

func (f failingPage) Goto(context.Context, string) error                        { return f.err }
func (f failingPage) WaitForIdle(context.Context) error                         { return f.err }
func (f failingPage) Click(context.Context, string, time.Duration) error        { return f.err }
func (f failingPage) Fill(context.Context, string, string) error                { return f.err }
func (f failingPage) Type(context.Context, string, string, time.Duration) error { return f.err }
func (f failingPage) FillSelector(context.Context, string, string) error        { return f.err }
func (f failingPage) ScrollBy(context.Context, int) error                       { return f.err }

func TestWithActionErrorsNamesAction(t *testing.T) {
	boom := errors.New("timeout 2000ms exceeded")
	page := WithActionErrors(failingPage{err: boom})
	ctx := context.Background()

	err := page.Click(ctx, "app-bar-close", 2*time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	action, ok := FailedAction(err)
	require.True(t, ok)
	assert.Equal(t, "click app-bar-close", action)

	action, _ = FailedAction(page.Goto(ctx, "https://twitter.com/explore"))
	assert.Equal(t, "goto https://twitter.com/explore", action)

	action, _ = FailedAction(page.ScrollBy(ctx, 420))
	assert.Equal(t, "scroll 420px", action)

	action, _ = FailedAction(page.Fill(ctx, "tweetTextarea_0", "hi"))
	assert.Equal(t, "fill tweetTextarea_0", action)

	action, _ = FailedAction(page.Type(ctx, "tweetTextarea_0", "hi", 100*time.Millisecond))
	assert.Equal(t, "type tweetTextarea_0", action)

	action, _ = FailedAction(page.WaitForIdle(ctx))
	assert.Equal(t, "wait for network idle", action)
}

func TestWithActionErrorsPassesSuccess(t *testing.T) {
	page := WithActionErrors(failingPage{})
	assert.NoError(t, page.Goto(context.Background(), "x"))
	assert.Equal(t, page, WithActionErrors(page))
}

func TestWrapKeepsInnermostAction(t *testing.T) {
	inner := &ActionError{Action: "click a", Err: errors.New("x")}
	err := wrap("click b", inner)
	action, _ := FailedAction(err)
	assert.Equal(t, "click a", action)
}

func TestFailedActionPlainError(t *testing.T) {
	_, ok := FailedAction(errors.New("x"))
	assert.False(t, ok)
}

func TestToPlaywrightCookies(t *testing.T) {
	got := toPlaywrightCookies([]models.Cookie{
		{Name: "a", Value: "1", Domain: ".twitter.com", Path: "/", Expires: -1, SameSite: models.SameSiteNone, Secure: true},
		{Name: "b", Value: "2", Domain: "twitter.com", Path: "/", Expires: 10, SameSite: models.SameSiteStrict},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, ".twitter.com", *got[0].Domain)
	assert.Equal(t, -1.0, *got[0].Expires)
	assert.True(t, *got[0].Secure)
	assert.Equal(t, playwright.SameSiteAttributeNone, got[0].SameSite)
	assert.Equal(t, playwright.SameSiteAttributeStrict, got[1].SameSite)
}

func TestContextOptions(t *testing.T) {
	o := contextOptions(LaunchOptions{
		Viewport:         Viewport{Width: 1280, Height: 720},
		UserAgent:        "ua",
		StorageStatePath: "twitter.json",
	})
	require.NotNil(t, o.Viewport)
	assert.Equal(t, 1280, o.Viewport.Width)
	assert.Equal(t, "ua", *o.UserAgent)
	assert.Equal(t, "twitter.json", *o.StorageStatePath)
	assert.Nil(t, o.Locale)
}

func TestWaitForBrowserReady(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"Browser":"HeadlessChrome"}`))
	}))
	defer srv.Close()

	require.NoError(t, waitForBrowserReady(context.Background(), srv.URL+"/json/version"))
	assert.GreaterOrEqual(t, hits.Load(), int32(2))
}

func TestWaitForBrowserReadyCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, waitForBrowserReady(ctx, srv.URL), context.DeadlineExceeded)
}
