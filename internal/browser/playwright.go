package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/shehryarbajwa/birdhouse/internal/logging"
	"github.com/shehryarbajwa/birdhouse/pkg/models"
)

// Playwright launches Chromium through playwright-go, either locally or in a
// container from Pool.
type Playwright struct {
	// Pool, when set, runs Chrome in a container and connects over CDP.
	Pool *ContainerPool
	// Install downloads the driver and Chromium before the first launch.
	Install bool
	Logger  logging.Logger
}

// NewPlaywright creates a local playwright launcher.
func NewPlaywright(logger logging.Logger) *Playwright {
	return &Playwright{Logger: logging.OrNop(logger)}
}

type pwSession struct {
	pw        *playwright.Playwright
	browser   playwright.Browser
	context   playwright.BrowserContext
	page      *pwPage
	pool      *ContainerPool
	container *BrowserInstance
}

// Launch starts the driver and opens a context with one page. Any resource
// opened before a failure is released.
func (l *Playwright) Launch(ctx context.Context, opts LaunchOptions) (sess Session, err error) {
	logger := logging.OrNop(l.Logger)

	if l.Install {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("failed to install playwright driver: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	s := &pwSession{pw: pw, pool: l.Pool}
	defer func() {
		if err != nil {
			if closeErr := s.Close(); closeErr != nil {
				logger.Warn("cleanup after failed launch: %v", closeErr)
			}
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if opts.UserDataDir != "" {
		if l.Pool != nil {
			return nil, errors.New("persistent profiles cannot be used with a remote browser")
		}
		s.context, err = pw.Chromium.LaunchPersistentContext(opts.UserDataDir, persistentOptions(opts))
		if err != nil {
			return nil, fmt.Errorf("failed to launch persistent context: %w", err)
		}
	} else {
		if l.Pool != nil {
			s.container, err = l.Pool.LaunchBrowser(ctx, uuid.New().String())
			if err != nil {
				return nil, fmt.Errorf("failed to launch remote browser: %w", err)
			}
			logger.Info("connecting to remote browser at %s", s.container.ConnectURL)
			s.browser, err = pw.Chromium.ConnectOverCDP(s.container.ConnectURL)
		} else {
			s.browser, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
				Headless: playwright.Bool(opts.Headless),
				Args:     opts.Args,
				Channel:  optionalString(opts.Channel),
			})
		}
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}

		s.context, err = s.browser.NewContext(contextOptions(opts))
		if err != nil {
			return nil, fmt.Errorf("failed to create browser context: %w", err)
		}
	}

	if len(opts.Cookies) > 0 {
		if err := s.context.AddCookies(toPlaywrightCookies(opts.Cookies)); err != nil {
			return nil, fmt.Errorf("failed to add cookies: %w", err)
		}
	}

	page, err := s.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	s.page = &pwPage{page: page}

	return s, nil
}

func contextOptions(opts LaunchOptions) playwright.BrowserNewContextOptions {
	o := playwright.BrowserNewContextOptions{
		UserAgent:  optionalString(opts.UserAgent),
		Locale:     optionalString(opts.Locale),
		TimezoneId: optionalString(opts.TimezoneID),
	}
	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		o.Viewport = &playwright.Size{Width: opts.Viewport.Width, Height: opts.Viewport.Height}
	}
	if opts.StorageStatePath != "" {
		o.StorageStatePath = playwright.String(opts.StorageStatePath)
	}
	return o
}

func persistentOptions(opts LaunchOptions) playwright.BrowserTypeLaunchPersistentContextOptions {
	o := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:   playwright.Bool(opts.Headless),
		Channel:    optionalString(opts.Channel),
		Args:       opts.Args,
		UserAgent:  optionalString(opts.UserAgent),
		Locale:     optionalString(opts.Locale),
		TimezoneId: optionalString(opts.TimezoneID),
	}
	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		o.Viewport = &playwright.Size{Width: opts.Viewport.Width, Height: opts.Viewport.Height}
	}
	return o
}

func toPlaywrightCookies(in []models.Cookie) []playwright.OptionalCookie {
	out := make([]playwright.OptionalCookie, 0, len(in))
	for _, c := range in {
		out = append(out, playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   playwright.String(c.Domain),
			Path:     playwright.String(c.Path),
			Expires:  playwright.Float(c.Expires),
			HttpOnly: playwright.Bool(c.HTTPOnly),
			Secure:   playwright.Bool(c.Secure),
			SameSite: sameSiteAttribute(c.SameSite),
		})
	}
	return out
}

func sameSiteAttribute(s models.SameSite) *playwright.SameSiteAttribute {
	switch s {
	case models.SameSiteStrict:
		return playwright.SameSiteAttributeStrict
	case models.SameSiteNone:
		return playwright.SameSiteAttributeNone
	default:
		return playwright.SameSiteAttributeLax
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return playwright.String(s)
}

func (s *pwSession) Page() Page {
	return s.page
}

func (s *pwSession) SaveState(path string) error {
	if s.context == nil {
		return errors.New("browser context is not open")
	}
	if _, err := s.context.StorageState(path); err != nil {
		return fmt.Errorf("failed to save session state: %w", err)
	}
	return nil
}

// Close releases the context, browser, container and driver in that order.
func (s *pwSession) Close() error {
	var errs []error
	if s.context != nil {
		if err := s.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close context: %w", err))
		}
		s.context = nil
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
		s.browser = nil
	}
	if s.container != nil && s.pool != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := s.pool.StopBrowser(ctx, s.container.ContainerID); err != nil {
			errs = append(errs, err)
		}
		cancel()
		s.container = nil
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop playwright: %w", err))
		}
		s.pw = nil
	}
	return errors.Join(errs...)
}

type pwPage struct {
	page playwright.Page
}

func (p *pwPage) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url)
	return err
}

func (p *pwPage) WaitForIdle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateNetworkidle,
	})
}

func (p *pwPage) Click(ctx context.Context, testID string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := playwright.LocatorClickOptions{}
	if timeout > 0 {
		opts.Timeout = playwright.Float(float64(timeout.Milliseconds()))
	}
	return p.page.GetByTestId(testID).Click(opts)
}

func (p *pwPage) Fill(ctx context.Context, testID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.GetByTestId(testID).Fill(text)
}

func (p *pwPage) Type(ctx context.Context, testID, text string, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.GetByTestId(testID).PressSequentially(text, playwright.LocatorPressSequentiallyOptions{
		Delay: playwright.Float(float64(delay.Milliseconds())),
	})
}

func (p *pwPage) FillSelector(ctx context.Context, selector, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Locator(selector).Fill(text)
}

func (p *pwPage) ScrollBy(ctx context.Context, pixels int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Evaluate("amount => window.scrollBy(0, amount)", pixels)
	return err
}
