// Package app wires configuration, logging and the browser launcher into
// the flows both command-line tools run.
package app

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/shehryarbajwa/birdhouse/internal/browse"
	"github.com/shehryarbajwa/birdhouse/internal/browser"
	"github.com/shehryarbajwa/birdhouse/internal/config"
	"github.com/shehryarbajwa/birdhouse/internal/console"
	"github.com/shehryarbajwa/birdhouse/internal/events"
	"github.com/shehryarbajwa/birdhouse/internal/logging"
	"github.com/shehryarbajwa/birdhouse/internal/profile"
	"github.com/shehryarbajwa/birdhouse/internal/ratelimit"
	"github.com/shehryarbajwa/birdhouse/internal/runs"
	"github.com/shehryarbajwa/birdhouse/internal/schedule"
	"github.com/shehryarbajwa/birdhouse/internal/tweet"
)

// Options overrides parts of the wiring, mostly for tests.
type Options struct {
	Stdout    io.Writer
	LogOutput io.Writer
	// Launcher replaces the playwright launcher.
	Launcher browser.Launcher
	// Clock replaces the wall clock of the flows.
	Clock browse.Clock
}

// App holds the shared dependencies of one command invocation.
type App struct {
	Config   *config.Config
	Logger   logging.Logger
	Console  *console.Printer
	Launcher browser.Launcher
	Runs     *runs.Registry
	Events   *events.Hub

	clock   browse.Clock
	closers []func() error
}

// New builds an App from cfg.
func New(cfg *config.Config, opts Options) (*App, error) {
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, opts.LogOutput)

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Console: console.New(opts.Stdout),
		Runs:    runs.NewRegistry(runs.DefaultLimit),
		Events:  events.NewHub(64),
		clock:   opts.Clock,
	}

	if opts.Launcher != nil {
		a.Launcher = opts.Launcher
		return a, nil
	}

	pw := browser.NewPlaywright(logging.Component(logger, "browser"))
	if cfg.Remote {
		pool, err := browser.NewContainerPool(cfg.DockerImage)
		if err != nil {
			return nil, fmt.Errorf("failed to create container pool: %w", err)
		}
		pw.Pool = pool
		a.closers = append(a.closers, pool.Close)
	}
	a.Launcher = pw
	return a, nil
}

// Browser returns the browsing loop.
func (a *App) Browser() *browse.Browser {
	return browse.New(a.Launcher, a.Config, browse.Options{
		Clock:   a.clock,
		Limiter: ratelimit.NewLimiter(a.Config.NavigationsPerMinute, time.Minute, 2),
		Events:  a.Events,
		Runs:    a.Runs,
		Logger:  a.Logger,
		Console: a.Console,
	})
}

// Poster returns the login and posting flows.
func (a *App) Poster() (*tweet.Poster, error) {
	var profiles *profile.Manager
	if a.Config.CopyProfile {
		mgr, err := profile.NewManager(a.Config.SnapshotDir)
		if err != nil {
			return nil, err
		}
		profiles = mgr
	}

	return tweet.New(a.Launcher, a.Config, tweet.Options{
		Clock:    a.clock,
		Runs:     a.Runs,
		Profiles: profiles,
		Logger:   a.Logger,
		Console:  a.Console,
	}), nil
}

// Scheduler returns a scheduler that runs the browsing loop.
func (a *App) Scheduler() *schedule.Scheduler {
	b := a.Browser()
	return schedule.New(a.Config, b.Run, schedule.Options{
		Runs:    a.Runs,
		Events:  a.Events,
		Logger:  a.Logger,
		Console: a.Console,
	})
}

// Close releases the container pool, if any.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// Flags registers the flags shared by both tools. Their names match config
// keys with dashes for underscores.
func Flags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("config", "", "config file (yaml, json or toml)")
	f.String("env-file", ".env", "environment file to load")
	f.Bool("headless", false, "run the browser without a window")
	f.Bool("remote", false, "run Chrome in a local docker container")
	f.String("cookies-file", "twitter_cookies.json", "cookie export from a browser extension")
	f.String("auth-file", "twitter.json", "saved session state")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	f.String("log-format", "text", "log format (text or json)")
}

// LoadConfig reads configuration with cmd's flags taking precedence.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	file, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")
	return config.Load(config.LoadOptions{
		File:    file,
		EnvFile: envFile,
		Flags:   cmd.Flags(),
	})
}
