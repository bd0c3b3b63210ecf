package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shehryarbajwa/birdhouse/internal/api"
	"github.com/shehryarbajwa/birdhouse/internal/app"
	"github.com/shehryarbajwa/birdhouse/internal/cookies"
	"github.com/shehryarbajwa/birdhouse/internal/ratelimit"
	"github.com/shehryarbajwa/birdhouse/internal/stream"
	"github.com/shehryarbajwa/birdhouse/pkg/models"
)

var errUsage = errors.New("missing or unknown command")

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(app.Options{}).ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func newRootCmd(opts app.Options) *cobra.Command {
	root := &cobra.Command{
		Use:   "browse",
		Short: "🤖 Browse X/Twitter like a person, now or at random times each day",
		Long: `Browse X/Twitter with an exported cookie file.

  browse browse    - Browse once now
  browse schedule  - Schedule random browsing sessions`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				cmd.Printf("Unknown command: %s\n", args[0])
			}
			cmd.Println("\nAvailable commands:")
			cmd.Println("  browse    - Browse once now")
			cmd.Println("  schedule  - Schedule random browsing sessions")
			return errUsage
		},
	}
	app.Flags(root)

	root.AddCommand(newBrowseCmd(opts))
	root.AddCommand(newScheduleCmd(opts))
	return root
}

func newBrowseCmd(opts app.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse once now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			_, err = a.Browser().Run(cmd.Context(), models.TriggerManual)
			if errors.Is(err, cookies.ErrNotFound) {
				a.Console.Raw(cookies.ExportInstructions(a.Config.CookiesFile))
				return nil
			}
			if errors.Is(err, context.Canceled) {
				a.Console.Warn("Browsing interrupted")
				return nil
			}
			if err != nil {
				cmd.SilenceErrors = true
				a.Console.Error("Error during browsing: %v", err)
			}
			return err
		},
	}
}

func newScheduleCmd(opts app.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule random browsing sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()

			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := os.Stat(a.Config.CookiesFile); errors.Is(err, os.ErrNotExist) {
				a.Console.Raw(cookies.ExportInstructions(a.Config.CookiesFile))
				return nil
			}

			a.Console.Banner(
				"🤖 Twitter Natural Browsing Scheduler",
				"This will schedule random browsing sessions throughout the day",
				"to make your account appear more human-like to X/Twitter.",
			)

			sched := a.Scheduler()
			if err := sched.Start(ctx); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}

			var srv *http.Server
			if a.Config.Listen != "" {
				handler := api.NewHandler(sched, a.Runs)
				limiter := ratelimit.NewLimiter(api.RunsPerHour, time.Hour, 5)
				router := handler.SetupRoutes(stream.NewServer(a.Events), limiter)

				srv = &http.Server{
					Addr:         a.Config.Listen,
					Handler:      router,
					ReadTimeout:  15 * time.Second,
					WriteTimeout: 15 * time.Second,
					IdleTimeout:  60 * time.Second,
				}
				go func() {
					log.Printf("🚀 Status API listening on http://%s/v1", a.Config.Listen)
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						log.Printf("❌ Status API error: %v", err)
					}
				}()
			}

			a.Console.Success("Scheduled! Waiting for next session...")
			a.Console.Printf("💡 Press Ctrl+C to stop the scheduler\n")

			select {
			case <-ctx.Done():
				a.Console.Printf("\n👋 Scheduler stopped by user")
			case <-sched.Done():
			}
			sched.Stop()

			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("status API forced to shutdown: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().String("listen", "", "serve the status API on this address, e.g. 127.0.0.1:8080")
	cmd.Flags().Bool("reshuffle-daily", false, "pick new session times every midnight")
	return cmd
}

func setup(cmd *cobra.Command, opts app.Options) (*app.App, error) {
	cfg, err := app.LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if opts.Stdout == nil {
		opts.Stdout = cmd.OutOrStdout()
	}
	return app.New(cfg, opts)
}
