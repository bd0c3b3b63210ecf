package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shehryarbajwa/birdhouse/internal/app"
	"github.com/shehryarbajwa/birdhouse/internal/cookies"
	"github.com/shehryarbajwa/birdhouse/internal/profile"
	"github.com/shehryarbajwa/birdhouse/internal/tweet"
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
		Use:   "tweet",
		Short: "🐦 Log in to X/Twitter and post from the command line",
		Long: `Log in to X/Twitter and post from the command line.

  Login:           tweet login
  Post (saved):    tweet post 'Your message'
  Post (cookies):  tweet cookies 'Your message'
  Post (browser):  tweet browser 'Your message'`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				cmd.Printf("Unknown command: %s\n", args[0])
				cmd.Println("Available commands: login, post, cookies, browser")
				return errUsage
			}
			cmd.Println(cmd.Long)
			return errUsage
		},
	}
	app.Flags(root)

	root.AddCommand(&cobra.Command{
		Use:   "login",
		Short: "Log in manually and save the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			a, poster, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			return poster.Login(cmd.Context())
		},
	})

	root.AddCommand(newPostCmd(opts, "post", "Post using the session saved by login",
		func(p *tweet.Poster) postFunc { return p.Post }))
	root.AddCommand(newPostCmd(opts, "cookies", "Post using cookies exported from your browser",
		func(p *tweet.Poster) postFunc { return p.PostWithCookies }))
	root.AddCommand(newPostCmd(opts, "browser", "Post using your existing Chrome profile",
		func(p *tweet.Poster) postFunc { return p.PostWithProfile }))

	return root
}

type postFunc func(ctx context.Context, message string) error

func newPostCmd(opts app.Options, name, short string, flow func(*tweet.Poster) postFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name + " <message>",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			if err := tweet.Validate(message); err != nil {
				return err
			}
			cmd.SilenceUsage = true

			a, poster, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			err = flow(poster)(cmd.Context(), message)
			switch {
			case errors.Is(err, tweet.ErrNoSession):
				a.Console.Error("%s not found. Please run login first:", a.Config.AuthFile)
				a.Console.Printf("  tweet login")
				return nil
			case errors.Is(err, cookies.ErrNotFound):
				a.Console.Raw(cookies.ExportInstructions(a.Config.CookiesFile))
				return nil
			case errors.Is(err, profile.ErrNoProfile):
				a.Console.Error("No browser profile found. Use 'login' command instead.")
				return nil
			case err != nil:
				cmd.SilenceErrors = true
				a.Console.Error("Could not post: %v", err)
				return err
			}
			return nil
		},
	}
	if name == "browser" {
		cmd.Flags().Bool("copy-profile", false, "use a copy of the profile so Chrome can stay open")
	}
	return cmd
}

func setup(cmd *cobra.Command, opts app.Options) (*app.App, *tweet.Poster, error) {
	cfg, err := app.LoadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if opts.Stdout == nil {
		opts.Stdout = cmd.OutOrStdout()
	}
	a, err := app.New(cfg, opts)
	if err != nil {
		return nil, nil, err
	}
	poster, err := a.Poster()
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, poster, nil
}
