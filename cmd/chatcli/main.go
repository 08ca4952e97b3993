package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"campustrade/internal/infra/obs"
	"campustrade/internal/infra/platform"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
)

type flags struct {
	Server   string
	UserID   string
	Name     string
	LogLevel string

	logger *slog.Logger
	client *platform.Client
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f := &flags{}
	app := &cli.Command{
		Name:      "chatcli",
		Usage:     "Talk to buyers and sellers from the terminal",
		UsageText: "chatcli [global options] command [command options]",
		Version:   fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "server",
				Usage:       "platform base URL",
				Sources:     cli.EnvVars("CAMPUSTRADE_SERVER"),
				Value:       "http://localhost:8080",
				Destination: &f.Server,
			},
			&cli.StringFlag{
				Name:        "user",
				Aliases:     []string{"u"},
				Usage:       "user id to sign in as",
				Sources:     cli.EnvVars("CAMPUSTRADE_USER"),
				Required:    true,
				Destination: &f.UserID,
			},
			&cli.StringFlag{
				Name:        "name",
				Usage:       "display name recorded on sign in",
				Sources:     cli.EnvVars("CAMPUSTRADE_NAME"),
				Destination: &f.Name,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("LOG_LEVEL"),
				Value:       "warn",
				Destination: &f.LogLevel,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			f.logger = obs.NewConsoleLogger(f.LogLevel, os.Stderr)
			f.client = platform.NewClient(f.Server, f.logger)
			return ctx, nil
		},
	}

	app = newLoginCmd(f).Register(app)
	app = newInboxCmd(f).Register(app)
	app = newChatCmd(f).Register(app)

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// signIn obtains a token for the configured user.
func (f *flags) signIn(ctx context.Context) error {
	name := f.Name
	if name == "" {
		name = f.UserID
	}
	if _, err := f.client.Login(ctx, f.UserID, name); err != nil {
		return fmt.Errorf("sign in as %s: %w", f.UserID, err)
	}
	return nil
}
