package cli

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/talgya/reson/internal/api"
	"github.com/talgya/reson/internal/persistence"
)

// defaultRatePerMinute bounds API requests per client IP.
const defaultRatePerMinute = 600

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database string
	Listen   string
	Rate     int
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve recorded runs over HTTP",
		Long: `Serve the runs recorded in a SQLite database as a read-only JSON API:

  GET /api/v1/status
  GET /api/v1/runs?limit=N
  GET /api/v1/run/:id
  GET /api/v1/run/:id/samples?resource=NAME
  GET /api/v1/run/:id/pools?pool=NAME
  GET /api/v1/run/:id/anomalies`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(slog.LevelInfo, opts.Verbose)

			db, err := persistence.Open(opts.Database)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			defer db.Close()

			srv := &api.Server{DB: db, Addr: opts.Listen}
			if opts.Rate > 0 {
				srv.Limiter = api.NewRateLimiter(opts.Rate, time.Minute)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := srv.Start(ctx); err != nil {
				return WrapExitError(ExitFailure, "server failed", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Listen, "listen", ":8080", "address to listen on")
	cmd.Flags().IntVar(&opts.Rate, "rate", defaultRatePerMinute, "requests per minute per client IP (0 disables)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}
