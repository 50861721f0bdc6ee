// Package cli defines the portalsync command tree.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ewinther/portalsync/internal/adapter/driven/portal"
	"github.com/ewinther/portalsync/internal/adapter/driven/sessionfile"
	"github.com/ewinther/portalsync/internal/application"
	"github.com/ewinther/portalsync/internal/config"
	"github.com/ewinther/portalsync/internal/logging"
)

// app bundles the wiring every subcommand needs: validated config, the
// encrypted session store and the credential manager layered over it.
type app struct {
	cfg     *config.Config
	store   *sessionfile.Store
	manager *application.Manager
	logger  *slog.Logger
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.Default()

	store, err := sessionfile.New(cfg.SessionDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	return &app{
		cfg:     cfg,
		store:   store,
		manager: application.NewManager(store, application.DefaultRefreshBuffer, logger),
		logger:  logger,
	}, nil
}

// newPortalClient builds an initialized-on-demand gateway client wired
// to the credential manager.
func (a *app) newPortalClient() (*portal.Client, error) {
	return portal.NewClient(a.cfg.BaseURL, a.manager,
		portal.WithRateLimit(a.cfg.RateCapacity, a.cfg.RateRefill),
		portal.WithTimeout(a.cfg.RequestTimeout),
		portal.WithLogger(a.logger),
	)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "portalsync",
		Short: "Sync data from the student portal gateway",
		Long: `portalsync automates the portal's single-sign-on ceremony, keeps the
captured credential encrypted on disk, and fetches portal API resources
with client-side rate limiting and caching.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			handler := logging.NewRedactHandler(
				slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(slog.New(handler))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newStatusCmd(),
		newVersionsCmd(),
		newFetchCmd(),
	)
	return root
}

// Execute runs the CLI with the given base context.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
