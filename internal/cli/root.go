// Package cli provides the command-line interface for pricecat.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pricecat/internal/app"
	"github.com/raphaelgruber/pricecat/internal/client"
	"github.com/raphaelgruber/pricecat/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	cfg         config.Config
	logger      *slog.Logger
	closeLogger func() error

	// Lazy-initialized local app
	local *app.App
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "pricecat",
	Short: "Unit-price catalog indexing and semantic search",
	Long: `Pricecat indexes construction unit-price catalogs and answers
natural-language questions with the closest catalog entries.

Rows come from an extraction process (or 'pricecat import'), are
vectorized in resumable batches and searched by meaning.

With --server, read commands talk to a running pricecat-server instead
of opening the store directly.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}
		logger, closeLogger = config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if local != nil {
			if err := local.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
			}
			local = nil
		}
		if closeLogger != nil {
			_ = closeLogger()
		}
	},
}

// getApp connects the configured store and builds the services on first use.
func getApp(ctx context.Context) (*app.App, error) {
	if local != nil {
		return local, nil
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	local = a
	return local, nil
}

// getBackend returns the server client when --server is set, the local
// app otherwise.
func getBackend(ctx context.Context) (backend, error) {
	if serverURL != "" {
		return remoteBackend{client.New(serverURL)}, nil
	}
	a, err := getApp(ctx)
	if err != nil {
		return nil, err
	}
	return localBackend{a}, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "pricecat-server base URL (e.g. http://localhost:8585)")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(vectorizeCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(jobsCmd)
}
