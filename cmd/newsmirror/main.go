package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eringen/newsmirror"
	"github.com/eringen/newsmirror/store"
)

// version is set at build time via ldflags.
var version = "dev"

var configPath string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "newsmirror",
		Short: "Read-only news backend mirroring a WordPress site",
		Long: `newsmirror keeps an in-memory copy of a WordPress site, refreshed on a
fixed interval, and serves it through a JSON API with full-text search.

Configuration comes from an optional file (--config) and NEWSMIRROR_*
environment variables. WP_BASE_URL, WP_API_KEY, APP_ENV and PORT are
also honored.

Examples:
  newsmirror serve
  newsmirror serve --config newsmirror.yaml
  newsmirror sync`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a config file (yaml, json or toml)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the sync schedule and the HTTP API",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "sync",
			Short: "Run one sync cycle against upstream and print the result",
			RunE:  runSync,
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the newsmirror version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "newsmirror %s\n", version)
			},
		},
	)
	return root
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := newsmirror.LoadConfig(configPath)
	if err != nil {
		return err
	}
	app := newsmirror.New(cfg)
	if err := app.Init(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	select {
	case err := <-errCh:
		_ = app.Close()
		return err
	case <-ctx.Done():
	}

	app.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		app.Log.Error("shutdown", zap.Error(err))
		return err
	}
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := newsmirror.LoadConfig(configPath)
	if err != nil {
		return err
	}
	app := newsmirror.New(cfg)
	if err := app.Init(); err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.Sync.RunOnce(ctx)
	status := app.Store.SyncStatus()

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(struct {
		Status  store.SyncStatus `json:"status"`
		Indexed int              `json:"indexed"`
	}{status, app.Index.Len()}); err != nil {
		return err
	}
	if !status.IsOnline {
		return errors.New("upstream is unreachable")
	}
	return nil
}
