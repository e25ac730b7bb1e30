package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/graffic/quotebot/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	// Configure slog with debug level
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	slog.SetDefault(slog.New(handler))

	if err := newRootCmd().Execute(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var env string

	cmd := &cobra.Command{
		Use:           "quotebot",
		Short:         "Telegram bot serving quotes a user has not seen yet",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, env, serve)
		},
	}
	cmd.PersistentFlags().StringVar(&env, "env", config.Environment(), "Environment, selects config/<env>.yaml")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the bot, the scheduled jobs and the metrics server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, env, serve)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, env, func(context.Context, *app) error { return nil })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "backup",
		Short: "Write today's SQLite snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, env, runBackup)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "update-quote <id>",
		Short: "Fetch one quote from the source and store it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid quote id %q", args[0])
			}
			return withApp(cmd, env, func(ctx context.Context, a *app) error {
				return updateQuote(ctx, a, id)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Run one ingestion sweep",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, env, runSweep)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print database statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, env, func(ctx context.Context, a *app) error {
				return printStats(ctx, a, cmd.OutOrStdout())
			})
		},
	})

	return cmd
}

// withApp loads the configuration, opens and migrates the stores, runs fn
// and closes everything.
func withApp(cmd *cobra.Command, env string, fn func(context.Context, *app) error) error {
	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer a.close()

	err = fn(ctx, a)
	if errors.Is(err, context.Canceled) {
		slog.Info("graceful shutdown completed")
		return nil
	}
	return err
}
