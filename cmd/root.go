package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"user-notifier/internal/app"
	"user-notifier/internal/config"
	"user-notifier/internal/logger"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "user-notifier",
	Short: "Per-user notification preferences and channel dispatch",
	Long: "Stores which channels each user accepts notifications on and fans " +
		"notifications out to email, SMS and WhatsApp through a work queue.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(serveCmd)
}

// run loads configuration, connects the backends and runs the selected
// roles until SIGINT or SIGTERM.
func run(api, workers bool) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.App)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if a != nil {
			if err := a.Close(closeCtx); err != nil {
				log.Error("closing backends", slog.String("error", err.Error()))
			}
		}
	}()
	if err != nil {
		return fmt.Errorf("starting backends: %w", err)
	}

	return a.Run(ctx, api, workers)
}

func newLogger(cfg config.App) (*slog.Logger, error) {
	opts := []logger.Option{logger.WithEnvironment(cfg.Env, cfg.ServiceName)}
	if cfg.LogLevel != "" {
		level, err := logger.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		opts = append(opts, logger.WithLevel(level))
	}
	if cfg.LogFormat != "" {
		opts = append(opts, logger.WithFormat(logger.Format(cfg.LogFormat)))
	}
	return logger.New(opts...)
}
