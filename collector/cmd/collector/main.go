package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/linkcomfort/linkcomfort/collector/internal/cycle"
	"github.com/linkcomfort/linkcomfort/collector/internal/measure"
	"github.com/linkcomfort/linkcomfort/collector/internal/metrics"
	"github.com/linkcomfort/linkcomfort/pkg/config"
	"github.com/linkcomfort/linkcomfort/pkg/logging"
	"github.com/linkcomfort/linkcomfort/pkg/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand(ctx).Execute(); err != nil {
		slog.Error("collector failed", "err", err)
		cancel()
		os.Exit(1)
	}
}

// options are the flags shared by every subcommand.
type options struct {
	configPath string
	logFile    string
	logLevel   string

	closeLog func() error
}

func (o *options) bindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "Path to config file (default $"+config.EnvConfigPath+" or "+config.DefaultConfigPath+")")
	fs.StringVar(&o.logFile, "log-file", "", "Also append JSON logs to this file")
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

func (o *options) setup() error {
	closeLog, err := logging.Setup(o.logFile, o.logLevel)
	if err != nil {
		return err
	}
	o.closeLog = closeLog
	return nil
}

func (o *options) teardown() {
	if o.closeLog != nil {
		_ = o.closeLog()
	}
}

// loadConfig resolves the config file and opens the store it names.
func (o *options) loadConfig(ctx context.Context) (*config.Config, *store.Store, error) {
	cfg, path, err := config.Resolve(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("config loaded",
		"path", path,
		"db", cfg.Storage.Path,
		"command", cfg.Measurement.Command,
		"retry_count", cfg.Measurement.RetryCount,
		"retention_days", cfg.Storage.RetentionDays,
	)

	st, err := store.Open(ctx, cfg.Storage.Path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

func newRootCommand(ctx context.Context) *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:           "collector",
		Short:         "Measure link quality once and record the sample",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return o.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			o.teardown()
		},
	}
	o.bindFlags(cmd.PersistentFlags())
	cmd.AddCommand(newRunCommand(ctx, o), newCleanupCommand(ctx, o))
	return cmd
}

func newRunCommand(ctx context.Context, o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one measurement cycle: measure, store, prune, export metrics",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cfg, st, err := o.loadConfig(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			c := &cycle.Cycle{
				Measurer:      measure.New(cfg.Measurement),
				Store:         st,
				Scoring:       cfg.Scoring,
				RetentionDays: cfg.Storage.RetentionDays,
			}
			if cfg.Metrics.Textfile != "" {
				c.Exporter = metrics.New()
				c.Textfile = cfg.Metrics.Textfile
			}

			out, err := c.Run(ctx)
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			slog.Info("collector run finished",
				"id", out.ID,
				"status", out.Sample.Status,
				"attempts", out.Attempts,
				"cleaned", out.Cleaned,
			)
			return nil
		},
	}
}

func newCleanupCommand(ctx context.Context, o *options) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete samples older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cfg, st, err := o.loadConfig(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if days <= 0 {
				days = cfg.Storage.RetentionDays
			}
			if _, err := cycle.Cleanup(ctx, st, days); err != nil {
				return fmt.Errorf("cleanup: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Retention in days (default storage.retention_days)")
	return cmd
}
