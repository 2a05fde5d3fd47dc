package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/linkcomfort/linkcomfort/pkg/config"
	"github.com/linkcomfort/linkcomfort/pkg/logging"
	"github.com/linkcomfort/linkcomfort/pkg/store"
	"github.com/linkcomfort/linkcomfort/reporter/internal/aggregate"
	"github.com/linkcomfort/linkcomfort/reporter/internal/api"
	"github.com/linkcomfort/linkcomfort/reporter/internal/render"
	"github.com/linkcomfort/linkcomfort/reporter/internal/stream"
)

// shutdownTimeout bounds graceful HTTP shutdown in serve.
const shutdownTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand(ctx).Execute(); err != nil {
		slog.Error("reporter failed", "err", err)
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

// loadConfig resolves the config file and opens the store it names. The
// returned path is empty when built-in defaults are in use.
func (o *options) loadConfig(ctx context.Context) (*config.Config, string, *store.Store, error) {
	cfg, path, err := config.Resolve(o.configPath)
	if err != nil {
		return nil, "", nil, err
	}
	slog.Info("config loaded",
		"path", path,
		"db", cfg.Storage.Path,
		"timezone", cfg.Facility.Timezone,
		"open_hour", cfg.Facility.OpenHour,
		"close_hour", cfg.Facility.CloseHour,
	)

	st, err := store.Open(ctx, cfg.Storage.Path)
	if err != nil {
		return nil, "", nil, err
	}
	return cfg, path, st, nil
}

func newRootCommand(ctx context.Context) *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:           "reporter",
		Short:         "Aggregate stored samples into comfort reports",
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
	cmd.AddCommand(
		newGenerateCommand(ctx, o),
		newSummaryCommand(ctx, o),
		newServeCommand(ctx, o),
	)
	return cmd
}

// generateFlags are the flags of `reporter generate`.
type generateFlags struct {
	days        int
	output      string
	granularity string
	summaryFile string
}

func (f *generateFlags) bindFlags(fs *pflag.FlagSet) {
	fs.IntVar(&f.days, "days", 0, "Days of history in the heatmap (default report.days)")
	fs.StringVarP(&f.output, "output", "o", "", "Output PNG path (default <report.output_dir>/<date>.png)")
	fs.StringVar(&f.granularity, "granularity", "", "Default file name granularity: daily or hourly (default report.granularity)")
	fs.StringVar(&f.summaryFile, "summary-file", "", "Also write the text summary to this path")
}

func (f *generateFlags) validate() error {
	if f.days < 0 {
		return fmt.Errorf("--days must be positive")
	}
	switch f.granularity {
	case "", render.GranularityDaily, render.GranularityHourly:
	default:
		return fmt.Errorf("--granularity %q unknown: want daily|hourly", f.granularity)
	}
	return nil
}

func newGenerateCommand(ctx context.Context, o *options) *cobra.Command {
	f := &generateFlags{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Render the PNG report from stored samples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := f.validate(); err != nil {
				return err
			}
			cfg, _, st, err := o.loadConfig(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			days := f.days
			if days == 0 {
				days = cfg.Report.Days
			}
			granularity := f.granularity
			if granularity == "" {
				granularity = cfg.Report.Granularity
			}

			now := time.Now()
			rep, err := aggregate.Build(ctx, st, now, days, cfg.Report.RecentHours, aggregate.OptionsFromConfig(cfg))
			if err != nil {
				return fmt.Errorf("generate: %w", err)
			}

			path := f.output
			if path == "" {
				path = filepath.Join(cfg.Report.OutputDir, render.DefaultName(granularity, now.In(cfg.Facility.Location())))
			}
			w := render.NewWriter(afero.NewOsFs())
			if err := w.WriteReport(path, rep, render.DefaultStyle()); err != nil {
				return fmt.Errorf("generate: %w", err)
			}
			if f.summaryFile != "" {
				if err := w.WriteSummary(f.summaryFile, rep); err != nil {
					return fmt.Errorf("generate: %w", err)
				}
			}

			counts := rep.Grid.Count()
			slog.Info("report generated",
				"path", path,
				"days", days,
				"samples", rep.Summary.Samples,
				"errors", rep.Summary.Errors,
				"scored_hours", counts[aggregate.CellScored],
				"empty_hours", counts[aggregate.CellNoData],
			)
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	f.bindFlags(cmd.Flags())
	return cmd
}

func newSummaryCommand(ctx context.Context, o *options) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the text summary of recent link comfort",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days < 0 {
				return fmt.Errorf("--days must be positive")
			}
			cfg, _, st, err := o.loadConfig(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if days == 0 {
				days = cfg.Report.Days
			}
			rep, err := aggregate.Build(ctx, st, time.Now(), days, cfg.Report.RecentHours, aggregate.OptionsFromConfig(cfg))
			if err != nil {
				return fmt.Errorf("summary: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.SummaryText(rep))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Days of history to summarize (default report.days)")
	return cmd
}

func newServeCommand(ctx context.Context, o *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API, PNG report, live stream and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cfg, path, st, err := o.loadConfig(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if addr == "" {
				addr = cfg.Server.Addr
			}

			// Auth settings are read once; a reload only swaps report settings.
			auth := cfg.Server.Auth
			key, err := auth.ResolveKey()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			h := api.New(st, api.SettingsFromConfig(cfg))
			hub := stream.New(h, cfg.Server.StreamInterval())
			go hub.Run(ctx)

			mux := http.NewServeMux()
			mux.Handle("/api/", api.RequireAPIKey(auth.Mode, auth.EffectiveHeader(), key, h))
			mux.Handle("/ws/stream", api.RequireAPIKey(auth.Mode, auth.EffectiveHeader(), key, hub))
			mux.Handle("/metrics", h)

			if path != "" {
				go func() {
					err := config.Watch(ctx, path, func(c *config.Config) {
						h.Update(api.SettingsFromConfig(c))
					})
					if err != nil {
						slog.Error("config watch stopped", "path", path, "err", err)
					}
				}()
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}
			errc := make(chan error, 1)
			go func() {
				slog.Info("HTTP server listening", "addr", addr, "auth_mode", auth.Mode)
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("serve: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			slog.Info("reporter shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default server.addr)")
	return cmd
}
