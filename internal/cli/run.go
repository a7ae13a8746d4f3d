package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/assetsched/internal/engine"
	"github.com/roach88/assetsched/internal/metrics"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	StoreFlags
	Interval  time.Duration
	Selection string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <definitions>...",
		Short: "Start the automation daemon",
		Long: `Start the automation daemon for the given definitions.

The daemon ticks on the configured interval. Each tick evaluates every asset,
records the requested runs and advances the sensor cursor in one
transaction. A failed tick writes nothing and is retried on the next
interval.

Example:
  assetsched run --db ./assetsched.db ./defs
  assetsched run --config ./assetsched.yaml --interval 10s ./defs --verbose`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.Sensor, "sensor", "", "sensor name (overrides config)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "tick interval (overrides config)")
	cmd.Flags().StringVar(&opts.Selection, "select", "", "comma-separated asset keys to evaluate (default: all)")

	return cmd
}

func runDaemon(opts *RunOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	s, err := openSession(formatter, opts.RootOptions, opts.StoreFlags, paths)
	if err != nil {
		return err
	}
	defer s.Close()

	selection, err := parseSelection(opts.Selection, s.project.Graph)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid --select", err)
	}
	dcfg, err := s.daemonConfig(selection)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid config", err)
	}
	if opts.Interval > 0 {
		dcfg.Interval = opts.Interval
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			s.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var sink metrics.Sink = metrics.NewNoopSink()
	if s.cfg.MetricsEnabled {
		registry := prometheus.NewRegistry()
		srv := serveMetrics(s.cfg.MetricsAddr, s.cfg.MetricsPath, registry)
		defer shutdownMetrics(srv)
		s.logger.Info("metrics server started", "addr", s.cfg.MetricsAddr, "path", s.cfg.MetricsPath)
		sink = metrics.NewPrometheusSink(registry)
	}

	daemon := engine.NewDaemon(dcfg, s.project.Graph, s.store, sink, nil)

	s.logger.Info("daemon starting", "db", s.cfg.Database, "sensor", dcfg.Sensor, "interval", dcfg.Interval)
	fmt.Fprintln(cmd.OutOrStdout(), "Daemon started. Press Ctrl-C to stop.")

	if err := daemon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "daemon error", err)
	}
	s.logger.Info("daemon stopped gracefully")
	return nil
}

func serveMetrics(addr, path string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}

func shutdownMetrics(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("metrics server shutdown", "error", err)
	}
}
