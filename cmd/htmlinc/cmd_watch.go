package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"htmlinc/internal/logging"
	"htmlinc/internal/metrics"
	"htmlinc/internal/render"
	"htmlinc/internal/watch"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	watchOut         string
	watchDir         string
	watchMetricsAddr string
)

// watchCmd re-renders a page on change
var watchCmd = &cobra.Command{
	Use:   "watch <page>",
	Short: "Re-render a page whenever it or a fragment changes",
	Long: `Renders <page> to --out, then watches --dir (default: the page's
directory) and renders again after changes settle. With --metrics-addr the
rebuild counters are exposed at /metrics on that address.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOut, "out", "o", "", "Output file (required)")
	watchCmd.Flags().StringVar(&watchDir, "dir", "", "Directory to watch (default: page directory)")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve /metrics on this address")
	_ = watchCmd.MarkFlagRequired("out")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	page := args[0]
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	r, err := newRenderer(m, m)
	if err != nil {
		return err
	}
	log := categoryLogger(logging.CategoryWatch)

	if watchMetricsAddr != "" {
		go serveMetrics(ctx, watchMetricsAddr, reg, log)
	}

	rebuild := newRebuild(cmd, r, page, watchOut, m, log)
	rebuild(ctx, nil)

	dir := watchDir
	if dir == "" {
		dir = filepath.Dir(page)
	}
	w, err := watch.New(watch.Options{
		Dir:      dir,
		Ignore:   []string{watchOut},
		OnChange: rebuild,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer w.Stop()

	fmt.Fprintf(cmd.ErrOrStderr(), "watching %s, writing %s\n", dir, watchOut)
	select {
	case <-ctx.Done():
	case <-w.Done():
	}
	return nil
}

// newRebuild returns the change handler for watch. A nil change list is the
// initial build and is not counted as a rebuild.
func newRebuild(cmd *cobra.Command, r *render.Renderer, page, out string, m *metrics.Collector, log *zap.Logger) watch.ChangeFunc {
	return func(ctx context.Context, changed []string) {
		if changed != nil {
			m.Rebuilds.Inc()
		}
		report, err := r.WriteFile(ctx, page, out)
		summarize(cmd, report, err)
		if err != nil {
			log.Warn("rebuild failed", zap.Strings("changed", changed), zap.Error(err))
			return
		}
		log.Info("rebuilt", zap.String("out", out), zap.Strings("changed", changed))
	}
}

// serveMetrics exposes reg at /metrics until ctx is canceled.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log *zap.Logger) {
	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server failed", zap.Error(err))
	}
}
