package main

import (
	"os"
	"os/signal"
	"syscall"

	"htmlinc/internal/logging"
	"htmlinc/internal/metrics"
	"htmlinc/internal/serve"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var (
	serveRoot string
	serveAddr string
)

// serveCmd runs the development server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a directory, rendering pages on every request",
	Long: `Serves files from --root. Full HTML documents are rendered through the
include engine on each request; fragments and other files are served as-is,
and ?raw skips rendering. /metrics and /healthz are exposed alongside.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveRoot, "root", "", "Directory to serve (default from config)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewWithRegistry(reg)

	r, err := newRenderer(m, m)
	if err != nil {
		return err
	}

	root := serveRoot
	if root == "" {
		root = cfg.Serve.Root
	}
	addr := serveAddr
	if addr == "" {
		addr = cfg.Serve.Addr
	}

	s, err := serve.New(serve.Options{
		Root:     root,
		Addr:     addr,
		Renderer: r,
		Gatherer: reg,
		Logger:   categoryLogger(logging.CategoryServe),
	})
	if err != nil {
		return err
	}
	return s.ListenAndServe(ctx)
}
