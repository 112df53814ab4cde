// Package main implements the htmlinc CLI.
package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"htmlinc/internal/alias"
	"htmlinc/internal/config"
	"htmlinc/internal/fetch"
	"htmlinc/internal/include"
	"htmlinc/internal/logging"
	"htmlinc/internal/render"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	// Shared per-command flags
	selector string
	baseFlag string
	maxDepth int

	cfg    *config.Config
	logs   *logging.Logging
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "htmlinc",
	Short: "Expand data-include fragments in HTML pages",
	Long: `htmlinc replaces every element carrying a data-include attribute with the
fragment it names. Fragments are fetched over http(s) or from disk, filled
with {{ key | default }} parameters, and spliced in place of the host.

Sources may start with an alias such as @ui/ or @layout/, which resolve to
directories under components/.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", configPath, err)
		}

		lc := logging.Config{
			Level:      cfg.Logging.Level,
			Format:     cfg.Logging.Format,
			Dir:        cfg.Logging.Dir,
			Categories: cfg.Logging.Categories,
		}
		if verbose {
			lc.Level = "debug"
		}
		logs, err = logging.New(lc, cmd.ErrOrStderr())
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = logs.Root()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logs != nil {
			_ = logs.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultFile, "Config file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	for _, c := range []*cobra.Command{renderCmd, serveCmd, watchCmd, browseCmd} {
		c.Flags().StringVar(&selector, "selector", "", "CSS selector for hosts (default from config)")
		c.Flags().StringVar(&baseFlag, "base", "", "Base URL or directory for relative sources")
		c.Flags().IntVar(&maxDepth, "depth", 0, "Nested include passes (default from config)")
	}

	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// categoryLogger returns the logger for a category, falling back to a named
// child of logger when logging was not built from config.
func categoryLogger(c logging.Category) *zap.Logger {
	if logs != nil {
		return logs.Get(c)
	}
	return logging.For(logger, c)
}

func effectiveSelector() string {
	if selector != "" {
		return selector
	}
	return cfg.Selector
}

func effectiveDepth() int {
	if maxDepth > 0 {
		return maxDepth
	}
	return cfg.MaxDepth
}

// baseOverride returns the --base flag or the configured base, or nil when
// pages resolve against their own directory.
func baseOverride() (*url.URL, error) {
	raw := baseFlag
	if raw == "" {
		raw = cfg.Base
	}
	if raw == "" {
		return nil, nil
	}
	return alias.ParseBase(raw)
}

func newFetcher() *fetch.Client {
	return fetch.New(fetch.Options{
		Timeout:      cfg.GetFetchTimeout(),
		Retries:      cfg.Fetch.Retries,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		UserAgent:    cfg.Fetch.UserAgent,
		Logger:       categoryLogger(logging.CategoryFetch),
	})
}

func newRenderer(hosts include.Metrics, pages render.PageObserver) (*render.Renderer, error) {
	opts := render.Options{
		Table:       cfg.AliasTable(),
		Fetcher:     newFetcher(),
		Selector:    effectiveSelector(),
		Concurrency: cfg.Concurrency,
		MaxDepth:    effectiveDepth(),
		Logger:      categoryLogger(logging.CategoryInclude),
		Hosts:       hosts,
		Pages:       pages,
	}
	base, err := baseOverride()
	if err != nil {
		return nil, err
	}
	opts.Base = base
	return render.New(opts)
}

// summarize prints the outcome of a run, and each failure, to stderr.
func summarize(cmd *cobra.Command, report *include.Report, err error) {
	if report == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d inserted, %d skipped, %d failed\n",
		report.Count(include.OutcomeInserted),
		report.Count(include.OutcomeSkipped),
		report.Count(include.OutcomeFailed))
	var be *include.BatchError
	if errors.As(err, &be) {
		for _, e := range be.Errors() {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %v\n", e)
		}
	}
}
