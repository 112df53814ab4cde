package main

import (
	"context"
	"fmt"
	"net/url"

	"htmlinc/internal/alias"
	"htmlinc/internal/browser"
	"htmlinc/internal/dom/live"
	"htmlinc/internal/include"
	"htmlinc/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// browseCmd runs the include pass inside a real browser
var browseCmd = &cobra.Command{
	Use:   "browse <url>",
	Short: "Expand includes inside a browser and print the resulting HTML",
	Long: `Opens <url> in Chrome (launched, or attached via browser.debugger_url),
runs the include pass against the live page so fragment scripts execute,
and prints document.documentElement.outerHTML.`,
	Args: cobra.ExactArgs(1),
	RunE: runBrowse,
}

func browserConfig() browser.Config {
	bc := browser.DefaultConfig()
	bc.Headless = cfg.Browser.Headless
	bc.Bin = cfg.Browser.Bin
	bc.DebuggerURL = cfg.Browser.DebuggerURL
	bc.NavigationTimeout = cfg.GetNavigationTimeout()
	return bc
}

func runBrowse(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmdContext(cmd), timeout)
	defer cancel()

	pageURL, err := url.Parse(args[0])
	if err != nil || !pageURL.IsAbs() {
		return fmt.Errorf("browse needs an absolute URL, got %q", args[0])
	}

	base, err := baseOverride()
	if err != nil {
		return err
	}
	if base == nil {
		base = alias.DirOf(pageURL)
	}

	sm := browser.NewSessionManager(browserConfig(), categoryLogger(logging.CategoryBrowser))
	defer func() {
		if err := sm.Shutdown(context.Background()); err != nil {
			logger.Warn("browser shutdown", zap.Error(err))
		}
	}()

	_, page, err := sm.Open(ctx, pageURL.String())
	if err != nil {
		return err
	}

	engine, err := include.New(include.Options{
		Resolver:    alias.NewResolver(base, cfg.AliasTable()),
		Fetcher:     newFetcher(),
		Logger:      categoryLogger(logging.CategoryInclude),
		Concurrency: cfg.Concurrency,
		MaxDepth:    effectiveDepth(),
	})
	if err != nil {
		return err
	}

	doc := live.New(page)
	report, incErr := engine.IncludeAll(ctx, doc, effectiveSelector())
	summarize(cmd, report, incErr)
	if incErr != nil && report.Err() == nil {
		return incErr
	}

	html, err := doc.HTML()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), html)
	return incErr
}
