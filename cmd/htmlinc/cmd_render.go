package main

import (
	"context"
	"fmt"

	"htmlinc/internal/include"

	"github.com/spf13/cobra"
)

var renderOut string

// renderCmd renders one page
var renderCmd = &cobra.Command{
	Use:   "render <page>",
	Short: "Expand the includes of a page",
	Long: `Renders a page with every data-include host replaced by its fragment.
The page's directory is the base for relative sources unless --base is set.

Output goes to stdout, or to --out. Hosts that fail stay in place; the page
is still written and the command exits non-zero.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "", "Output file (default stdout)")
}

func runRender(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmdContext(cmd), timeout)
	defer cancel()

	r, err := newRenderer(nil, nil)
	if err != nil {
		return err
	}

	var report *include.Report
	if renderOut == "" {
		report, err = r.RenderFile(ctx, args[0], cmd.OutOrStdout())
	} else {
		report, err = r.WriteFile(ctx, args[0], renderOut)
	}
	summarize(cmd, report, err)
	if err != nil {
		return fmt.Errorf("render %s: %w", args[0], err)
	}
	return nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
