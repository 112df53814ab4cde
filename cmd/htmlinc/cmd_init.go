package main

import (
	"fmt"
	"os"

	"htmlinc/internal/config"

	"github.com/spf13/cobra"
)

var initForce bool

// initCmd writes a starter config
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default htmlinc.yaml",
	Args:  cobra.NoArgs,
	// config is not loaded for init; a broken file must not block rewriting it
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE:              runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing file")
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}
	if err := config.DefaultConfig().Save(configPath); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configPath)
	return nil
}
