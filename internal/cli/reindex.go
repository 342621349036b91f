package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Mark the entire index out of date and rebuild it",
	Long: `reindex invalidates every tracked target and file, bypassing the
up-to-date short-circuit, then rebuilds the index store from scratch.`,
	RunE: runReindex,
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return fmt.Errorf("cli: resolving project root: %w", err)
	}

	reporter := newCLIProgressReporter(quiet)
	d, err := newDaemon(root, reporter.onProgress)
	if err != nil {
		return err
	}
	defer d.Close()

	d.Manager.ScheduleReindex()

	if err := d.Manager.WaitForUpToDateIndex(context.Background()); err != nil {
		return fmt.Errorf("cli: reindexing failed: %w", err)
	}

	if !quiet {
		fmt.Println("Reindex complete.")
	}
	return nil
}
