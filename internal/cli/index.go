package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Discover targets and index them to an up-to-date state",
	Long: `index discovers source files under the project root, groups them
into build targets, prepares each target's dependencies, and drives the
toolchain to produce an up-to-date index store.

Examples:
  cortexidxd index
  cortexidxd index --dir /path/to/project
  cortexidxd index --quiet
`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupted! Cancelling indexing...")
		cancel()
	}()

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

	d.Manager.ScheduleBuildGraphGenerationAndBackgroundIndexAllFiles(nil, true, false)

	if err := d.Manager.WaitForUpToDateIndex(ctx); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("cli: indexing cancelled")
		}
		return fmt.Errorf("cli: indexing failed: %w", err)
	}

	if !quiet {
		fmt.Println("Index is up to date.")
	}
	return nil
}
