// Package cli implements cortexidx's command-line surface: index, watch,
// reindex, and status, all driven by the same assembled internal/manager
// Manager, built around shared config and storage helpers.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgDir string
	quiet  bool
)

// rootCmd is the base command when cortexidxd is called without a
// subcommand.
var rootCmd = &cobra.Command{
	Use:   "cortexidxd",
	Short: "cortexidx background indexing daemon",
	Long: `cortexidxd batches source files by build target, prepares each
target's dependencies, and drives a compiler toolchain to keep an on-disk
index store up to date in the background.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgDir, "dir", "", "project root directory (default: current directory)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "disable progress output")

	viper.BindPFlag("dir", rootCmd.PersistentFlags().Lookup("dir"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

// projectRoot resolves --dir, defaulting to the current working directory.
func projectRoot() (string, error) {
	if cfgDir != "" {
		return cfgDir, nil
	}
	return os.Getwd()
}
