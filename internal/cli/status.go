package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the manager's current progress status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return fmt.Errorf("cli: resolving project root: %w", err)
	}

	d, err := newDaemon(root, nil)
	if err != nil {
		return err
	}
	defer d.Close()

	status := d.Manager.ProgressStatus()

	if statusJSON {
		out := map[string]any{
			"kind":                  status.Kind.String(),
			"preparation_scheduled": status.PreparationScheduled,
			"preparation_executing": status.PreparationExecuting,
			"index_scheduled":       status.IndexScheduled,
			"index_executing":       status.IndexExecuting,
		}
		b, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("cli: marshalling status: %w", err)
		}
		fmt.Println(string(b))
		return nil
	}

	fmt.Printf("Status: %s\n", status.Kind)
	if status.PreparationScheduled+status.PreparationExecuting+status.IndexScheduled+status.IndexExecuting > 0 {
		fmt.Printf("  Preparation: %d scheduled, %d executing\n", status.PreparationScheduled, status.PreparationExecuting)
		fmt.Printf("  Indexing:    %d scheduled, %d executing\n", status.IndexScheduled, status.IndexExecuting)
	}
	return nil
}
