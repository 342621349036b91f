package cli

import (
	"fmt"

	"github.com/schollz/progressbar/v3"

	"github.com/mvp-joe/cortexidx/internal/manager"
)

// cliProgressReporter renders manager.ProgressStatus transitions to the
// terminal using a single progress bar sized to the outstanding
// preparation/index task count rather than a fixed file total known up
// front.
type cliProgressReporter struct {
	quiet bool
	bar   *progressbar.ProgressBar
}

func newCLIProgressReporter(quiet bool) *cliProgressReporter {
	return &cliProgressReporter{quiet: quiet}
}

func (r *cliProgressReporter) onProgress(status manager.ProgressStatus) {
	if r.quiet {
		return
	}

	switch status.Kind {
	case manager.ProgressUpToDate:
		if r.bar != nil {
			r.bar.Finish()
			r.bar = nil
			fmt.Println()
		}
	case manager.ProgressSchedulingIndexing:
		if r.bar == nil {
			r.bar = progressbar.NewOptions(-1,
				progressbar.OptionSetDescription("Scheduling indexing"),
				progressbar.OptionSetWidth(40),
				progressbar.OptionThrottle(65_000_000),
			)
		}
	case manager.ProgressPreparingFileForEditorFunctionality:
		if r.bar == nil {
			r.bar = progressbar.NewOptions(-1,
				progressbar.OptionSetDescription("Preparing for editor functionality"),
				progressbar.OptionSetWidth(40),
			)
		}
	case manager.ProgressIndexing:
		total := status.PreparationScheduled + status.PreparationExecuting + status.IndexScheduled + status.IndexExecuting
		if r.bar == nil {
			r.bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Indexing"),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
			)
		}
		r.bar.ChangeMax(total)
		r.bar.Set(status.IndexExecuting)
	}
}
