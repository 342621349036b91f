package manager

import "github.com/mvp-joe/cortexidx/internal/scheduler"

// ProgressKind is the monotone summary derived from the manager's
// tracking maps.
type ProgressKind int

const (
	ProgressUpToDate ProgressKind = iota
	ProgressIndexing
	ProgressSchedulingIndexing
	ProgressPreparingFileForEditorFunctionality
)

func (k ProgressKind) String() string {
	switch k {
	case ProgressUpToDate:
		return "up_to_date"
	case ProgressIndexing:
		return "indexing"
	case ProgressSchedulingIndexing:
		return "scheduling_indexing"
	case ProgressPreparingFileForEditorFunctionality:
		return "preparing_file_for_editor_functionality"
	default:
		return "unknown"
	}
}

// ProgressStatus is the result of Manager.ProgressStatus: the overall kind
// plus, for ProgressIndexing, a breakdown useful for a progress bar.
type ProgressStatus struct {
	Kind ProgressKind

	PreparationScheduled int
	PreparationExecuting int
	IndexScheduled        int
	IndexExecuting        int
}

// ProgressStatus computes the current progress summary.
func (m *Manager) ProgressStatus() ProgressStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progressStatusLocked()
}

// progressStatusLocked requires m.mu to be held.
func (m *Manager) progressStatusLocked() ProgressStatus {
	if m.inProgressEditorPrep != nil {
		return ProgressStatus{Kind: ProgressPreparingFileForEditorFunctionality}
	}
	if len(m.scheduleTasks) > 0 {
		return ProgressStatus{Kind: ProgressSchedulingIndexing}
	}

	var status ProgressStatus
	for _, e := range m.inProgressPrepTasks {
		if e.queued.State() == scheduler.StateExecuting {
			status.PreparationExecuting++
		} else {
			status.PreparationScheduled++
		}
	}
	for _, e := range m.inProgressIndexTasks {
		if e.updateTask == nil {
			status.IndexScheduled++
			continue
		}
		if e.updateTask.State() == scheduler.StateExecuting {
			status.IndexExecuting++
		} else {
			status.IndexScheduled++
		}
	}

	if status.PreparationScheduled+status.PreparationExecuting+status.IndexScheduled+status.IndexExecuting == 0 {
		return ProgressStatus{Kind: ProgressUpToDate}
	}
	status.Kind = ProgressIndexing
	return status
}

// notifyProgress invokes the configured OnProgressChange callback, if any,
// with the current status. Must be called without m.mu held.
func (m *Manager) notifyProgress() {
	if m.onProgressChange == nil {
		return
	}
	m.onProgressChange(m.ProgressStatus())
}
