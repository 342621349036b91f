package manager

import (
	"context"

	"github.com/mvp-joe/cortexidx/internal/model"
	"github.com/mvp-joe/cortexidx/internal/scheduler"
)

// WaitForUpToDateIndex awaits every pending
// build-graph task, then every in-progress index task for the requested
// files (restricted to uris when non-empty) — its preparation handle and
// then its update-index-store handle, until no such file is left in
// progress — then polls the index database for unit changes written by
// another process. It does no target resolution: files are selected by
// URI, so a change of a file's canonical target mid-call is not re-resolved.
func (m *Manager) WaitForUpToDateIndex(ctx context.Context, uris ...model.DocumentURI) error {
	m.mu.Lock()
	buildGraphTasks := make([]*scheduler.QueuedTask, 0, len(m.scheduleTasks))
	for _, qt := range m.scheduleTasks {
		buildGraphTasks = append(buildGraphTasks, qt)
	}
	m.mu.Unlock()

	for _, qt := range buildGraphTasks {
		if err := qt.Wait(ctx); err != nil {
			return err
		}
	}

	want := make(map[model.DocumentURI]struct{}, len(uris))
	for _, u := range uris {
		want[u] = struct{}{}
	}

	for {
		m.mu.Lock()
		indexTasks := make([]*scheduler.QueuedTask, 0, len(m.inProgressIndexTasks))
		for uri, fe := range m.inProgressIndexTasks {
			if len(want) > 0 {
				if _, ok := want[uri]; !ok {
					continue
				}
			}
			if fe.updateTask != nil {
				indexTasks = append(indexTasks, fe.updateTask)
			} else if fe.prepTask != nil {
				indexTasks = append(indexTasks, fe.prepTask)
			}
		}
		m.mu.Unlock()

		if len(indexTasks) == 0 {
			break
		}
		for _, qt := range indexTasks {
			if err := qt.Wait(ctx); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	return m.database.PollForUnitChangesAndWait(ctx)
}
