package manager

import (
	"context"
	"log"

	"github.com/mvp-joe/cortexidx/internal/model"
	"github.com/mvp-joe/cortexidx/internal/scheduler"
)

// FilesDidChange invalidates the index tracker for every changed file,
// widens invalidation
// to every build target of any file whose language can't be told from its
// extension (plus everything depending on those targets) in the
// preparation tracker, then schedules background indexing of the changed
// files.
func (m *Manager) FilesDidChange(ctx context.Context, events []model.DocumentURI) {
	if len(events) == 0 {
		return
	}
	now := m.now()

	primaries := make([]string, len(events))
	for i, u := range events {
		primaries[i] = string(u)
	}
	m.indexTracker.MarkOutOfDate(primaries, now)

	outOfDate := make(map[model.TargetID]struct{})
	for _, u := range events {
		_, known, err := m.build.DefaultLanguage(ctx, u, "")
		if err == nil && known {
			continue
		}
		targets, terr := m.build.Targets(ctx, u)
		if terr != nil {
			continue
		}
		for _, t := range targets {
			outOfDate[t] = struct{}{}
		}
	}

	targetList := make([]model.TargetID, 0, len(outOfDate))
	for t := range outOfDate {
		targetList = append(targetList, t)
	}
	if len(targetList) > 0 {
		if deeper, err := m.build.TargetsDependingOn(ctx, targetList); err == nil {
			targetList = append(targetList, deeper...)
		} else {
			log.Printf("manager: targets_depending_on failed: %v", err)
		}
		m.preparationTracker.MarkOutOfDate(targetList, now)
	}

	ci, err := m.newCheckedIndex()
	if err != nil {
		log.Printf("manager: building checked index for files_did_change: %v", err)
		return
	}
	files := m.filterNotAlreadyHandled(ctx, ci, events)
	m.scheduleIndexing(ctx, ci, files, false, scheduler.PriorityLow)
}
