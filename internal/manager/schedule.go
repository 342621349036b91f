package manager

import (
	"context"
	"log"
	"sort"

	"github.com/google/uuid"

	"github.com/mvp-joe/cortexidx/internal/checkedindex"
	"github.com/mvp-joe/cortexidx/internal/fsstate"
	"github.com/mvp-joe/cortexidx/internal/indexfile"
	"github.com/mvp-joe/cortexidx/internal/model"
	"github.com/mvp-joe/cortexidx/internal/prepare"
	"github.com/mvp-joe/cortexidx/internal/scheduler"
)

// ScheduleBuildGraphGenerationAndBackgroundIndexAllFiles starts a
// low-priority orchestration task that waits for an up-to-date build graph,
// then groups and schedules indexing for the given files. files nil/empty
// means "ask the build server for every source file".
func (m *Manager) ScheduleBuildGraphGenerationAndBackgroundIndexAllFiles(files []model.DocumentURI, ensureAllUnitsRegistered, indexFilesWithUpToDateUnit bool) {
	m.scheduleBuildGraphTask(files, ensureAllUnitsRegistered, indexFilesWithUpToDateUnit, scheduler.PriorityLow)
}

// ScheduleReindex marks every known tracker entry out-of-date, then
// re-schedules background indexing of everything, bypassing the
// has-up-to-date-unit short-circuit.
func (m *Manager) ScheduleReindex() {
	now := m.now()
	m.indexTracker.MarkAllKnownOutOfDate(now)
	m.preparationTracker.MarkAllKnownOutOfDate(now)
	m.scheduleBuildGraphTask(nil, true, true, scheduler.PriorityLow)
}

func (m *Manager) scheduleBuildGraphTask(files []model.DocumentURI, ensureAllUnitsRegistered, indexFilesWithUpToDateUnit bool, priority scheduler.Priority) {
	task := &buildGraphTask{
		manager:                    m,
		files:                      files,
		ensureAllUnitsRegistered:   ensureAllUnitsRegistered,
		indexFilesWithUpToDateUnit: indexFilesWithUpToDateUnit,
		priority:                   priority,
	}

	id := uuid.New()
	qt := m.scheduler.Schedule(priority, task, func(state scheduler.State) {
		if state != scheduler.StateFinished && state != scheduler.StateCancelled {
			return
		}
		m.mu.Lock()
		delete(m.scheduleTasks, id)
		m.mu.Unlock()
		m.notifyProgress()
	})

	m.mu.Lock()
	m.scheduleTasks[id] = qt
	m.mu.Unlock()
	m.notifyProgress()
}

// buildGraphTask is the scheduler.TaskDescription behind
// schedule_build_graph_generation_and_background_index_all_files.
type buildGraphTask struct {
	manager                    *Manager
	files                      []model.DocumentURI
	ensureAllUnitsRegistered   bool
	indexFilesWithUpToDateUnit bool
	priority                   scheduler.Priority
}

func (t *buildGraphTask) IsIdempotent() bool      { return true }
func (t *buildGraphTask) EstimatedCPUCoreCount() int { return 1 }
func (t *buildGraphTask) Dependencies(_ []*scheduler.QueuedTask) []scheduler.Dependency {
	return nil
}

func (t *buildGraphTask) Execute(ctx context.Context) error {
	m := t.manager

	if err := m.build.WaitForUpToDateBuildGraph(ctx); err != nil {
		return err
	}
	if t.ensureAllUnitsRegistered {
		if err := m.database.PollForUnitChangesAndWait(ctx); err != nil {
			return err
		}
	}

	files := t.files
	if len(files) == 0 {
		var err error
		files, err = m.build.SourceFiles(ctx, false)
		if err != nil {
			return err
		}
	}

	ci, err := m.newCheckedIndex()
	if err != nil {
		return err
	}

	if !t.indexFilesWithUpToDateUnit {
		files = m.filterNotAlreadyHandled(ctx, ci, files)
	}

	m.scheduleIndexing(ctx, ci, files, t.indexFilesWithUpToDateUnit, t.priority)
	return nil
}

// newCheckedIndex builds a fresh CheckedIndex scoped to one top-level
// manager call: mtime and existence caches are not shared across calls.
func (m *Manager) newCheckedIndex() (*checkedindex.CheckedIndex, error) {
	checker, err := fsstate.New(m.checkLevel, m.docManager)
	if err != nil {
		return nil, err
	}
	return checkedindex.New(m.database, checker), nil
}

// filterNotAlreadyHandled drops files whose in-progress state is already
// StateWaitingForPreparation (no newer schedule would improve anything) and
// files the checked index already considers fresh.
func (m *Manager) filterNotAlreadyHandled(ctx context.Context, ci *checkedindex.CheckedIndex, files []model.DocumentURI) []model.DocumentURI {
	out := make([]model.DocumentURI, 0, len(files))
	for _, f := range files {
		m.mu.Lock()
		fe, tracked := m.inProgressIndexTasks[f]
		m.mu.Unlock()
		if tracked && fe.state == StateWaitingForPreparation {
			continue
		}
		if fresh, err := ci.HasAnyUpToDateUnit(ctx, f, nil); err == nil && fresh {
			continue
		}
		out = append(out, f)
	}
	return out
}

// scheduleIndexing groups files by canonical target, drops non-indexable
// files, topologically sorts targets (falling back to lexicographic order
// on a mismatch), and schedules one batch per target.
func (m *Manager) scheduleIndexing(ctx context.Context, ci *checkedindex.CheckedIndex, files []model.DocumentURI, indexFilesWithUpToDateUnit bool, priority scheduler.Priority) {
	grouped := m.groupByTarget(ctx, files)

	targets := make([]model.TargetID, 0, len(grouped))
	for t := range grouped {
		targets = append(targets, t)
	}
	ordered := m.orderTargets(ctx, targets)

	for _, target := range ordered {
		m.scheduleBatch(ctx, ci, target, grouped[target], indexFilesWithUpToDateUnit, priority)
	}
}

func (m *Manager) groupByTarget(ctx context.Context, files []model.DocumentURI) map[model.TargetID][]model.FileToIndex {
	grouped := make(map[model.TargetID][]model.FileToIndex)
	for _, f := range files {
		fti, target, ok := m.resolveFileToIndex(ctx, f)
		if !ok {
			continue
		}
		grouped[target] = append(grouped[target], fti)
	}
	return grouped
}

// resolveFileToIndex classifies f as a plain indexable source or, when the
// build server reports no default language for it (e.g. a header with no
// compiler frontend of its own), as a Header routed through one of its
// main files, per the File-to-index data model's
// Indexable(uri)/Header(header_uri, main_uri) variant.
func (m *Manager) resolveFileToIndex(ctx context.Context, f model.DocumentURI) (model.FileToIndex, model.TargetID, bool) {
	lang, ok, err := m.build.DefaultLanguage(ctx, f, "")
	if err == nil && ok && lang.SemanticKind() != model.SemanticKindNone {
		target, ok, err := m.build.CanonicalTarget(ctx, f)
		if err != nil || !ok {
			return model.FileToIndex{}, "", false
		}
		return model.FileToIndex{URI: f}, target, true
	}

	mainFile, ok := m.resolveHeaderMainFile(ctx, f)
	if !ok {
		return model.FileToIndex{}, "", false
	}
	target, ok, err := m.build.CanonicalTarget(ctx, mainFile)
	if err != nil || !ok {
		return model.FileToIndex{}, "", false
	}
	return model.FileToIndex{URI: f, IsHeader: true, MainURI: mainFile}, target, true
}

// resolveHeaderMainFile asks the index database which main files include
// f, preferring a cross-language match so a header can be routed to a
// main file compiled by a different frontend than the header's own.
func (m *Manager) resolveHeaderMainFile(ctx context.Context, f model.DocumentURI) (model.DocumentURI, bool) {
	mains, err := m.database.MainFilesContainingFile(ctx, string(f), true)
	if err != nil || len(mains) == 0 {
		return "", false
	}
	return model.DocumentURI(mains[0]), true
}

func (m *Manager) orderTargets(ctx context.Context, targets []model.TargetID) []model.TargetID {
	sorted, err := m.build.TopologicalSort(ctx, targets)
	if err == nil && sameTargetSet(sorted, targets) {
		return sorted
	}
	if err != nil {
		log.Printf("manager: topological sort failed: %v; falling back to lexicographic order", err)
	} else {
		log.Printf("manager: topological sort returned a different target set; falling back to lexicographic order")
	}
	out := append([]model.TargetID(nil), targets...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sameTargetSet(a, b []model.TargetID) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[model.TargetID]struct{}, len(a))
	for _, t := range a {
		seen[t] = struct{}{}
	}
	for _, t := range b {
		if _, ok := seen[t]; !ok {
			return false
		}
	}
	return true
}

// scheduleBatch is "for each batch B: a single indexTask is spawned that
// first prepares B with ForIndexing, then spawns one update-index-store
// task per file-level sub-batch" for a batch of size 1 (one target). Every
// map mutation below happens while m.mu is held, so onPrepStateChange
// (invoked from another goroutine once the scheduler admits the
// preparation task) always observes a fully-recorded entry rather than a
// partially-constructed one.
func (m *Manager) scheduleBatch(ctx context.Context, ci *checkedindex.CheckedIndex, target model.TargetID, files []model.FileToIndex, indexFilesWithUpToDateUnit bool, priority scheduler.Priority) {
	var fileInfos []model.FileIndexInfo
	for _, fti := range files {
		lang, ok, err := m.build.DefaultLanguage(ctx, fti.MainFile(), target)
		if err != nil || !ok {
			continue
		}
		fileInfos = append(fileInfos, model.FileIndexInfo{
			File:       fti,
			Target:     target,
			OutputPath: model.OutputPath{NotSupported: true},
			Language:   lang,
		})
	}
	if len(fileInfos) == 0 {
		return
	}

	m.mu.Lock()
	prepTask := prepare.New(prepare.ForIndexing, []model.TargetID{target}, m.build, m.preparationTracker)
	qt := m.scheduler.Schedule(priority, prepTask, func(state scheduler.State) { m.onPrepStateChange(target, state) })
	m.inProgressPrepTasks[target] = prepEntry{queued: qt, purpose: prepare.ForIndexing}
	for _, fi := range fileInfos {
		m.inProgressIndexTasks[fi.File.URI] = &fileEntry{state: StateWaitingForPreparation, target: target, prepTask: qt}
	}
	m.mu.Unlock()
	m.notifyProgress()

	go m.runBatchAfterPrepare(ctx, ci, target, qt, fileInfos, indexFilesWithUpToDateUnit, priority)
}

// onPrepStateChange implements "Waiting(prep_id, t) -> Preparing(prep_id,
// t) when the preparation task this file is waiting on starts executing".
func (m *Manager) onPrepStateChange(target model.TargetID, state scheduler.State) {
	if state != scheduler.StateExecuting {
		return
	}
	m.mu.Lock()
	entry, ok := m.inProgressPrepTasks[target]
	if ok {
		for _, fe := range m.inProgressIndexTasks {
			if fe.target == target && fe.state == StateWaitingForPreparation && fe.prepTask == entry.queued {
				fe.state = StatePreparing
			}
		}
	}
	m.mu.Unlock()
	m.notifyProgress()
}

func (m *Manager) runBatchAfterPrepare(ctx context.Context, ci *checkedindex.CheckedIndex, target model.TargetID, prepQT *scheduler.QueuedTask, files []model.FileIndexInfo, indexFilesWithUpToDateUnit bool, priority scheduler.Priority) {
	err := prepQT.Wait(ctx)

	m.mu.Lock()
	if entry, ok := m.inProgressPrepTasks[target]; ok && entry.queued == prepQT {
		delete(m.inProgressPrepTasks, target)
	}
	if err != nil {
		for _, fi := range files {
			if fe, ok := m.inProgressIndexTasks[fi.File.URI]; ok && fe.prepTask == prepQT {
				delete(m.inProgressIndexTasks, fi.File.URI)
			}
		}
	}
	m.mu.Unlock()
	m.notifyProgress()

	if err != nil {
		log.Printf("manager: preparation for target %s failed: %v", target, err)
		return
	}

	toolchain, ok, terr := m.build.Toolchain(ctx, files[0].File.URI, target, files[0].Language)
	if terr != nil || !ok {
		log.Printf("manager: no toolchain available for target %s", target)
		m.mu.Lock()
		for _, fi := range files {
			if fe, ok := m.inProgressIndexTasks[fi.File.URI]; ok && fe.prepTask == prepQT {
				delete(m.inProgressIndexTasks, fi.File.URI)
			}
		}
		m.mu.Unlock()
		m.notifyProgress()
		return
	}

	for _, fi := range files {
		m.scheduleFileUpdate(ctx, ci, prepQT, toolchain, fi, indexFilesWithUpToDateUnit, priority)
	}
}

// scheduleFileUpdate spawns the size-1 update-index-store sub-batch for one
// file: "Preparing(prep_id, t) -> UpdatingIndexStore(update_task, t) when
// the update-index-store task for this file is spawned".
func (m *Manager) scheduleFileUpdate(ctx context.Context, ci *checkedindex.CheckedIndex, prepQT *scheduler.QueuedTask, toolchain model.Toolchain, fi model.FileIndexInfo, indexFilesWithUpToDateUnit bool, priority scheduler.Priority) {
	idxTask := indexfile.New([]model.FileIndexInfo{fi}, fi.Target, m.build, toolchain, m.database, ci, m.indexTracker, m.updateIndexStoreTimeout, indexFilesWithUpToDateUnit, m.logFn, m.workDir)

	m.mu.Lock()
	fe, ok := m.inProgressIndexTasks[fi.File.URI]
	if !ok || fe.prepTask != prepQT {
		m.mu.Unlock()
		return // superseded by a later schedule call for the same file
	}
	qt := m.scheduler.Schedule(priority, idxTask, nil)
	fe.state = StateUpdatingIndexStore
	fe.updateTask = qt
	m.mu.Unlock()
	m.notifyProgress()

	go func() {
		qt.Wait(ctx)
		m.mu.Lock()
		if cur, ok := m.inProgressIndexTasks[fi.File.URI]; ok && cur.updateTask == qt {
			delete(m.inProgressIndexTasks, fi.File.URI)
		}
		m.mu.Unlock()
		m.notifyProgress()
	}()
}
