package indexfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mvp-joe/cortexidx/internal/buildserver"
	"github.com/mvp-joe/cortexidx/internal/checkedindex"
	"github.com/mvp-joe/cortexidx/internal/freshness"
	"github.com/mvp-joe/cortexidx/internal/indexstore"
	"github.com/mvp-joe/cortexidx/internal/model"
	"github.com/mvp-joe/cortexidx/internal/scheduler"
)

// Task is the update-index-store TaskDescription: it
// compiles a batch of files sharing a target and language in indexing
// mode and feeds the results back into the database and trackers.
type Task struct {
	Files         []model.FileIndexInfo
	Target        model.TargetID
	Build         buildserver.BuildServer
	Toolchain     model.Toolchain
	Database      indexstore.Database
	CheckedIndex  *checkedindex.CheckedIndex
	IndexTracker  *freshness.Tracker[string, model.TargetID] // keyed by source path
	Timeout       time.Duration
	Reindex       bool // explicit reindex request: skip the has_up_to_date_unit short-circuit
	Log           LogFunc
	WorkDir       string // scratch directory for output-file-maps and response files

	now func() time.Time
}

// New constructs an update-index-store Task. timeout should be a
// wall-clock deadline sufficient for a single-file compile (~2 minutes is
// a reasonable default).
func New(files []model.FileIndexInfo, target model.TargetID, build buildserver.BuildServer, toolchain model.Toolchain, db indexstore.Database, ci *checkedindex.CheckedIndex, tracker *freshness.Tracker[string, model.TargetID], timeout time.Duration, reindex bool, logFn LogFunc, workDir string) *Task {
	return &Task{
		Files: files, Target: target, Build: build, Toolchain: toolchain, Database: db,
		CheckedIndex: ci, IndexTracker: tracker, Timeout: timeout, Reindex: reindex,
		Log: logFn, WorkDir: workDir, now: time.Now,
	}
}

// IsIdempotent is always true.
func (t *Task) IsIdempotent() bool { return true }

// EstimatedCPUCoreCount is always 1.
func (t *Task) EstimatedCPUCoreCount() int { return 1 }

// Dependencies reports that partitions sharing a main file must not run
// concurrently; disjoint partitions may. The historical
// cancel-and-reschedule-from-a-smaller-partition behavior is retained (see
// DESIGN.md's Open Question decision), allowing a single-file foreground
// request to preempt a larger background batch targeting the same main
// file. A superset of main files is NOT implied — only an exact main-file
// overlap triggers either relation.
func (t *Task) Dependencies(currentlyExecuting []*scheduler.QueuedTask) []scheduler.Dependency {
	mine := mainFileSet(t.Files)

	var deps []scheduler.Dependency
	for _, other := range currentlyExecuting {
		otherTask, ok := other.Description().(*Task)
		if !ok || !setsIntersect(mine, mainFileSet(otherTask.Files)) {
			continue
		}
		if len(t.Files) < len(otherTask.Files) {
			deps = append(deps, scheduler.CancelAndReschedule(other))
		} else {
			deps = append(deps, scheduler.Wait(other))
		}
	}
	return deps
}

func mainFileSet(files []model.FileIndexInfo) map[model.DocumentURI]struct{} {
	set := make(map[model.DocumentURI]struct{}, len(files))
	for _, f := range files {
		set[f.File.MainFile()] = struct{}{}
	}
	return set
}

func setsIntersect(a, b map[model.DocumentURI]struct{}) bool {
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}

// Execute runs the update-index-store pipeline: drop files that are already
// fresh, partition the rest, compile each partition, mark successfully
// compiled files up-to-date in the index tracker, and ask the index
// database to process the units at the partition's output paths.
func (t *Task) Execute(ctx context.Context) error {
	opStart := t.now()

	remaining, err := t.filterUpToDate(ctx)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		return nil
	}

	indexStoreDir, ok, err := t.Build.IndexStorePath(ctx)
	if err != nil {
		return err
	}
	if !ok {
		log.Printf("indexfile: no index-store-path declared for target %s; skipping", t.Target)
		return nil
	}

	for _, p := range buildPartitions(ctx, remaining, t.Build, t.Target, t.Toolchain) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.runPartition(ctx, p, indexStoreDir, opStart)
	}
	return nil
}

// filterUpToDate drops files already known fresh, either via the index
// tracker or the checked index's own unit lookup (unless Reindex is set).
func (t *Task) filterUpToDate(ctx context.Context) ([]model.FileIndexInfo, error) {
	var out []model.FileIndexInfo
	for _, f := range t.Files {
		source := string(f.File.SourceFile())
		if t.IndexTracker != nil && t.IndexTracker.IsUpToDate(source, t.Target) {
			continue
		}
		if !t.Reindex && t.CheckedIndex != nil {
			main := f.File.MainFile()
			fresh, err := t.CheckedIndex.HasUpToDateUnit(ctx, f.File.SourceFile(), &main, f.OutputPath)
			if err != nil {
				return nil, err
			}
			if fresh {
				continue
			}
		}
		out = append(out, f)
	}
	return out, nil
}

func (t *Task) runPartition(ctx context.Context, p partition, indexStoreDir string, opStart time.Time) {
	taskID := uuid.New()
	title := fmt.Sprintf("Indexing %d file(s) in %s", len(p.files), t.Target)
	t.Log.emit(LogEntry{Structure: StructureBegin, TaskID: taskID, Title: title, Severity: SeverityInfo, Message: title})
	defer t.Log.emit(LogEntry{Structure: StructureEnd, TaskID: taskID, Severity: SeverityInfo})

	argv, outputFileMapPath, outputPaths, cleanup, err := t.buildCommand(p, indexStoreDir)
	if err != nil {
		log.Printf("indexfile: building command line for %s: %v", t.Target, err)
		return
	}
	defer cleanup()

	runCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	ok := t.runCompiler(runCtx, taskID, argv)
	_ = outputFileMapPath

	if ok {
		pairs := make([]freshness.Pair[string, model.TargetID], 0, len(p.files))
		for _, f := range p.files {
			pairs = append(pairs, freshness.Pair[string, model.TargetID]{Primary: string(f.File.SourceFile()), Secondary: t.Target})
		}
		if t.IndexTracker != nil {
			t.IndexTracker.MarkUpToDate(pairs, opStart)
		}
	}

	if t.Database != nil {
		if err := t.Database.ProcessUnitsForOutputPathsAndWait(ctx, outputPaths); err != nil {
			log.Printf("indexfile: processing units for %s: %v", t.Target, err)
		}
	}
}

// buildCommand constructs argv for p, writing an output-file-map temp
// file for multi-file Swift partitions. cleanup must be called on every
// exit path to remove that temp file.
func (t *Task) buildCommand(p partition, indexStoreDir string) (argv []string, outputFileMapPath string, outputPaths []string, cleanup func(), err error) {
	cleanup = func() {}

	if len(p.files) == 0 {
		return nil, "", nil, cleanup, errors.New("indexfile: empty partition")
	}

	lang := p.files[0].Language
	switch lang.SemanticKind() {
	case model.SemanticKindSwift:
		compiler := t.Toolchain.SwiftC
		if compiler == "" {
			return nil, "", nil, cleanup, errors.New("indexfile: no swiftc in toolchain")
		}

		var mainFiles []string
		entries := make(map[string]string, len(p.files))
		for _, f := range p.files {
			main := string(f.File.MainFile())
			mainFiles = append(mainFiles, main)
			out := f.OutputPath.Path
			if f.OutputPath.NotSupported {
				out = main + ".o"
			}
			entries[main] = out
			outputPaths = append(outputPaths, out)
		}

		if len(p.files) > 1 {
			workDir := t.WorkDir
			if workDir == "" {
				workDir = os.TempDir()
			}
			mapPath, werr := writeOutputFileMap(workDir, entries)
			if werr != nil {
				return nil, "", nil, cleanup, werr
			}
			outputFileMapPath = mapPath
			cleanup = func() { os.Remove(mapPath) }
			argv, _ = SwiftCommandLine(compiler, p.settings.CompilerArguments, indexStoreDir, mapPath, mainFiles)
		} else {
			argv, _ = SwiftCommandLine(compiler, p.settings.CompilerArguments, indexStoreDir, "", mainFiles)
		}
		return argv, outputFileMapPath, outputPaths, cleanup, nil

	case model.SemanticKindClang:
		compiler := t.Toolchain.Clang
		if compiler == "" {
			return nil, "", nil, cleanup, errors.New("indexfile: no clang in toolchain")
		}
		f := p.files[0]
		out := f.OutputPath.Path
		if f.OutputPath.NotSupported {
			out = string(f.File.MainFile()) + ".o"
		}
		outputPaths = append(outputPaths, out)
		argv, _ = ClangCommandLine(compiler, p.settings.CompilerArguments, indexStoreDir, string(f.File.MainFile()))
		return argv, "", outputPaths, cleanup, nil

	default:
		return nil, "", nil, cleanup, fmt.Errorf("indexfile: unsupported language for %s", p.files[0].File.SourceFile())
	}
}

// runCompiler runs argv with an enforced timeout, falling back to a
// @response_file invocation if the OS rejects the argument list as too
// long, and reports the collected stdout/stderr to the index log once the
// process exits. It returns true iff the process exited zero.
func (t *Task) runCompiler(ctx context.Context, taskID uuid.UUID, argv []string) bool {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil && isArgumentListTooLong(err) {
		responsePath, werr := writeResponseFile(t.responseFileDir(), argv[1:])
		if werr != nil {
			log.Printf("indexfile: writing response file: %v", werr)
			return false
		}
		defer os.Remove(responsePath)

		stdout.Reset()
		stderr.Reset()
		cmd = exec.CommandContext(ctx, argv[0], "@"+responsePath)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		err = cmd.Run()
	}

	if stdout.Len() > 0 {
		t.Log.emit(LogEntry{Structure: StructureReport, TaskID: taskID, Severity: SeverityInfo, Message: stdout.String()})
	}
	if stderr.Len() > 0 {
		t.Log.emit(LogEntry{Structure: StructureReport, TaskID: taskID, Severity: SeverityWarning, Message: stderr.String()})
	}

	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Printf("indexfile: partition timed out")
		}
		return false
	}

	if err == nil {
		return true
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() > 0 {
			log.Printf("indexfile: compiler exited %d (likely a source error)", exitErr.ExitCode())
		} else {
			log.Printf("indexfile: compiler terminated abnormally: %v", err)
		}
		return false
	}

	log.Printf("indexfile: running compiler: %v", err)
	return false
}

func (t *Task) responseFileDir() string {
	if t.WorkDir != "" {
		return t.WorkDir
	}
	return os.TempDir()
}

func isArgumentListTooLong(err error) bool {
	return strings.Contains(err.Error(), "argument list too long") || strings.Contains(err.Error(), "E2BIG")
}
