// Package checkedindex implements the "checked index" wrapper: it sits
// between the opaque index database and everything else,
// filtering and enriching raw occurrences according to the freshness
// rules of the active fsstate.CheckLevel.
package checkedindex

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mvp-joe/cortexidx/internal/fsstate"
	"github.com/mvp-joe/cortexidx/internal/indexstore"
	"github.com/mvp-joe/cortexidx/internal/model"
)

// CheckedIndex wraps a Database with one request's fsstate.Checker. Like
// the Checker it holds, it must not outlive the consumer request.
type CheckedIndex struct {
	db      indexstore.Database
	checker *fsstate.Checker

	mu                 sync.Mutex
	containerNameCache map[string][]string // USR -> memoised outer-to-inner names
}

// New builds a CheckedIndex over db, checked at checker's level.
func New(db indexstore.Database, checker *fsstate.Checker) *CheckedIndex {
	return &CheckedIndex{db: db, checker: checker, containerNameCache: make(map[string][]string)}
}

// unitIsFresh is the shared rule behind HasAnyUpToDateUnit and
// HasUpToDateUnit: a unit is fresh iff it exists and its timestamp
// dominates the source file's mtime, or the file no longer exists and
// the check level is DeletedFiles (existence-only).
func (c *CheckedIndex) unitIsFresh(sourcePath string, unitTime time.Time, unitExists bool) bool {
	if !unitExists {
		return false
	}
	m := c.checker.Mtime(sourcePath)
	if m.NotExist {
		return c.checker.Level() == fsstate.DeletedFiles
	}
	return !m.Time.After(unitTime)
}

// unitLookupPath resolves which path a unit should be looked up under:
// the main file when uri is a header.
func unitLookupPath(uri model.DocumentURI, mainFile *model.DocumentURI) string {
	if mainFile != nil {
		return string(*mainFile)
	}
	return string(uri)
}

// HasAnyUpToDateUnit reports whether at least one unit for uri (looked up
// via mainFile when uri is a header) is at least as new as uri's mtime.
func (c *CheckedIndex) HasAnyUpToDateUnit(ctx context.Context, uri model.DocumentURI, mainFile *model.DocumentURI) (bool, error) {
	lookupPath := unitLookupPath(uri, mainFile)
	ts, ok, err := c.db.DateOfLatestUnitFor(ctx, lookupPath)
	if err != nil {
		return false, err
	}
	return c.unitIsFresh(string(uri), ts, ok), nil
}

// HasUpToDateUnit is HasAnyUpToDateUnit keyed by an exact output path; it
// falls back to HasAnyUpToDateUnit when outputPath reports NotSupported.
func (c *CheckedIndex) HasUpToDateUnit(ctx context.Context, uri model.DocumentURI, mainFile *model.DocumentURI, outputPath model.OutputPath) (bool, error) {
	if outputPath.NotSupported {
		return c.HasAnyUpToDateUnit(ctx, uri, mainFile)
	}
	ts, ok, err := c.db.DateOfUnitFor(ctx, outputPath.Path)
	if err != nil {
		return false, err
	}
	return c.unitIsFresh(string(uri), ts, ok), nil
}

// SymbolsInFile returns the symbols declared in path, or nil if no
// up-to-date unit exists for it.
func (c *CheckedIndex) SymbolsInFile(ctx context.Context, path model.DocumentURI) ([]model.Symbol, error) {
	fresh, err := c.HasAnyUpToDateUnit(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	if !fresh {
		return nil, nil
	}
	return c.db.SymbolsInFile(ctx, string(path))
}

// filterFresh drops any occurrence whose source file mtime is newer than
// its recorded unit timestamp, covering already-fetched rows that did not
// go through a per-unit freshness check of their own.
func (c *CheckedIndex) filterFresh(occs []model.Occurrence) []model.Occurrence {
	out := occs[:0]
	for _, o := range occs {
		m := c.checker.Mtime(o.Location.Path)
		if m.NotExist {
			if c.checker.Level() == fsstate.DeletedFiles {
				out = append(out, o)
			}
			continue
		}
		if !m.Time.After(o.Location.Timestamp) {
			out = append(out, o)
		}
	}
	return out
}

// ForEachSymbolOccurrence streams fresh occurrences of usr matching roles
// to cb, stopping early if cb returns false.
func (c *CheckedIndex) ForEachSymbolOccurrence(ctx context.Context, usr string, roles model.SymbolRole, cb func(model.Occurrence) bool) error {
	occs, err := c.OccurrencesOfUSR(ctx, usr, roles)
	if err != nil {
		return err
	}
	for _, o := range occs {
		if !cb(o) {
			return nil
		}
	}
	return nil
}

// OccurrencesOfUSR returns every fresh occurrence of usr matching roles.
func (c *CheckedIndex) OccurrencesOfUSR(ctx context.Context, usr string, roles model.SymbolRole) ([]model.Occurrence, error) {
	occs, err := c.db.OccurrencesOfUSR(ctx, usr, roles)
	if err != nil {
		return nil, err
	}
	return c.filterFresh(occs), nil
}

// OccurrencesRelatedToUSR returns every fresh occurrence related to usr
// matching roles.
func (c *CheckedIndex) OccurrencesRelatedToUSR(ctx context.Context, usr string, roles model.SymbolRole) ([]model.Occurrence, error) {
	occs, err := c.db.OccurrencesRelatedToUSR(ctx, usr, roles)
	if err != nil {
		return nil, err
	}
	return c.filterFresh(occs), nil
}

// ForEachCanonicalOccurrenceContainingPattern streams the canonical
// (definition, falling back to declaration) fresh occurrence of every
// symbol whose name matches pattern under opts, stopping early if cb
// returns false.
func (c *CheckedIndex) ForEachCanonicalOccurrenceContainingPattern(ctx context.Context, pattern string, opts indexstore.NameMatchOptions, cb func(model.Occurrence) bool) error {
	occs, err := c.db.CanonicalSymbolOccurrences(ctx, pattern, opts)
	if err != nil {
		return err
	}
	for _, o := range c.filterFresh(occs) {
		if !cb(o) {
			return nil
		}
	}
	return nil
}

// ForEachCanonicalOccurrenceByName streams the canonical fresh occurrence
// of every symbol whose name exactly equals name, stopping early if cb
// returns false.
func (c *CheckedIndex) ForEachCanonicalOccurrenceByName(ctx context.Context, name string, cb func(model.Occurrence) bool) error {
	return c.ForEachCanonicalOccurrenceContainingPattern(ctx, name, indexstore.NameMatchOptions{AnchorStart: true, AnchorEnd: true}, cb)
}

// UnitTests returns every fresh occurrence tagged RoleUnitTest, optionally
// restricted to those whose main file is in referencedByMainFiles.
func (c *CheckedIndex) UnitTests(ctx context.Context, referencedByMainFiles []string) ([]model.Occurrence, error) {
	occs, err := c.db.UnitTests(ctx, referencedByMainFiles)
	if err != nil {
		return nil, err
	}
	return c.filterFresh(occs), nil
}

// DefinitionOrDeclarationOccurrences returns definitions of usr if any
// exist, falling back to declarations otherwise.
func (c *CheckedIndex) DefinitionOrDeclarationOccurrences(ctx context.Context, usr string) ([]model.Occurrence, error) {
	defs, err := c.OccurrencesOfUSR(ctx, usr, model.RoleDefinition)
	if err != nil {
		return nil, err
	}
	if len(defs) > 0 {
		return defs, nil
	}
	return c.OccurrencesOfUSR(ctx, usr, model.RoleDeclaration)
}

// PrimaryDefinitionOrDeclarationOccurrence returns the deterministic first
// element of DefinitionOrDeclarationOccurrences, sorted by (path, line,
// column) so callers observe a stable choice across runs.
func (c *CheckedIndex) PrimaryDefinitionOrDeclarationOccurrence(ctx context.Context, usr string) (model.Occurrence, bool, error) {
	occs, err := c.DefinitionOrDeclarationOccurrences(ctx, usr)
	if err != nil {
		return model.Occurrence{}, false, err
	}
	if len(occs) == 0 {
		return model.Occurrence{}, false, nil
	}
	sortOccurrencesDeterministically(occs)
	return occs[0], true, nil
}

func sortOccurrencesDeterministically(occs []model.Occurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		a, b := occs[i].Location, occs[j].Location
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
}
