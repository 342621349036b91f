package checkedindex_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/cortexidx/internal/checkedindex"
	"github.com/mvp-joe/cortexidx/internal/fsstate"
	"github.com/mvp-joe/cortexidx/internal/indexstore"
	"github.com/mvp-joe/cortexidx/internal/model"
)

// fakeDB is a minimal in-memory indexstore.Database test double.
type fakeDB struct {
	units       map[string]time.Time // source path -> latest unit ts
	unitsByOut  map[string]time.Time
	occs        map[string][]model.Occurrence // USR -> occurrences
	mainFiles   map[string][]string
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		units:      make(map[string]time.Time),
		unitsByOut: make(map[string]time.Time),
		occs:       make(map[string][]model.Occurrence),
		mainFiles:  make(map[string][]string),
	}
}

func (f *fakeDB) ForEachSymbolOccurrence(ctx context.Context, usr string, roles model.SymbolRole, cb func(model.Occurrence) bool) error {
	for _, o := range f.occs[usr] {
		if roles == 0 || o.Roles.Intersects(roles) {
			if !cb(o) {
				return nil
			}
		}
	}
	return nil
}

func (f *fakeDB) OccurrencesOfUSR(ctx context.Context, usr string, roles model.SymbolRole) ([]model.Occurrence, error) {
	var out []model.Occurrence
	for _, o := range f.occs[usr] {
		if roles == 0 || o.Roles.Intersects(roles) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeDB) OccurrencesRelatedToUSR(ctx context.Context, usr string, roles model.SymbolRole) ([]model.Occurrence, error) {
	var out []model.Occurrence
	for _, occs := range f.occs {
		for _, o := range occs {
			for _, r := range o.RelatedUSRs {
				if r == usr && (roles == 0 || o.Roles.Intersects(roles)) {
					out = append(out, o)
				}
			}
		}
	}
	return out, nil
}

func (f *fakeDB) SymbolsInFile(ctx context.Context, path string) ([]model.Symbol, error) {
	var out []model.Symbol
	for _, occs := range f.occs {
		for _, o := range occs {
			if o.Location.Path == path {
				out = append(out, o.Symbol)
			}
		}
	}
	return out, nil
}

func (f *fakeDB) UnitTests(ctx context.Context, mainFiles []string) ([]model.Occurrence, error) {
	var out []model.Occurrence
	for _, occs := range f.occs {
		for _, o := range occs {
			if o.Roles.Contains(model.RoleUnitTest) {
				out = append(out, o)
			}
		}
	}
	return out, nil
}

func (f *fakeDB) DateOfLatestUnitFor(ctx context.Context, path string) (time.Time, bool, error) {
	ts, ok := f.units[path]
	return ts, ok, nil
}

func (f *fakeDB) DateOfUnitFor(ctx context.Context, outputPath string) (time.Time, bool, error) {
	ts, ok := f.unitsByOut[outputPath]
	return ts, ok, nil
}

func (f *fakeDB) ProcessUnitsForOutputPathsAndWait(ctx context.Context, outputPaths []string) error {
	return nil
}
func (f *fakeDB) PollForUnitChangesAndWait(ctx context.Context) error { return nil }

func (f *fakeDB) CanonicalSymbolOccurrences(ctx context.Context, pattern string, opts indexstore.NameMatchOptions) ([]model.Occurrence, error) {
	byUSR := make(map[string][]model.Occurrence)
	for _, occs := range f.occs {
		for _, o := range occs {
			if !o.Roles.Intersects(model.RoleDeclaration | model.RoleDefinition) {
				continue
			}
			if !fakeMatchesNamePattern(o.Symbol.Name, pattern, opts) {
				continue
			}
			byUSR[o.Symbol.USR] = append(byUSR[o.Symbol.USR], o)
		}
	}
	var out []model.Occurrence
	for _, occs := range byUSR {
		var defs, decls []model.Occurrence
		for _, o := range occs {
			if o.Roles.Intersects(model.RoleDefinition) {
				defs = append(defs, o)
			} else {
				decls = append(decls, o)
			}
		}
		pick := defs
		if len(pick) == 0 {
			pick = decls
		}
		if len(pick) > 0 {
			out = append(out, pick[0])
		}
	}
	return out, nil
}

func fakeMatchesNamePattern(name, pattern string, opts indexstore.NameMatchOptions) bool {
	if opts.IgnoreCase {
		name = strings.ToLower(name)
		pattern = strings.ToLower(pattern)
	}
	if opts.Subsequence {
		return fakeMatchesSubsequence(name, pattern, opts.AnchorStart, opts.AnchorEnd)
	}
	switch {
	case opts.AnchorStart && opts.AnchorEnd:
		return name == pattern
	case opts.AnchorStart:
		return strings.HasPrefix(name, pattern)
	case opts.AnchorEnd:
		return strings.HasSuffix(name, pattern)
	default:
		return strings.Contains(name, pattern)
	}
}

func fakeMatchesSubsequence(name, pattern string, anchorStart, anchorEnd bool) bool {
	if pattern == "" {
		return true
	}
	firstMatch, lastMatch, pi := -1, -1, 0
	for ni := 0; ni < len(name) && pi < len(pattern); ni++ {
		if name[ni] == pattern[pi] {
			if firstMatch == -1 {
				firstMatch = ni
			}
			lastMatch = ni
			pi++
		}
	}
	if pi != len(pattern) {
		return false
	}
	if anchorStart && firstMatch != 0 {
		return false
	}
	if anchorEnd && lastMatch != len(name)-1 {
		return false
	}
	return true
}

func (f *fakeDB) MainFilesContainingFile(ctx context.Context, path string, crossLanguage bool) ([]string, error) {
	return f.mainFiles[path], nil
}

func (f *fakeDB) Close() error { return nil }

var _ indexstore.Database = (*fakeDB)(nil)

func writeFile(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestHasAnyUpToDateUnit(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "A.swift")

	old := time.Now().Add(-time.Hour)
	writeFile(t, source, old)

	db := newFakeDB()
	db.units[source] = time.Now() // unit newer than source

	checker, err := fsstate.New(fsstate.ModifiedFiles, nil)
	require.NoError(t, err)
	ci := checkedindex.New(db, checker)

	fresh, err := ci.HasAnyUpToDateUnit(context.Background(), model.DocumentURI(source), nil)
	require.NoError(t, err)
	require.True(t, fresh)
}

func TestHasAnyUpToDateUnitStaleWhenSourceNewer(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "A.swift")

	db := newFakeDB()
	db.units[source] = time.Now().Add(-time.Hour) // unit older than source

	writeFile(t, source, time.Now())

	checker, err := fsstate.New(fsstate.ModifiedFiles, nil)
	require.NoError(t, err)
	ci := checkedindex.New(db, checker)

	fresh, err := ci.HasAnyUpToDateUnit(context.Background(), model.DocumentURI(source), nil)
	require.NoError(t, err)
	require.False(t, fresh)
}

func TestSymbolsInFileEmptyWithoutUpToDateUnit(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "A.swift")
	writeFile(t, source, time.Now())

	db := newFakeDB() // no unit recorded at all
	checker, err := fsstate.New(fsstate.ModifiedFiles, nil)
	require.NoError(t, err)
	ci := checkedindex.New(db, checker)

	syms, err := ci.SymbolsInFile(context.Background(), model.DocumentURI(source))
	require.NoError(t, err)
	require.Empty(t, syms)
}

func TestPrimaryDefinitionOrDeclarationOccurrenceIsDeterministic(t *testing.T) {
	db := newFakeDB()
	db.occs["s:Foo"] = []model.Occurrence{
		{Symbol: model.Symbol{USR: "s:Foo"}, Location: model.Location{Path: "/b.swift", Line: 1}, Roles: model.RoleDefinition},
		{Symbol: model.Symbol{USR: "s:Foo"}, Location: model.Location{Path: "/a.swift", Line: 5}, Roles: model.RoleDefinition},
	}

	checker, err := fsstate.New(fsstate.DeletedFiles, nil)
	require.NoError(t, err)
	ci := checkedindex.New(db, checker)

	occ, ok, err := ci.PrimaryDefinitionOrDeclarationOccurrence(context.Background(), "s:Foo")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/a.swift", occ.Location.Path)
}

func TestDefinitionFallsBackToDeclaration(t *testing.T) {
	db := newFakeDB()
	db.occs["s:Foo"] = []model.Occurrence{
		{Symbol: model.Symbol{USR: "s:Foo"}, Location: model.Location{Path: "/a.swift"}, Roles: model.RoleDeclaration},
	}
	checker, err := fsstate.New(fsstate.DeletedFiles, nil)
	require.NoError(t, err)
	ci := checkedindex.New(db, checker)

	occs, err := ci.DefinitionOrDeclarationOccurrences(context.Background(), "s:Foo")
	require.NoError(t, err)
	require.Len(t, occs, 1)
	require.True(t, occs[0].Roles.Contains(model.RoleDeclaration))
}

func TestContainerNamesWalksAccessorThenChildOf(t *testing.T) {
	db := newFakeDB()

	structUSR := "s:Struct"
	moduleUSR := "s:Module"

	db.occs[structUSR] = []model.Occurrence{{
		Symbol:   model.Symbol{USR: structUSR, Name: "MyStruct", Kind: model.ContainerKindStruct},
		Location: model.Location{Path: "/a.swift"},
		Roles:    model.RoleDefinition,
		ChildOf:  &moduleUSR,
	}}
	db.occs[moduleUSR] = []model.Occurrence{{
		Symbol:   model.Symbol{USR: moduleUSR, Name: "MyModule", Kind: model.ContainerKindModule},
		Location: model.Location{Path: "/a.swift"},
		Roles:    model.RoleDefinition,
	}}

	checker, err := fsstate.New(fsstate.DeletedFiles, nil)
	require.NoError(t, err)
	ci := checkedindex.New(db, checker)

	field := model.Occurrence{
		Symbol:     model.Symbol{USR: "s:Field", Name: "field"},
		Location:   model.Location{Path: "/a.swift"},
		AccessorOf: &structUSR,
	}

	names, err := ci.ContainerNames(context.Background(), field)
	require.NoError(t, err)
	require.Equal(t, []string{"MyModule", "MyStruct"}, names)
}

func TestContainerNamesResolvesExtensionToExtendedType(t *testing.T) {
	db := newFakeDB()

	extensionUSR := "s:Ext"
	extendedUSR := "s:Extended"

	db.occs[extensionUSR] = []model.Occurrence{{
		Symbol:        model.Symbol{USR: extensionUSR, Name: "<extension>", Kind: model.ContainerKindExtension},
		Location:      model.Location{Path: "/a.swift"},
		Roles:         model.RoleDefinition,
		ExtendedByUSR: &extendedUSR,
	}}
	db.occs[extendedUSR] = []model.Occurrence{{
		Symbol:   model.Symbol{USR: extendedUSR, Name: "Extended", Kind: model.ContainerKindStruct},
		Location: model.Location{Path: "/a.swift"},
		Roles:    model.RoleDefinition,
	}}

	checker, err := fsstate.New(fsstate.DeletedFiles, nil)
	require.NoError(t, err)
	ci := checkedindex.New(db, checker)

	member := model.Occurrence{
		Symbol:  model.Symbol{USR: "s:Member", Name: "member"},
		ChildOf: &extensionUSR,
	}

	names, err := ci.ContainerNames(context.Background(), member)
	require.NoError(t, err)
	require.Equal(t, []string{"Extended"}, names)
}

func TestForEachCanonicalOccurrenceByNameMatchesExactName(t *testing.T) {
	db := newFakeDB()
	db.occs["s:Foo"] = []model.Occurrence{
		{Symbol: model.Symbol{USR: "s:Foo", Name: "Foo"}, Location: model.Location{Path: "/a.swift"}, Roles: model.RoleDeclaration},
		{Symbol: model.Symbol{USR: "s:Foo", Name: "Foo"}, Location: model.Location{Path: "/b.swift"}, Roles: model.RoleDefinition},
	}
	db.occs["s:FooBar"] = []model.Occurrence{
		{Symbol: model.Symbol{USR: "s:FooBar", Name: "FooBar"}, Location: model.Location{Path: "/c.swift"}, Roles: model.RoleDefinition},
	}

	checker, err := fsstate.New(fsstate.DeletedFiles, nil)
	require.NoError(t, err)
	ci := checkedindex.New(db, checker)

	var got []model.Occurrence
	err = ci.ForEachCanonicalOccurrenceByName(context.Background(), "Foo", func(o model.Occurrence) bool {
		got = append(got, o)
		return true
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "s:Foo", got[0].Symbol.USR)
	require.True(t, got[0].Roles.Contains(model.RoleDefinition))
}

func TestForEachCanonicalOccurrenceContainingPatternSubsequenceIgnoreCase(t *testing.T) {
	db := newFakeDB()
	db.occs["s:HelloWorld"] = []model.Occurrence{
		{Symbol: model.Symbol{USR: "s:HelloWorld", Name: "HelloWorld"}, Location: model.Location{Path: "/a.swift"}, Roles: model.RoleDefinition},
	}
	db.occs["s:Other"] = []model.Occurrence{
		{Symbol: model.Symbol{USR: "s:Other", Name: "Unrelated"}, Location: model.Location{Path: "/b.swift"}, Roles: model.RoleDefinition},
	}

	checker, err := fsstate.New(fsstate.DeletedFiles, nil)
	require.NoError(t, err)
	ci := checkedindex.New(db, checker)

	var names []string
	err = ci.ForEachCanonicalOccurrenceContainingPattern(context.Background(), "hlwrld", indexstore.NameMatchOptions{IgnoreCase: true, Subsequence: true}, func(o model.Occurrence) bool {
		names = append(names, o.Symbol.Name)
		return true
	})
	require.NoError(t, err)
	require.Equal(t, []string{"HelloWorld"}, names)
}

func TestForEachCanonicalOccurrenceStopsEarly(t *testing.T) {
	db := newFakeDB()
	db.occs["s:A"] = []model.Occurrence{{Symbol: model.Symbol{USR: "s:A", Name: "AMatch"}, Location: model.Location{Path: "/a.swift"}, Roles: model.RoleDefinition}}
	db.occs["s:B"] = []model.Occurrence{{Symbol: model.Symbol{USR: "s:B", Name: "BMatch"}, Location: model.Location{Path: "/b.swift"}, Roles: model.RoleDefinition}}

	checker, err := fsstate.New(fsstate.DeletedFiles, nil)
	require.NoError(t, err)
	ci := checkedindex.New(db, checker)

	calls := 0
	err = ci.ForEachCanonicalOccurrenceContainingPattern(context.Background(), "Match", indexstore.NameMatchOptions{}, func(o model.Occurrence) bool {
		calls++
		return false
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}
