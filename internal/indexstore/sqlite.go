package indexstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mvp-joe/cortexidx/internal/model"
)

// ErrClosed is returned by every SQLiteDatabase operation once Close has
// been called.
var ErrClosed = errors.New("indexstore: database closed")

// SQLiteDatabase is the default Database implementation: a single SQLite
// file storing units and occurrences, queried with squirrel's builder.
type SQLiteDatabase struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// Open creates or attaches to a SQLite index database at path and ensures
// its schema exists. Use ":memory:" for an ephemeral, test-only store.
func Open(path string) (*SQLiteDatabase, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("indexstore: opening %s: %w", path, err)
	}
	if err := CreateSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteDatabase{db: db}, nil
}

func (s *SQLiteDatabase) runner() (sq.BaseRunner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.db, nil
}

// WriteUnit records (or replaces) a unit row, keyed by output path. The
// update-index-store task does not call it; units are recorded only by
// callers that write them explicitly.
func (s *SQLiteDatabase) WriteUnit(ctx context.Context, u UnitRecord) error {
	db, err := s.runner()
	if err != nil {
		return err
	}
	_, err = sq.Insert("units").
		Columns("output_path", "source_path", "main_path", "target", "timestamp").
		Values(u.OutputPath, u.SourcePath, u.MainPath, u.Target, u.Timestamp).
		Options("OR REPLACE").
		PlaceholderFormat(sq.Question).
		RunWith(db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("indexstore: writing unit %s: %w", u.OutputPath, err)
	}
	return nil
}

// WriteOccurrence inserts one occurrence row, produced by parsing a
// compiler's indexing output. This module has no compiler-output parser,
// and the update-index-store task does not call it; occurrences are
// recorded only by callers that write already-structured records.
func (s *SQLiteDatabase) WriteOccurrence(ctx context.Context, o model.Occurrence) error {
	db, err := s.runner()
	if err != nil {
		return err
	}
	_, err = sq.Insert("occurrences").
		Columns("usr", "name", "kind", "roles", "path", "line", "column", "timestamp",
			"accessor_of", "child_of", "extended_by", "related_usrs").
		Values(o.Symbol.USR, o.Symbol.Name, int(o.Symbol.Kind), int(o.Roles),
			o.Location.Path, o.Location.Line, o.Location.Column, o.Location.Timestamp,
			nullableString(o.AccessorOf), nullableString(o.ChildOf), nullableString(o.ExtendedByUSR),
			strings.Join(o.RelatedUSRs, ",")).
		PlaceholderFormat(sq.Question).
		RunWith(db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("indexstore: writing occurrence for %s: %w", o.Symbol.USR, err)
	}
	return nil
}

func nullableString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func (s *SQLiteDatabase) ForEachSymbolOccurrence(ctx context.Context, usr string, roles model.SymbolRole, cb func(model.Occurrence) bool) error {
	occs, err := s.OccurrencesOfUSR(ctx, usr, roles)
	if err != nil {
		return err
	}
	for _, o := range occs {
		if !cb(o) {
			break
		}
	}
	return nil
}

func (s *SQLiteDatabase) OccurrencesOfUSR(ctx context.Context, usr string, roles model.SymbolRole) ([]model.Occurrence, error) {
	db, err := s.runner()
	if err != nil {
		return nil, err
	}
	rows, err := sq.Select(occurrenceColumns...).
		From("occurrences").
		Where(sq.Eq{"usr": usr}).
		PlaceholderFormat(sq.Question).
		RunWith(db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("indexstore: querying occurrences of %s: %w", usr, err)
	}
	defer rows.Close()
	return scanOccurrences(rows, roles)
}

func (s *SQLiteDatabase) OccurrencesRelatedToUSR(ctx context.Context, usr string, roles model.SymbolRole) ([]model.Occurrence, error) {
	db, err := s.runner()
	if err != nil {
		return nil, err
	}
	rows, err := sq.Select(occurrenceColumns...).
		From("occurrences").
		Where(sq.Like{"related_usrs": "%" + usr + "%"}).
		PlaceholderFormat(sq.Question).
		RunWith(db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("indexstore: querying occurrences related to %s: %w", usr, err)
	}
	defer rows.Close()
	all, err := scanOccurrences(rows, roles)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, o := range all {
		for _, r := range o.RelatedUSRs {
			if r == usr {
				out = append(out, o)
				break
			}
		}
	}
	return out, nil
}

func (s *SQLiteDatabase) CanonicalSymbolOccurrences(ctx context.Context, pattern string, opts NameMatchOptions) ([]model.Occurrence, error) {
	db, err := s.runner()
	if err != nil {
		return nil, err
	}
	rows, err := sq.Select(occurrenceColumns...).
		From("occurrences").
		PlaceholderFormat(sq.Question).
		RunWith(db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("indexstore: querying canonical occurrences matching %q: %w", pattern, err)
	}
	defer rows.Close()

	all, err := scanOccurrences(rows, model.RoleDeclaration|model.RoleDefinition)
	if err != nil {
		return nil, err
	}

	byUSR := make(map[string][]model.Occurrence)
	for _, o := range all {
		if !matchesNamePattern(o.Symbol.Name, pattern, opts) {
			continue
		}
		byUSR[o.Symbol.USR] = append(byUSR[o.Symbol.USR], o)
	}

	out := make([]model.Occurrence, 0, len(byUSR))
	for _, occs := range byUSR {
		if canonical, ok := canonicalOccurrence(occs); ok {
			out = append(out, canonical)
		}
	}
	sortOccurrencesByLocation(out)
	return out, nil
}

// canonicalOccurrence picks the representative occurrence for one symbol:
// a definition if any exist, else a declaration, breaking ties
// deterministically by location.
func canonicalOccurrence(occs []model.Occurrence) (model.Occurrence, bool) {
	var defs, decls []model.Occurrence
	for _, o := range occs {
		if o.Roles.Intersects(model.RoleDefinition) {
			defs = append(defs, o)
		} else if o.Roles.Intersects(model.RoleDeclaration) {
			decls = append(decls, o)
		}
	}
	pick := defs
	if len(pick) == 0 {
		pick = decls
	}
	if len(pick) == 0 {
		return model.Occurrence{}, false
	}
	sortOccurrencesByLocation(pick)
	return pick[0], true
}

func sortOccurrencesByLocation(occs []model.Occurrence) {
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

// matchesNamePattern implements the containing-pattern name match: a
// contiguous substring match by default, a subsequence match when
// opts.Subsequence is set, each optionally anchored to the start and/or
// end of name and case-folded.
func matchesNamePattern(name, pattern string, opts NameMatchOptions) bool {
	if opts.IgnoreCase {
		name = strings.ToLower(name)
		pattern = strings.ToLower(pattern)
	}
	if opts.Subsequence {
		return matchesSubsequence(name, pattern, opts.AnchorStart, opts.AnchorEnd)
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

// matchesSubsequence reports whether pattern's characters occur in name,
// in order, not necessarily contiguously, with the first/last matched
// character required to be name's first/last character when anchorStart/
// anchorEnd are set.
func matchesSubsequence(name, pattern string, anchorStart, anchorEnd bool) bool {
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

func (s *SQLiteDatabase) SymbolsInFile(ctx context.Context, path string) ([]model.Symbol, error) {
	db, err := s.runner()
	if err != nil {
		return nil, err
	}
	rows, err := sq.Select("DISTINCT usr", "name", "kind").
		From("occurrences").
		Where(sq.Eq{"path": path}).
		PlaceholderFormat(sq.Question).
		RunWith(db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("indexstore: querying symbols in %s: %w", path, err)
	}
	defer rows.Close()

	var out []model.Symbol
	for rows.Next() {
		var sym model.Symbol
		var kind int
		if err := rows.Scan(&sym.USR, &sym.Name, &kind); err != nil {
			return nil, err
		}
		sym.Kind = model.ContainerKind(kind)
		out = append(out, sym)
	}
	return out, rows.Err()
}

func (s *SQLiteDatabase) UnitTests(ctx context.Context, mainFiles []string) ([]model.Occurrence, error) {
	db, err := s.runner()
	if err != nil {
		return nil, err
	}
	query := sq.Select(occurrenceColumns...).From("occurrences").PlaceholderFormat(sq.Question)

	if len(mainFiles) > 0 {
		query = query.Where(sq.Eq{"path": mainFiles})
	}
	rows, err := query.RunWith(db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("indexstore: querying unit tests: %w", err)
	}
	defer rows.Close()
	return scanOccurrences(rows, model.RoleUnitTest)
}

func (s *SQLiteDatabase) DateOfLatestUnitFor(ctx context.Context, path string) (time.Time, bool, error) {
	db, err := s.runner()
	if err != nil {
		return time.Time{}, false, err
	}
	row := sq.Select("timestamp").
		From("units").
		Where(sq.Eq{"source_path": path}).
		OrderBy("timestamp DESC").
		Limit(1).
		PlaceholderFormat(sq.Question).
		RunWith(db).
		QueryRowContext(ctx)

	var ts time.Time
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("indexstore: querying latest unit for %s: %w", path, err)
	}
	return ts, true, nil
}

func (s *SQLiteDatabase) DateOfUnitFor(ctx context.Context, outputPath string) (time.Time, bool, error) {
	db, err := s.runner()
	if err != nil {
		return time.Time{}, false, err
	}
	row := sq.Select("timestamp").
		From("units").
		Where(sq.Eq{"output_path": outputPath}).
		PlaceholderFormat(sq.Question).
		RunWith(db).
		QueryRowContext(ctx)

	var ts time.Time
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("indexstore: querying unit %s: %w", outputPath, err)
	}
	return ts, true, nil
}

// ProcessUnitsForOutputPathsAndWait is a no-op beyond a closed-check: the
// SQLite implementation writes units synchronously in WriteUnit, so there
// is never a pending-ingest backlog to drain.
func (s *SQLiteDatabase) ProcessUnitsForOutputPathsAndWait(ctx context.Context, outputPaths []string) error {
	_, err := s.runner()
	return err
}

// PollForUnitChangesAndWait is likewise a no-op: nothing outside this
// process writes to this database file.
func (s *SQLiteDatabase) PollForUnitChangesAndWait(ctx context.Context) error {
	_, err := s.runner()
	return err
}

func (s *SQLiteDatabase) MainFilesContainingFile(ctx context.Context, path string, crossLanguage bool) ([]string, error) {
	db, err := s.runner()
	if err != nil {
		return nil, err
	}
	rows, err := sq.Select("DISTINCT main_path").
		From("units").
		Where(sq.Eq{"source_path": path}).
		PlaceholderFormat(sq.Question).
		RunWith(db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("indexstore: querying main files containing %s: %w", path, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var mainPath string
		if err := rows.Scan(&mainPath); err != nil {
			return nil, err
		}
		out = append(out, mainPath)
	}
	return out, rows.Err()
}

func (s *SQLiteDatabase) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var occurrenceColumns = []string{
	"usr", "name", "kind", "roles", "path", "line", "column", "timestamp",
	"accessor_of", "child_of", "extended_by", "related_usrs",
}

func scanOccurrences(rows *sql.Rows, roleFilter model.SymbolRole) ([]model.Occurrence, error) {
	var out []model.Occurrence
	for rows.Next() {
		var o model.Occurrence
		var kind, roles int
		var accessorOf, childOf, extendedBy sql.NullString
		var relatedUSRs string

		if err := rows.Scan(&o.Symbol.USR, &o.Symbol.Name, &kind, &roles,
			&o.Location.Path, &o.Location.Line, &o.Location.Column, &o.Location.Timestamp,
			&accessorOf, &childOf, &extendedBy, &relatedUSRs); err != nil {
			return nil, err
		}
		o.Symbol.Kind = model.ContainerKind(kind)
		o.Roles = model.SymbolRole(roles)
		if roleFilter != 0 && !o.Roles.Intersects(roleFilter) {
			continue
		}
		if accessorOf.Valid {
			v := accessorOf.String
			o.AccessorOf = &v
		}
		if childOf.Valid {
			v := childOf.String
			o.ChildOf = &v
		}
		if extendedBy.Valid {
			v := extendedBy.String
			o.ExtendedByUSR = &v
		}
		if relatedUSRs != "" {
			o.RelatedUSRs = strings.Split(relatedUSRs, ",")
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
