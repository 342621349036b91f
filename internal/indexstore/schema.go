package indexstore

import (
	"database/sql"
	"fmt"
)

const createUnitsTable = `
CREATE TABLE IF NOT EXISTS units (
	output_path TEXT PRIMARY KEY,
	source_path TEXT NOT NULL,
	main_path   TEXT NOT NULL,
	target      TEXT NOT NULL,
	timestamp   DATETIME NOT NULL
);`

const createUnitsBySourceIndex = `CREATE INDEX IF NOT EXISTS idx_units_source ON units(source_path);`
const createUnitsByMainIndex = `CREATE INDEX IF NOT EXISTS idx_units_main ON units(main_path);`

const createOccurrencesTable = `
CREATE TABLE IF NOT EXISTS occurrences (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	usr          TEXT NOT NULL,
	name         TEXT NOT NULL,
	kind         INTEGER NOT NULL,
	roles        INTEGER NOT NULL,
	path         TEXT NOT NULL,
	line         INTEGER NOT NULL,
	column       INTEGER NOT NULL,
	timestamp    DATETIME NOT NULL,
	accessor_of  TEXT,
	child_of     TEXT,
	extended_by  TEXT,
	related_usrs TEXT NOT NULL DEFAULT ''
);`

const createOccurrencesByUSRIndex = `CREATE INDEX IF NOT EXISTS idx_occurrences_usr ON occurrences(usr);`
const createOccurrencesByPathIndex = `CREATE INDEX IF NOT EXISTS idx_occurrences_path ON occurrences(path);`
const createOccurrencesByRelatedIndex = `CREATE INDEX IF NOT EXISTS idx_occurrences_related ON occurrences(related_usrs);`

// CreateSchema creates the units and occurrences tables and their indexes
// transactionally; calling it twice is a no-op.
func CreateSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("indexstore: begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	statements := []string{
		createUnitsTable,
		createUnitsBySourceIndex,
		createUnitsByMainIndex,
		createOccurrencesTable,
		createOccurrencesByUSRIndex,
		createOccurrencesByPathIndex,
		createOccurrencesByRelatedIndex,
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("indexstore: applying schema: %w", err)
		}
	}

	return tx.Commit()
}
