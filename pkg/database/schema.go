package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator checks that the activity log schema is what the code expects
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// Validate runs every check
func (v *SchemaValidator) Validate() error {
	if err := v.ValidateTablesExist(); err != nil {
		return err
	}
	if err := v.ValidateTableStructure(); err != nil {
		return err
	}
	return v.ValidateIndexes()
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	for _, table := range []string{"session_events", "schema_migrations"} {
		exists, err := v.exists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}
	return nil
}

// ValidateTableStructure verifies column names and declared types
// TECHNICAL DISCOVERY: The event table deliberately has no column that could hold
// credentials, names or text; the check fails if one ever appears
func (v *SchemaValidator) ValidateTableStructure() error {
	expected := map[string]string{
		"id":           "INTEGER",
		"code":         "TEXT",
		"event":        "TEXT",
		"participants": "INTEGER",
		"occurred_at":  "DATETIME",
	}
	found, err := v.columns("session_events")
	if err != nil {
		return err
	}
	for name, typ := range expected {
		got, ok := found[name]
		if !ok {
			return fmt.Errorf("session_events: column %s not found", name)
		}
		if got != typ {
			return fmt.Errorf("session_events: column %s has type %s, expected %s", name, got, typ)
		}
	}
	if len(found) != len(expected) {
		return fmt.Errorf("session_events: unexpected extra columns (%d found, %d expected)", len(found), len(expected))
	}
	return nil
}

// ValidateIndexes verifies that the read-path indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	for _, index := range []string{"idx_session_events_time", "idx_session_events_code"} {
		exists, err := v.exists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s: %w", index, err)
		}
		if !exists {
			return fmt.Errorf("required index %s does not exist", index)
		}
	}
	return nil
}

func (v *SchemaValidator) exists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) columns(table string) (map[string]string, error) {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[string]string)
	for rows.Next() {
		var (
			cid          int
			name, typ    string
			notNull, pk  int
			defaultValue interface{}
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultValue, &pk); err != nil {
			return nil, err
		}
		found[name] = typ
	}
	return found, rows.Err()
}
