package database

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}

	cases := map[string]func(c *Config){
		"empty path":   func(c *Config) { c.DatabasePath = "" },
		"no conns":     func(c *Config) { c.MaxConnections = 0 },
		"no lifetime":  func(c *Config) { c.ConnMaxLifetime = 0 },
		"no idle time": func(c *Config) { c.ConnMaxIdleTime = 0 },
		"no queue":     func(c *Config) { c.QueueSize = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestMigrations_ApplyAndValidate(t *testing.T) {
	db, err := Open(openTestDB(t))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	m := NewMigrationManager(db)
	if err := m.ApplyMigrations(); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	// Second run is a no-op
	if err := m.ApplyMigrations(); err != nil {
		t.Fatalf("re-apply failed: %v", err)
	}

	if err := NewSchemaValidator(db).Validate(); err != nil {
		t.Errorf("schema should validate: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 recorded migration, got %d", count)
	}
}

func TestSchemaValidator_MissingTable(t *testing.T) {
	db, err := Open(openTestDB(t))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := NewSchemaValidator(db).ValidateTablesExist(); err == nil {
		t.Error("unmigrated database should fail validation")
	}
}

func TestSchemaValidator_RejectsEventKindOutsideCheck(t *testing.T) {
	db, err := Open(openTestDB(t))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	NewMigrationManager(db).ApplyMigrations()

	_, err = db.Exec(`INSERT INTO session_events (code, event, participants, occurred_at) VALUES ('ABC234', 'hacked', 0, CURRENT_TIMESTAMP)`)
	if err == nil {
		t.Error("check constraint should reject unknown event kinds")
	}
}
