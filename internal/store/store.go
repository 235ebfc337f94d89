package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// traceTables are the tables every trace log must carry once migrated.
var traceTables = []string{"subscriptions", "emissions"}

// pragma is a connection setting together with the value SQLite reports
// back once it has taken effect.
type pragma struct {
	name  string
	set   string
	reads string
}

// tracePragmas configure the trace log connection:
//   - WAL so `dyneval trace` can read while `evaluate` appends
//   - NORMAL sync; the newest emissions may be lost on power failure
//   - 5s busy timeout for a reader holding the lock
//   - foreign keys so emissions cannot outlive their subscription
var tracePragmas = []pragma{
	{name: "journal_mode", set: "WAL", reads: "wal"},
	{name: "synchronous", set: "NORMAL", reads: "1"},
	{name: "busy_timeout", set: "5000", reads: "5000"},
	{name: "foreign_keys", set: "ON", reads: "1"},
}

// migration upgrades a trace log written by an older dyneval. Each step runs
// in its own transaction and bumps user_version on commit.
type migration struct {
	version int
	name    string
	stmt    string
}

// Schema versions:
// 0 - subscriptions and emissions tables only
// 1 - index on emissions(seq) so LastSeq does not scan the log
var migrations = []migration{
	{
		version: 1,
		name:    "emissions seq index",
		stmt:    `CREATE INDEX IF NOT EXISTS idx_emissions_seq ON emissions(seq)`,
	},
}

var currentSchemaVersion = migrations[len(migrations)-1].version

// Store is the append-only trace log of evaluation subscriptions and their
// emissions, kept in SQLite.
type Store struct {
	db *sql.DB
}

// Open creates or opens the trace log at path, applies the connection
// pragmas and brings the schema up to date. Opening an existing log is a
// no-op apart from pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Pragmas are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.configure(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// configure applies tracePragmas and checks each one stuck. journal_mode in
// particular falls back silently on filesystems without shared memory.
func (s *Store) configure() error {
	for _, p := range tracePragmas {
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.set)); err != nil {
			return fmt.Errorf("set %s: %w", p.name, err)
		}
		if err := s.verifyPragma(p.name, p.reads); err != nil {
			return err
		}
	}
	return nil
}

// migrate creates the base tables, runs pending migrations in order and
// checks the trace tables exist.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if err := s.applyMigration(m); err != nil {
			return err
		}
	}

	for _, table := range traceTables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		if err != nil {
			return fmt.Errorf("trace table %q missing: %w", table, err)
		}
	}
	return nil
}

func (s *Store) applyMigration(m migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.stmt); err != nil {
		return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
		return fmt.Errorf("set user_version %d: %w", m.version, err)
	}
	return tx.Commit()
}

// verifyPragma checks that a pragma reads back as expected.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
