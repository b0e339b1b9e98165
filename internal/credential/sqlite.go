package credential

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

const schemaCredentials = `
CREATE TABLE IF NOT EXISTS credentials (
    namespace TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (namespace, key)
);
`

const (
	querySelectSecret = `SELECT value FROM credentials WHERE namespace = ? AND key = ?`
	queryUpsertSecret = `INSERT INTO credentials (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	queryDeleteSecret = `DELETE FROM credentials WHERE namespace = ? AND key = ?`
)

// SQLiteStore keeps the secret in a SQLite table keyed by (namespace, key).
type SQLiteStore struct {
	db        *sql.DB
	namespace string
	key       string
}

// NewSQLiteStore wraps an already-open database. The credentials table must
// exist; OpenSQLiteStore creates it.
func NewSQLiteStore(db *sql.DB, namespace, key string) *SQLiteStore {
	return &SQLiteStore{db: db, namespace: namespace, key: key}
}

// OpenSQLiteStore opens or creates the database at path and ensures the schema.
func OpenSQLiteStore(path, namespace, key string) (*SQLiteStore, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// One connection so the pragmas below apply to every statement.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = FULL;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaCredentials); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create credentials table: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return NewSQLiteStore(db, namespace, key), nil
}

// Load implements Store.
func (s *SQLiteStore) Load() (string, error) {
	var secret string
	err := s.db.QueryRow(querySelectSecret, s.namespace, s.key).Scan(&secret)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("select secret: %w", err)
	}
	return secret, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(secret string) error {
	if secret == "" {
		return ErrEmptySecret
	}
	if _, err := s.db.Exec(queryUpsertSecret, s.namespace, s.key, secret, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert secret: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete() error {
	if _, err := s.db.Exec(queryDeleteSecret, s.namespace, s.key); err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
