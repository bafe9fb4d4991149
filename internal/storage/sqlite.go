package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/kingrea/compass/internal/assessment"
)

//go:embed schema.sql
var schemaSQL string

const upsertSQL = `INSERT INTO assessment_records (owner, key, value, version, writer, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(owner, key) DO UPDATE SET
    value = excluded.value,
    version = excluded.version,
    writer = excluded.writer,
    updated_at = excluded.updated_at
WHERE excluded.version >= assessment_records.version`

// OwnerResolver names the signed-in user whose records a remote store serves.
type OwnerResolver interface {
	OwnerID(ctx context.Context) (string, bool)
}

// OwnerFunc adapts a function to OwnerResolver.
type OwnerFunc func(ctx context.Context) (string, bool)

// OwnerID implements OwnerResolver.
func (f OwnerFunc) OwnerID(ctx context.Context) (string, bool) {
	return f(ctx)
}

// SQLStore is the authenticated store. Every row belongs to an owner; calls
// made while nobody is signed in fail with ErrUnauthenticated.
type SQLStore struct {
	db     *sql.DB
	path   string
	owner  OwnerResolver
	logger *zap.Logger
}

// SQLOption customizes a SQLStore.
type SQLOption func(*SQLStore)

// SQLWithLogger attaches a logger.
func SQLWithLogger(logger *zap.Logger) SQLOption {
	return func(s *SQLStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// OpenSQLStore opens (and if needed creates) the database at path.
func OpenSQLStore(path string, owner OwnerResolver, opts ...SQLOption) (*SQLStore, error) {
	if owner == nil {
		return nil, fmt.Errorf("storage: owner resolver is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("storage: create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}
	if path == ":memory:" {
		// Each connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(context.Background(), db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage: set %s: %w", pragma, err)
		}
	}
	if err := execWithRetry(context.Background(), db, schemaSQL, 5, 10*time.Millisecond); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: init schema: %w", err)
	}
	s := &SQLStore{db: db, path: path, owner: owner, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// execWithRetry backs off exponentially while sqlite reports a locked database.
func execWithRetry(ctx context.Context, db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.ExecContext(ctx, stmt)
		if err == nil {
			return nil
		}
		if !isLocked(err) {
			return err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(baseDelay * time.Duration(1<<attempt)):
		}
	}
	return lastErr
}

func isLocked(err error) bool {
	return err != nil && strings.Contains(err.Error(), "database is locked")
}

// Path returns the database file location.
func (s *SQLStore) Path() string {
	return s.path
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) ownerID(ctx context.Context) (string, error) {
	id, ok := s.owner.OwnerID(ctx)
	if !ok || strings.TrimSpace(id) == "" {
		return "", ErrUnauthenticated
	}
	return id, nil
}

// SelectedValues implements assessment.Storage.
func (s *SQLStore) SelectedValues(ctx context.Context) ([]string, error) {
	data, err := s.get(ctx, KeySelected)
	if err != nil || data == nil {
		return nil, err
	}
	return decodeIDs(KeySelected, data)
}

// PrioritizedValues implements assessment.Storage.
func (s *SQLStore) PrioritizedValues(ctx context.Context) ([]string, error) {
	data, err := s.get(ctx, KeyPrioritized)
	if err != nil || data == nil {
		return nil, err
	}
	return decodeIDs(KeyPrioritized, data)
}

// ReflectionResponses implements assessment.Storage.
func (s *SQLStore) ReflectionResponses(ctx context.Context) (map[string]string, error) {
	data, err := s.get(ctx, KeyReflections)
	if err != nil || data == nil {
		return nil, err
	}
	return decodeReflections(data)
}

// Version implements assessment.Storage: the highest version stored for the
// current owner, 0 when the owner has no rows.
func (s *SQLStore) Version(ctx context.Context) (uint64, error) {
	owner, err := s.ownerID(ctx)
	if err != nil {
		return 0, err
	}
	var version sql.NullInt64
	err = s.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM assessment_records WHERE owner = ?`, owner).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("storage: query version: %w", err)
	}
	return uint64(version.Int64), nil
}

func (s *SQLStore) get(ctx context.Context, key Key) ([]byte, error) {
	owner, err := s.ownerID(ctx)
	if err != nil {
		return nil, err
	}
	var value string
	err = s.db.QueryRowContext(ctx,
		`SELECT value FROM assessment_records WHERE owner = ? AND key = ?`, owner, string(key)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: query %s: %w", key, err)
	}
	return []byte(value), nil
}

// SaveAssessment implements assessment.Storage. All keys are written in one
// transaction. A row holding a newer version rolls the transaction back with
// ErrStaleVersion.
func (s *SQLStore) SaveAssessment(ctx context.Context, record assessment.Record) error {
	owner, err := s.ownerID(ctx)
	if err != nil {
		return err
	}
	entries, err := entriesFor(record)
	if err != nil {
		return err
	}
	updated := record.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("storage: prepare upsert: %w", err)
	}
	defer stmt.Close()
	for _, e := range entries {
		res, err := stmt.ExecContext(ctx,
			owner, string(e.key), string(e.data), int64(record.Version), record.Writer,
			updated.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("storage: upsert %s: %w", e.key, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("storage: upsert %s: %w", e.key, err)
		}
		if n == 0 {
			s.logger.Debug("reject stale write", zap.String("key", string(e.key)), zap.Uint64("version", record.Version))
			return fmt.Errorf("%w: %s is newer than version %d", assessment.ErrStaleVersion, e.key, record.Version)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	s.logger.Debug("assessment saved", zap.String("owner", owner), zap.Uint64("version", record.Version))
	return nil
}

// ClearAll implements assessment.Storage.
func (s *SQLStore) ClearAll(ctx context.Context) error {
	owner, err := s.ownerID(ctx)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM assessment_records WHERE owner = ?`, owner); err != nil {
		return fmt.Errorf("storage: clear: %w", err)
	}
	return nil
}
