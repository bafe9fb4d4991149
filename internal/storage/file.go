package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/compass/internal/assessment"
	"github.com/kingrea/compass/internal/filelock"
)

// envelope wraps one key's payload on disk.
type envelope struct {
	Version   uint64          `json:"version"`
	Writer    string          `json:"writer,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
	Data      json.RawMessage `json:"data"`
}

// FileStore keeps each collection in its own JSON file under dir. Writes
// hold a directory lock and never replace a newer version.
type FileStore struct {
	dir    string
	lock   *filelock.Lock
	logger *zap.Logger
}

// FileOption customizes a FileStore.
type FileOption func(*FileStore)

// FileWithLogger attaches a logger.
func FileWithLogger(logger *zap.Logger) FileOption {
	return func(s *FileStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewFileStore prepares a store rooted at dir, creating it if needed.
func NewFileStore(dir string, opts ...FileOption) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage: file store dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}
	s := &FileStore{
		dir:    dir,
		lock:   filelock.New(filepath.Join(dir, ".assessment.lock")),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the directory holding the state files.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(key Key) string {
	return filepath.Join(s.dir, string(key)+".json")
}

// SelectedValues implements assessment.Storage.
func (s *FileStore) SelectedValues(ctx context.Context) ([]string, error) {
	data, err := s.readData(ctx, KeySelected)
	if err != nil || data == nil {
		return nil, err
	}
	return decodeIDs(KeySelected, data)
}

// PrioritizedValues implements assessment.Storage.
func (s *FileStore) PrioritizedValues(ctx context.Context) ([]string, error) {
	data, err := s.readData(ctx, KeyPrioritized)
	if err != nil || data == nil {
		return nil, err
	}
	return decodeIDs(KeyPrioritized, data)
}

// ReflectionResponses implements assessment.Storage.
func (s *FileStore) ReflectionResponses(ctx context.Context) (map[string]string, error) {
	data, err := s.readData(ctx, KeyReflections)
	if err != nil || data == nil {
		return nil, err
	}
	return decodeReflections(data)
}

// readData returns nil data without error for a key that was never written.
func (s *FileStore) readData(ctx context.Context, key Key) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	env, err := s.readEnvelope(key)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

func (s *FileStore) readEnvelope(key Key) (envelope, error) {
	raw, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return envelope{}, ErrRecordNotFound
	}
	if err != nil {
		return envelope{}, fmt.Errorf("storage: read %s: %w", key, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, fmt.Errorf("storage: parse %s: %w", key, err)
	}
	return env, nil
}

// Version implements assessment.Storage. Unreadable files count as version 0
// since the next save replaces them.
func (s *FileStore) Version(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var highest uint64
	for _, key := range Keys() {
		env, err := s.readEnvelope(key)
		if errors.Is(err, ErrRecordNotFound) {
			continue
		}
		if err != nil {
			s.logger.Warn("ignore unreadable state file version", zap.String("key", string(key)), zap.Error(err))
			continue
		}
		highest = max(highest, env.Version)
	}
	return highest, nil
}

// SaveAssessment implements assessment.Storage. If any key already holds a
// newer version nothing is written and ErrStaleVersion is returned.
func (s *FileStore) SaveAssessment(ctx context.Context, record assessment.Record) error {
	entries, err := entriesFor(record)
	if err != nil {
		return err
	}
	updated := record.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	return s.lock.WithLock(ctx, func() error {
		for _, e := range entries {
			current, err := s.readEnvelope(e.key)
			switch {
			case err == nil && current.Version > record.Version:
				s.logger.Debug("reject stale write",
					zap.String("key", string(e.key)),
					zap.Uint64("stored_version", current.Version),
					zap.Uint64("record_version", record.Version))
				return fmt.Errorf("%w: %s holds version %d, record has %d",
					assessment.ErrStaleVersion, e.key, current.Version, record.Version)
			case err != nil && !errors.Is(err, ErrRecordNotFound):
				// A corrupt file is replaced by the new payload.
				s.logger.Warn("overwrite unreadable state file", zap.String("key", string(e.key)), zap.Error(err))
			}
		}
		for _, e := range entries {
			payload, err := json.MarshalIndent(envelope{
				Version:   record.Version,
				Writer:    record.Writer,
				UpdatedAt: updated,
				Data:      e.data,
			}, "", "  ")
			if err != nil {
				return fmt.Errorf("storage: encode envelope %s: %w", e.key, err)
			}
			if err := filelock.WriteAtomic(s.path(e.key), payload); err != nil {
				return fmt.Errorf("storage: write %s: %w", e.key, err)
			}
		}
		return nil
	})
}

// ClearAll implements assessment.Storage.
func (s *FileStore) ClearAll(ctx context.Context) error {
	return s.lock.WithLock(ctx, func() error {
		var errs []error
		for _, key := range Keys() {
			if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("storage: remove %s: %w", key, err))
			}
		}
		return errors.Join(errs...)
	})
}
