// Package filelock guards compass state files against concurrent writers,
// including a second compass process pointed at the same project.
package filelock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const retryDelay = 25 * time.Millisecond

// Lock is an advisory exclusive lock backed by a lock file. It excludes
// other processes through the file and goroutines sharing the Lock through
// an in-process slot, since the file lock alone is reentrant per handle.
type Lock struct {
	flock *flock.Flock
	path  string
	slot  chan struct{}
}

// New prepares a lock at path. The file is created on first acquisition.
func New(path string) *Lock {
	return &Lock{flock: flock.New(path), path: path, slot: make(chan struct{}, 1)}
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Acquire blocks until the lock is held or ctx is done.
func (l *Lock) Acquire(ctx context.Context) error {
	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("filelock: acquire %s: %w", l.path, ctx.Err())
	}
	if err := l.acquireFile(ctx); err != nil {
		<-l.slot
		return err
	}
	return nil
}

func (l *Lock) acquireFile(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("filelock: ensure dir for %s: %w", l.path, err)
	}
	ok, err := l.flock.TryLockContext(ctx, retryDelay)
	if err != nil {
		return fmt.Errorf("filelock: acquire %s: %w", l.path, err)
	}
	if !ok {
		return fmt.Errorf("filelock: acquire %s: lock not obtained", l.path)
	}
	return nil
}

// Release drops the lock. It must pair with a successful Acquire.
func (l *Lock) Release() error {
	defer func() { <-l.slot }()
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("filelock: release %s: %w", l.path, err)
	}
	return nil
}

// WithLock runs fn while holding the lock.
func (l *Lock) WithLock(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}

// WriteAtomic replaces path with data via a temp file in the same directory
// followed by a rename, so readers see either the old or the new content.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("filelock: ensure dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("filelock: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("filelock: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("filelock: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("filelock: close temp: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("filelock: chmod temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("filelock: rename into %s: %w", path, err)
	}
	committed = true
	return nil
}

// LockAndWrite takes path+".lock" and writes path atomically.
func LockAndWrite(ctx context.Context, path string, data []byte) error {
	return New(path+".lock").WithLock(ctx, func() error {
		return WriteAtomic(path, data)
	})
}
