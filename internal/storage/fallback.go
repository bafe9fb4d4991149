package storage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kingrea/compass/internal/assessment"
)

// Authenticator reports whether a signed-in session exists.
type Authenticator interface {
	IsAuthenticated(ctx context.Context) bool
}

// Fallback serves from remote while the user is signed in and the remote
// answers, and from local otherwise. Remote failures are logged and retried
// against local; callers cannot tell which backend answered.
type Fallback struct {
	remote assessment.Storage
	local  assessment.Storage
	auth   Authenticator
	logger *zap.Logger
}

// FallbackOption customizes a Fallback.
type FallbackOption func(*Fallback)

// FallbackWithLogger attaches a logger.
func FallbackWithLogger(logger *zap.Logger) FallbackOption {
	return func(f *Fallback) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFallback builds the router. remote and auth may be nil, in which case
// every call goes to local.
func NewFallback(remote, local assessment.Storage, auth Authenticator, opts ...FallbackOption) (*Fallback, error) {
	if local == nil {
		return nil, fmt.Errorf("storage: local store is required")
	}
	f := &Fallback{remote: remote, local: local, auth: auth, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *Fallback) useRemote(ctx context.Context) bool {
	return f.remote != nil && f.auth != nil && f.auth.IsAuthenticated(ctx)
}

func (f *Fallback) degrade(op string, err error) {
	f.logger.Warn("remote store failed, using local",
		zap.String("op", op), zap.Error(err))
}

// SelectedValues implements assessment.Storage.
func (f *Fallback) SelectedValues(ctx context.Context) ([]string, error) {
	return readThrough(ctx, f, "selected", func(s assessment.Storage) ([]string, error) {
		return s.SelectedValues(ctx)
	})
}

// PrioritizedValues implements assessment.Storage.
func (f *Fallback) PrioritizedValues(ctx context.Context) ([]string, error) {
	return readThrough(ctx, f, "prioritized", func(s assessment.Storage) ([]string, error) {
		return s.PrioritizedValues(ctx)
	})
}

// ReflectionResponses implements assessment.Storage.
func (f *Fallback) ReflectionResponses(ctx context.Context) (map[string]string, error) {
	return readThrough(ctx, f, "reflections", func(s assessment.Storage) (map[string]string, error) {
		return s.ReflectionResponses(ctx)
	})
}

func readThrough[T any](ctx context.Context, f *Fallback, op string, read func(assessment.Storage) (T, error)) (T, error) {
	if f.useRemote(ctx) {
		out, err := read(f.remote)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, context.Canceled) {
			return out, err
		}
		f.degrade(op, err)
	}
	return read(f.local)
}

// Version implements assessment.Storage.
func (f *Fallback) Version(ctx context.Context) (uint64, error) {
	return readThrough(ctx, f, "version", func(s assessment.Storage) (uint64, error) {
		return s.Version(ctx)
	})
}

// SaveAssessment implements assessment.Storage. A stale rejection from the
// remote is an answer, not an outage, so it never falls through to local.
func (f *Fallback) SaveAssessment(ctx context.Context, record assessment.Record) error {
	if f.useRemote(ctx) {
		err := f.remote.SaveAssessment(ctx, record)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, assessment.ErrStaleVersion) {
			return err
		}
		f.degrade("save", err)
	}
	return f.local.SaveAssessment(ctx, record)
}

// ClearAll clears the local store and, when signed in, the remote one so a
// later fallback cannot resurrect old answers.
func (f *Fallback) ClearAll(ctx context.Context) error {
	var errs []error
	if f.useRemote(ctx) {
		if err := f.remote.ClearAll(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := f.local.ClearAll(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
