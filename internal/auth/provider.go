package auth

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/kingrea/compass/internal/filelock"
)

const (
	defaultCacheSize = 64
	watchDebounce    = 100 * time.Millisecond
)

// Provider serves authentication and feature checks from the accounts file.
// It satisfies assessment.Entitlement and storage.OwnerResolver.
type Provider struct {
	path   string
	logger *zap.Logger
	cache  *lru.Cache[string, bool]

	mu       sync.RWMutex
	accounts Accounts
	loadErr  error
}

// Option customizes a Provider.
type Option func(*Provider)

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProvider loads the accounts file at path. A missing file means nobody
// is signed in. A malformed file does not fail construction; the parse error
// is reported by HasFeature until a later Reload succeeds.
func NewProvider(path string, opts ...Option) (*Provider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("auth: accounts path is required")
	}
	cache, err := lru.New[string, bool](defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("auth: feature cache: %w", err)
	}
	p := &Provider{
		path:   filepath.Clean(path),
		logger: zap.NewNop(),
		cache:  cache,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.Reload()
	return p, nil
}

// Path returns the accounts file location.
func (p *Provider) Path() string {
	return p.path
}

// Reload re-reads the accounts file and drops cached feature answers.
func (p *Provider) Reload() error {
	accounts, err := readAccounts(p.path)
	p.mu.Lock()
	if err != nil {
		p.loadErr = err
	} else {
		p.accounts = accounts
		p.loadErr = nil
	}
	p.mu.Unlock()
	p.cache.Purge()
	if err != nil {
		p.logger.Warn("accounts reload failed", zap.String("path", p.path), zap.Error(err))
	}
	return err
}

// IsAuthenticated reports whether a known user is signed in.
func (p *Provider) IsAuthenticated(context.Context) bool {
	_, ok := p.CurrentUser()
	return ok
}

// OwnerID returns the signed-in user's id.
func (p *Provider) OwnerID(ctx context.Context) (string, bool) {
	user, ok := p.CurrentUser()
	return user.ID, ok
}

// CurrentUser returns the signed-in user.
func (p *Provider) CurrentUser() (User, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.accounts.Current == "" {
		return User{}, false
	}
	return p.accounts.Find(p.accounts.Current)
}

// Users returns every known account.
func (p *Provider) Users() []User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]User, len(p.accounts.Users))
	copy(out, p.accounts.Users)
	return out
}

// HasFeature reports whether the signed-in user holds feature. Anonymous
// users hold nothing. An unreadable accounts file is an error.
func (p *Provider) HasFeature(ctx context.Context, feature string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.RLock()
	loadErr := p.loadErr
	current := p.accounts.Current
	p.mu.RUnlock()
	if loadErr != nil {
		return false, loadErr
	}
	if current == "" {
		return false, nil
	}
	key := current + "\x00" + feature
	if cached, ok := p.cache.Get(key); ok {
		return cached, nil
	}
	user, ok := p.CurrentUser()
	has := ok && user.HasFeature(feature)
	p.cache.Add(key, has)
	return has, nil
}

// Login signs in id, creating the account if it does not exist yet.
func (p *Provider) Login(ctx context.Context, id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("auth: user id is required")
	}
	var user User
	err := p.update(ctx, func(a *Accounts) error {
		existing, ok := a.Find(id)
		if !ok {
			existing = User{ID: id, Name: id}
			a.upsert(existing)
		}
		a.Current = id
		user = existing
		return nil
	})
	if err != nil {
		return User{}, err
	}
	p.logger.Info("user signed in", zap.String("user", id))
	return user, nil
}

// Logout clears the signed-in user.
func (p *Provider) Logout(ctx context.Context) error {
	err := p.update(ctx, func(a *Accounts) error {
		a.Current = ""
		return nil
	})
	if err == nil {
		p.logger.Info("user signed out")
	}
	return err
}

// Grant adds feature to the user with id.
func (p *Provider) Grant(ctx context.Context, id, feature string) error {
	feature = strings.TrimSpace(feature)
	if feature == "" {
		return fmt.Errorf("auth: feature is required")
	}
	return p.update(ctx, func(a *Accounts) error {
		user, ok := a.Find(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownUser, id)
		}
		if !user.HasFeature(feature) {
			user.Features = append(append([]string(nil), user.Features...), feature)
			a.upsert(user)
		}
		return nil
	})
}

// Revoke removes feature from the user with id.
func (p *Provider) Revoke(ctx context.Context, id, feature string) error {
	return p.update(ctx, func(a *Accounts) error {
		user, ok := a.Find(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownUser, id)
		}
		kept := make([]string, 0, len(user.Features))
		for _, f := range user.Features {
			if f != feature {
				kept = append(kept, f)
			}
		}
		user.Features = kept
		a.upsert(user)
		return nil
	})
}

// update applies fn to a fresh read of the file under the file lock and
// writes the result back.
func (p *Provider) update(ctx context.Context, fn func(*Accounts) error) error {
	lock := filelock.New(p.path + ".lock")
	err := lock.WithLock(ctx, func() error {
		accounts, err := readAccounts(p.path)
		if err != nil {
			return err
		}
		if err := fn(&accounts); err != nil {
			return err
		}
		data, err := encodeAccounts(accounts)
		if err != nil {
			return err
		}
		if err := filelock.WriteAtomic(p.path, data); err != nil {
			return fmt.Errorf("auth: write accounts: %w", err)
		}
		p.mu.Lock()
		p.accounts = accounts
		p.loadErr = nil
		p.mu.Unlock()
		return nil
	})
	p.cache.Purge()
	return err
}

// Watch reloads the accounts file whenever it changes on disk and then calls
// onChange. It blocks until ctx is done.
func (p *Provider) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("auth: create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		return fmt.Errorf("auth: watch %s: %w", filepath.Dir(p.path), err)
	}

	var (
		timer   *time.Timer
		trigger <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != p.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			trigger = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn("accounts watcher error", zap.Error(err))
		case <-trigger:
			trigger = nil
			p.Reload()
			if onChange != nil {
				onChange()
			}
		}
	}
}
