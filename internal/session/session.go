// Package session assembles a ready-to-use assessment from the project
// configuration: storage, entitlement, catalog, insights, journaling and
// metrics all hang off one Session.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/kingrea/compass/internal/assessment"
	"github.com/kingrea/compass/internal/auth"
	"github.com/kingrea/compass/internal/config"
	"github.com/kingrea/compass/internal/export"
	"github.com/kingrea/compass/internal/insights"
	"github.com/kingrea/compass/internal/logbook"
	"github.com/kingrea/compass/internal/logging"
	"github.com/kingrea/compass/internal/metrics"
	"github.com/kingrea/compass/internal/storage"
	"github.com/kingrea/compass/internal/values"
)

// Options tweak how a session is opened.
type Options struct {
	ProjectDir string
	// Logger replaces the file logger built from config.
	Logger *zap.Logger
	// Clock stamps persisted records and journal entries.
	Clock func() time.Time
}

// Session owns every long-lived component of one compass run.
type Session struct {
	Config   *config.Config
	Logger   *zap.Logger
	Bus      *assessment.Bus
	Machine  *assessment.Machine
	Auth     *auth.Provider
	Catalog  *values.Catalog
	Advisor  *insights.Advisor
	Renderer *export.Renderer
	Journey  *logbook.Logbook
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry

	sqlStore *storage.SQLStore
	subs     []assessment.Subscription
	clock    func() time.Time
}

// Open prepares .compass, loads config and wires the collaborators. The
// machine is not initialized yet; call Start.
func Open(opts Options) (*Session, error) {
	projectDir := opts.ProjectDir
	if projectDir == "" {
		projectDir = "."
	}
	if err := config.InitCompassDir(projectDir); err != nil {
		return nil, err
	}
	cfg, err := config.Load(projectDir)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger, _, err = logging.New(cfg.LogsDir(), cfg.LogLevel())
		if err != nil {
			return nil, err
		}
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}

	s := &Session{Config: cfg, Logger: logger, Catalog: values.Default(), clock: clock}
	s.Auth, err = auth.NewProvider(cfg.AccountsPath(), auth.WithLogger(logger.Named("auth")))
	if err != nil {
		return nil, err
	}
	store, err := s.openStorage()
	if err != nil {
		return nil, err
	}

	s.Bus = assessment.NewBus(assessment.BusWithLogger(logger.Named("bus")))
	s.Machine, err = assessment.New(assessment.Config{
		Storage:     store,
		Entitlement: s.Auth,
		Identity:    s.Auth,
		Catalog:     s.Catalog,
		Bus:         s.Bus,
		Policy:      policy,
		Logger:      logger.Named("assessment"),
		SaveTimeout: cfg.SaveTimeout(),
		Clock:       clock,
	})
	if err != nil {
		s.closeStorage()
		return nil, err
	}

	s.Journey, err = logbook.New(cfg.JourneyLogPath(), logbook.WithClock(clock), logbook.WithNamer(s.Catalog.Name))
	if err != nil {
		s.Machine.Close(context.Background())
		s.closeStorage()
		return nil, err
	}
	s.subs = append(s.subs, s.Journey.Attach(s.Bus)...)

	s.Registry = prometheus.NewRegistry()
	s.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.Metrics = metrics.MustNew(s.Registry)
	s.subs = append(s.subs, s.Metrics.Attach(s.Bus, s.Machine)...)

	s.Advisor = insights.NewAdvisor(s.Auth, s.Catalog, insights.WithLogger(logger.Named("insights")))
	s.Renderer = export.NewRenderer(s.Catalog)
	logger.Info("session opened",
		zap.String("project", projectDir),
		zap.String("backend", cfg.Backend()),
		zap.Int("min_selections", policy.MinSelections),
		zap.String("integrity", string(policy.Integrity)))
	return s, nil
}

func (s *Session) openStorage() (assessment.Storage, error) {
	cfg := s.Config
	logger := s.Logger.Named("storage")
	local, err := storage.NewFileStore(cfg.LocalDir(), storage.FileWithLogger(logger))
	if err != nil {
		return nil, err
	}
	if cfg.Backend() == config.BackendLocal {
		return local, nil
	}
	s.sqlStore, err = storage.OpenSQLStore(cfg.SQLitePath(), s.Auth, storage.SQLWithLogger(logger))
	if err != nil {
		if cfg.Backend() == config.BackendSQLite {
			return nil, err
		}
		logger.Warn("sqlite store unavailable, using local files only", zap.Error(err))
		return local, nil
	}
	if cfg.Backend() == config.BackendSQLite {
		return s.sqlStore, nil
	}
	return storage.NewFallback(s.sqlStore, local, s.Auth, storage.FallbackWithLogger(logger))
}

func (s *Session) closeStorage() error {
	if s.sqlStore == nil {
		return nil
	}
	return s.sqlStore.Close()
}

// Start loads stored progress and resolves entitlements.
func (s *Session) Start(ctx context.Context) error {
	return s.Machine.Initialize(ctx)
}

// WatchAccounts refreshes entitlements whenever the accounts file changes. A
// different signed-in account reloads progress from that account's storage.
// onChange, if set, runs after each refresh. It blocks until ctx is done.
func (s *Session) WatchAccounts(ctx context.Context, onChange func(premium bool)) error {
	return s.Auth.Watch(ctx, func() {
		premium := s.Machine.RefreshEntitlement(ctx)
		s.Logger.Info("entitlement refreshed", zap.Bool("premium", premium))
		if onChange != nil {
			onChange(premium)
		}
	})
}

// Report captures the current assessment with insights and next steps.
func (s *Session) Report(ctx context.Context) export.Report {
	record := s.Machine.Snapshot()
	return export.Report{
		GeneratedAt: s.clock(),
		Record:      record,
		Insights:    s.Advisor.GenerateInsights(ctx, record),
		Actions:     s.Advisor.ActionRecommendations(ctx, record.PrioritizedValues, 3),
	}
}

// Export renders the current report to path, or to a dated file under
// .compass/exports when path is empty. It returns the written path.
func (s *Session) Export(ctx context.Context, path string, format export.Format) (string, error) {
	if path == "" {
		name := "values-assessment-" + s.clock().Format("20060102-150405") + format.Extension()
		path = filepath.Join(s.Config.ExportsDir(), name)
	}
	if err := s.Renderer.WriteFile(ctx, path, s.Report(ctx), format); err != nil {
		return "", err
	}
	s.Journey.Info("Exported report to %s", path)
	s.Logger.Info("report exported", zap.String("path", path), zap.String("format", string(format)))
	return path, nil
}

// Close flushes pending writes and releases every resource.
func (s *Session) Close(ctx context.Context) error {
	var errs []error
	if err := s.Machine.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("session: close machine: %w", err))
	}
	s.Bus.OffAll(s.subs)
	s.subs = nil
	if err := s.closeStorage(); err != nil {
		errs = append(errs, fmt.Errorf("session: close storage: %w", err))
	}
	_ = s.Logger.Sync()
	return errors.Join(errs...)
}
