// internal/config/config.go
//
// This package handles configuration and the .compass directory structure.
// Every project that runs compass gets a .compass/ folder in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/compass/internal/assessment"
)

const (
	// CompassDir is the name of the directory we create in each project
	CompassDir = ".compass"

	BackendAuto   = "auto"
	BackendLocal  = "local"
	BackendSQLite = "sqlite"

	PresetDefault = "default"
	PresetLegacy  = "legacy"

	defaultSaveTimeout = 10 * time.Second
	defaultLogLevel    = "info"
)

const defaultProjectConfigYAML = `# compass project configuration
version: 1

storage:
  # auto uses the sqlite store while signed in and local files otherwise.
  # local and sqlite pin one backend.
  backend: auto
  sqlite_path: state/compass.db
  local_dir: state/local
  save_timeout: 10s

# Step gates. preset "legacy" requires 5 selections, 3 ranked values and
# 1 reflection. integrity: drop | reject | permissive
policy:
  preset: default
  integrity: drop

log:
  level: info

metrics:
  # host:port for a Prometheus /metrics endpoint while the TUI runs. Empty disables it.
  listen: ""
`

// StorageConfig selects and locates the persistence backends.
type StorageConfig struct {
	Backend     string `yaml:"backend"`
	SQLitePath  string `yaml:"sqlite_path"`
	LocalDir    string `yaml:"local_dir"`
	SaveTimeout string `yaml:"save_timeout"`
}

// PolicyConfig tunes the step gates. Zero thresholds fall back to the preset.
type PolicyConfig struct {
	Preset         string `yaml:"preset"`
	MinSelections  int    `yaml:"min_selections,omitempty"`
	MinPrioritized int    `yaml:"min_prioritized,omitempty"`
	MinReflections int    `yaml:"min_reflections,omitempty"`
	Integrity      string `yaml:"integrity"`
}

// LogConfig sets the structured log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// ProjectConfig models .compass/config.yaml.
type ProjectConfig struct {
	Version int           `yaml:"version"`
	Storage StorageConfig `yaml:"storage"`
	Policy  PolicyConfig  `yaml:"policy"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// Config holds the runtime configuration for compass.
type Config struct {
	// ProjectDir is the directory where the user ran `compass` from
	ProjectDir string

	// CompassProjectDir is ProjectDir/.compass
	CompassProjectDir string

	Project ProjectConfig
}

// InitCompassDir creates the .compass directory structure in projectDir.
//
// Structure created:
// .compass/
// ├── config.yaml
// ├── logs/      <- compass.log (zap) and journey.log
// ├── state/     <- sqlite database and local JSON state
// └── exports/   <- rendered reports
func InitCompassDir(projectDir string) error {
	compassDir := filepath.Join(projectDir, CompassDir)
	dirs := []string{
		filepath.Join(compassDir, "logs"),
		filepath.Join(compassDir, "state"),
		filepath.Join(compassDir, "exports"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return ensureProjectConfig(filepath.Join(compassDir, "config.yaml"))
}

// Load reads .compass/config.yaml under projectDir and applies environment
// overrides. A missing file yields the defaults.
func Load(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:        projectDir,
		CompassProjectDir: filepath.Join(projectDir, CompassDir),
		Project:           defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	cfg.Project.applyEnvOverrides()
	cfg.Project.normalize()
	if err := cfg.Project.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.CompassProjectDir, "config.yaml")
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.CompassProjectDir, "logs")
}

// JourneyLogPath returns the human-readable journey log.
func (c *Config) JourneyLogPath() string {
	return filepath.Join(c.LogsDir(), "journey.log")
}

// StateDir returns the path to the state directory
func (c *Config) StateDir() string {
	return filepath.Join(c.CompassProjectDir, "state")
}

// ExportsDir returns where reports are written by default.
func (c *Config) ExportsDir() string {
	return filepath.Join(c.CompassProjectDir, "exports")
}

// AccountsPath returns the accounts file consulted by the auth provider.
func (c *Config) AccountsPath() string {
	return filepath.Join(c.CompassProjectDir, "accounts.yaml")
}

// SQLitePath returns the database location, resolved against .compass.
func (c *Config) SQLitePath() string {
	return resolvePath(c.CompassProjectDir, c.Project.Storage.SQLitePath)
}

// LocalDir returns the local state directory, resolved against .compass.
func (c *Config) LocalDir() string {
	return resolvePath(c.CompassProjectDir, c.Project.Storage.LocalDir)
}

// Backend returns the configured storage backend.
func (c *Config) Backend() string {
	return c.Project.Storage.Backend
}

// SaveTimeout bounds each background write.
func (c *Config) SaveTimeout() time.Duration {
	d, err := time.ParseDuration(c.Project.Storage.SaveTimeout)
	if err != nil || d <= 0 {
		return defaultSaveTimeout
	}
	return d
}

// LogLevel returns the structured log level name.
func (c *Config) LogLevel() string {
	return c.Project.Log.Level
}

// MetricsListen returns the metrics address, or "" when disabled.
func (c *Config) MetricsListen() string {
	return c.Project.Metrics.Listen
}

// Policy converts the policy section into step gates.
func (c *Config) Policy() (assessment.Policy, error) {
	return c.Project.Policy.toPolicy()
}

func (pc PolicyConfig) toPolicy() (assessment.Policy, error) {
	policy := assessment.DefaultPolicy()
	if pc.Preset == PresetLegacy {
		policy = assessment.LegacyPolicy()
	}
	if pc.MinSelections > 0 {
		policy.MinSelections = pc.MinSelections
	}
	if pc.MinPrioritized > 0 {
		policy.MinPrioritized = pc.MinPrioritized
	}
	if pc.MinReflections > 0 {
		policy.MinReflections = pc.MinReflections
	}
	if pc.Integrity != "" {
		mode, err := assessment.ParseIntegrityMode(pc.Integrity)
		if err != nil {
			return assessment.Policy{}, fmt.Errorf("config: policy: %w", err)
		}
		policy.Integrity = mode
	}
	return policy, nil
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	parsed := defaultProjectConfig()
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	parsed.applyDefaults()
	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version: 1,
		Storage: StorageConfig{
			Backend:     BackendAuto,
			SQLitePath:  filepath.Join("state", "compass.db"),
			LocalDir:    filepath.Join("state", "local"),
			SaveTimeout: defaultSaveTimeout.String(),
		},
		Policy: PolicyConfig{Preset: PresetDefault, Integrity: string(assessment.IntegrityDrop)},
		Log:    LogConfig{Level: defaultLogLevel},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	defaults := defaultProjectConfig()
	if pc.Version == 0 {
		pc.Version = defaults.Version
	}
	if strings.TrimSpace(pc.Storage.Backend) == "" {
		pc.Storage.Backend = defaults.Storage.Backend
	}
	if strings.TrimSpace(pc.Storage.SQLitePath) == "" {
		pc.Storage.SQLitePath = defaults.Storage.SQLitePath
	}
	if strings.TrimSpace(pc.Storage.LocalDir) == "" {
		pc.Storage.LocalDir = defaults.Storage.LocalDir
	}
	if strings.TrimSpace(pc.Storage.SaveTimeout) == "" {
		pc.Storage.SaveTimeout = defaults.Storage.SaveTimeout
	}
	if strings.TrimSpace(pc.Policy.Preset) == "" {
		pc.Policy.Preset = defaults.Policy.Preset
	}
	if strings.TrimSpace(pc.Log.Level) == "" {
		pc.Log.Level = defaults.Log.Level
	}
}

// applyEnvOverrides lets COMPASS_* variables win over the file.
func (pc *ProjectConfig) applyEnvOverrides() {
	if value := strings.TrimSpace(os.Getenv("COMPASS_STORAGE_BACKEND")); value != "" {
		pc.Storage.Backend = value
	}
	if value := strings.TrimSpace(os.Getenv("COMPASS_LOG_LEVEL")); value != "" {
		pc.Log.Level = value
	}
	if value, ok := os.LookupEnv("COMPASS_METRICS_LISTEN"); ok {
		pc.Metrics.Listen = strings.TrimSpace(value)
	}
	if value := strings.TrimSpace(os.Getenv("COMPASS_SAVE_TIMEOUT")); value != "" {
		pc.Storage.SaveTimeout = value
	}
}

func (pc *ProjectConfig) normalize() {
	pc.Storage.Backend = strings.ToLower(strings.TrimSpace(pc.Storage.Backend))
	pc.Storage.SQLitePath = strings.TrimSpace(pc.Storage.SQLitePath)
	pc.Storage.LocalDir = strings.TrimSpace(pc.Storage.LocalDir)
	pc.Storage.SaveTimeout = strings.TrimSpace(pc.Storage.SaveTimeout)
	pc.Policy.Preset = strings.ToLower(strings.TrimSpace(pc.Policy.Preset))
	pc.Policy.Integrity = strings.ToLower(strings.TrimSpace(pc.Policy.Integrity))
	pc.Log.Level = strings.ToLower(strings.TrimSpace(pc.Log.Level))
	pc.Metrics.Listen = strings.TrimSpace(pc.Metrics.Listen)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	switch pc.Storage.Backend {
	case BackendAuto, BackendLocal, BackendSQLite:
	default:
		return fmt.Errorf("storage.backend must be one of auto, local, sqlite (got %q)", pc.Storage.Backend)
	}
	if d, err := time.ParseDuration(pc.Storage.SaveTimeout); err != nil || d <= 0 {
		return fmt.Errorf("storage.save_timeout must be a positive duration (got %q)", pc.Storage.SaveTimeout)
	}
	switch pc.Policy.Preset {
	case PresetDefault, PresetLegacy:
	default:
		return fmt.Errorf("policy.preset must be default or legacy (got %q)", pc.Policy.Preset)
	}
	for name, v := range map[string]int{
		"policy.min_selections":  pc.Policy.MinSelections,
		"policy.min_prioritized": pc.Policy.MinPrioritized,
		"policy.min_reflections": pc.Policy.MinReflections,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be >= 0 (got %s)", name, strconv.Itoa(v))
		}
	}
	if _, err := pc.Policy.toPolicy(); err != nil {
		return err
	}
	switch pc.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error (got %q)", pc.Log.Level)
	}
	return nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}
