// Package settings provides configuration loading for omaha.
//
// Settings come from ~/.config/omaha/settings.json, then
// settings.local.json, then OMAHA_* environment variables, each layer
// overriding the one before.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/chromedocs/omaha/cmd/omaha/cli/branch"
	"github.com/chromedocs/omaha/cmd/omaha/cli/fetch"
	"github.com/chromedocs/omaha/cmd/omaha/cli/paths"
	"github.com/chromedocs/omaha/cmd/omaha/cli/store"
)

// DefaultLogFileName is the log file inside paths.LogsDir.
const DefaultLogFileName = "omaha.log"

// DefaultCacheTTL is how long cached channel values are trusted when
// cache_ttl is not set.
const DefaultCacheTTL = time.Hour

// Duration is a time.Duration written as a Go duration string ("10s") in
// JSON and environment variables.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler (used for env vars).
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parsing duration: %w", err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// OmahaSettings represents the omaha configuration.
type OmahaSettings struct {
	// CurrentVersionsURL is the OmahaProxy per-OS current versions feed.
	CurrentVersionsURL string `json:"current_versions_url,omitempty" env:"OMAHA_CURRENT_VERSIONS_URL"`

	// HistoryURL is the OmahaProxy release history feed.
	HistoryURL string `json:"history_url,omitempty" env:"OMAHA_HISTORY_URL"`

	// FetchTimeout bounds each feed request.
	FetchTimeout Duration `json:"fetch_timeout,omitempty" env:"OMAHA_FETCH_TIMEOUT"`

	// CacheBackend is "memory", "file" or "sqlite".
	CacheBackend string `json:"cache_backend,omitempty" env:"OMAHA_CACHE_BACKEND"`

	// CachePath is the file backend's directory or the sqlite database file.
	CachePath string `json:"cache_path,omitempty" env:"OMAHA_CACHE_PATH"`

	// CacheSize bounds each memory cache category.
	CacheSize int `json:"cache_size,omitempty" env:"OMAHA_CACHE_SIZE"`

	// CacheTTL is how long cached channel values and the latest version are
	// served before the feeds are read again. Branches of past versions never
	// expire. A negative value keeps everything.
	CacheTTL Duration `json:"cache_ttl,omitempty" env:"OMAHA_CACHE_TTL"`

	// LogLevel sets the logging verbosity (debug, info, warn, error).
	// Can be overridden by the OMAHA_LOG_LEVEL environment variable.
	LogLevel string `json:"log_level,omitempty"`

	// LogFile is where logs are written. "-" means stderr.
	LogFile string `json:"log_file,omitempty" env:"OMAHA_LOG_FILE"`

	// Telemetry controls anonymous usage analytics.
	// nil = not configured (disabled), true = opted in, false = opted out
	Telemetry *bool `json:"telemetry,omitempty"`
}

// Load loads settings from the default config directory and the environment.
// Missing files are not an error.
func Load() (*OmahaSettings, error) {
	base, local, err := paths.SettingsFiles()
	if err != nil {
		return nil, err
	}
	return LoadFrom(base, local)
}

// LoadFrom loads settings from basePath, applies localPath on top if it
// exists, then applies environment overrides and defaults.
func LoadFrom(basePath, localPath string) (*OmahaSettings, error) {
	s := &OmahaSettings{}

	if err := mergeFile(s, basePath); err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}
	if err := mergeFile(s, localPath); err != nil {
		return nil, fmt.Errorf("reading local settings file: %w", err)
	}
	if err := env.Parse(s); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := applyDefaults(s); err != nil {
		return nil, err
	}
	return s, nil
}

// mergeFile overlays the fields present in the JSON file onto s.
func mergeFile(s *OmahaSettings, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is from paths or caller
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w", err)
	}
	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func applyDefaults(s *OmahaSettings) error {
	if s.CurrentVersionsURL == "" {
		s.CurrentVersionsURL = branch.DefaultCurrentVersionsURL
	}
	if s.HistoryURL == "" {
		s.HistoryURL = branch.DefaultHistoryURL
	}
	if s.FetchTimeout <= 0 {
		s.FetchTimeout = Duration(fetch.DefaultTimeout)
	}
	s.CacheBackend = strings.ToLower(strings.TrimSpace(s.CacheBackend))
	if s.CacheBackend == "" {
		s.CacheBackend = store.BackendMemory
	}
	if s.CacheSize <= 0 {
		s.CacheSize = store.DefaultMemorySize
	}
	if s.CacheTTL == 0 {
		s.CacheTTL = Duration(DefaultCacheTTL)
	}

	if s.LogFile == "" {
		dir, err := paths.LogsDir()
		if err != nil {
			return err
		}
		s.LogFile = filepath.Join(dir, DefaultLogFileName)
	}
	return nil
}

// Timeout returns FetchTimeout as a time.Duration.
func (s *OmahaSettings) Timeout() time.Duration {
	return time.Duration(s.FetchTimeout)
}

// MaxAge returns CacheTTL as a time.Duration. Zero or less means cached
// values never expire.
func (s *OmahaSettings) MaxAge() time.Duration {
	return max(time.Duration(s.CacheTTL), 0)
}

// StoreOptions returns the cache configuration for store.NewCreator. When
// CachePath is empty, the file and sqlite backends get a location under
// ~/.cache/omaha.
func (s *OmahaSettings) StoreOptions() (store.Options, error) {
	opts := store.Options{
		Backend: strings.ToLower(strings.TrimSpace(s.CacheBackend)),
		Path:    s.CachePath,
		Size:    s.CacheSize,
	}
	if opts.Path != "" || opts.Backend == store.BackendMemory || opts.Backend == "" {
		return opts, nil
	}

	dir, err := paths.CacheDir()
	if err != nil {
		return store.Options{}, err
	}
	if opts.Backend == store.BackendSQLite {
		opts.Path = filepath.Join(dir, paths.SQLiteFileName)
	} else {
		opts.Path = filepath.Join(dir, "store")
	}
	return opts, nil
}

// LogPath returns the log file path, or "" for stderr.
func (s *OmahaSettings) LogPath() string {
	if s.LogFile == "-" {
		return ""
	}
	return s.LogFile
}

// TelemetryEnabled reports whether the user opted in to telemetry.
func (s *OmahaSettings) TelemetryEnabled() bool {
	return s.Telemetry != nil && *s.Telemetry
}
