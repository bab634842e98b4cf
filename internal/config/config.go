// Package config provides configuration management for promptrium.
package config

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultWorkerPort is the port the local API listens on.
	DefaultWorkerPort = 37790
	// DefaultWorkerHost binds the API to loopback only.
	DefaultWorkerHost = "127.0.0.1"

	DefaultSearchDebounceMS = 300
	DefaultCopyResetMS      = 2000
	DefaultToastDurationMS  = 5000

	dataDirName      = ".promptrium"
	dbFileName       = "promptrium.db"
	settingsFileName = "settings.json"
	seedFileName     = "seeds.yaml"
)

// DefaultSeedTags are added to every starter prompt that declares no tags.
var DefaultSeedTags = []string{"starter"}

// Config holds runtime configuration.
type Config struct {
	WorkerHost       string   `json:"PROMPTRIUM_WORKER_HOST"`
	WorkerPort       int      `json:"PROMPTRIUM_WORKER_PORT"`
	DBPath           string   `json:"PROMPTRIUM_DB_PATH"`
	MaxConns         int      `json:"PROMPTRIUM_MAX_CONNS"`
	SeedPath         string   `json:"PROMPTRIUM_SEED_PATH"`
	SeedDefaultTags  []string `json:"-"`
	SearchDebounceMS int      `json:"PROMPTRIUM_SEARCH_DEBOUNCE_MS"`
	CopyResetMS      int      `json:"PROMPTRIUM_COPY_RESET_MS"`
	ToastDurationMS  int      `json:"PROMPTRIUM_TOAST_DURATION_MS"`
	ClipboardOSC52   bool     `json:"PROMPTRIUM_CLIPBOARD_OSC52"`
	LogLevel         string   `json:"PROMPTRIUM_LOG_LEVEL"`
}

// settingsFile mirrors settings.json. Pointer fields distinguish "absent"
// from zero values so absent keys keep their defaults.
type settingsFile struct {
	WorkerHost       *string `json:"PROMPTRIUM_WORKER_HOST"`
	WorkerPort       *int    `json:"PROMPTRIUM_WORKER_PORT"`
	DBPath           *string `json:"PROMPTRIUM_DB_PATH"`
	MaxConns         *int    `json:"PROMPTRIUM_MAX_CONNS"`
	SeedPath         *string `json:"PROMPTRIUM_SEED_PATH"`
	SeedDefaultTags  *string `json:"PROMPTRIUM_SEED_DEFAULT_TAGS"`
	SearchDebounceMS *int    `json:"PROMPTRIUM_SEARCH_DEBOUNCE_MS"`
	CopyResetMS      *int    `json:"PROMPTRIUM_COPY_RESET_MS"`
	ToastDurationMS  *int    `json:"PROMPTRIUM_TOAST_DURATION_MS"`
	ClipboardOSC52   *bool   `json:"PROMPTRIUM_CLIPBOARD_OSC52"`
	LogLevel         *string `json:"PROMPTRIUM_LOG_LEVEL"`
}

var (
	globalCfg  *Config
	globalOnce sync.Once
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		WorkerHost:       DefaultWorkerHost,
		WorkerPort:       DefaultWorkerPort,
		DBPath:           DBPath(),
		MaxConns:         4,
		SeedPath:         SeedPath(),
		SeedDefaultTags:  append([]string(nil), DefaultSeedTags...),
		SearchDebounceMS: DefaultSearchDebounceMS,
		CopyResetMS:      DefaultCopyResetMS,
		ToastDurationMS:  DefaultToastDurationMS,
		ClipboardOSC52:   true,
		LogLevel:         "info",
	}
}

// DataDir returns the data directory. PROMPTRIUM_DATA_DIR overrides the
// default of ~/.promptrium.
func DataDir() string {
	if dir := os.Getenv("PROMPTRIUM_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, dataDirName)
}

// DBPath returns the default database path.
func DBPath() string {
	return filepath.Join(DataDir(), dbFileName)
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), settingsFileName)
}

// SeedPath returns the default starter prompts file path.
func SeedPath() string {
	return filepath.Join(DataDir(), seedFileName)
}

// EnsureDataDir creates the data directory if it does not exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// EnsureSettings writes a settings file with defaults if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	d := Default()
	defaults := map[string]any{
		"PROMPTRIUM_WORKER_HOST":        d.WorkerHost,
		"PROMPTRIUM_WORKER_PORT":        d.WorkerPort,
		"PROMPTRIUM_MAX_CONNS":          d.MaxConns,
		"PROMPTRIUM_SEED_DEFAULT_TAGS":  strings.Join(d.SeedDefaultTags, ","),
		"PROMPTRIUM_SEARCH_DEBOUNCE_MS": d.SearchDebounceMS,
		"PROMPTRIUM_COPY_RESET_MS":      d.CopyResetMS,
		"PROMPTRIUM_TOAST_DURATION_MS":  d.ToastDurationMS,
		"PROMPTRIUM_CLIPBOARD_OSC52":    d.ClipboardOSC52,
		"PROMPTRIUM_LOG_LEVEL":          d.LogLevel,
	}
	data, err := json.MarshalIndent(defaults, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// EnsureAll creates the data directory and the default settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}

// Load reads settings.json over the defaults, then applies environment
// overrides. A missing or malformed settings file yields defaults.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		var sf settingsFile
		if err := json.Unmarshal(data, &sf); err != nil {
			log.Warn().Err(err).Str("path", SettingsPath()).Msg("Invalid settings file, using defaults")
		} else {
			sf.applyTo(cfg)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func (sf settingsFile) applyTo(cfg *Config) {
	if sf.WorkerHost != nil && *sf.WorkerHost != "" {
		cfg.WorkerHost = *sf.WorkerHost
	}
	if sf.WorkerPort != nil && *sf.WorkerPort > 0 {
		cfg.WorkerPort = *sf.WorkerPort
	}
	if sf.DBPath != nil && *sf.DBPath != "" {
		cfg.DBPath = *sf.DBPath
	}
	if sf.MaxConns != nil && *sf.MaxConns > 0 {
		cfg.MaxConns = *sf.MaxConns
	}
	if sf.SeedPath != nil {
		cfg.SeedPath = *sf.SeedPath
	}
	if sf.SeedDefaultTags != nil {
		cfg.SeedDefaultTags = splitTrim(*sf.SeedDefaultTags)
	}
	if sf.SearchDebounceMS != nil && *sf.SearchDebounceMS > 0 {
		cfg.SearchDebounceMS = *sf.SearchDebounceMS
	}
	if sf.CopyResetMS != nil && *sf.CopyResetMS > 0 {
		cfg.CopyResetMS = *sf.CopyResetMS
	}
	if sf.ToastDurationMS != nil && *sf.ToastDurationMS > 0 {
		cfg.ToastDurationMS = *sf.ToastDurationMS
	}
	if sf.ClipboardOSC52 != nil {
		cfg.ClipboardOSC52 = *sf.ClipboardOSC52
	}
	if sf.LogLevel != nil && *sf.LogLevel != "" {
		cfg.LogLevel = *sf.LogLevel
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PROMPTRIUM_WORKER_HOST"); v != "" {
		cfg.WorkerHost = v
	}
	if port, ok := envPort(); ok {
		cfg.WorkerPort = port
	}
	if v := os.Getenv("PROMPTRIUM_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("PROMPTRIUM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func envPort() (int, bool) {
	v := os.Getenv("PROMPTRIUM_WORKER_PORT")
	if v == "" {
		return 0, false
	}
	port, err := strconv.Atoi(v)
	if err != nil || port <= 0 {
		return 0, false
	}
	return port, true
}

// Get returns the process-wide configuration, loading it on first use.
func Get() *Config {
	globalOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load config, using defaults")
			cfg = Default()
		}
		globalCfg = cfg
	})
	return globalCfg
}

// SearchDebounce returns the search debounce delay.
func (c *Config) SearchDebounce() time.Duration {
	return time.Duration(c.SearchDebounceMS) * time.Millisecond
}

// CopyReset returns how long a "copied" indicator stays up.
func (c *Config) CopyReset() time.Duration {
	return time.Duration(c.CopyResetMS) * time.Millisecond
}

// ToastDuration returns how long a notification stays visible.
func (c *Config) ToastDuration() time.Duration {
	return time.Duration(c.ToastDurationMS) * time.Millisecond
}

// Addr returns the API listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.WorkerHost, strconv.Itoa(c.WorkerPort))
}

// splitTrim splits a comma-separated list, trimming blanks and dropping
// empty entries.
func splitTrim(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
