package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Duration is a time.Duration written as a string ("2s", "500ms") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config represents the global ~/.dropdeck/config.toml.
type Config struct {
	DefaultSession string   `toml:"default_session"`
	Server         Server   `toml:"server"`
	Realtime       Realtime `toml:"realtime"`
	Sync           Sync     `toml:"sync"`
	Typing         Typing   `toml:"typing"`
	Uploads        Uploads  `toml:"uploads"`
	Prefs          Prefs    `toml:"prefs"`
	Log            Log      `toml:"log"`
}

type Server struct {
	URL     string   `toml:"url"`
	Timeout Duration `toml:"timeout"`
}

type Realtime struct {
	URL               string   `toml:"url"`
	BaseDelay         Duration `toml:"base_delay"`
	MaxDelay          Duration `toml:"max_delay"`
	MaxAttempts       int      `toml:"max_attempts"`
	HeartbeatInterval Duration `toml:"heartbeat_interval"`
}

type Sync struct {
	PageSize       int  `toml:"page_size"`
	SearchLimit    int  `toml:"search_limit"`
	MarkReadOnOpen bool `toml:"mark_read_on_open"`
}

type Typing struct {
	Debounce Duration `toml:"debounce"`
	Expiry   Duration `toml:"expiry"`
}

type Uploads struct {
	MaxBytes int64 `toml:"max_bytes"`
}

// Prefs selects where preferences and the credential are kept: "sqlite"
// (the session database), "redis" or "memory".
type Prefs struct {
	Backend  string `toml:"backend"`
	RedisURL string `toml:"redis_url"`
	RedisKey string `toml:"redis_key"`
}

type Log struct {
	Level string `toml:"level"`
}

// Prefs backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server: Server{
			URL:     "http://localhost:5000",
			Timeout: Duration{15 * time.Second},
		},
		Realtime: Realtime{
			BaseDelay:         Duration{time.Second},
			MaxDelay:          Duration{30 * time.Second},
			HeartbeatInterval: Duration{25 * time.Second},
		},
		Sync: Sync{
			PageSize:       100,
			SearchLimit:    50,
			MarkReadOnOpen: true,
		},
		Typing: Typing{
			Debounce: Duration{2 * time.Second},
			Expiry:   Duration{3 * time.Second},
		},
		Uploads: Uploads{MaxBytes: 25 << 20},
		Prefs:   Prefs{Backend: BackendSQLite, RedisKey: "dropdeck:prefs"},
		Log:     Log{Level: "info"},
	}
}

// Load reads config from the given path on top of the defaults. Returns
// nil and an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, but a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// LoadEnv reads KEY=VALUE pairs from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides file values with DROPDECK_* environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv("DROPDECK_SERVER_URL"); v != "" {
		c.Server.URL = v
	}
	if v := getenv("DROPDECK_WS_URL"); v != "" {
		c.Realtime.URL = v
	}
	if v := getenv("DROPDECK_PREFS_BACKEND"); v != "" {
		c.Prefs.Backend = v
	}
	if v := getenv("DROPDECK_REDIS_URL"); v != "" {
		c.Prefs.RedisURL = v
	}
	if v := getenv("DROPDECK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("DROPDECK_SESSION"); v != "" {
		c.DefaultSession = v
	}
	return c.Validate()
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Prefs.Backend {
	case BackendSQLite, BackendMemory:
	case BackendRedis:
		if c.Prefs.RedisURL == "" {
			return fmt.Errorf("prefs backend redis needs prefs.redis_url")
		}
	default:
		return fmt.Errorf("unknown prefs backend %q", c.Prefs.Backend)
	}
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	return nil
}

// WebSocketURL returns the realtime endpoint, derived from the server URL
// when not set explicitly.
func (c *Config) WebSocketURL() string {
	if c.Realtime.URL != "" {
		return c.Realtime.URL
	}
	u := strings.TrimRight(c.Server.URL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

// InviteURL is the web link that opens the join page for a group.
func (c *Config) InviteURL(groupID string) string {
	return strings.TrimRight(c.Server.URL, "/") + "/join-group?group=" + url.QueryEscape(groupID)
}

// MaxMessageBytes is the RPC message size that fits the largest upload.
// Uploads travel inline as JSON (base64), so it leaves room above the file
// limit.
func (c *Config) MaxMessageBytes() int {
	return max(int(c.Uploads.MaxBytes)*4/3+64<<10, 4<<20)
}
