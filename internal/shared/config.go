package shared

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Qualities lists the quality presets accepted by the download engine.
var Qualities = []string{"best", "1080p", "720p", "480p", "audio"}

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Download  DownloadConfig  `toml:"download"`
	Extractor ExtractorConfig `toml:"extractor"`
	Database  DatabaseConfig  `toml:"database"`
	Logging   LoggingConfig   `toml:"logging"`
	Users     []UserConfig    `toml:"users"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
	// SubmitRate is the number of submissions per second allowed for a single owner.
	SubmitRate  float64 `toml:"submit_rate"`
	SubmitBurst int     `toml:"submit_burst"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DownloadConfig controls where and how many downloads run.
type DownloadConfig struct {
	BaseDir        string `toml:"base_dir"`
	MaxConcurrent  int    `toml:"max_concurrent"`
	DefaultQuality string `toml:"default_quality"`
	UseArchive     bool   `toml:"use_archive"`
	Trash          bool   `toml:"trash"`
}

// ExtractorConfig configures the yt-dlp backed extractor.
type ExtractorConfig struct {
	Binary         string   `toml:"binary"`
	ProbeCacheTTL  Duration `toml:"probe_cache_ttl"`
	ProbeCacheSize int64    `toml:"probe_cache_size"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Enabled      bool   `toml:"enabled"`
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LoggingConfig contains log level and optional log file.
type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// UserConfig maps an identity (e-mail or user name) to a role.
type UserConfig struct {
	Name  string `toml:"name"`
	Email string `toml:"email"`
	Role  string `toml:"role"`
}

// IsAdmin reports whether the user may see every owner's tasks.
func (u UserConfig) IsAdmin() bool { return strings.EqualFold(u.Role, "admin") }

// Duration wraps [time.Duration] so TOML values like "10m" decode.
type Duration struct{ time.Duration }

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	config.Users = nil
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks values the engine cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Download.BaseDir) == "" {
		return fmt.Errorf("%w: download.base_dir is empty", ErrInvalidConfig)
	}
	if c.Download.MaxConcurrent < 1 {
		return fmt.Errorf("%w: download.max_concurrent must be at least 1", ErrInvalidConfig)
	}
	if !slices.Contains(Qualities, c.Download.DefaultQuality) {
		return fmt.Errorf("%w: unknown default quality %q", ErrInvalidConfig, c.Download.DefaultQuality)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port out of range", ErrInvalidConfig)
	}
	for _, u := range c.Users {
		switch strings.ToLower(u.Role) {
		case "admin", "user":
		default:
			return fmt.Errorf("%w: user %q has unknown role %q", ErrInvalidConfig, u.Name, u.Role)
		}
	}
	return nil
}

// Admin returns the first configured admin user.
func (c *Config) Admin() (UserConfig, bool) {
	for _, u := range c.Users {
		if u.IsAdmin() {
			return u, true
		}
	}
	return UserConfig{}, false
}

// LookupUser finds a user by e-mail or name, case-insensitively.
func (c *Config) LookupUser(identity string) (UserConfig, bool) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return UserConfig{}, false
	}
	for _, u := range c.Users {
		if strings.EqualFold(u.Email, identity) || strings.EqualFold(u.Name, identity) {
			return u, true
		}
	}
	return UserConfig{}, false
}
