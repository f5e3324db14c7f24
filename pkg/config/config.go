// Package config provides configuration management for the githubstore
// daemon and CLI. It handles loading, validating and saving application
// settings from a YAML file, with sensible defaults for everything so a
// missing config file is not an error.
package config

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rainxch/githubstore/pkg/errors"
	"github.com/rainxch/githubstore/pkg/fsutil"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Settings Settings `yaml:"settings"`
}

// PlatformConfig selects which release assets are considered installable.
type PlatformConfig struct {
	// OS overrides the target operating system. Empty means auto-detect.
	OS string `yaml:"os,omitempty"`
	// Arch overrides the target architecture. Empty means auto-detect.
	Arch string `yaml:"arch,omitempty"`
	// FileExtension restricts assets to one extension (e.g. ".pkg").
	FileExtension string `yaml:"file_extension,omitempty"`
}

// UpdateConfig controls the background update scheduler.
type UpdateConfig struct {
	// Interval between scheduled update checks.
	Interval time.Duration `yaml:"interval"`
	// AutoUpdate enables unattended installs for apps that opted in.
	AutoUpdate bool `yaml:"auto_update"`
	// Notifications enables the post-run summary notification.
	Notifications bool `yaml:"notifications"`
}

// Settings represents general application settings.
type Settings struct {
	// State settings.
	StateDir    string `yaml:"state_dir,omitempty"`    // sqlite database location
	RegistryDir string `yaml:"registry_dir,omitempty"` // host package registry (desktop targets)
	DownloadDir string `yaml:"download_dir,omitempty"` // asset download cache

	// Network settings.
	GitHubToken string        `yaml:"github_token,omitempty"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	Update   UpdateConfig   `yaml:"update"`
	Platform PlatformConfig `yaml:"platform,omitempty"`

	// Output settings.
	LogLevel string `yaml:"log_level"` // panic, fatal, error, warn, info, debug, trace
}

// Default configuration values.
const (
	// DefaultUpdateInterval is the default cadence of scheduled update checks.
	DefaultUpdateInterval = 6 * time.Hour

	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// YAMLIndent is the number of spaces used for YAML indentation.
	YAMLIndent = 2
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Settings: Settings{
			StateDir:    filepath.Join(dataDir, "state"),
			RegistryDir: filepath.Join(dataDir, "registry"),
			DownloadDir: filepath.Join(dataDir, "downloads"),
			HTTPTimeout: DefaultHTTPTimeout,
			Update: UpdateConfig{
				Interval:      DefaultUpdateInterval,
				AutoUpdate:    false,
				Notifications: true,
			},
			Platform: PlatformConfig{
				OS:   runtime.GOOS,
				Arch: runtime.GOARCH,
			},
			LogLevel: "info",
		},
	}
}

// LoadConfig loads configuration from a file. A missing file yields the
// default configuration.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.ErrEmptyConfigPath
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}
	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrapf(err, "failed to open config file: %s", path)
	}
	defer func() { _ = file.Close() }()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config data")
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(errors.ErrConfigParse, err.Error())
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// SaveConfig saves configuration to a file, atomically.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		return errors.ErrEmptyConfigPath
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}
	if err := os.MkdirAll(filepath.Dir(absPath), fsutil.DirModeDefault); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	tempPath := absPath + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fsutil.FileModeDefault)
	if err != nil {
		return errors.Wrap(err, "failed to create config file")
	}

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(YAMLIndent)
	if err := encoder.Encode(c); err != nil {
		_ = file.Close()
		_ = os.Remove(tempPath)
		return errors.Wrap(err, "failed to encode config")
	}
	_ = encoder.Close()
	_ = file.Close()

	if err := os.Rename(tempPath, absPath); err != nil {
		_ = os.Remove(tempPath)
		return errors.Wrap(err, "failed to replace config file")
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return errors.ErrConfigValidation
	}
	if c.Settings.HTTPTimeout < 0 {
		return errors.Wrap(errors.ErrConfigValidation, "http_timeout cannot be negative")
	}
	if c.Settings.Update.Interval < time.Minute {
		return errors.Wrap(errors.ErrConfigValidation, "update interval must be at least one minute")
	}
	return nil
}

// DatabasePath returns the sqlite database location under the state dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Settings.StateDir, "githubstore.db")
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Settings.StateDir == "" {
		c.Settings.StateDir = def.Settings.StateDir
	}
	if c.Settings.RegistryDir == "" {
		c.Settings.RegistryDir = def.Settings.RegistryDir
	}
	if c.Settings.DownloadDir == "" {
		c.Settings.DownloadDir = def.Settings.DownloadDir
	}
	if c.Settings.HTTPTimeout == 0 {
		c.Settings.HTTPTimeout = def.Settings.HTTPTimeout
	}
	if c.Settings.Update.Interval == 0 {
		c.Settings.Update.Interval = def.Settings.Update.Interval
	}
	if c.Settings.Platform.OS == "" {
		c.Settings.Platform.OS = runtime.GOOS
	}
	if c.Settings.Platform.Arch == "" {
		c.Settings.Platform.Arch = runtime.GOARCH
	}
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = def.Settings.LogLevel
	}
}

// GetDefaultConfigPath returns the standard config file location.
func GetDefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to determine user config directory")
	}
	return filepath.Join(configDir, "githubstore", "config.yaml"), nil
}

func defaultDataDir() string {
	dataDir, err := os.UserCacheDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dataDir, "githubstore")
}
