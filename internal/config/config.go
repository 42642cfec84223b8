package config

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

const appName = "psupd"

const (
	defaultParts          = 4
	defaultMaxRetries     = 3
	defaultRetryDelay     = 500 * time.Millisecond
	defaultRequestTimeout = 20 * time.Second
	defaultMinPartSize    = int64(1 << 20)
)

// Config holds the application configuration, merged from defaults, the
// YAML config file, and CLI flags (highest precedence last).
type Config struct {
	DownloadDir    string        `yaml:"downloadDir,omitempty"`
	Parts          int           `yaml:"parts,omitempty"`
	MaxRetries     int           `yaml:"maxRetries,omitempty"`
	RetryDelay     time.Duration `yaml:"retryDelay,omitempty"`
	RequestTimeout time.Duration `yaml:"requestTimeout,omitempty"`
	MinPartSize    int64         `yaml:"minPartSize,omitempty"`
	ThrottleSpeed  int64         `yaml:"throttleSpeed,omitempty"` // bytes/sec, 0 = unlimited
	Debug          bool          `yaml:"debug,omitempty"`
}

// flagConfig stores the parsed values from the cli flags.
type flagConfig struct {
	downloadDir   *string
	parts         *int
	maxRetries    *int
	throttleSpeed *int64
	debug         *bool
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		DownloadDir:    DefaultDownloadDir(),
		Parts:          defaultParts,
		MaxRetries:     defaultMaxRetries,
		RetryDelay:     defaultRetryDelay,
		RequestTimeout: defaultRequestTimeout,
		MinPartSize:    defaultMinPartSize,
	}
}

// DefaultDownloadDir resolves where packages land when the user has not
// chosen a directory.
func DefaultDownloadDir() string {
	base := xdg.UserDirs.Download
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		base = filepath.Join(home, "Downloads")
	}

	return filepath.Join(base, "PS3 Updates")
}

// Dir returns the application config directory, creating it if needed.
func Dir() (string, error) {
	dir := filepath.Join(xdg.ConfigHome, appName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	return dir, nil
}

// Load reads the configuration file (if any), applies CLI flags, and
// validates the result. A missing config file uses defaults but still
// applies flags.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	var raw []byte
	b, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else {
		raw = b
	}

	cfg, err := parse(raw)
	if err != nil {
		return nil, err
	}

	cfg.applyFlags()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parse unmarshals YAML config bytes over the defaults.
func parse(raw []byte) (*Config, error) {
	var fileCfg Config
	if len(raw) > 0 {
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return nil, err
		}
	}

	defaults := DefaultConfig()
	cfg := Config{
		DownloadDir:    zeroOr(fileCfg.DownloadDir, defaults.DownloadDir),
		Parts:          zeroOr(fileCfg.Parts, defaults.Parts),
		MaxRetries:     zeroOr(fileCfg.MaxRetries, defaults.MaxRetries),
		RetryDelay:     zeroOr(fileCfg.RetryDelay, defaults.RetryDelay),
		RequestTimeout: zeroOr(fileCfg.RequestTimeout, defaults.RequestTimeout),
		MinPartSize:    zeroOr(fileCfg.MinPartSize, defaults.MinPartSize),
		ThrottleSpeed:  fileCfg.ThrottleSpeed,
		Debug:          fileCfg.Debug,
	}

	return &cfg, nil
}

// zeroOr returns def if v is the zero value for its type.
func zeroOr[T any](v, def T) T {
	if reflect.ValueOf(v).IsZero() {
		return def
	}

	return v
}

// applyFlags plugs CLI flag values into the config.
func (c *Config) applyFlags() {
	fc := flagConfig{
		downloadDir:   flag.String("dd", c.DownloadDir, "directory that will be used to store downloaded packages"),
		parts:         flag.Int("p", c.Parts, "number of parts a multi-part download will be split into"),
		maxRetries:    flag.Int("mr", c.MaxRetries, "maximum number of retries before a part fails"),
		throttleSpeed: flag.Int64("ts", c.ThrottleSpeed, "bandwidth throttle in bytes/sec (0 = unlimited)"),
		debug:         flag.Bool("debug", c.Debug, "enable debug logging"),
	}

	flag.Parse()

	c.DownloadDir = *fc.downloadDir
	c.Parts = *fc.parts
	c.MaxRetries = *fc.maxRetries
	c.ThrottleSpeed = *fc.throttleSpeed
	c.Debug = *fc.debug
}

func (c *Config) validate() error {
	if c.DownloadDir == "" {
		return ErrInvalidConfig
	}
	if c.Parts <= 0 || c.Parts > 16 {
		return ErrInvalidConfig
	}
	if c.MaxRetries < 0 {
		return ErrInvalidConfig
	}
	if c.ThrottleSpeed < 0 {
		return ErrInvalidConfig
	}

	return nil
}
