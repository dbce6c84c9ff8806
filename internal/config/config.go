// Package config loads CLI settings from defaults, a YAML file and
// VERITAS_* environment variables, in that order of precedence (lowest first).
// Command-line flags are applied on top by the caller.
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

	"veritas/internal/api"
	"veritas/internal/journal"
	"veritas/internal/logging"
)

// DefaultTimeout bounds every backend call unless configured otherwise.
const DefaultTimeout = 60 * time.Second

// Environment variables that override the file.
const (
	EnvBaseURL     = "VERITAS_BASE_URL"
	EnvSessionFile = "VERITAS_SESSION_FILE"
	EnvJournalDB   = "VERITAS_JOURNAL_DB"
	EnvLogLevel    = "VERITAS_LOG_LEVEL"
	EnvTimeout     = "VERITAS_TIMEOUT"
)

// Config is the resolved CLI configuration.
type Config struct {
	BaseURL           string        `yaml:"base_url" json:"base_url"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	Retries           int           `yaml:"retries" json:"retries"`
	UploadConcurrency int           `yaml:"upload_concurrency" json:"upload_concurrency"`
	SessionFile       string        `yaml:"session_file" json:"session_file"`
	JournalDB         string        `yaml:"journal_db" json:"journal_db"`
	LogLevel          string        `yaml:"log_level" json:"log_level"`
	LogFormat         string        `yaml:"log_format" json:"log_format"`
}

// Dir is the per-user config directory: $XDG_CONFIG_HOME/veritas or the OS equivalent.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(base, "veritas"), nil
}

// DefaultPath is the config file read when no --config is given.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Default returns the built-in configuration. File locations are left empty
// when the config directory cannot be determined.
func Default() Config {
	c := Config{
		BaseURL:   api.DefaultBaseURL,
		Timeout:   DefaultTimeout,
		LogLevel:  "warn",
		LogFormat: "text",
	}
	if dir, err := Dir(); err == nil {
		c.SessionFile = filepath.Join(dir, "session.yaml")
		c.JournalDB = filepath.Join(dir, journal.DefaultDBName)
	}
	return c
}

// Load resolves the configuration. An explicit path must exist; the default
// path is optional.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		if p, err := DefaultPath(); err == nil {
			path = p
		}
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return Config{}, err
			}
		}
	}
	if err := cfg.mergeEnv(getenv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// UnmarshalYAML reads timeout in the same forms as VERITAS_TIMEOUT: a duration
// ("90s") or a bare number of seconds (90).
func (c *Config) UnmarshalYAML(n *yaml.Node) error {
	type plain Config
	if n.Kind != yaml.MappingNode {
		return n.Decode((*plain)(c))
	}
	rest := *n
	rest.Content = nil
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.Value != "timeout" {
			rest.Content = append(rest.Content, k, v)
			continue
		}
		if v.ShortTag() == "!!null" {
			continue
		}
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: timeout must be a duration or a number of seconds", v.Line)
		}
		d, err := parseTimeout(v.Value)
		if err != nil {
			return fmt.Errorf("line %d: timeout: %w", v.Line, err)
		}
		c.Timeout = d
	}
	return rest.Decode((*plain)(c))
}

func (c *Config) mergeEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv(EnvBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := getenv(EnvSessionFile); v != "" {
		c.SessionFile = v
	}
	if v := getenv(EnvJournalDB); v != "" {
		c.JournalDB = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := getenv(EnvTimeout); v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		c.Timeout = d
	}
	return nil
}

// parseTimeout accepts a Go duration ("90s") or a bare number of seconds ("90").
func parseTimeout(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// Validate rejects values the client cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.BaseURL) == "" {
		errs = append(errs, errors.New("base_url is empty"))
	} else if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		errs = append(errs, fmt.Errorf("base_url %q is not an http(s) URL", c.BaseURL))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout %s is negative", c.Timeout))
	}
	if c.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries %d is negative", c.Retries))
	}
	if c.UploadConcurrency < 0 {
		errs = append(errs, fmt.Errorf("upload_concurrency %d is negative", c.UploadConcurrency))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q is not text or json", c.LogFormat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
