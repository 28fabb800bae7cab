// Package config loads the spentsync YAML configuration. Values may
// reference environment variables as ${VAR}; a .env file next to the config
// is loaded first so secrets stay out of the YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rumor-ml/commons.systems/spentsync/internal/store"
)

// DefaultPath is used when no -config flag is given
const DefaultPath = "spentsync.yaml"

const redacted = "********"

// Config is the full configuration
type Config struct {
	DownloadsDir string            `yaml:"downloads_dir"`
	LogLevel     string            `yaml:"log_level"`
	DeleteInputs *bool             `yaml:"delete_inputs"`
	CSV          CSVConfig         `yaml:"csv"`
	Store        store.Config      `yaml:"store"`
	Sources      map[string]Source `yaml:"sources,omitempty"`
}

// CSVConfig tunes the CSV extractors
type CSVConfig struct {
	StrictHeader bool `yaml:"strict_header"`
}

// Source holds the credentials the fetch tooling uses for one institution
type Source struct {
	Username string       `yaml:"username,omitempty"`
	Password string       `yaml:"password,omitempty"`
	OFX      *OFXSource   `yaml:"ofx,omitempty"`
	Gmail    *GmailSource `yaml:"gmail,omitempty"`
}

// OFXSource describes a bank-protocol download endpoint
type OFXSource struct {
	URL    string `yaml:"url"`
	Org    string `yaml:"org"`
	FID    string `yaml:"fid"`
	AppID  string `yaml:"app_id,omitempty"`
	AppVer string `yaml:"app_ver,omitempty"`
}

// GmailSource describes the mail API credentials
type GmailSource struct {
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file,omitempty"`
	LabelID         string `yaml:"label_id,omitempty"`
}

// Default returns the configuration used when no file exists
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads, expands and decodes the config file, then applies defaults.
// Unknown keys are an error.
func Load(path string) (*Config, error) {
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} with its value from the environment. Any other
// "$" is literal, so secrets like "pa$$word" survive.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(envRef.FindStringSubmatch(ref)[1])
	})
}

// Parse decodes YAML config data after expanding ${VAR} references
func Parse(data []byte) (*Config, error) {
	expanded := expandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DownloadsDir == "" {
		c.DownloadsDir = "~/Downloads"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DeleteInputs == nil {
		deleteInputs := true
		c.DeleteInputs = &deleteInputs
	}
	if c.Store.Type == "" {
		c.Store.Type = store.TypeFile
	}
	if c.Store.Type == store.TypeFile && c.Store.Path == "" {
		c.Store.Path = "~/.spentsync/ledger.json"
	}

	c.DownloadsDir = expandHome(c.DownloadsDir)
	if c.Store.Type == store.TypeFile || c.Store.Type == store.TypeSQLite {
		c.Store.Path = expandHome(c.Store.Path)
	}
}

// ShouldDeleteInputs reports whether processed input files are removed
func (c *Config) ShouldDeleteInputs() bool {
	return c.DeleteInputs == nil || *c.DeleteInputs
}

// Validate returns every problem found, not just the first
func (c *Config) Validate() []error {
	var errs []error

	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not a known level", c.LogLevel))
	}

	errs = append(errs, c.Store.Validate()...)

	names := make([]string, 0, len(c.Sources))
	for name := range c.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		errs = append(errs, c.Sources[name].validate(name)...)
	}

	return errs
}

func (s Source) validate(name string) []error {
	var errs []error
	if s.OFX == nil && s.Gmail == nil {
		errs = append(errs, fmt.Errorf("sources.%s needs an ofx or gmail block", name))
	}
	if s.OFX != nil {
		if s.Username == "" || s.Password == "" {
			errs = append(errs, fmt.Errorf("sources.%s: ofx needs username and password", name))
		}
		if s.OFX.URL == "" || s.OFX.Org == "" || s.OFX.FID == "" {
			errs = append(errs, fmt.Errorf("sources.%s.ofx: url, org and fid are required", name))
		}
	}
	if s.Gmail != nil && s.Gmail.CredentialsFile == "" {
		errs = append(errs, fmt.Errorf("sources.%s.gmail.credentials_file is required", name))
	}
	return errs
}

// Redacted returns a copy safe to print: passwords are masked
func (c *Config) Redacted() *Config {
	cp := *c
	if c.Sources != nil {
		cp.Sources = make(map[string]Source, len(c.Sources))
		for name, s := range c.Sources {
			if s.Password != "" {
				s.Password = redacted
			}
			cp.Sources[name] = s
		}
	}
	return &cp
}

// YAML renders the redacted configuration
func (c *Config) YAML() (string, error) {
	data, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(data), nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
