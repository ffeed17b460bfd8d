package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for roomchat.
type Config struct {
	General    GeneralConfig    `json:"general" yaml:"general"`
	Relay      RelayConfig      `json:"relay" yaml:"relay"`
	Upload     UploadConfig     `json:"upload" yaml:"upload"`
	Credential CredentialConfig `json:"credential" yaml:"credential"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel" yaml:"logLevel"` // debug | info | warn | error
}

// RelayConfig locates the message relay. The connection bootstrap address is
// external configuration; it is not part of the messaging contract.
type RelayConfig struct {
	URL                string `json:"url" yaml:"url"` // ws:// or wss:// endpoint
	DialTimeoutSeconds int    `json:"dialTimeoutSeconds" yaml:"dialTimeoutSeconds"`
}

type UploadConfig struct {
	AuthorizeURL   string `json:"authorizeUrl" yaml:"authorizeUrl"` // signed-URL issuing endpoint
	TimeoutSeconds int    `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	MaxSizeBytes   int64  `json:"maxSizeBytes" yaml:"maxSizeBytes"`
}

// CredentialConfig holds the opaque tenant ID and bearer token forwarded on
// every send-message. Values are typically ${VAR} references resolved from
// the environment at load time, never checked into the config file.
type CredentialConfig struct {
	Company     string `json:"company" yaml:"company"`
	AccessToken string `json:"accessToken" yaml:"accessToken"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

// DefaultConfigDir returns the default config directory (~/.roomchat).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".roomchat"
	}
	return filepath.Join(home, ".roomchat")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a config file. JSON is the default format; files ending in
// .yaml or .yml are parsed as YAML. ${VAR} and ${VAR:-default} references
// are substituted from the environment before parsing.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset
// or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // keep original if no env var and no default
		}
		return val
	})
}

// Save writes the config in the format implied by the path extension.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values. Credential values are
// opaque pass-through strings and are not inspected.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Relay.URL == "" {
		errs = append(errs, "relay.url is required")
	} else if u, err := url.Parse(cfg.Relay.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = append(errs, "relay.url must be a ws:// or wss:// URL")
	}
	if cfg.Relay.DialTimeoutSeconds < 1 {
		errs = append(errs, "relay.dialTimeoutSeconds must be >= 1")
	}

	if cfg.Upload.AuthorizeURL == "" {
		errs = append(errs, "upload.authorizeUrl is required")
	} else if u, err := url.Parse(cfg.Upload.AuthorizeURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, "upload.authorizeUrl must be an http:// or https:// URL")
	}
	if cfg.Upload.TimeoutSeconds < 1 {
		errs = append(errs, "upload.timeoutSeconds must be >= 1")
	}
	if cfg.Upload.MaxSizeBytes < 1 {
		errs = append(errs, "upload.maxSizeBytes must be >= 1")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
