package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ErrNoConfigFile is returned by DiscoverConfigPath when no standard location holds a config file.
var ErrNoConfigFile = errors.New("no config file found")

// Load builds the configuration from an optional YAML file, the environment and defaults.
// An empty configPath triggers discovery; if nothing is discovered the config is
// built from defaults and environment only.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		discovered, err := DiscoverConfigPath()
		if err != nil && !errors.Is(err, ErrNoConfigFile) {
			return nil, err
		}
		configPath = discovered
	}

	cfg := &Config{}
	if configPath != "" {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
		}

		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("config file not found: %s\n"+
				"Hint: Check the path or run with --config flag", absPath)
		}
		if info.IsDir() {
			absPath = filepath.Join(absPath, "config.yaml")
		}

		if err := verifyConfigHash(absPath); err != nil {
			return nil, err
		}

		cfg, err = loadConfigFile(absPath)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", absPath, err)
		}
		cfg.SourcePath = absPath
	}

	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	cfg = applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DiscoverConfigPath finds the config file by checking standard locations.
// Priority order: $MONITOR_RELAY_CONFIG, ~/.config/monitor-relay/config.yaml, ./config.yaml
func DiscoverConfigPath() (string, error) {
	if p := os.Getenv("MONITOR_RELAY_CONFIG"); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("MONITOR_RELAY_CONFIG points to %s: %w", p, err)
		}
		return p, nil
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "monitor-relay", "config.yaml")
		if _, err := os.Stat(userConfig); err == nil {
			return userConfig, nil
		}
	}

	if _, err := os.Stat("./config.yaml"); err == nil {
		return "./config.yaml", nil
	}

	return "", ErrNoConfigFile
}

func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

// verifyConfigHash checks the file against a .checksums manifest in the same
// directory. A missing manifest means the config was never locked.
func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)
	if _, err := os.Stat(filepath.Join(dir, checksumFile)); os.IsNotExist(err) {
		return nil
	}

	manifest, err := LoadChecksums(dir)
	if err != nil {
		return err
	}
	return VerifyFiles(dir, manifest, []string{filepath.Base(path)})
}

func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}

	if cfg.Telegram.APIBase == "" {
		cfg.Telegram.APIBase = defaults.Telegram.APIBase
	}
	if cfg.Telegram.RequestTimeout == 0 {
		cfg.Telegram.RequestTimeout = defaults.Telegram.RequestTimeout
	}

	if cfg.GitHub.Ref == "" {
		cfg.GitHub.Ref = defaults.GitHub.Ref
	}
	if cfg.GitHub.APIBase == "" {
		cfg.GitHub.APIBase = defaults.GitHub.APIBase
	}
	if cfg.GitHub.RequestTimeout == 0 {
		cfg.GitHub.RequestTimeout = defaults.GitHub.RequestTimeout
	}

	for i := range cfg.Workflows {
		if cfg.Workflows[i].Label == "" {
			cfg.Workflows[i].Label = cfg.Workflows[i].ID
		}
	}

	if cfg.State.Backend == "" {
		cfg.State.Backend = defaults.State.Backend
	}
	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}

	if cfg.Webhook.Listen == "" {
		cfg.Webhook.Listen = defaults.Webhook.Listen
	}
	if cfg.Webhook.Path == "" {
		cfg.Webhook.Path = defaults.Webhook.Path
	}
	if cfg.Webhook.HealthPath == "" {
		cfg.Webhook.HealthPath = defaults.Webhook.HealthPath
	}
	if cfg.Webhook.SecretHeader == "" {
		cfg.Webhook.SecretHeader = defaults.Webhook.SecretHeader
	}
	if cfg.Webhook.MaxBodySize == "" {
		cfg.Webhook.MaxBodySize = defaults.Webhook.MaxBodySize
	}

	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Left in place; CheckRelay and the doctor report it.
		return match
	})
}

// validate performs structural validation. Missing credentials are not
// structural errors; see CheckRelay.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if f := strings.ToLower(cfg.Service.LogFormat); f != "json" && f != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	switch cfg.State.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("state.backend must be %q or %q (got %q)", BackendFile, BackendSQLite, cfg.State.Backend)
	}
	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	if cfg.Telegram.RequestTimeout < 0 || cfg.GitHub.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative")
	}
	if cfg.Telegram.PollTimeout < 0 {
		return fmt.Errorf("telegram.poll_timeout must not be negative")
	}
	if cfg.Poller.Every < 0 {
		return fmt.Errorf("poller.every must not be negative")
	}

	for i, wf := range cfg.Workflows {
		if strings.TrimSpace(wf.ID) == "" {
			return fmt.Errorf("workflows[%d].id is required", i)
		}
	}

	if !strings.HasPrefix(cfg.Webhook.Path, "/") {
		return fmt.Errorf("webhook.path must start with / (got %q)", cfg.Webhook.Path)
	}
	if !strings.HasPrefix(cfg.Webhook.HealthPath, "/") {
		return fmt.Errorf("webhook.health_path must start with / (got %q)", cfg.Webhook.HealthPath)
	}
	if cfg.Webhook.Path == cfg.Webhook.HealthPath {
		return fmt.Errorf("webhook.path and webhook.health_path must differ")
	}

	return nil
}

// CheckRelay reports whether the credentials and identity needed to handle
// commands are present. It is checked before any network call.
func (c *Config) CheckRelay() error {
	var missing []string
	if unresolved(c.Telegram.Token) {
		missing = append(missing, "telegram.token")
	}
	if unresolved(c.Telegram.ChatID) {
		missing = append(missing, "telegram.chat_id")
	}
	if unresolved(c.GitHub.Token) {
		missing = append(missing, "github.token")
	}
	if unresolved(c.GitHub.Repository) {
		missing = append(missing, "github.repository")
	} else if !strings.Contains(c.GitHub.Repository, "/") {
		return fmt.Errorf("github.repository must be owner/name (got %q)", c.GitHub.Repository)
	}
	if len(c.Workflows) == 0 {
		missing = append(missing, "workflows")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// CheckTelegram reports whether the bot token is usable on its own, for host
// commands that only talk to Telegram.
func (c *Config) CheckTelegram() error {
	if unresolved(c.Telegram.Token) {
		return fmt.Errorf("missing configuration: telegram.token")
	}
	return nil
}

// CheckGitHub reports whether the GitHub side is usable on its own, for host
// commands that only read workflow status.
func (c *Config) CheckGitHub() error {
	var missing []string
	if unresolved(c.GitHub.Token) {
		missing = append(missing, "github.token")
	}
	if unresolved(c.GitHub.Repository) {
		missing = append(missing, "github.repository")
	}
	if len(c.Workflows) == 0 {
		missing = append(missing, "workflows")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func unresolved(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || envVarPattern.MatchString(v)
}
