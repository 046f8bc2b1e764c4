package config

import "time"

// Config represents the complete monitor-relay configuration.
type Config struct {
	Service   ServiceConfig    `yaml:"service"`
	Telegram  TelegramConfig   `yaml:"telegram"`
	GitHub    GitHubConfig     `yaml:"github"`
	Workflows []WorkflowConfig `yaml:"workflows"`
	State     StateConfig      `yaml:"state"`
	Poller    PollerConfig     `yaml:"poller"`
	Webhook   WebhookConfig    `yaml:"webhook"`

	// SourcePath is the file the config was loaded from ("" when built from
	// defaults and environment only).
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// TelegramConfig defines the messaging side of the relay.
type TelegramConfig struct {
	Token string `yaml:"token"`
	// ChatID is the only chat allowed to issue commands. Compared as a string.
	ChatID         string        `yaml:"chat_id"`
	APIBase        string        `yaml:"api_base"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// PollTimeout is the getUpdates long-poll timeout. Zero returns immediately.
	PollTimeout time.Duration `yaml:"poll_timeout"`
}

// GitHubConfig defines the automation platform side of the relay.
type GitHubConfig struct {
	Token          string        `yaml:"token"`
	Repository     string        `yaml:"repository"` // owner/name
	Ref            string        `yaml:"ref"`
	APIBase        string        `yaml:"api_base"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// WorkflowConfig names one monitor workflow.
type WorkflowConfig struct {
	ID    string `yaml:"id"` // workflow file name, e.g. monitor-uptime.yml
	Label string `yaml:"label"`
}

// StateConfig defines offset storage settings.
type StateConfig struct {
	Backend string `yaml:"backend"` // file | sqlite
	Path    string `yaml:"path"`
}

// PollerConfig defines polling mode settings.
type PollerConfig struct {
	// Every repeats the poll cycle on a ticker. Zero runs a single cycle.
	Every time.Duration `yaml:"every"`
}

// WebhookConfig defines webhook listener settings.
type WebhookConfig struct {
	Listen       string `yaml:"listen"`
	Path         string `yaml:"path"`
	HealthPath   string `yaml:"health_path"`
	Secret       string `yaml:"secret,omitempty"`
	SecretHeader string `yaml:"secret_header"`
	MaxBodySize  string `yaml:"max_body_size"`
}

// State backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "monitor-relay",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Telegram: TelegramConfig{
			APIBase:        "https://api.telegram.org",
			RequestTimeout: 15 * time.Second,
			PollTimeout:    0,
		},
		GitHub: GitHubConfig{
			Ref:            "main",
			APIBase:        "https://api.github.com",
			RequestTimeout: 15 * time.Second,
		},
		State: StateConfig{
			Backend: BackendFile,
			Path:    "./data/state.json",
		},
		Webhook: WebhookConfig{
			Listen:       ":8080",
			Path:         "/telegram/webhook",
			HealthPath:   "/healthz",
			SecretHeader: "X-Telegram-Bot-Api-Secret-Token",
			MaxBodySize:  "1MB",
		},
	}
}
