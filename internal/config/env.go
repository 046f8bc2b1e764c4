package config

import (
	"fmt"
	"strings"
)

// lookupFunc matches os.LookupEnv so tests can inject an environment.
type lookupFunc func(string) (string, bool)

// applyEnvOverrides lets the environment win over file values. Only
// non-empty variables override.
func applyEnvOverrides(cfg *Config, lookup lookupFunc) error {
	set := func(dst *string, name string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	set(&cfg.Service.LogLevel, "LOG_LEVEL")
	set(&cfg.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	set(&cfg.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	set(&cfg.GitHub.Token, "GITHUB_TOKEN")
	set(&cfg.GitHub.Repository, "GITHUB_REPOSITORY")
	set(&cfg.GitHub.Ref, "GITHUB_REF")
	set(&cfg.State.Backend, "STATE_BACKEND")
	set(&cfg.State.Path, "STATE_PATH")
	set(&cfg.Webhook.Path, "WEBHOOK_PATH")
	set(&cfg.Webhook.Secret, "WEBHOOK_SECRET")

	if port, ok := lookup("PORT"); ok && strings.TrimSpace(port) != "" {
		cfg.Webhook.Listen = ":" + strings.TrimPrefix(strings.TrimSpace(port), ":")
	}

	if raw, ok := lookup("MONITOR_WORKFLOWS"); ok && strings.TrimSpace(raw) != "" {
		workflows, err := ParseWorkflowList(raw)
		if err != nil {
			return fmt.Errorf("MONITOR_WORKFLOWS: %w", err)
		}
		cfg.Workflows = workflows
	}

	return nil
}

// ParseWorkflowList parses "file.yml:Label,other.yml" into workflow configs.
// A missing label defaults to the id.
func ParseWorkflowList(raw string) ([]WorkflowConfig, error) {
	var out []WorkflowConfig
	for i, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		id, label, _ := strings.Cut(item, ":")
		id = strings.TrimSpace(id)
		label = strings.TrimSpace(label)
		if id == "" {
			return nil, fmt.Errorf("entry %d has an empty workflow id", i)
		}
		if label == "" {
			label = id
		}
		out = append(out, WorkflowConfig{ID: id, Label: label})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no workflows listed")
	}
	return out, nil
}
