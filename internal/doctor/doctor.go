// Package doctor validates monitor-relay configuration.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/monitor-relay/internal/config"
	"github.com/mattjoyce/monitor-relay/internal/storage"
	"github.com/mattjoyce/monitor-relay/internal/webhook"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

const minPollInterval = 10 * time.Second

var envVarRe = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg *config.Config

	// lookupEnv and checkFS are swapped in tests.
	lookupEnv func(string) (string, bool)
	checkFS   func(string) error
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{
		cfg:       cfg,
		lookupEnv: os.LookupEnv,
		checkFS:   storage.ValidateLocalFilesystem,
	}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateTelegram(r)
	d.validateGitHub(r)
	d.validateWorkflows(r)
	d.validateState(r)
	d.validateWebhook(r)
	d.warnMissingEnvVars(r)
	d.warnSuspiciousSchedule(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateTelegram(r *Result) {
	tg := d.cfg.Telegram
	if strings.TrimSpace(tg.Token) == "" {
		d.addError(r, "telegram", "telegram.token", "bot token is required (TELEGRAM_BOT_TOKEN)")
	}
	chatID := strings.TrimSpace(tg.ChatID)
	switch {
	case chatID == "":
		d.addError(r, "telegram", "telegram.chat_id", "operator chat id is required (TELEGRAM_CHAT_ID)")
	case envVarRe.MatchString(chatID):
		// reported by warnMissingEnvVars
	default:
		if _, err := strconv.ParseInt(chatID, 10, 64); err != nil {
			d.addError(r, "telegram", "telegram.chat_id",
				fmt.Sprintf("chat id %q is not numeric; no update will ever be admitted", chatID))
		}
	}
}

func (d *Doctor) validateGitHub(r *Result) {
	gh := d.cfg.GitHub
	if strings.TrimSpace(gh.Token) == "" {
		d.addError(r, "github", "github.token", "token is required (GITHUB_TOKEN)")
	}
	repo := strings.TrimSpace(gh.Repository)
	if repo == "" {
		d.addError(r, "github", "github.repository", "repository is required (GITHUB_REPOSITORY)")
	} else if parts := strings.Split(repo, "/"); !envVarRe.MatchString(repo) && (len(parts) != 2 || parts[0] == "" || parts[1] == "") {
		d.addError(r, "github", "github.repository",
			fmt.Sprintf("repository %q must be owner/name", repo))
	}
	if strings.TrimSpace(gh.Ref) == "" {
		d.addError(r, "github", "github.ref", "ref is required")
	}
}

func (d *Doctor) validateWorkflows(r *Result) {
	if len(d.cfg.Workflows) == 0 {
		d.addError(r, "workflows", "workflows", "at least one workflow is required (MONITOR_WORKFLOWS)")
		return
	}
	seen := make(map[string]int, len(d.cfg.Workflows))
	for i, wf := range d.cfg.Workflows {
		field := fmt.Sprintf("workflows[%d].id", i)
		if prev, dup := seen[wf.ID]; dup {
			d.addWarning(r, "workflows", field,
				fmt.Sprintf("workflow %q duplicates workflows[%d]; it will be triggered twice", wf.ID, prev))
			continue
		}
		seen[wf.ID] = i
		if !strings.HasSuffix(wf.ID, ".yml") && !strings.HasSuffix(wf.ID, ".yaml") {
			if _, err := strconv.ParseInt(wf.ID, 10, 64); err != nil {
				d.addWarning(r, "workflows", field,
					fmt.Sprintf("workflow %q is neither a .yml file name nor a numeric id", wf.ID))
			}
		}
	}
}

func (d *Doctor) validateState(r *Result) {
	st := d.cfg.State
	switch st.Backend {
	case config.BackendFile, config.BackendSQLite:
	default:
		d.addError(r, "state", "state.backend",
			fmt.Sprintf("unknown backend %q (expected file or sqlite)", st.Backend))
	}
	if st.Path == "" {
		d.addError(r, "state", "state.path", "state.path is required")
		return
	}
	if err := d.checkFS(st.Path); err != nil {
		d.addWarning(r, "state", "state.path", err.Error())
	}
}

func (d *Doctor) validateWebhook(r *Result) {
	wc := d.cfg.Webhook
	if _, err := webhook.FromGlobalConfig(wc); err != nil {
		d.addError(r, "webhook", "webhook.max_body_size", err.Error())
	}
	if wc.Listen == "" {
		d.addError(r, "webhook", "webhook.listen", "webhook.listen is required")
	}
	if strings.TrimSpace(wc.Secret) == "" {
		d.addWarning(r, "webhook", "webhook.secret",
			"no secret configured; anyone who learns the webhook URL can submit updates")
	}
}

// warnMissingEnvVars warns about ${VAR} references where VAR is not set.
func (d *Doctor) warnMissingEnvVars(r *Result) {
	fields := []struct {
		name  string
		value string
	}{
		{"telegram.token", d.cfg.Telegram.Token},
		{"telegram.chat_id", d.cfg.Telegram.ChatID},
		{"github.token", d.cfg.GitHub.Token},
		{"github.repository", d.cfg.GitHub.Repository},
		{"github.ref", d.cfg.GitHub.Ref},
		{"state.path", d.cfg.State.Path},
		{"webhook.secret", d.cfg.Webhook.Secret},
	}
	for _, f := range fields {
		for _, m := range envVarRe.FindAllStringSubmatch(f.value, -1) {
			if v, ok := d.lookupEnv(m[1]); !ok || v == "" {
				d.addWarning(r, "env_vars", f.name,
					fmt.Sprintf("environment variable ${%s} not set", m[1]))
			}
		}
	}
}

// warnSuspiciousSchedule warns about poll intervals that would hammer the Bot API.
func (d *Doctor) warnSuspiciousSchedule(r *Result) {
	every := d.cfg.Poller.Every
	if every > 0 && every < minPollInterval {
		d.addWarning(r, "poller", "poller.every",
			fmt.Sprintf("poll interval %s is very short (< %s)", every, minPollInterval))
	}
	if every > 0 && d.cfg.Telegram.PollTimeout >= every {
		d.addWarning(r, "poller", "telegram.poll_timeout",
			fmt.Sprintf("long-poll timeout %s is not shorter than poll interval %s", d.cfg.Telegram.PollTimeout, every))
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
