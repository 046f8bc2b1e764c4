package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/monitor-relay/internal/config"
	"github.com/mattjoyce/monitor-relay/internal/github"
	"github.com/mattjoyce/monitor-relay/internal/lock"
	"github.com/mattjoyce/monitor-relay/internal/log"
	"github.com/mattjoyce/monitor-relay/internal/poller"
	"github.com/mattjoyce/monitor-relay/internal/relay"
	"github.com/mattjoyce/monitor-relay/internal/state"
	"github.com/mattjoyce/monitor-relay/internal/telegram"
	"github.com/mattjoyce/monitor-relay/internal/tui/watch"
	"github.com/mattjoyce/monitor-relay/internal/webhook"
)

// loadConfig loads configuration and sets up logging from it.
func loadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	return cfg, nil
}

func relayWorkflows(cfg *config.Config) []relay.Workflow {
	workflows := make([]relay.Workflow, 0, len(cfg.Workflows))
	for _, wf := range cfg.Workflows {
		workflows = append(workflows, relay.Workflow{ID: wf.ID, Label: wf.Label})
	}
	return workflows
}

func newTelegramClient(cfg *config.Config) *telegram.Client {
	// The HTTP timeout must outlast the long poll.
	return telegram.NewClient(cfg.Telegram.APIBase, cfg.Telegram.Token, cfg.Telegram.RequestTimeout+cfg.Telegram.PollTimeout)
}

func newGitHubClient(cfg *config.Config) *github.Client {
	return github.NewClient(cfg.GitHub.APIBase, cfg.GitHub.Token, cfg.GitHub.Repository, cfg.GitHub.Ref, cfg.GitHub.RequestTimeout)
}

func newRelay(cfg *config.Config, tg *telegram.Client) *relay.Relay {
	return relay.New(
		relay.Config{OperatorChatID: cfg.Telegram.ChatID, Workflows: relayWorkflows(cfg)},
		telegram.NewChatNotifier(tg, cfg.Telegram.ChatID),
		newGitHubClient(cfg),
		log.Get(),
	)
}

func runPoll(args []string) int {
	fs := flag.NewFlagSet("poll", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	every := fs.Duration("every", -1, "Repeat the poll cycle at this interval (0 = single cycle)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	logger := log.WithComponent("main")

	interval := cfg.Poller.Every
	if *every >= 0 {
		interval = *every
	}

	lockPath := lock.PathFor(cfg.State.Path)
	pidLock, err := lock.AcquirePIDLock(lockPath)
	if errors.Is(err, lock.ErrLocked) {
		logger.Info("another poll cycle is running, exiting", "path", lockPath, "error", err)
		return 0
	}
	if err != nil {
		logger.Error("failed to acquire poll lock", "path", lockPath, "error", err)
		return 1
	}
	defer pidLock.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := state.Open(ctx, cfg.State.Backend, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open state store", "backend", cfg.State.Backend, "path", cfg.State.Path, "error", err)
		return 1
	}
	defer store.Close()

	tg := newTelegramClient(cfg)
	p := poller.New(store, tg, newRelay(cfg, tg), cfg.CheckRelay, cfg.Telegram.PollTimeout, log.Get())

	if interval <= 0 {
		if err := p.RunOnce(ctx); err != nil {
			logger.Error("poll cycle failed", "error", err)
			return 1
		}
		return 0
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx, interval) }()
	logger.Info("poller running (press Ctrl+C to stop)", "every", interval, "state", cfg.State.Path)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			logger.Error("poller failed", "error", err)
			return 1
		}
	}

	logger.Info("poller stopped")
	return 0
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	logger := log.WithComponent("main")
	logger.Info("monitor-relay starting", "version", version, "config", cfg.SourcePath)

	if err := cfg.CheckRelay(); err != nil {
		logger.Warn("relay is not fully configured; update requests will be rejected", "error", err)
	}

	webhookConfig, err := webhook.FromGlobalConfig(cfg.Webhook)
	if err != nil {
		logger.Error("failed to configure webhook", "error", err)
		return 1
	}

	server := webhook.New(webhookConfig, newRelay(cfg, newTelegramClient(cfg)), cfg.CheckRelay, log.Get())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("webhook: %w", err)
			return
		}
		errCh <- nil
	}()

	logger.Info("monitor-relay running (press Ctrl+C to stop)", "listen", webhookConfig.Listen, "path", webhookConfig.Path)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
		if err := <-errCh; err != nil {
			logger.Error("webhook shutdown failed", "error", err)
			return 1
		}
	case err := <-errCh:
		if err != nil {
			logger.Error("component failed", "error", err)
			return 1
		}
	}

	logger.Info("monitor-relay stopped")
	return 0
}

type statusJSON struct {
	ID         string     `json:"id"`
	Label      string     `json:"label"`
	State      string     `json:"state"`
	Event      string     `json:"event,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	RunURL     string     `json:"run_url,omitempty"`
	Conclusion string     `json:"conclusion,omitempty"`
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if err := cfg.CheckGitHub(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GitHub.RequestTimeout+5*time.Second)
	defer cancel()

	statuses, err := relay.CollectStatuses(ctx, newGitHubClient(cfg), relayWorkflows(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status query failed: %v\n", err)
		return 1
	}

	if *jsonOut {
		out := make([]statusJSON, 0, len(statuses))
		for _, s := range statuses {
			entry := statusJSON{ID: s.Workflow.ID, Label: s.Workflow.Label, State: s.State()}
			if s.Run != nil {
				created := s.Run.CreatedAt.UTC()
				entry.Event = s.Run.Event
				entry.CreatedAt = &created
				entry.RunURL = s.Run.HTMLURL
				entry.Conclusion = s.Run.Conclusion
			}
			out = append(out, entry)
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Println(watch.RenderStatus(statuses, watch.NewDefaultTheme()))
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	every := fs.Duration("every", 30*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	// Logging stays at its default so records do not draw over the TUI.
	if err := cfg.CheckGitHub(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	gh := newGitHubClient(cfg)
	workflows := relayWorkflows(cfg)
	fetch := func(ctx context.Context) ([]relay.WorkflowStatus, error) {
		return relay.CollectStatuses(ctx, gh, workflows)
	}

	m := watch.New(fetch, *every, cfg.GitHub.Repository, len(workflows))
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}
