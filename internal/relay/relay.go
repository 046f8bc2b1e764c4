// Package relay is the command dispatch core shared by the poller and the
// webhook server: admission, routing, and the trigger and status fan-outs.
package relay

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mattjoyce/monitor-relay/internal/github"
	"github.com/mattjoyce/monitor-relay/internal/log"
	"github.com/mattjoyce/monitor-relay/internal/telegram"
)

//go:generate mockgen -destination=mocks/mock_relay.go -package=mocks github.com/mattjoyce/monitor-relay/internal/relay Notifier,Gateway

// Notifier delivers a message to the operator.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Gateway triggers workflows and reads their latest run.
type Gateway interface {
	TriggerWorkflow(ctx context.Context, workflowID string) error
	// LatestRun returns nil, nil when the workflow has never run.
	LatestRun(ctx context.Context, workflowID string) (*github.Run, error)
}

// Workflow is a monitor workflow the operator controls.
type Workflow struct {
	ID    string
	Label string
}

// Config holds the operator identity and the workflows /trigger and /status act on.
type Config struct {
	OperatorChatID string
	Workflows      []Workflow
}

// Commands recognised by Handle. Matching is exact.
const (
	CommandTest    = "/test"
	CommandTrigger = "/trigger"
	CommandStatus  = "/status"
)

// Relay handles one inbound update at a time. It holds no mutable state and
// is safe for concurrent use.
type Relay struct {
	cfg      Config
	notifier Notifier
	gateway  Gateway
	logger   *slog.Logger
}

// New returns a Relay. A nil logger means slog.Default().
func New(cfg Config, notifier Notifier, gateway Gateway, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		cfg:      cfg,
		notifier: notifier,
		gateway:  gateway,
		logger:   logger.With("component", "relay"),
	}
}

// Handle applies admission and routing to a single update. Failures are
// logged and reported to the operator; nothing is returned to the caller.
func (r *Relay) Handle(ctx context.Context, update telegram.Update) {
	logger := log.WithDispatch(log.WithUpdate(r.logger, update.UpdateID), uuid.NewString())

	text, ok := Admit(update, r.cfg.OperatorChatID)
	if !ok {
		logger.Debug("Update not admitted")
		return
	}

	switch text {
	case CommandTest:
		logger.Info("Handling command", "command", text)
		r.notify(ctx, logger, MessageAlive)
	case CommandTrigger:
		logger.Info("Handling command", "command", text)
		r.triggerAll(ctx, logger)
	case CommandStatus:
		logger.Info("Handling command", "command", text)
		r.reportStatus(ctx, logger)
	default:
		logger.Debug("Ignoring unrecognised text")
	}
}

func (r *Relay) triggerAll(ctx context.Context, logger *slog.Logger) {
	r.notify(ctx, logger, MessageTriggerStarting)

	for _, wf := range r.cfg.Workflows {
		wfLogger := log.WithWorkflow(logger, wf.ID)
		if err := r.gateway.TriggerWorkflow(ctx, wf.ID); err != nil {
			wfLogger.Error("Workflow trigger failed", "error", err)
			r.notify(ctx, logger, MessageTriggerFailed)
			return
		}
		wfLogger.Info("Workflow triggered")
	}

	r.notify(ctx, logger, MessageTriggerSucceeded)
}

func (r *Relay) reportStatus(ctx context.Context, logger *slog.Logger) {
	statuses, err := CollectStatuses(ctx, r.gateway, r.cfg.Workflows)
	if err != nil {
		logger.Error("Status query failed", "error", err)
		r.notify(ctx, logger, MessageStatusFailed)
		return
	}
	r.notify(ctx, logger, FormatReport(statuses))
}

func (r *Relay) notify(ctx context.Context, logger *slog.Logger, text string) {
	if err := r.notifier.Notify(ctx, text); err != nil {
		logger.Error("Failed to notify operator", "error", err)
	}
}
