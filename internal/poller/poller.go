// Package poller drives the relay from Telegram getUpdates, tracking the
// last processed update id in the state store.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/monitor-relay/internal/state"
	"github.com/mattjoyce/monitor-relay/internal/telegram"
)

// UpdateSource fetches updates with id >= offset.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// Handler processes one update. It reports failures itself.
type Handler interface {
	Handle(ctx context.Context, update telegram.Update)
}

// Poller runs poll cycles against a store, source and handler.
type Poller struct {
	store       state.Store
	source      UpdateSource
	handler     Handler
	preflight   func() error
	pollTimeout time.Duration
	logger      *slog.Logger
}

// New creates a Poller. preflight may be nil; when set it runs before any
// store or network access in each cycle.
func New(store state.Store, source UpdateSource, handler Handler, preflight func() error, pollTimeout time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		store:       store,
		source:      source,
		handler:     handler,
		preflight:   preflight,
		pollTimeout: pollTimeout,
		logger:      logger.With("component", "poller"),
	}
}

// RunOnce performs a single poll cycle. The offset is persisted after the
// batch whether or not individual commands succeeded, so a failed command is
// never redelivered.
func (p *Poller) RunOnce(ctx context.Context) error {
	if p.preflight != nil {
		if err := p.preflight(); err != nil {
			return fmt.Errorf("poll cycle aborted: %w", err)
		}
	}

	previous, err := ReadOffset(ctx, p.store, p.logger)
	if err != nil {
		return err
	}

	updates, err := p.source.GetUpdates(ctx, NextOffset(previous), p.pollTimeout)
	if err != nil {
		return fmt.Errorf("get updates: %w", err)
	}
	p.logger.Debug("Fetched updates", "offset", previous, "count", len(updates))

	for _, update := range updates {
		p.handler.Handle(ctx, update)
	}

	highest := Advance(previous, updates)
	if err := WriteOffset(ctx, p.store, highest); err != nil {
		return err
	}
	if highest != previous {
		p.logger.Info("Poll cycle complete", "processed", len(updates), "offset", highest)
	}
	return nil
}

// Run polls immediately and then every interval until ctx is cancelled.
// Cycle errors are logged and do not stop the loop.
func (p *Poller) Run(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", every)
	}

	p.tick(ctx)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.tick(ctx)
		case <-ctx.Done():
			p.logger.Info("Poller context cancelled, stopping poll loop")
			return nil
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if err := p.RunOnce(ctx); err != nil && ctx.Err() == nil {
		p.logger.Error("Poll cycle failed", "error", err)
	}
}
