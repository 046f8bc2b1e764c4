package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mattjoyce/monitor-relay/internal/state"
	"github.com/mattjoyce/monitor-relay/internal/telegram"
)

// OffsetKey is the reserved store key holding the highest processed update id.
const OffsetKey = "__bot_last_update_id__"

// NextOffset is the getUpdates offset that skips everything up to previous.
func NextOffset(previous int64) int64 {
	return previous + 1
}

// Advance returns the highest of previous and every update id in batch.
func Advance(previous int64, batch []telegram.Update) int64 {
	highest := previous
	for _, u := range batch {
		if u.UpdateID > highest {
			highest = u.UpdateID
		}
	}
	return highest
}

// ReadOffset loads the persisted offset. A missing, empty, unparsable, or
// corrupt value reads as 0. Only store I/O failures are returned.
func ReadOffset(ctx context.Context, store state.Store, logger *slog.Logger) (int64, error) {
	raw, ok, err := store.Get(ctx, OffsetKey)
	if errors.Is(err, state.ErrCorrupt) {
		logger.Warn("State store is corrupt, starting from offset 0", "error", err)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read offset: %w", err)
	}
	if !ok {
		return 0, nil
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	offset, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		logger.Warn("Ignoring unparsable offset", "value", raw, "error", err)
		return 0, nil
	}
	return offset, nil
}

// WriteOffset persists offset under OffsetKey.
func WriteOffset(ctx context.Context, store state.Store, offset int64) error {
	if err := store.Set(ctx, OffsetKey, strconv.FormatInt(offset, 10)); err != nil {
		return fmt.Errorf("write offset: %w", err)
	}
	return nil
}
