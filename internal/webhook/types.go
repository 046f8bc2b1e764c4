package webhook

import (
	"context"

	"github.com/mattjoyce/monitor-relay/internal/telegram"
)

// UpdateHandler processes one Telegram update after the request is acknowledged.
type UpdateHandler interface {
	Handle(ctx context.Context, update telegram.Update)
}

// Config holds webhook server configuration.
type Config struct {
	Listen string

	// Path receives Telegram updates (POST).
	Path string

	// HealthPath answers liveness probes (GET).
	HealthPath string

	// Secret is compared against SecretHeader. Empty disables the check.
	Secret       string
	SecretHeader string

	// MaxBodySize is the maximum allowed request body size in bytes (default: 1MB)
	MaxBodySize int64
}

// AckResponse is the JSON response for accepted updates and health probes.
type AckResponse struct {
	OK bool `json:"ok"`
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Default values
const (
	DefaultMaxBodySize  = 1048576 // 1 MB
	DefaultSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
)
