package handoff

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rbright/hark/internal/config"
)

// ErrNotConfigured is returned by New when neither a URL nor a command is set.
var ErrNotConfigured = errors.New("handoff not configured")

// Sender delivers one recording and returns the service reply.
type Sender interface {
	Send(ctx context.Context, path string, env Envelope) (Reply, error)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(context.Context, string, Envelope) (Reply, error)

func (f SenderFunc) Send(ctx context.Context, path string, env Envelope) (Reply, error) {
	return f(ctx, path, env)
}

// New selects the HTTP or command sender described by cfg.
func New(cfg config.HandoffConfig, logger *slog.Logger) (Sender, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond

	switch {
	case cfg.URL != "":
		return NewHTTPClient(cfg.URL, timeout, logger), nil
	case len(cfg.Command.Argv) > 0:
		return &CommandSender{Argv: cfg.Command.Argv, Timeout: timeout, Logger: logger}, nil
	default:
		return nil, ErrNotConfigured
	}
}
