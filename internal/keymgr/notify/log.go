package notify

import (
	"context"
	"log/slog"
)

// LogGateway writes events to the structured log. It is the default
// gateway for deployments where alert fan-out happens downstream of log
// shipping.
type LogGateway struct {
	Logger *slog.Logger
}

func NewLogGateway(logger *slog.Logger) *LogGateway {
	return &LogGateway{Logger: logger}
}

func (g *LogGateway) Notify(ctx context.Context, event Event) error {
	level := slog.LevelInfo
	if event.Kind == KindCompromised {
		level = slog.LevelError
	}

	g.Logger.Log(ctx, level, "key lifecycle event",
		"kind", string(event.Kind),
		"key_id", event.KeyID,
		"exchange", event.Exchange,
		"occurred_at", event.OccurredAt,
	)
	return nil
}
