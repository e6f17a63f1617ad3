package events

import (
	"context"
	"log/slog"

	"github.com/regmarket/namereg/internal/core/domain"
	"github.com/regmarket/namereg/internal/core/ports"
)

// Fanout delivers each batch to every sink. A failing sink is logged and
// skipped, so delivery is at-most-once and never blocks the operation that
// produced the events.
type Fanout struct {
	sinks  []ports.EventSink
	logger *slog.Logger
}

func NewFanout(logger *slog.Logger, sinks ...ports.EventSink) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{sinks: sinks, logger: logger}
}

func (f *Fanout) Publish(ctx context.Context, events []domain.Event) error {
	for _, s := range f.sinks {
		if err := s.Publish(ctx, events); err != nil {
			f.logger.Error("event sink failed", "count", len(events), "error", err)
		}
	}
	return nil
}

var _ ports.EventSink = (*Fanout)(nil)
