// Package events delivers registrar events to off-system consumers.
package events

import (
	"context"

	"github.com/regmarket/namereg/internal/core/domain"
	"github.com/regmarket/namereg/internal/core/ports"
)

// StoreSink persists published events into the repository's event log, which
// backs the per-domain events query.
type StoreSink struct {
	repo ports.RegistryRepository
}

func NewStoreSink(repo ports.RegistryRepository) *StoreSink {
	return &StoreSink{repo: repo}
}

func (s *StoreSink) Publish(ctx context.Context, events []domain.Event) error {
	return s.repo.SaveEvents(ctx, events)
}

var _ ports.EventSink = (*StoreSink)(nil)
