package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/regmarket/namereg/internal/core/domain"
	"github.com/regmarket/namereg/internal/core/ports"
)

// MemoryRepository is the in-process ledger, authoritative for tests and
// single-node runs. Lookups of absent keys return the zero Record, which is
// the "never registered" state.
type MemoryRepository struct {
	mu      sync.RWMutex
	domains map[domain.NameKey]domain.Record
	events  []domain.Event
	fees    domain.Fees
	bidSeq  uint64
	apiKeys map[string]domain.APIKey
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		domains: make(map[domain.NameKey]domain.Record),
		apiKeys: make(map[string]domain.APIKey),
	}
}

func (r *MemoryRepository) GetDomain(_ context.Context, key domain.NameKey) (domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.domains[key], nil
}

func (r *MemoryRepository) SaveDomain(_ context.Context, key domain.NameKey, rec domain.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.domains[key] = rec
	return nil
}

func (r *MemoryRepository) ListDomainsByOwner(_ context.Context, owner domain.Account) ([]domain.DomainSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sums []domain.DomainSummary
	for key, rec := range r.domains {
		if rec.Owner == owner {
			sums = append(sums, domain.DomainSummary{
				Name:   rec.Name,
				Key:    key.String(),
				Target: rec.Target,
				Expiry: rec.Expiry,
			})
		}
	}
	sort.Slice(sums, func(i, j int) bool { return sums[i].Name < sums[j].Name })
	return sums, nil
}

func (r *MemoryRepository) NextBidID(_ context.Context) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bidSeq++
	return r.bidSeq, nil
}

func (r *MemoryRepository) EscrowTotal(_ context.Context) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total uint64
	for _, rec := range r.domains {
		total += rec.Bid.Amount
	}
	return total, nil
}

func (r *MemoryRepository) GetFees(_ context.Context) (domain.Fees, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fees, nil
}

func (r *MemoryRepository) SaveFees(_ context.Context, fees domain.Fees) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fees = fees
	return nil
}

func (r *MemoryRepository) SaveEvents(_ context.Context, events []domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

// ListEvents returns the newest events for one name key, most recent first.
func (r *MemoryRepository) ListEvents(_ context.Context, key domain.NameKey, limit int) ([]domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hexKey := key.String()
	var evs []domain.Event
	for i := len(r.events) - 1; i >= 0 && len(evs) < limit; i-- {
		if r.events[i].Key == hexKey {
			evs = append(evs, r.events[i])
		}
	}
	return evs, nil
}

func (r *MemoryRepository) GetAPIKeyByHash(_ context.Context, keyHash string) (*domain.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, k := range r.apiKeys {
		if k.KeyHash == keyHash {
			out := k
			return &out, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) CreateAPIKey(_ context.Context, key *domain.APIKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apiKeys[key.ID] = *key
	return nil
}

func (r *MemoryRepository) ListAPIKeys(_ context.Context) ([]domain.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]domain.APIKey, 0, len(r.apiKeys))
	for _, k := range r.apiKeys {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.Before(keys[j].CreatedAt) })
	return keys, nil
}

func (r *MemoryRepository) RevokeAPIKey(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.apiKeys[id]
	if !ok {
		return nil
	}
	k.Active = false
	r.apiKeys[id] = k
	return nil
}

func (r *MemoryRepository) Ping(_ context.Context) error {
	return nil
}

var _ ports.RegistryRepository = (*MemoryRepository)(nil)
