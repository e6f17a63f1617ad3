package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/regmarket/namereg/internal/core/domain"
	"github.com/regmarket/namereg/internal/core/ports"
	"github.com/regmarket/namereg/internal/infrastructure/metrics"
)

// Resolver decorates a Registrar with a two-level resolve cache. Lookups try
// the local shards, then Redis, then the backing service. Register and
// SetResolver are the only operations that change a name's target, so only
// those evict; everything else passes straight through.
type Resolver struct {
	ports.Registrar

	local  *Local
	shared *Redis
	ttl    time.Duration
	logger *slog.Logger
}

// NewResolver wraps next with the cache layers. shared may be nil for
// single-instance deployments.
func NewResolver(next ports.Registrar, local *Local, shared *Redis, ttl time.Duration, logger *slog.Logger) *Resolver {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		Registrar: next,
		local:     local,
		shared:    shared,
		ttl:       ttl,
		logger:    logger,
	}
}

// Resolve returns the target for a name, serving from cache when possible.
// An empty target caches too, so repeat lookups of unregistered names do not
// hit the store.
func (r *Resolver) Resolve(ctx context.Context, name string) (domain.Account, error) {
	key, _, err := domain.NormalizeName(name)
	if err != nil {
		return "", err
	}
	k := key.String()

	if target, ok := r.local.Get(k); ok {
		metrics.CacheOperations.WithLabelValues("local", "hit").Inc()
		return target, nil
	}
	metrics.CacheOperations.WithLabelValues("local", "miss").Inc()

	if r.shared != nil {
		if target, ok := r.shared.Get(ctx, k); ok {
			metrics.CacheOperations.WithLabelValues("redis", "hit").Inc()
			r.local.Set(k, target, r.ttl)
			return target, nil
		}
		metrics.CacheOperations.WithLabelValues("redis", "miss").Inc()
	}

	target, err := r.Registrar.Resolve(ctx, name)
	if err != nil {
		return "", err
	}
	r.local.Set(k, target, r.ttl)
	if r.shared != nil {
		r.shared.Set(ctx, k, target, r.ttl)
	}
	return target, nil
}

// Register passes through and evicts the name on success. A re-registration
// after expiry changes the target, stale entries must not outlive it.
func (r *Resolver) Register(ctx context.Context, name string, target, caller domain.Account, payment uint64) (domain.DomainInfo, error) {
	info, err := r.Registrar.Register(ctx, name, target, caller, payment)
	if err != nil {
		return info, err
	}
	r.evict(ctx, info.Key)
	return info, nil
}

// SetResolver passes through and evicts the name on success.
func (r *Resolver) SetResolver(ctx context.Context, name string, target, caller domain.Account) error {
	if err := r.Registrar.SetResolver(ctx, name, target, caller); err != nil {
		return err
	}
	if key, _, err := domain.NormalizeName(name); err == nil {
		r.evict(ctx, key.String())
	}
	return nil
}

func (r *Resolver) evict(ctx context.Context, key string) {
	r.local.Delete(key)
	if r.shared == nil {
		return
	}
	if err := r.shared.Invalidate(ctx, key); err != nil {
		r.logger.Warn("cache invalidation failed", "key", key, "error", err)
	}
}

// Listen consumes cluster invalidations until ctx is cancelled, evicting the
// local layer for keys changed by other instances. Run it in its own
// goroutine.
func (r *Resolver) Listen(ctx context.Context) {
	if r.shared == nil {
		return
	}
	ch := r.shared.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.local.Delete(msg.Payload)
		}
	}
}

var _ ports.Registrar = (*Resolver)(nil)
