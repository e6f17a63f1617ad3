// Package vault holds the value custody adapters: the account book the
// registrar collects payments into and releases refunds and payouts from.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/regmarket/namereg/internal/core/domain"
	"github.com/regmarket/namereg/internal/core/ports"
	"github.com/regmarket/namereg/internal/infrastructure/metrics"
)

// ReceiverHook runs synchronously when its account receives a release,
// before Release returns to the caller. A hook that re-enters the registrar
// must do so with the context it was handed. Returning an error makes the
// transfer fail.
type ReceiverHook func(ctx context.Context, amount uint64) error

// Memory is an in-process account book implementing value custody. Accounts
// are external parties; the held balance is value in registry custody
// (escrow plus collected fees). Receiver hooks model recipients that execute
// their own code on receipt.
type Memory struct {
	mu       sync.Mutex
	balances map[domain.Account]uint64
	held     uint64
	hooks    map[domain.Account]ReceiverHook
}

func NewMemory() *Memory {
	return &Memory{
		balances: make(map[domain.Account]uint64),
		hooks:    make(map[domain.Account]ReceiverHook),
	}
}

// Credit seeds an account with spendable balance.
func (v *Memory) Credit(account domain.Account, amount uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[account] += amount
}

// Balance reports an account's spendable balance.
func (v *Memory) Balance(account domain.Account) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[account]
}

// SetReceiverHook installs fn to run whenever account receives a release.
// A nil fn removes the hook.
func (v *Memory) SetReceiverHook(account domain.Account, fn ReceiverHook) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if fn == nil {
		delete(v.hooks, account)
		return
	}
	v.hooks[account] = fn
}

func (v *Memory) Collect(_ context.Context, from domain.Account, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if from.IsZero() {
		return fmt.Errorf("collect: zero account")
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	bal := v.balances[from]
	if bal < amount {
		return fmt.Errorf("collect from %s: balance %d below %d", from, bal, amount)
	}
	v.balances[from] = bal - amount
	v.held += amount
	metrics.ValueMoved.WithLabelValues("in").Add(float64(amount))
	return nil
}

func (v *Memory) Release(ctx context.Context, to domain.Account, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if to.IsZero() {
		return fmt.Errorf("release: zero account")
	}

	v.mu.Lock()
	if v.held < amount {
		v.mu.Unlock()
		return fmt.Errorf("release to %s: custody %d below %d", to, v.held, amount)
	}
	v.held -= amount
	v.balances[to] += amount
	hook := v.hooks[to]
	v.mu.Unlock()

	// The recipient's code runs outside the lock and after the credit, so it
	// observes the post-transfer world and may call anywhere, including back
	// into the registrar.
	if hook != nil {
		if err := hook(ctx, amount); err != nil {
			v.mu.Lock()
			v.balances[to] -= amount
			v.held += amount
			v.mu.Unlock()
			return fmt.Errorf("release to %s rejected: %w", to, err)
		}
	}
	metrics.ValueMoved.WithLabelValues("out").Add(float64(amount))
	return nil
}

func (v *Memory) Held(_ context.Context) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.held, nil
}

var _ ports.Vault = (*Memory)(nil)
