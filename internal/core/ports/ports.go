package ports

import (
	"context"

	"github.com/regmarket/namereg/internal/core/domain"
)

// RegistryRepository owns every piece of persistent registrar state: the
// domain ledger, the shared bid counter, fee governance values, the event
// log, and API keys. GetDomain returns the zero Record for absent keys;
// SaveDomain is a single-row atomic upsert.
type RegistryRepository interface {
	GetDomain(ctx context.Context, key domain.NameKey) (domain.Record, error)
	SaveDomain(ctx context.Context, key domain.NameKey, rec domain.Record) error
	ListDomainsByOwner(ctx context.Context, owner domain.Account) ([]domain.DomainSummary, error)
	NextBidID(ctx context.Context) (uint64, error)
	EscrowTotal(ctx context.Context) (uint64, error)
	GetFees(ctx context.Context) (domain.Fees, error)
	SaveFees(ctx context.Context, fees domain.Fees) error
	SaveEvents(ctx context.Context, events []domain.Event) error
	ListEvents(ctx context.Context, key domain.NameKey, limit int) ([]domain.Event, error)
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	CreateAPIKey(ctx context.Context, key *domain.APIKey) error
	ListAPIKeys(ctx context.Context) ([]domain.APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// Vault moves value between external accounts and registry custody. Release
// hands value to an account the registry does not control: the recipient may
// synchronously call back into the registry before Release returns, and a
// recipient that cannot accept value fails the call.
type Vault interface {
	Collect(ctx context.Context, from domain.Account, amount uint64) error
	Release(ctx context.Context, to domain.Account, amount uint64) error
	Held(ctx context.Context) (uint64, error)
}

// EventSink receives the events of one completed operation, in emission
// order. Delivery failures must not fail the operation that produced them.
type EventSink interface {
	Publish(ctx context.Context, events []domain.Event) error
}

// AdminGate answers the capability check guarding fee updates and treasury
// sweeps.
type AdminGate interface {
	IsAdmin(ctx context.Context, account domain.Account) (bool, error)
}

// Registrar is the full public surface of the registry. Mutating operations
// are all-or-nothing: any failure leaves the ledger unchanged and emits no
// events.
type Registrar interface {
	Register(ctx context.Context, name string, target, caller domain.Account, payment uint64) (domain.DomainInfo, error)
	Renew(ctx context.Context, name string, periods uint64, caller domain.Account, payment uint64) (domain.DomainInfo, error)
	SetResolver(ctx context.Context, name string, target, caller domain.Account) error
	PlaceBid(ctx context.Context, name string, amount uint64, caller domain.Account) (domain.Bid, error)
	AcceptBid(ctx context.Context, name string, caller domain.Account) (domain.DomainInfo, error)
	RejectBid(ctx context.Context, name string, caller domain.Account) error
	SetFees(ctx context.Context, fees domain.Fees, caller domain.Account) error
	Withdraw(ctx context.Context, to, caller domain.Account) (uint64, error)

	Resolve(ctx context.Context, name string) (domain.Account, error)
	DomainInfo(ctx context.Context, name string) (domain.DomainInfo, error)
	ListByOwner(ctx context.Context, owner domain.Account) ([]domain.DomainSummary, error)
	Events(ctx context.Context, name string, limit int) ([]domain.Event, error)
	Fees(ctx context.Context) (domain.Fees, error)
	HealthCheck(ctx context.Context) map[string]error
}

// RoutingEngine advertises and withdraws the service VIP on the routing
// fabric.
type RoutingEngine interface {
	Announce(ctx context.Context, vip string) error
	Withdraw(ctx context.Context, vip string) error
}

// VIPManager binds and unbinds the VIP on a local interface.
type VIPManager interface {
	Bind(ctx context.Context, vip, iface string) error
	Unbind(ctx context.Context, vip, iface string) error
}
