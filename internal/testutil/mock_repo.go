package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/regmarket/namereg/internal/core/domain"
)

// MockRepo implements ports.RegistryRepository for testing.
type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) GetDomain(ctx context.Context, key domain.NameKey) (domain.Record, error) {
	args := m.Called(key)
	return args.Get(0).(domain.Record), args.Error(1)
}

func (m *MockRepo) SaveDomain(ctx context.Context, key domain.NameKey, rec domain.Record) error {
	args := m.Called(key, rec)
	return args.Error(0)
}

func (m *MockRepo) ListDomainsByOwner(ctx context.Context, owner domain.Account) ([]domain.DomainSummary, error) {
	args := m.Called(owner)
	return args.Get(0).([]domain.DomainSummary), args.Error(1)
}

func (m *MockRepo) NextBidID(ctx context.Context) (uint64, error) {
	args := m.Called()
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockRepo) EscrowTotal(ctx context.Context) (uint64, error) {
	args := m.Called()
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockRepo) GetFees(ctx context.Context) (domain.Fees, error) {
	args := m.Called()
	return args.Get(0).(domain.Fees), args.Error(1)
}

func (m *MockRepo) SaveFees(ctx context.Context, fees domain.Fees) error {
	args := m.Called(fees)
	return args.Error(0)
}

func (m *MockRepo) SaveEvents(ctx context.Context, events []domain.Event) error {
	args := m.Called(events)
	return args.Error(0)
}

func (m *MockRepo) ListEvents(ctx context.Context, key domain.NameKey, limit int) ([]domain.Event, error) {
	args := m.Called(key, limit)
	return args.Get(0).([]domain.Event), args.Error(1)
}

func (m *MockRepo) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	args := m.Called(keyHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.APIKey), args.Error(1)
}

func (m *MockRepo) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *MockRepo) ListAPIKeys(ctx context.Context) ([]domain.APIKey, error) {
	args := m.Called()
	return args.Get(0).([]domain.APIKey), args.Error(1)
}

func (m *MockRepo) RevokeAPIKey(ctx context.Context, id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockRepo) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}

// MockRegistrar implements ports.Registrar for handler tests.
type MockRegistrar struct {
	mock.Mock
}

func (m *MockRegistrar) Register(ctx context.Context, name string, target, caller domain.Account, payment uint64) (domain.DomainInfo, error) {
	args := m.Called(name, target, caller, payment)
	return args.Get(0).(domain.DomainInfo), args.Error(1)
}

func (m *MockRegistrar) Renew(ctx context.Context, name string, periods uint64, caller domain.Account, payment uint64) (domain.DomainInfo, error) {
	args := m.Called(name, periods, caller, payment)
	return args.Get(0).(domain.DomainInfo), args.Error(1)
}

func (m *MockRegistrar) SetResolver(ctx context.Context, name string, target, caller domain.Account) error {
	args := m.Called(name, target, caller)
	return args.Error(0)
}

func (m *MockRegistrar) PlaceBid(ctx context.Context, name string, amount uint64, caller domain.Account) (domain.Bid, error) {
	args := m.Called(name, amount, caller)
	return args.Get(0).(domain.Bid), args.Error(1)
}

func (m *MockRegistrar) AcceptBid(ctx context.Context, name string, caller domain.Account) (domain.DomainInfo, error) {
	args := m.Called(name, caller)
	return args.Get(0).(domain.DomainInfo), args.Error(1)
}

func (m *MockRegistrar) RejectBid(ctx context.Context, name string, caller domain.Account) error {
	args := m.Called(name, caller)
	return args.Error(0)
}

func (m *MockRegistrar) SetFees(ctx context.Context, fees domain.Fees, caller domain.Account) error {
	args := m.Called(fees, caller)
	return args.Error(0)
}

func (m *MockRegistrar) Withdraw(ctx context.Context, to, caller domain.Account) (uint64, error) {
	args := m.Called(to, caller)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockRegistrar) Resolve(ctx context.Context, name string) (domain.Account, error) {
	args := m.Called(name)
	return args.Get(0).(domain.Account), args.Error(1)
}

func (m *MockRegistrar) DomainInfo(ctx context.Context, name string) (domain.DomainInfo, error) {
	args := m.Called(name)
	return args.Get(0).(domain.DomainInfo), args.Error(1)
}

func (m *MockRegistrar) ListByOwner(ctx context.Context, owner domain.Account) ([]domain.DomainSummary, error) {
	args := m.Called(owner)
	return args.Get(0).([]domain.DomainSummary), args.Error(1)
}

func (m *MockRegistrar) Events(ctx context.Context, name string, limit int) ([]domain.Event, error) {
	args := m.Called(name, limit)
	return args.Get(0).([]domain.Event), args.Error(1)
}

func (m *MockRegistrar) Fees(ctx context.Context) (domain.Fees, error) {
	args := m.Called()
	return args.Get(0).(domain.Fees), args.Error(1)
}

func (m *MockRegistrar) HealthCheck(ctx context.Context) map[string]error {
	args := m.Called()
	return args.Get(0).(map[string]error)
}
