package services

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/regmarket/namereg/internal/adapters/events"
	"github.com/regmarket/namereg/internal/adapters/gate"
	"github.com/regmarket/namereg/internal/adapters/repository"
	"github.com/regmarket/namereg/internal/adapters/vault"
	"github.com/regmarket/namereg/internal/core/domain"
)

const (
	initialFee = uint64(100)
	renewFee   = uint64(10)
)

type fixture struct {
	svc   *registrarService
	repo  *repository.MemoryRepository
	vault *vault.Memory
	now   int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := repository.NewMemoryRepository()
	v := vault.NewMemory()
	svc := NewRegistrar(repo, v, gate.NewStatic("admin"), events.NewStoreSink(repo), nil).(*registrarService)

	f := &fixture{svc: svc, repo: repo, vault: v}
	svc.now = func() time.Time { return time.Unix(f.now, 0) }

	if err := repo.SaveFees(context.Background(), domain.Fees{Initial: initialFee, RenewPerPeriod: renewFee}); err != nil {
		t.Fatalf("seed fees: %v", err)
	}
	return f
}

// checkEscrowSafety asserts the custody balance covers every outstanding bid.
func (f *fixture) checkEscrowSafety(t *testing.T) {
	t.Helper()
	held, err := f.vault.Held(context.Background())
	if err != nil {
		t.Fatalf("vault held: %v", err)
	}
	escrow, err := f.repo.EscrowTotal(context.Background())
	if err != nil {
		t.Fatalf("escrow total: %v", err)
	}
	if held < escrow {
		t.Fatalf("escrow safety violated: custody %d below outstanding escrow %d", held, escrow)
	}
}

func (f *fixture) register(t *testing.T, name string, owner domain.Account) {
	t.Helper()
	f.vault.Credit(owner, initialFee)
	if _, err := f.svc.Register(context.Background(), name, owner+"-wallet", owner, initialFee); err != nil {
		t.Fatalf("register %s for %s: %v", name, owner, err)
	}
}

func TestRegisterExactFee(t *testing.T) {
	f := newFixture(t)
	f.vault.Credit("alice", initialFee)

	info, err := f.svc.Register(context.Background(), "abc", "alice-wallet", "alice", initialFee)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if info.Owner != "alice" {
		t.Errorf("owner = %s, want alice", info.Owner)
	}
	if info.Expiry != domain.TermSeconds {
		t.Errorf("expiry = %d, want %d", info.Expiry, domain.TermSeconds)
	}
	if info.Status != domain.StatusActive {
		t.Errorf("status = %s, want %s", info.Status, domain.StatusActive)
	}
	if bal := f.vault.Balance("alice"); bal != 0 {
		t.Errorf("caller balance = %d, want 0", bal)
	}
	held, _ := f.vault.Held(context.Background())
	if held != initialFee {
		t.Errorf("custody = %d, want %d", held, initialFee)
	}
	f.checkEscrowSafety(t)
}

func TestRegisterExcessRefunded(t *testing.T) {
	f := newFixture(t)
	f.vault.Credit("alice", initialFee+5)

	if _, err := f.svc.Register(context.Background(), "abc", "alice-wallet", "alice", initialFee+5); err != nil {
		t.Fatalf("register: %v", err)
	}
	if bal := f.vault.Balance("alice"); bal != 5 {
		t.Errorf("caller balance = %d, want 5 (excess refunded)", bal)
	}
	held, _ := f.vault.Held(context.Background())
	if held != initialFee {
		t.Errorf("custody = %d, want %d", held, initialFee)
	}
}

func TestRegisterCaseFoldedRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.vault.Credit("alice", initialFee)

	if _, err := f.svc.Register(context.Background(), "Alice.ETH", "alice-wallet", "alice", initialFee); err != nil {
		t.Fatalf("register: %v", err)
	}

	for _, name := range []string{"alice.eth", "ALICE.ETH", "Alice.ETH"} {
		target, err := f.svc.Resolve(context.Background(), name)
		if err != nil {
			t.Fatalf("resolve %s: %v", name, err)
		}
		if target != "alice-wallet" {
			t.Errorf("resolve %s = %s, want alice-wallet", name, target)
		}
	}

	info, err := f.svc.DomainInfo(context.Background(), "ALICE.eth")
	if err != nil {
		t.Fatalf("domain info: %v", err)
	}
	if info.Name != "alice.eth" {
		t.Errorf("stored name = %s, want folded alice.eth", info.Name)
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	f.register(t, "abc", "alice")
	f.vault.Credit("bob", 1000)

	if _, err := f.svc.Register(context.Background(), "ab", "", "bob", initialFee); !errors.Is(err, domain.ErrNameTooShort) {
		t.Errorf("short name error = %v, want ErrNameTooShort", err)
	}

	// Payment is checked before the taken check.
	_, err := f.svc.Register(context.Background(), "abc", "", "bob", initialFee-1)
	if !errors.Is(err, domain.ErrFeeTooLow) {
		t.Fatalf("low fee error = %v, want ErrFeeTooLow", err)
	}
	var fee *domain.FeeTooLowError
	if !errors.As(err, &fee) || fee.Required != initialFee {
		t.Errorf("required = %+v, want %d", fee, initialFee)
	}

	if _, err := f.svc.Register(context.Background(), "abc", "", "bob", initialFee); !errors.Is(err, domain.ErrDomainTaken) {
		t.Errorf("taken error = %v, want ErrDomainTaken", err)
	}

	// Still taken one second into grace.
	f.now = domain.TermSeconds + 1
	if _, err := f.svc.Register(context.Background(), "abc", "", "bob", initialFee); !errors.Is(err, domain.ErrDomainTaken) {
		t.Errorf("grace register error = %v, want ErrDomainTaken", err)
	}

	// Free once the grace window has elapsed.
	f.now = domain.TermSeconds + domain.GracePeriodSeconds + 1
	info, err := f.svc.Register(context.Background(), "abc", "bob-wallet", "bob", initialFee)
	if err != nil {
		t.Fatalf("register after grace: %v", err)
	}
	if info.Owner != "bob" {
		t.Errorf("owner = %s, want bob", info.Owner)
	}
	if info.Expiry != f.now+domain.TermSeconds {
		t.Errorf("expiry = %d, want %d", info.Expiry, f.now+domain.TermSeconds)
	}
}

func TestRenewExtendsStoredExpiry(t *testing.T) {
	f := newFixture(t)
	f.register(t, "abc", "alice")
	f.vault.Credit("alice", 100)

	f.now = domain.TermSeconds / 2
	info, err := f.svc.Renew(context.Background(), "abc", 2, "alice", 2*renewFee)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	want := domain.TermSeconds + 2*domain.RenewalPeriodSeconds
	if info.Expiry != want {
		t.Errorf("expiry = %d, want %d (extends stored expiry, not now)", info.Expiry, want)
	}

	if _, err := f.svc.Renew(context.Background(), "abc", 1, "bob", renewFee); !errors.Is(err, domain.ErrNotDomainOwner) {
		t.Errorf("non-owner renew error = %v, want ErrNotDomainOwner", err)
	}
}

func TestRenewGraceBoundary(t *testing.T) {
	f := newFixture(t)
	f.register(t, "abc", "alice")
	f.vault.Credit("alice", 100)

	// Scenario: one second past the grace window.
	f.now = domain.TermSeconds + domain.GracePeriodSeconds + 1
	if _, err := f.svc.Renew(context.Background(), "abc", 1, "alice", renewFee); !errors.Is(err, domain.ErrOutsideGrace) {
		t.Fatalf("past-grace renew error = %v, want ErrOutsideGrace", err)
	}

	// The last second of grace still renews, and the extension is literal:
	// one period on top of the stored expiry leaves it in the past.
	f.now = domain.TermSeconds + domain.GracePeriodSeconds
	info, err := f.svc.Renew(context.Background(), "abc", 1, "alice", renewFee)
	if err != nil {
		t.Fatalf("renew at grace bound: %v", err)
	}
	want := domain.TermSeconds + domain.RenewalPeriodSeconds
	if info.Expiry != want {
		t.Errorf("expiry = %d, want %d", info.Expiry, want)
	}
	if info.Expiry >= f.now {
		t.Errorf("expiry %d expected to remain in the past of now %d", info.Expiry, f.now)
	}
	if info.Status != domain.StatusGrace {
		t.Errorf("status = %s, want %s", info.Status, domain.StatusGrace)
	}
}

func TestRenewPaymentRules(t *testing.T) {
	f := newFixture(t)
	f.register(t, "abc", "alice")
	f.vault.Credit("alice", 1000)

	_, err := f.svc.Renew(context.Background(), "abc", 3, "alice", 3*renewFee-1)
	var fee *domain.FeeTooLowError
	if !errors.As(err, &fee) || fee.Required != 3*renewFee {
		t.Fatalf("renew error = %v, want FeeTooLow(%d)", err, 3*renewFee)
	}

	// Excess over periods*fee comes back.
	before := f.vault.Balance("alice")
	if _, err := f.svc.Renew(context.Background(), "abc", 3, "alice", 3*renewFee+7); err != nil {
		t.Fatalf("renew: %v", err)
	}
	if got := f.vault.Balance("alice"); got != before-3*renewFee {
		t.Errorf("balance = %d, want %d", got, before-3*renewFee)
	}

	// Zero periods renews nothing and costs nothing.
	info, err := f.svc.Renew(context.Background(), "abc", 0, "alice", 0)
	if err != nil {
		t.Fatalf("zero-period renew: %v", err)
	}
	if info.Expiry != domain.TermSeconds+3*domain.RenewalPeriodSeconds {
		t.Errorf("expiry changed on zero-period renew: %d", info.Expiry)
	}

	// periods*fee overflowing uint64 is unpayable.
	_, err = f.svc.Renew(context.Background(), "abc", math.MaxUint64, "alice", 1000)
	if !errors.As(err, &fee) || fee.Required != math.MaxUint64 {
		t.Errorf("overflow renew error = %v, want FeeTooLow(MaxUint64)", err)
	}
}

func TestSetResolver(t *testing.T) {
	f := newFixture(t)
	f.register(t, "abc", "alice")

	if err := f.svc.SetResolver(context.Background(), "abc", "new-wallet", "bob"); !errors.Is(err, domain.ErrNotDomainOwner) {
		t.Fatalf("non-owner set resolver error = %v, want ErrNotDomainOwner", err)
	}

	if err := f.svc.SetResolver(context.Background(), "ABC", "new-wallet", "alice"); err != nil {
		t.Fatalf("set resolver: %v", err)
	}
	target, err := f.svc.Resolve(context.Background(), "abc")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if target != "new-wallet" {
		t.Errorf("target = %s, want new-wallet", target)
	}
}

func TestResolveNeverRegistered(t *testing.T) {
	f := newFixture(t)

	target, err := f.svc.Resolve(context.Background(), "abc")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if target != "" {
		t.Errorf("target = %s, want zero account", target)
	}

	info, err := f.svc.DomainInfo(context.Background(), "abc")
	if err != nil {
		t.Fatalf("domain info: %v", err)
	}
	if info.Owner != "" || info.Expiry != 0 || info.BidAmount != 0 {
		t.Errorf("never-registered info not zero-valued: %+v", info)
	}
	if info.Status != domain.StatusFree {
		t.Errorf("status = %s, want %s", info.Status, domain.StatusFree)
	}

	if _, err := f.svc.Resolve(context.Background(), "ab"); !errors.Is(err, domain.ErrNameTooShort) {
		t.Errorf("short resolve error = %v, want ErrNameTooShort", err)
	}
}

func TestResolveExpiredStillReturnsStoredTarget(t *testing.T) {
	f := newFixture(t)
	f.register(t, "abc", "alice")

	f.now = domain.TermSeconds + domain.GracePeriodSeconds + 1000
	target, err := f.svc.Resolve(context.Background(), "abc")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if target != "alice-wallet" {
		t.Errorf("target = %s, want alice-wallet (stored target survives expiry)", target)
	}
	info, _ := f.svc.DomainInfo(context.Background(), "abc")
	if info.Status != domain.StatusFree {
		t.Errorf("status = %s, want %s", info.Status, domain.StatusFree)
	}
}

func TestReadsAreIdempotent(t *testing.T) {
	f := newFixture(t)
	f.register(t, "abc", "alice")

	first, err := f.svc.DomainInfo(context.Background(), "abc")
	if err != nil {
		t.Fatalf("domain info: %v", err)
	}
	if _, err := f.svc.Resolve(context.Background(), "abc"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := f.svc.DomainInfo(context.Background(), "abc")
	if err != nil {
		t.Fatalf("domain info: %v", err)
	}
	if first != second {
		t.Errorf("reads changed state: %+v vs %+v", first, second)
	}
}

func TestListByOwner(t *testing.T) {
	f := newFixture(t)
	f.register(t, "abc", "alice")
	f.register(t, "def", "alice")
	f.register(t, "ghi", "bob")

	sums, err := f.svc.ListByOwner(context.Background(), "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("len = %d, want 2", len(sums))
	}
	if sums[0].Name != "abc" || sums[1].Name != "def" {
		t.Errorf("names = %s,%s want abc,def", sums[0].Name, sums[1].Name)
	}
	if sums[0].Status != domain.StatusActive {
		t.Errorf("status = %s, want %s", sums[0].Status, domain.StatusActive)
	}

	none, err := f.svc.ListByOwner(context.Background(), "")
	if err != nil || none != nil {
		t.Errorf("zero-owner list = %v, %v; want nil, nil", none, err)
	}
}

func TestSetFees(t *testing.T) {
	f := newFixture(t)

	if err := f.svc.SetFees(context.Background(), domain.Fees{Initial: 1, RenewPerPeriod: 1}, "alice"); !errors.Is(err, domain.ErrNotAdmin) {
		t.Fatalf("non-admin set fees error = %v, want ErrNotAdmin", err)
	}
	if err := f.svc.SetFees(context.Background(), domain.Fees{Initial: 0, RenewPerPeriod: 1}, "admin"); !errors.Is(err, domain.ErrInvalidFees) {
		t.Fatalf("zero fee error = %v, want ErrInvalidFees", err)
	}

	if err := f.svc.SetFees(context.Background(), domain.Fees{Initial: 200, RenewPerPeriod: 20}, "admin"); err != nil {
		t.Fatalf("set fees: %v", err)
	}
	fees, err := f.svc.Fees(context.Background())
	if err != nil {
		t.Fatalf("fees: %v", err)
	}
	if fees.Initial != 200 || fees.RenewPerPeriod != 20 {
		t.Errorf("fees = %+v, want {200 20}", fees)
	}

	// The new price applies to the next registration.
	f.vault.Credit("alice", 150)
	_, err = f.svc.Register(context.Background(), "abc", "", "alice", 150)
	var fee *domain.FeeTooLowError
	if !errors.As(err, &fee) || fee.Required != 200 {
		t.Errorf("register error = %v, want FeeTooLow(200)", err)
	}
}

func TestWithdrawSweepsOnlyResidual(t *testing.T) {
	f := newFixture(t)
	f.register(t, "abc", "alice")
	f.vault.Credit("bob", 50)
	if _, err := f.svc.PlaceBid(context.Background(), "abc", 50, "bob"); err != nil {
		t.Fatalf("place bid: %v", err)
	}

	if _, err := f.svc.Withdraw(context.Background(), "treasury", "mallory"); !errors.Is(err, domain.ErrNotAdmin) {
		t.Fatalf("non-admin withdraw error = %v, want ErrNotAdmin", err)
	}

	swept, err := f.svc.Withdraw(context.Background(), "treasury", "admin")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if swept != initialFee {
		t.Errorf("swept = %d, want %d (escrow stays)", swept, initialFee)
	}
	if bal := f.vault.Balance("treasury"); bal != initialFee {
		t.Errorf("treasury balance = %d, want %d", bal, initialFee)
	}

	held, _ := f.vault.Held(context.Background())
	if held != 50 {
		t.Errorf("custody = %d, want 50 (bob's escrow)", held)
	}
	f.checkEscrowSafety(t)

	// Nothing left to sweep.
	swept, err = f.svc.Withdraw(context.Background(), "treasury", "admin")
	if err != nil || swept != 0 {
		t.Errorf("second withdraw = %d, %v; want 0, nil", swept, err)
	}
}

func TestEventsPerDomain(t *testing.T) {
	f := newFixture(t)
	f.register(t, "abc", "alice")
	if err := f.svc.SetResolver(context.Background(), "abc", "w2", "alice"); err != nil {
		t.Fatalf("set resolver: %v", err)
	}
	f.vault.Credit("bob", 10)
	if _, err := f.svc.PlaceBid(context.Background(), "abc", 10, "bob"); err != nil {
		t.Fatalf("place bid: %v", err)
	}

	evs, err := f.svc.Events(context.Background(), "abc", 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evs) != 3 {
		t.Fatalf("len = %d, want 3", len(evs))
	}
	// Newest first.
	if evs[0].Type != domain.EventBidPlaced || evs[1].Type != domain.EventResolverSet || evs[2].Type != domain.EventRegistered {
		t.Errorf("types = %s,%s,%s", evs[0].Type, evs[1].Type, evs[2].Type)
	}
	if evs[0].Bidder != "bob" || evs[0].Amount != 10 || evs[0].BidID == 0 {
		t.Errorf("bid event fields = %+v", evs[0])
	}
	if evs[2].Owner != "alice" || evs[2].Expiry != domain.TermSeconds {
		t.Errorf("registered event fields = %+v", evs[2])
	}
	for _, ev := range evs {
		if ev.ID == "" || ev.Name != "abc" {
			t.Errorf("event missing id or name: %+v", ev)
		}
	}
}

func TestFailedOperationEmitsNoEvents(t *testing.T) {
	f := newFixture(t)
	f.register(t, "abc", "alice")

	if _, err := f.svc.Register(context.Background(), "abc", "", "bob", initialFee); err == nil {
		t.Fatal("expected register to fail")
	}
	evs, err := f.svc.Events(context.Background(), "abc", 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evs) != 1 {
		t.Errorf("len = %d, want 1 (only the original registration)", len(evs))
	}
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)
	health := f.svc.HealthCheck(context.Background())
	for backend, err := range health {
		if err != nil {
			t.Errorf("backend %s unhealthy: %v", backend, err)
		}
	}
	if _, ok := health["repository"]; !ok {
		t.Error("repository backend missing from health map")
	}
	if _, ok := health["vault"]; !ok {
		t.Error("vault backend missing from health map")
	}
}

func TestEscrowSafetyUnderRandomizedOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	accounts := []domain.Account{"alice", "bob", "carol", "dave"}
	for _, a := range accounts {
		f.vault.Credit(a, 1_000_000)
	}
	names := []string{"aaa", "bbb", "ccc"}

	for i := 0; i < 400; i++ {
		name := names[rng.Intn(len(names))]
		caller := accounts[rng.Intn(len(accounts))]
		switch rng.Intn(6) {
		case 0:
			_, _ = f.svc.Register(ctx, name, caller+"-wallet", caller, initialFee+uint64(rng.Intn(50)))
		case 1:
			_, _ = f.svc.Renew(ctx, name, uint64(rng.Intn(4)), caller, uint64(rng.Intn(100)))
		case 2:
			_, _ = f.svc.PlaceBid(ctx, name, uint64(1+rng.Intn(500)), caller)
		case 3:
			_, _ = f.svc.AcceptBid(ctx, name, caller)
		case 4:
			_ = f.svc.RejectBid(ctx, name, caller)
		case 5:
			_, _ = f.svc.Withdraw(ctx, "treasury", "admin")
		}
		f.now += int64(rng.Intn(int(domain.GracePeriodSeconds)))
		f.checkEscrowSafety(t)
	}
}
