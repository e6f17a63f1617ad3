package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/regmarket/namereg/internal/core/domain"
	"github.com/regmarket/namereg/internal/core/ports"
	"github.com/regmarket/namereg/internal/infrastructure/metrics"
)

type registrarService struct {
	repo   ports.RegistryRepository
	vault  ports.Vault
	gate   ports.AdminGate
	sink   ports.EventSink
	logger *slog.Logger
	now    func() time.Time

	// mu serializes every mutating operation. Concurrent callers queue
	// behind it; nested reentrant calls are rejected by the context tag
	// before they can reach it.
	mu sync.Mutex
}

// NewRegistrar builds the registrar around its collaborators. sink may be nil
// when no event delivery is wanted; a nil logger falls back to slog.Default.
func NewRegistrar(repo ports.RegistryRepository, vault ports.Vault, gate ports.AdminGate, sink ports.EventSink, logger *slog.Logger) ports.Registrar {
	if logger == nil {
		logger = slog.Default()
	}
	return &registrarService{
		repo:   repo,
		vault:  vault,
		gate:   gate,
		sink:   sink,
		logger: logger,
		now:    time.Now,
	}
}

// enter rejects reentrant invocations, takes the operation lock, and returns
// the tagged context the operation must use for every vault call.
func (s *registrarService) enter(ctx context.Context) (context.Context, func(), error) {
	if isBusy(ctx) {
		metrics.ReentrancyRejections.Inc()
		s.logger.Warn("rejected reentrant mutating call")
		return nil, nil, domain.ErrReentrantCall
	}
	s.mu.Lock()
	return markBusy(ctx), s.mu.Unlock, nil
}

func (s *registrarService) Register(ctx context.Context, name string, target, caller domain.Account, payment uint64) (info domain.DomainInfo, err error) {
	defer func() { observe("register", err) }()

	key, folded, err := domain.NormalizeName(name)
	if err != nil {
		return domain.DomainInfo{}, err
	}
	if caller.IsZero() {
		return domain.DomainInfo{}, fmt.Errorf("register: caller account required")
	}

	ctx, done, err := s.enter(ctx)
	if err != nil {
		return domain.DomainInfo{}, err
	}
	defer done()

	fees, err := s.repo.GetFees(ctx)
	if err != nil {
		return domain.DomainInfo{}, fmt.Errorf("register: load fees: %w", err)
	}
	if fees.Initial == 0 {
		return domain.DomainInfo{}, fmt.Errorf("register: initial fee not configured")
	}
	if payment < fees.Initial {
		return domain.DomainInfo{}, &domain.FeeTooLowError{Required: fees.Initial}
	}

	prev, err := s.repo.GetDomain(ctx, key)
	if err != nil {
		return domain.DomainInfo{}, fmt.Errorf("register: load record: %w", err)
	}
	now := s.now().Unix()
	if prev.StatusAt(now) != domain.StatusFree {
		return domain.DomainInfo{}, domain.ErrDomainTaken
	}

	if cerr := s.vault.Collect(ctx, caller, payment); cerr != nil {
		return domain.DomainInfo{}, fmt.Errorf("register: collect payment: %w", cerr)
	}

	rec := domain.Record{
		Name:   folded,
		Owner:  caller,
		Target: target,
		Expiry: now + domain.TermSeconds,
	}
	if serr := s.repo.SaveDomain(ctx, key, rec); serr != nil {
		serr = fmt.Errorf("register: save record: %w", serr)
		return domain.DomainInfo{}, s.refund(ctx, serr, caller, payment)
	}

	// Value leaves custody only after the record is committed.
	if excess := payment - fees.Initial; excess > 0 {
		if rerr := s.vault.Release(ctx, caller, excess); rerr != nil {
			rerr = fmt.Errorf("register: return excess payment: %w", rerr)
			return domain.DomainInfo{}, s.rollback(ctx, rerr, key, prev, caller, payment)
		}
	}

	// A bid placed before the grace window closed can still sit on the freed
	// record. The overwrite cleared the slot; the escrow goes back to its
	// bidder once the new owner is committed.
	if prev.Bid.Active() {
		if rerr := s.vault.Release(ctx, prev.Bid.Bidder, prev.Bid.Amount); rerr != nil {
			rerr = fmt.Errorf("register: refund lingering bid: %w", rerr)
			return domain.DomainInfo{}, s.rollback(ctx, rerr, key, prev, caller, fees.Initial)
		}
		metrics.EscrowOutstanding.Sub(float64(prev.Bid.Amount))
		s.logger.Info("refunded lingering bid on re-registration",
			"name", folded, "bidder", prev.Bid.Bidder, "amount", prev.Bid.Amount)
	}

	s.flush(ctx, domain.Event{
		Type:   domain.EventRegistered,
		Name:   folded,
		Key:    key.String(),
		Owner:  caller,
		Expiry: rec.Expiry,
	})
	return s.info(key, rec, now), nil
}

func (s *registrarService) Renew(ctx context.Context, name string, periods uint64, caller domain.Account, payment uint64) (info domain.DomainInfo, err error) {
	defer func() { observe("renew", err) }()

	key, folded, err := domain.NormalizeName(name)
	if err != nil {
		return domain.DomainInfo{}, err
	}

	ctx, done, err := s.enter(ctx)
	if err != nil {
		return domain.DomainInfo{}, err
	}
	defer done()

	prev, err := s.repo.GetDomain(ctx, key)
	if err != nil {
		return domain.DomainInfo{}, fmt.Errorf("renew: load record: %w", err)
	}
	if caller.IsZero() || prev.Owner != caller {
		return domain.DomainInfo{}, domain.ErrNotDomainOwner
	}
	now := s.now().Unix()
	if prev.StatusAt(now) == domain.StatusFree {
		return domain.DomainInfo{}, domain.ErrOutsideGrace
	}

	fees, err := s.repo.GetFees(ctx)
	if err != nil {
		return domain.DomainInfo{}, fmt.Errorf("renew: load fees: %w", err)
	}
	if periods > 0 && fees.RenewPerPeriod == 0 {
		return domain.DomainInfo{}, fmt.Errorf("renew: renewal fee not configured")
	}
	required, ok := mulFee(periods, fees.RenewPerPeriod)
	if !ok {
		return domain.DomainInfo{}, &domain.FeeTooLowError{Required: math.MaxUint64}
	}
	if payment < required {
		return domain.DomainInfo{}, &domain.FeeTooLowError{Required: required}
	}

	if cerr := s.vault.Collect(ctx, caller, payment); cerr != nil {
		return domain.DomainInfo{}, fmt.Errorf("renew: collect payment: %w", cerr)
	}

	// Renewal extends the stored expiry, not now. Deep into grace the result
	// can remain in the past.
	rec := prev
	rec.Expiry = extendExpiry(prev.Expiry, periods)
	if serr := s.repo.SaveDomain(ctx, key, rec); serr != nil {
		serr = fmt.Errorf("renew: save record: %w", serr)
		return domain.DomainInfo{}, s.refund(ctx, serr, caller, payment)
	}

	if excess := payment - required; excess > 0 {
		if rerr := s.vault.Release(ctx, caller, excess); rerr != nil {
			rerr = fmt.Errorf("renew: return excess payment: %w", rerr)
			return domain.DomainInfo{}, s.rollback(ctx, rerr, key, prev, caller, payment)
		}
	}

	s.flush(ctx, domain.Event{
		Type:    domain.EventRenewed,
		Name:    folded,
		Key:     key.String(),
		Owner:   caller,
		Expiry:  rec.Expiry,
		Periods: periods,
	})
	return s.info(key, rec, now), nil
}

func (s *registrarService) SetResolver(ctx context.Context, name string, target, caller domain.Account) (err error) {
	defer func() { observe("set_resolver", err) }()

	key, folded, err := domain.NormalizeName(name)
	if err != nil {
		return err
	}

	ctx, done, err := s.enter(ctx)
	if err != nil {
		return err
	}
	defer done()

	rec, err := s.repo.GetDomain(ctx, key)
	if err != nil {
		return fmt.Errorf("set resolver: load record: %w", err)
	}
	if caller.IsZero() || rec.Owner != caller {
		return domain.ErrNotDomainOwner
	}

	rec.Target = target
	if serr := s.repo.SaveDomain(ctx, key, rec); serr != nil {
		return fmt.Errorf("set resolver: save record: %w", serr)
	}

	s.flush(ctx, domain.Event{
		Type:   domain.EventResolverSet,
		Name:   folded,
		Key:    key.String(),
		Target: target,
	})
	return nil
}

func (s *registrarService) SetFees(ctx context.Context, fees domain.Fees, caller domain.Account) (err error) {
	defer func() { observe("set_fees", err) }()

	ctx, done, err := s.enter(ctx)
	if err != nil {
		return err
	}
	defer done()

	if aerr := s.requireAdmin(ctx, caller); aerr != nil {
		return aerr
	}
	if fees.Initial == 0 || fees.RenewPerPeriod == 0 {
		return domain.ErrInvalidFees
	}
	if serr := s.repo.SaveFees(ctx, fees); serr != nil {
		return fmt.Errorf("set fees: %w", serr)
	}

	s.flush(ctx, domain.Event{
		Type:              domain.EventFeesUpdated,
		InitialFee:        fees.Initial,
		RenewFeePerPeriod: fees.RenewPerPeriod,
	})
	return nil
}

func (s *registrarService) Withdraw(ctx context.Context, to, caller domain.Account) (amount uint64, err error) {
	defer func() { observe("withdraw", err) }()

	ctx, done, err := s.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer done()

	if aerr := s.requireAdmin(ctx, caller); aerr != nil {
		return 0, aerr
	}
	if to.IsZero() {
		return 0, fmt.Errorf("withdraw: destination account required")
	}

	held, err := s.vault.Held(ctx)
	if err != nil {
		return 0, fmt.Errorf("withdraw: read custody balance: %w", err)
	}
	escrow, err := s.repo.EscrowTotal(ctx)
	if err != nil {
		return 0, fmt.Errorf("withdraw: read outstanding escrow: %w", err)
	}
	if held < escrow {
		return 0, fmt.Errorf("withdraw: custody %d below outstanding escrow %d", held, escrow)
	}

	// Outstanding bid escrow is owed to bidders and is never swept.
	residual := held - escrow
	if residual == 0 {
		return 0, nil
	}
	if rerr := s.vault.Release(ctx, to, residual); rerr != nil {
		return 0, fmt.Errorf("withdraw: release: %w", rerr)
	}

	s.flush(ctx, domain.Event{
		Type:   domain.EventTreasurySwept,
		To:     to,
		Amount: residual,
	})
	return residual, nil
}

func (s *registrarService) Resolve(ctx context.Context, name string) (target domain.Account, err error) {
	defer func() { observe("resolve", err) }()

	key, _, err := domain.NormalizeName(name)
	if err != nil {
		return "", err
	}
	rec, err := s.repo.GetDomain(ctx, key)
	if err != nil {
		return "", fmt.Errorf("resolve: %w", err)
	}
	return rec.Target, nil
}

func (s *registrarService) DomainInfo(ctx context.Context, name string) (domain.DomainInfo, error) {
	key, folded, err := domain.NormalizeName(name)
	if err != nil {
		return domain.DomainInfo{}, err
	}
	rec, err := s.repo.GetDomain(ctx, key)
	if err != nil {
		return domain.DomainInfo{}, fmt.Errorf("domain info: %w", err)
	}
	if rec.Name == "" {
		rec.Name = folded
	}
	return s.info(key, rec, s.now().Unix()), nil
}

func (s *registrarService) ListByOwner(ctx context.Context, owner domain.Account) ([]domain.DomainSummary, error) {
	if owner.IsZero() {
		return nil, nil
	}
	sums, err := s.repo.ListDomainsByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	now := s.now().Unix()
	for i := range sums {
		sums[i].Status = domain.Record{Owner: owner, Expiry: sums[i].Expiry}.StatusAt(now)
	}
	return sums, nil
}

func (s *registrarService) Events(ctx context.Context, name string, limit int) ([]domain.Event, error) {
	key, _, err := domain.NormalizeName(name)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	evs, err := s.repo.ListEvents(ctx, key, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return evs, nil
}

func (s *registrarService) Fees(ctx context.Context) (domain.Fees, error) {
	return s.repo.GetFees(ctx)
}

func (s *registrarService) HealthCheck(ctx context.Context) map[string]error {
	health := make(map[string]error, 2)
	health["repository"] = s.repo.Ping(ctx)
	_, verr := s.vault.Held(ctx)
	health["vault"] = verr
	return health
}

func (s *registrarService) requireAdmin(ctx context.Context, caller domain.Account) error {
	ok, err := s.gate.IsAdmin(ctx, caller)
	if err != nil {
		return fmt.Errorf("admin check: %w", err)
	}
	if !ok {
		return domain.ErrNotAdmin
	}
	return nil
}

// rollback restores the pre-operation record, then returns payment still in
// custody to the payer. Compensation failures join the original error.
func (s *registrarService) rollback(ctx context.Context, err error, key domain.NameKey, snapshot domain.Record, payer domain.Account, refund uint64) error {
	if rerr := s.repo.SaveDomain(ctx, key, snapshot); rerr != nil {
		err = errors.Join(err, fmt.Errorf("rollback: restore record: %w", rerr))
	}
	return s.refund(ctx, err, payer, refund)
}

// refund returns collected payment to the payer of a failed operation.
func (s *registrarService) refund(ctx context.Context, err error, payer domain.Account, amount uint64) error {
	if amount == 0 {
		return err
	}
	if rerr := s.vault.Release(ctx, payer, amount); rerr != nil {
		err = errors.Join(err, fmt.Errorf("rollback: return payment: %w", rerr))
	}
	return err
}

// flush stamps and delivers the events of a completed operation. Delivery is
// at-most-once: failures are logged, never surfaced, because the ledger
// change has already committed.
func (s *registrarService) flush(ctx context.Context, events ...domain.Event) {
	if s.sink == nil || len(events) == 0 {
		return
	}
	at := s.now()
	for i := range events {
		events[i].ID = uuid.New().String()
		events[i].At = at
	}
	if err := s.sink.Publish(ctx, events); err != nil {
		s.logger.Error("event publish failed", "count", len(events), "error", err)
	}
}

func (s *registrarService) info(key domain.NameKey, rec domain.Record, now int64) domain.DomainInfo {
	return domain.DomainInfo{
		Name:      rec.Name,
		Key:       key.String(),
		Owner:     rec.Owner,
		Target:    rec.Target,
		Expiry:    rec.Expiry,
		BidAmount: rec.Bid.Amount,
		Bidder:    rec.Bid.Bidder,
		BidID:     rec.Bid.ID,
		Status:    rec.StatusAt(now),
	}
}

func observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.OperationsTotal.WithLabelValues(op, outcome).Inc()
}

// mulFee computes periods*fee, reporting overflow instead of wrapping.
func mulFee(periods, fee uint64) (uint64, bool) {
	if periods == 0 || fee == 0 {
		return 0, true
	}
	total := periods * fee
	if total/periods != fee {
		return 0, false
	}
	return total, true
}

// extendExpiry adds periods renewal periods to the stored expiry, saturating
// at the int64 ceiling instead of wrapping.
func extendExpiry(expiry int64, periods uint64) int64 {
	const period = uint64(domain.RenewalPeriodSeconds)
	delta := periods * period
	if periods != 0 && delta/periods != period {
		return math.MaxInt64
	}
	if delta > math.MaxInt64 {
		return math.MaxInt64
	}
	d := int64(delta)
	if expiry > math.MaxInt64-d {
		return math.MaxInt64
	}
	return expiry + d
}
