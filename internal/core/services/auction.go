package services

import (
	"context"
	"fmt"
	"math"

	"github.com/regmarket/namereg/internal/core/domain"
	"github.com/regmarket/namereg/internal/infrastructure/metrics"
)

func (s *registrarService) PlaceBid(ctx context.Context, name string, amount uint64, caller domain.Account) (bid domain.Bid, err error) {
	defer func() { observe("place_bid", err) }()

	key, folded, err := domain.NormalizeName(name)
	if err != nil {
		return domain.Bid{}, err
	}
	if caller.IsZero() {
		return domain.Bid{}, fmt.Errorf("place bid: caller account required")
	}

	ctx, done, err := s.enter(ctx)
	if err != nil {
		return domain.Bid{}, err
	}
	defer done()

	prev, err := s.repo.GetDomain(ctx, key)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("place bid: load record: %w", err)
	}
	now := s.now().Unix()
	// Free records, whether never registered or past grace, accumulate no
	// escrow, and owners do not bid against themselves.
	if prev.StatusAt(now) == domain.StatusFree || caller == prev.Owner {
		return domain.Bid{}, domain.ErrDomainTaken
	}
	if amount <= prev.Bid.Amount {
		required := prev.Bid.Amount + 1
		if required == 0 {
			required = math.MaxUint64
		}
		return domain.Bid{}, &domain.FeeTooLowError{Required: required}
	}

	id, err := s.repo.NextBidID(ctx)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("place bid: next bid id: %w", err)
	}

	if cerr := s.vault.Collect(ctx, caller, amount); cerr != nil {
		return domain.Bid{}, fmt.Errorf("place bid: collect escrow: %w", cerr)
	}

	// The slot is cleared on the ledger before the superseded escrow leaves
	// custody, and the new bid commits only after that refund completes.
	cleared := prev
	cleared.Bid = domain.Bid{}
	if serr := s.repo.SaveDomain(ctx, key, cleared); serr != nil {
		serr = fmt.Errorf("place bid: clear bid slot: %w", serr)
		return domain.Bid{}, s.refund(ctx, serr, caller, amount)
	}
	if prev.Bid.Active() {
		if rerr := s.vault.Release(ctx, prev.Bid.Bidder, prev.Bid.Amount); rerr != nil {
			rerr = fmt.Errorf("place bid: refund superseded bid: %w", rerr)
			return domain.Bid{}, s.rollback(ctx, rerr, key, prev, caller, amount)
		}
		metrics.EscrowOutstanding.Sub(float64(prev.Bid.Amount))
	}

	next := cleared
	next.Bid = domain.Bid{Bidder: caller, Amount: amount, ID: id}
	if serr := s.repo.SaveDomain(ctx, key, next); serr != nil {
		// The superseded escrow is already back with its bidder; restoring
		// the old bid would record an obligation with no backing value. The
		// slot stays cleared and the new escrow is returned.
		serr = fmt.Errorf("place bid: record bid: %w", serr)
		return domain.Bid{}, s.refund(ctx, serr, caller, amount)
	}
	metrics.EscrowOutstanding.Add(float64(amount))

	s.flush(ctx, domain.Event{
		Type:   domain.EventBidPlaced,
		Name:   folded,
		Key:    key.String(),
		Bidder: caller,
		Amount: amount,
		BidID:  id,
	})
	return next.Bid, nil
}

func (s *registrarService) AcceptBid(ctx context.Context, name string, caller domain.Account) (info domain.DomainInfo, err error) {
	defer func() { observe("accept_bid", err) }()

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
		return domain.DomainInfo{}, fmt.Errorf("accept bid: load record: %w", err)
	}
	if caller.IsZero() || prev.Owner != caller {
		return domain.DomainInfo{}, domain.ErrNotDomainOwner
	}
	if !prev.Bid.Active() {
		return domain.DomainInfo{}, domain.ErrNoActiveBid
	}

	// Ownership transfers and the term restarts before any value moves.
	now := s.now().Unix()
	rec := prev
	rec.Owner = prev.Bid.Bidder
	rec.Expiry = now + domain.TermSeconds
	rec.Bid = domain.Bid{}
	if serr := s.repo.SaveDomain(ctx, key, rec); serr != nil {
		return domain.DomainInfo{}, fmt.Errorf("accept bid: save record: %w", serr)
	}

	if rerr := s.vault.Release(ctx, caller, prev.Bid.Amount); rerr != nil {
		rerr = fmt.Errorf("accept bid: pay seller: %w", rerr)
		return domain.DomainInfo{}, s.rollback(ctx, rerr, key, prev, "", 0)
	}
	metrics.EscrowOutstanding.Sub(float64(prev.Bid.Amount))

	s.flush(ctx, domain.Event{
		Type:   domain.EventBidAccepted,
		Name:   folded,
		Key:    key.String(),
		Owner:  rec.Owner,
		Amount: prev.Bid.Amount,
		BidID:  prev.Bid.ID,
	})
	return s.info(key, rec, now), nil
}

func (s *registrarService) RejectBid(ctx context.Context, name string, caller domain.Account) (err error) {
	defer func() { observe("reject_bid", err) }()

	key, folded, err := domain.NormalizeName(name)
	if err != nil {
		return err
	}

	ctx, done, err := s.enter(ctx)
	if err != nil {
		return err
	}
	defer done()

	prev, err := s.repo.GetDomain(ctx, key)
	if err != nil {
		return fmt.Errorf("reject bid: load record: %w", err)
	}
	if caller.IsZero() || prev.Owner != caller {
		return domain.ErrNotDomainOwner
	}
	if !prev.Bid.Active() {
		return domain.ErrNoActiveBid
	}

	rec := prev
	rec.Bid = domain.Bid{}
	if serr := s.repo.SaveDomain(ctx, key, rec); serr != nil {
		return fmt.Errorf("reject bid: save record: %w", serr)
	}

	if rerr := s.vault.Release(ctx, prev.Bid.Bidder, prev.Bid.Amount); rerr != nil {
		rerr = fmt.Errorf("reject bid: refund bidder: %w", rerr)
		return s.rollback(ctx, rerr, key, prev, "", 0)
	}
	metrics.EscrowOutstanding.Sub(float64(prev.Bid.Amount))

	s.flush(ctx, domain.Event{
		Type:  domain.EventBidRejected,
		Name:  folded,
		Key:   key.String(),
		BidID: prev.Bid.ID,
	})
	return nil
}
