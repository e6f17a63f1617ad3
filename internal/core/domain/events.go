package domain

import (
	"time"
)

// EventType names the observable facts the registrar emits.
type EventType string

const (
	EventRegistered    EventType = "registered"
	EventRenewed       EventType = "renewed"
	EventResolverSet   EventType = "resolver_set"
	EventBidPlaced     EventType = "bid_placed"
	EventBidAccepted   EventType = "bid_accepted"
	EventBidRejected   EventType = "bid_rejected"
	EventFeesUpdated   EventType = "fees_updated"
	EventTreasurySwept EventType = "treasury_swept"
)

// Event is one observable fact about the registry, emitted only after the
// operation that produced it has fully succeeded. Fields not meaningful for a
// given type stay zero and are elided from the JSON form.
type Event struct {
	ID                string    `json:"id"`
	Type              EventType `json:"type"`
	Name              string    `json:"name,omitempty"` // folded form
	Key               string    `json:"key,omitempty"`  // hex NameKey
	Owner             Account   `json:"owner,omitempty"`
	Bidder            Account   `json:"bidder,omitempty"`
	Target            Account   `json:"target,omitempty"`
	To                Account   `json:"to,omitempty"`
	Amount            uint64    `json:"amount,omitempty"`
	Expiry            int64     `json:"expiry,omitempty"`
	Periods           uint64    `json:"periods,omitempty"`
	BidID             uint64    `json:"bid_id,omitempty"`
	InitialFee        uint64    `json:"initial_fee,omitempty"`
	RenewFeePerPeriod uint64    `json:"renew_fee_per_period,omitempty"`
	At                time.Time `json:"at"`
}
