// Package domain contains the core business logic and entities for namereg.
package domain

import (
	"time"
)

// Contract constants. Expiry arithmetic runs on unix seconds, so each
// duration also has a second-resolution form.
const (
	// Term is the ownership duration granted by a registration or a sale.
	Term = 365 * 24 * time.Hour
	// GracePeriod is how long past expiry the owner keeps renewal rights.
	GracePeriod = 60 * 24 * time.Hour
	// RenewalPeriod is the unit of time one renewal fee buys.
	RenewalPeriod = 30 * 24 * time.Hour

	TermSeconds          = int64(Term / time.Second)
	GracePeriodSeconds   = int64(GracePeriod / time.Second)
	RenewalPeriodSeconds = int64(RenewalPeriod / time.Second)

	// MinNameLen is the minimum raw name length accepted by NormalizeName.
	MinNameLen = 3
)

// Account identifies a value-holding party. The empty string is the zero
// account: "never registered" as an owner, "no bidder" on a bid slot.
type Account string

// IsZero reports whether a is the zero account.
func (a Account) IsZero() bool { return a == "" }

// Bid is the single outstanding offer on a record. Amount 0 means the slot is
// empty; ID comes from a counter shared across all names, so bids are
// externally referenceable in placement order.
type Bid struct {
	Bidder Account `json:"bidder,omitempty"`
	Amount uint64  `json:"amount"`
	ID     uint64  `json:"id"`
}

// Active reports whether the slot holds a live offer.
func (b Bid) Active() bool { return b.Amount > 0 }

// Record is the ledger entry for one normalized name. The zero Record is the
// "never registered" state; ledger lookups for absent keys return it as-is.
type Record struct {
	Name   string  `json:"name"` // folded form, set on first registration
	Owner  Account `json:"owner,omitempty"`
	Target Account `json:"target,omitempty"`
	Expiry int64   `json:"expiry"` // unix seconds
	Bid    Bid     `json:"bid"`
}

// Status is the lifecycle state of a record at a point in time.
type Status string

const (
	// StatusFree means anyone may register the name.
	StatusFree Status = "free"
	// StatusActive means the owner holds full rights until expiry.
	StatusActive Status = "active"
	// StatusGrace means expiry has passed but the owner may still renew.
	StatusGrace Status = "grace"
)

// StatusAt reports the lifecycle state of the record at the given unix time:
// active while owned and unexpired, grace for GracePeriod past expiry, free
// otherwise.
func (r Record) StatusAt(now int64) Status {
	switch {
	case r.Owner.IsZero():
		return StatusFree
	case now <= r.Expiry:
		return StatusActive
	// Expiry can sit at the int64 ceiling after saturated renewals, so the
	// grace bound is compared on the now side.
	case now-GracePeriodSeconds <= r.Expiry:
		return StatusGrace
	default:
		return StatusFree
	}
}

// Fees are the registrar's two price parameters, in the same integer value
// unit as payments. Both must be positive once set.
type Fees struct {
	Initial        uint64 `json:"initial"`
	RenewPerPeriod uint64 `json:"renew_per_period"`
}

// DomainInfo is the full public view of one record.
type DomainInfo struct {
	Name      string  `json:"name,omitempty"`
	Key       string  `json:"key"`
	Owner     Account `json:"owner,omitempty"`
	Target    Account `json:"target,omitempty"`
	Expiry    int64   `json:"expiry"`
	BidAmount uint64  `json:"bid_amount"`
	Bidder    Account `json:"bidder,omitempty"`
	BidID     uint64  `json:"bid_id"`
	Status    Status  `json:"status"`
}

// DomainSummary is one row of an owner listing.
type DomainSummary struct {
	Name   string  `json:"name"`
	Key    string  `json:"key"`
	Target Account `json:"target,omitempty"`
	Expiry int64   `json:"expiry"`
	Status Status  `json:"status"`
}
