package ledger

import (
	"VaultQueue/internal/auth"
)

// RedemptionEntry is one holder's queued claim to convert shares back to the
// underlying asset. Entries form a doubly-linked chain stored as an
// id-indexed arena: Prev/Next hold entry ids, 0 is the sentinel for
// head/tail ends. An entry that has been fully fulfilled is unlinked from
// the chain but stays in the arena until its claimable balances are consumed.
type RedemptionEntry struct {
	ID   int64 `json:"id"`
	Prev int64 `json:"prev"`
	Next int64 `json:"next"`

	// PendingShares is the unfulfilled claim. Fixed-point, shares scale.
	PendingShares int64 `json:"pending_shares"`

	// RedeemableShares have been fulfilled but not yet claimed.
	RedeemableShares int64 `json:"redeemable_shares"`

	// WithdrawableAmount is the underlying-asset amount reserved for the
	// redeemable shares. Fixed-point, asset scale.
	WithdrawableAmount int64 `json:"withdrawable_amount"`

	// Controller is the beneficial owner; used for claim authorization,
	// bid signature checks, and the per-owner index.
	Controller auth.Address `json:"controller"`

	// CreatedAtWindow is the start (unix seconds) of the redemption window
	// the entry was created in. The entry becomes eligible for fulfillment
	// only once that window has fully elapsed.
	CreatedAtWindow int64 `json:"created_at_window"`
}

// IsDead reports whether the entry carries no claim at all and can be
// dropped from the arena and its owner's index.
func (e *RedemptionEntry) IsDead() bool {
	return e.PendingShares == 0 && e.RedeemableShares == 0 && e.WithdrawableAmount == 0
}

// EligibleAt reports whether the entry's redemption window has elapsed at
// the given time.
func (e *RedemptionEntry) EligibleAt(now, windowDuration int64) bool {
	return e.CreatedAtWindow+windowDuration <= now
}
