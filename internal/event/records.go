package event

import (
	"VaultQueue/internal/auth"
)

// Records are the outbound facts emitted after an event applies: consumed
// by the persistence worker (event-log rows), the projection worker, and
// off-record indexers via the outbound publisher.

// EntryChangeKind discriminates entry change records.
type EntryChangeKind int32

const (
	EntryCreated EntryChangeKind = iota
	EntryUpdated
	EntryRemoved
)

func (k EntryChangeKind) String() string {
	switch k {
	case EntryCreated:
		return "created"
	case EntryUpdated:
		return "updated"
	case EntryRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// EntryChange is the post-state of one redemption entry after an event.
type EntryChange struct {
	Kind               EntryChangeKind `json:"kind"`
	EntryID            int64           `json:"entry_id"`
	Controller         auth.Address    `json:"controller"`
	PendingShares      int64           `json:"pending_shares"`
	RedeemableShares   int64           `json:"redeemable_shares"`
	WithdrawableAmount int64           `json:"withdrawable_amount"`
	CreatedAtWindow    int64           `json:"created_at_window"`
}

// RoundCheckpoint is the splice engine's progress marker after a batch,
// written atomically with the batch's ledger mutations.
type RoundCheckpoint struct {
	RoundID                   int64 `json:"round_id"`
	AcceptedBidCount          int   `json:"accepted_bid_count"`
	ProcessedBidCount         int   `json:"processed_bid_count"`
	LastProcessedRedemptionID int64 `json:"last_processed_redemption_id"`
	RoundComplete             bool  `json:"round_complete"`
}

// BatchFees is the fee partition of one reorder batch. TotalFee has
// already been removed from the pending total; AdminFee accrues to the
// recipient, Burnt against the share supply.
type BatchFees struct {
	RoundID           int64        `json:"round_id"`
	TotalFee          int64        `json:"total_fee"`
	AdminFee          int64        `json:"admin_fee"`
	Burnt             int64        `json:"burnt"`
	AdminFeeRecipient auth.Address `json:"admin_fee_recipient"`
}

// RoundSettled records a settlement.
type RoundSettled struct {
	RoundID          int64 `json:"round_id"`
	SettledAt        int64 `json:"settled_at"`
	AcceptedBidCount int   `json:"accepted_bid_count"`
	NextRoundID      int64 `json:"next_round_id"`
}
