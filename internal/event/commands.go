package event

import (
	"time"

	"github.com/google/uuid"

	"VaultQueue/internal/auction"
	"VaultQueue/internal/auth"
)

// RedemptionRequested queues a new redemption for a controller.
// Idempotency key: request_id.
type RedemptionRequested struct {
	RequestID  uuid.UUID    `json:"request_id"`
	Sender     auth.Address `json:"sender"`     // capability-checked caller
	Controller auth.Address `json:"controller"` // beneficial owner of the new entry
	Shares     int64        `json:"shares"`     // fixed-point, shares scale
	Sequence   int64        `json:"sequence"`
	Timestamp  time.Time    `json:"timestamp"`  // versioned input timestamp (NOT wall-clock)
}

func (e *RedemptionRequested) IdempotencyKey() string { return e.RequestID.String() }
func (e *RedemptionRequested) EventType() EventType   { return EventTypeRedemptionRequested }
func (e *RedemptionRequested) Caller() auth.Address   { return e.Sender }
func (e *RedemptionRequested) SourceSequence() int64  { return e.Sequence }

// FulfillmentTriggered drains the queue head against available liquidity.
// SharePrice is a versioned input from the external NAV feed; the engine
// never computes it. Idempotency key: request_id.
type FulfillmentTriggered struct {
	RequestID       uuid.UUID    `json:"request_id"`
	Sender          auth.Address `json:"sender"`
	SharesToProcess int64        `json:"shares_to_process"`
	SharePrice      int64        `json:"share_price"`       // fixed-point, price scale
	Sequence        int64        `json:"sequence"`
	Timestamp       time.Time    `json:"timestamp"`
}

func (e *FulfillmentTriggered) IdempotencyKey() string { return e.RequestID.String() }
func (e *FulfillmentTriggered) EventType() EventType   { return EventTypeFulfillmentTriggered }
func (e *FulfillmentTriggered) Caller() auth.Address   { return e.Sender }
func (e *FulfillmentTriggered) SourceSequence() int64  { return e.Sequence }

// BidBatchPosted posts a batch of signed bids to the current round after
// its window has closed. Idempotency key: batch_id.
type BidBatchPosted struct {
	BatchID   uuid.UUID     `json:"batch_id"`
	Sender    auth.Address  `json:"sender"`
	RoundID   int64         `json:"round_id"`
	Bids      []auction.Bid `json:"bids"`
	Sequence  int64         `json:"sequence"`
	Timestamp time.Time     `json:"timestamp"`
}

func (e *BidBatchPosted) IdempotencyKey() string { return e.BatchID.String() }
func (e *BidBatchPosted) EventType() EventType   { return EventTypeBidBatchPosted }
func (e *BidBatchPosted) Caller() auth.Address   { return e.Sender }
func (e *BidBatchPosted) SourceSequence() int64  { return e.Sequence }

// RoundSettleRequested settles the current round and opens the next.
// Idempotency key: request_id.
type RoundSettleRequested struct {
	RequestID uuid.UUID    `json:"request_id"`
	Sender    auth.Address `json:"sender"`
	RoundID   int64        `json:"round_id"`
	Sequence  int64        `json:"sequence"`
	Timestamp time.Time    `json:"timestamp"`
}

func (e *RoundSettleRequested) IdempotencyKey() string { return e.RequestID.String() }
func (e *RoundSettleRequested) EventType() EventType   { return EventTypeRoundSettleRequested }
func (e *RoundSettleRequested) Caller() auth.Address   { return e.Sender }
func (e *RoundSettleRequested) SourceSequence() int64  { return e.Sequence }

// ReorderBatchRequested runs one bounded splice batch against the most
// recently settled round. Idempotency key: request_id.
type ReorderBatchRequested struct {
	RequestID uuid.UUID    `json:"request_id"`
	Sender    auth.Address `json:"sender"`
	RoundID   int64        `json:"round_id"`
	BatchSize int          `json:"batch_size"`
	Sequence  int64        `json:"sequence"`
	Timestamp time.Time    `json:"timestamp"`
}

func (e *ReorderBatchRequested) IdempotencyKey() string { return e.RequestID.String() }
func (e *ReorderBatchRequested) EventType() EventType   { return EventTypeReorderBatchRequested }
func (e *ReorderBatchRequested) Caller() auth.Address   { return e.Sender }
func (e *ReorderBatchRequested) SourceSequence() int64  { return e.Sequence }

// WithdrawalClaimed consumes a controller's withdrawable asset balance.
// Self-authorized: the sender must be the controller.
// Idempotency key: request_id.
type WithdrawalClaimed struct {
	RequestID  uuid.UUID    `json:"request_id"`
	Controller auth.Address `json:"controller"`
	Amount     int64        `json:"amount"`     // fixed-point, asset scale
	Sequence   int64        `json:"sequence"`
	Timestamp  time.Time    `json:"timestamp"`
}

func (e *WithdrawalClaimed) IdempotencyKey() string { return e.RequestID.String() }
func (e *WithdrawalClaimed) EventType() EventType   { return EventTypeWithdrawalClaimed }
func (e *WithdrawalClaimed) Caller() auth.Address   { return e.Controller }
func (e *WithdrawalClaimed) SourceSequence() int64  { return e.Sequence }

// SharesRedeemed consumes a controller's redeemable share balance.
// Self-authorized: the sender must be the controller.
// Idempotency key: request_id.
type SharesRedeemed struct {
	RequestID  uuid.UUID    `json:"request_id"`
	Controller auth.Address `json:"controller"`
	Shares     int64        `json:"shares"`
	Sequence   int64        `json:"sequence"`
	Timestamp  time.Time    `json:"timestamp"`
}

func (e *SharesRedeemed) IdempotencyKey() string { return e.RequestID.String() }
func (e *SharesRedeemed) EventType() EventType   { return EventTypeSharesRedeemed }
func (e *SharesRedeemed) Caller() auth.Address   { return e.Controller }
func (e *SharesRedeemed) SourceSequence() int64  { return e.Sequence }
