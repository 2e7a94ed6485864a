package event

import (
	"time"

	"VaultQueue/internal/auth"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeRedemptionRequested
	EventTypeFulfillmentTriggered
	EventTypeBidBatchPosted
	EventTypeRoundSettleRequested
	EventTypeReorderBatchRequested
	EventTypeWithdrawalClaimed
	EventTypeSharesRedeemed
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all command payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// Caller returns the address the command executes as; capability
	// gating happens against it.
	Caller() auth.Address

	// SourceSequence returns upstream ordering key
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeRedemptionRequested:
		return "RedemptionRequested"
	case EventTypeFulfillmentTriggered:
		return "FulfillmentTriggered"
	case EventTypeBidBatchPosted:
		return "BidBatchPosted"
	case EventTypeRoundSettleRequested:
		return "RoundSettleRequested"
	case EventTypeReorderBatchRequested:
		return "ReorderBatchRequested"
	case EventTypeWithdrawalClaimed:
		return "WithdrawalClaimed"
	case EventTypeSharesRedeemed:
		return "SharesRedeemed"
	default:
		return "Unknown"
	}
}
