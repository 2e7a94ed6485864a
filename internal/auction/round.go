package auction

// RoundState is the lifecycle phase of an auction round.
type RoundState int32

const (
	// RoundOpen: the bidding window is running; bids are collected
	// off-record and not yet visible to the registry.
	RoundOpen RoundState = iota

	// RoundClosed: the window has passed; signed bids may be posted.
	RoundClosed

	// RoundProcessing: the round is settled and its bids are being applied
	// to the queue in bounded batches.
	RoundProcessing

	// RoundSettled: every accepted bid has been processed.
	RoundSettled
)

func (s RoundState) String() string {
	switch s {
	case RoundOpen:
		return "open"
	case RoundClosed:
		return "closed"
	case RoundProcessing:
		return "processing"
	case RoundSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// Round is one auction cycle: a bidding window, the canonical accepted-bid
// order fixed at posting time, and the processing checkpoint that lets the
// splice engine resume across bounded invocations.
type Round struct {
	ID       int64 `json:"id"`
	OpensAt  int64 `json:"opens_at"`
	ClosesAt int64 `json:"closes_at"`

	// Bids holds accepted bids in canonical order: descending fee, ties
	// broken by ascending submission timestamp. Fixed at acceptance;
	// never re-sorted during processing.
	Bids []Bid `json:"bids"`

	// Nonces maps redemption id to the next expected bid nonce this round.
	Nonces map[int64]uint64 `json:"nonces"`

	// Checkpoint: progress of the splice engine through Bids. Written
	// atomically with each batch's ledger mutations.
	ProcessedBidCount         int   `json:"processed_bid_count"`
	LastProcessedRedemptionID int64 `json:"last_processed_redemption_id"`

	// TotalFeeCollected accumulates fees across processing batches.
	TotalFeeCollected int64 `json:"total_fee_collected"`

	// SettledAt is the settlement timestamp, 0 while unsettled.
	SettledAt int64 `json:"settled_at"`
}

func newRound(id, opensAt, duration int64) *Round {
	return &Round{
		ID:       id,
		OpensAt:  opensAt,
		ClosesAt: opensAt + duration,
		Nonces:   make(map[int64]uint64),
	}
}

// AcceptedBidCount returns the number of bids in canonical order.
func (r *Round) AcceptedBidCount() int { return len(r.Bids) }

// FullyProcessed reports whether every accepted bid has been applied.
func (r *Round) FullyProcessed() bool { return r.ProcessedBidCount >= len(r.Bids) }

// State derives the lifecycle phase at the given time.
func (r *Round) State(now int64) RoundState {
	switch {
	case r.SettledAt == 0 && now < r.ClosesAt:
		return RoundOpen
	case r.SettledAt == 0:
		return RoundClosed
	case !r.FullyProcessed():
		return RoundProcessing
	default:
		return RoundSettled
	}
}

// hasBidFor reports whether an accepted bid already targets redemptionID.
func (r *Round) hasBidFor(redemptionID int64) bool {
	for i := range r.Bids {
		if r.Bids[i].RedemptionID == redemptionID {
			return true
		}
	}
	return false
}
