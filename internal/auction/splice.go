package auction

import (
	"errors"
	"fmt"

	"VaultQueue/internal/auth"
	"VaultQueue/internal/ledger"
	fpmath "VaultQueue/internal/math"
)

// State-precondition errors for reorder batches.
var (
	ErrRoundNotSettled     = errors.New("round is not the most recently settled one")
	ErrZeroBatchSize       = errors.New("batch size must be positive")
	ErrNoAcceptedBids      = errors.New("round has no accepted bids")
	ErrRoundFullyProcessed = errors.New("round has no unprocessed bids")
	ErrEmptyQueue          = errors.New("redemption queue is empty")
)

// SpliceOutcome tags what one bid did to the queue.
type SpliceOutcome int32

const (
	// OutcomeSkipped: the target entry had no pending shares left.
	OutcomeSkipped SpliceOutcome = iota

	// OutcomeMoved: the whole entry was relocated to the target slot.
	OutcomeMoved

	// OutcomeSplit: the entry stayed put, shrunk; a new entry carrying the
	// won portion was created at the target slot.
	OutcomeSplit
)

func (o SpliceOutcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeMoved:
		return "moved"
	case OutcomeSplit:
		return "split"
	default:
		return "unknown"
	}
}

// SpliceStep records the effect of one bid during a reorder batch.
type SpliceStep struct {
	BidIndex     int
	Outcome      SpliceOutcome
	RedemptionID int64 // bid target
	WinnerID     int64 // entry placed at the target slot (0 when skipped)
	MovedShares  int64
	Fee          int64
}

// ReorderResult reports one processed batch.
type ReorderResult struct {
	RoundID int64
	Steps   []SpliceStep

	// Fee accounting for this batch. The ledger-wide pending total has
	// already been reduced by TotalFee; the caller burns Burnt from the
	// share supply and credits AdminFee to AdminFeeRecipient.
	TotalFee          int64
	AdminFee          int64
	Burnt             int64
	AdminFeeRecipient auth.Address

	// Checkpoint after the batch.
	ProcessedBidCount         int
	LastProcessedRedemptionID int64
	RoundComplete             bool
}

// Reorder consumes up to batchSize accepted bids from the most recently
// settled round, in canonical order, splicing winning entries toward the
// front of the queue. The first winner of a round becomes the new head;
// every later winner is placed immediately after the previous one. Progress
// is checkpointed on the round so independent invocations resume exactly
// where the last one stopped.
//
// All failure modes are checked before any mutation, so a failed call has
// no effect.
func (reg *Registry) Reorder(l *ledger.Ledger, roundID int64, batchSize int) (*ReorderResult, error) {
	if roundID == 0 || roundID != reg.settledRoundID {
		return nil, fmt.Errorf("%w: settled is %d, got %d", ErrRoundNotSettled, reg.settledRoundID, roundID)
	}
	if batchSize <= 0 {
		return nil, ErrZeroBatchSize
	}
	r := reg.rounds[roundID]
	if len(r.Bids) == 0 {
		return nil, fmt.Errorf("%w: round %d", ErrNoAcceptedBids, roundID)
	}
	if r.FullyProcessed() {
		return nil, fmt.Errorf("%w: round %d", ErrRoundFullyProcessed, roundID)
	}
	if l.Head() == 0 {
		return nil, ErrEmptyQueue
	}

	// Resolve the resume position. Before the first winner this round the
	// target slot is the head itself; afterwards it is the slot just after
	// the last placed winner.
	var prev, next int64
	if r.LastProcessedRedemptionID == 0 {
		prev, next = 0, l.Head()
	} else if e, ok := l.Entry(r.LastProcessedRedemptionID); ok && (e.Prev != 0 || e.Next != 0 || l.Head() == e.ID) {
		prev, next = e.ID, e.Next
	} else {
		// The checkpoint entry was drained out of the chain between
		// batches; remaining winners go to the current head.
		prev, next = 0, l.Head()
	}

	end := r.ProcessedBidCount + batchSize
	if end > len(r.Bids) {
		end = len(r.Bids)
	}

	result := &ReorderResult{
		RoundID:           roundID,
		AdminFeeRecipient: reg.params.AdminFeeRecipient,
	}

	for i := r.ProcessedBidCount; i < end; i++ {
		bid := r.Bids[i]
		step := SpliceStep{BidIndex: i, RedemptionID: bid.RedemptionID}

		entry, ok := l.Entry(bid.RedemptionID)
		if !ok || entry.PendingShares == 0 {
			step.Outcome = OutcomeSkipped
			result.Steps = append(result.Steps, step)
			continue
		}

		moved := entry.PendingShares
		if moved > bid.RequestedShares {
			moved = bid.RequestedShares
		}
		fee := fpmath.FeeOf(moved, bid.FeeBps)

		var winner int64
		if moved == entry.PendingShares {
			// Full claim: the entry itself moves; the fee comes out of
			// what the holder receives sooner.
			l.ReducePending(entry.ID, fee)

			atTarget := next == entry.ID
			if !atTarget {
				if err := l.Unlink(entry.ID); err != nil {
					panic(fmt.Sprintf("FATAL: splice unlink %d: %v", entry.ID, err))
				}
				if err := l.Link(entry.ID, prev, next); err != nil {
					panic(fmt.Sprintf("FATAL: splice link %d: %v", entry.ID, err))
				}
			}
			winner = entry.ID
			step.Outcome = OutcomeMoved
		} else {
			// Partial claim: the original entry keeps its position, only
			// shrunk; a new entry carries the won portion, fee removed.
			l.ReducePending(entry.ID, moved)
			winner = l.NewDetachedEntry(entry.Controller, moved-fee, entry.CreatedAtWindow)
			if err := l.Link(winner, prev, next); err != nil {
				panic(fmt.Sprintf("FATAL: splice link split %d: %v", winner, err))
			}
			step.Outcome = OutcomeSplit
		}

		step.WinnerID = winner
		step.MovedShares = moved
		step.Fee = fee
		result.Steps = append(result.Steps, step)
		result.TotalFee += fee

		w, _ := l.Entry(winner)
		prev, next = winner, w.Next
		r.LastProcessedRedemptionID = winner
	}

	r.ProcessedBidCount = end
	r.TotalFeeCollected += result.TotalFee

	// Per-batch fee split: the admin portion is paid out, the remainder is
	// burnt against the share supply, accruing pro rata to everyone still
	// queued.
	result.AdminFee, result.Burnt = fpmath.SplitFee(result.TotalFee, reg.params.AdminFeeRateBps)
	result.ProcessedBidCount = r.ProcessedBidCount
	result.LastProcessedRedemptionID = r.LastProcessedRedemptionID
	result.RoundComplete = r.FullyProcessed()

	return result, nil
}
