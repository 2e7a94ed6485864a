package auction

import (
	"errors"
	"fmt"

	"VaultQueue/internal/auth"
	"VaultQueue/internal/ledger"
)

// Validation and state-precondition errors. All reject atomically: a failed
// call leaves the registry and ledger untouched.
var (
	ErrWrongRound              = errors.New("round id does not match the current round")
	ErrRoundStillOpen          = errors.New("round bidding window has not closed")
	ErrRoundAlreadySettled     = errors.New("round is already settled")
	ErrPreviousRoundUnfinished = errors.New("previous round still has unprocessed bids")
	ErrBadSignature            = errors.New("bid signature does not authorize the entry controller")
	ErrFeeOutOfRange           = errors.New("bid fee outside configured bounds")
	ErrMisorderedBid           = errors.New("bid breaks canonical descending-fee order")
	ErrBidOutsideWindow        = errors.New("bid timestamp outside the round window")
	ErrZeroBidShares           = errors.New("bid must request a positive share count")
	ErrDuplicateBid            = errors.New("entry already has a bid this round")
	ErrStaleNonce              = errors.New("bid nonce does not match the entry's current nonce")
)

// Params configures the auction registry.
type Params struct {
	// RoundDuration is the bidding window length in seconds.
	RoundDuration int64

	// MinFeeBps and MaxFeeBps bound accepted bid fees.
	MinFeeBps int64
	MaxFeeBps int64

	// AdminFeeRateBps is the share of collected fees routed to the admin
	// recipient; the remainder is burnt.
	AdminFeeRateBps int64

	// AdminFeeRecipient receives the admin portion.
	AdminFeeRecipient auth.Address
}

// DefaultParams returns production defaults.
func DefaultParams() Params {
	return Params{
		RoundDuration:   24 * 60 * 60,
		MinFeeBps:       1,
		MaxFeeBps:       1000,
		AdminFeeRateBps: 1000,
	}
}

// Registry stores auction rounds and enforces their strict sequencing:
// exactly one round collects bids at a time, and round N+1 cannot settle
// while round N still has unprocessed bids.
//
// Not thread-safe: single logical writer per step, like the ledger.
type Registry struct {
	params Params

	rounds map[int64]*Round

	// currentRoundID is the round collecting (or awaiting posting of) bids.
	currentRoundID int64

	// settledRoundID is the most recently settled round, 0 if none.
	settledRoundID int64
}

// NewRegistry creates a registry with round 1 opening at genesis.
func NewRegistry(params Params, genesis int64) *Registry {
	r := &Registry{
		params: params,
		rounds: make(map[int64]*Round),
	}
	first := newRound(1, genesis, params.RoundDuration)
	r.rounds[first.ID] = first
	r.currentRoundID = first.ID
	return r
}

// Params returns the registry configuration.
func (reg *Registry) Params() Params { return reg.params }

// CurrentRoundID returns the round currently collecting bids.
func (reg *Registry) CurrentRoundID() int64 { return reg.currentRoundID }

// SettledRoundID returns the most recently settled round, 0 if none.
func (reg *Registry) SettledRoundID() int64 { return reg.settledRoundID }

// Round returns a round by id.
func (reg *Registry) Round(id int64) (*Round, bool) {
	r, ok := reg.rounds[id]
	return r, ok
}

// AcceptResult reports the outcome of a bid-posting batch.
type AcceptResult struct {
	Accepted int
	Skipped  int // bids against already-drained entries
}

// AcceptBids validates and appends a batch of posted bids to the current
// round's canonical order. Bids are checked in submission order; the batch
// is atomic: any invalid bid rejects the whole call with no state change.
// Bids whose target entry has zero pending shares, or was retired from the
// arena after the bid was collected, are silently skipped.
// The canonical ordering rule (fee no greater than the previous accepted
// bid's; equal fees in ascending timestamp order) spans posting batches:
// the submitter bears responsibility for ordering, misordered bids are
// rejected rather than re-sorted.
func (reg *Registry) AcceptBids(l *ledger.Ledger, roundID int64, bids []Bid, now int64) (*AcceptResult, error) {
	if roundID != reg.currentRoundID {
		return nil, fmt.Errorf("%w: current is %d, got %d", ErrWrongRound, reg.currentRoundID, roundID)
	}
	r := reg.rounds[roundID]
	if now < r.ClosesAt {
		return nil, fmt.Errorf("%w: closes at %d", ErrRoundStillOpen, r.ClosesAt)
	}

	// Ordering context continues from the already-accepted tail.
	var prevFee, prevTs int64
	havePrev := len(r.Bids) > 0
	if havePrev {
		last := r.Bids[len(r.Bids)-1]
		prevFee, prevTs = last.FeeBps, last.Timestamp
	}

	// Validate the whole batch against overlay state before committing.
	accepted := make([]Bid, 0, len(bids))
	nonceOverlay := make(map[int64]uint64)
	bidOverlay := make(map[int64]bool)
	skipped := 0

	for i, b := range bids {
		// An entry retired between off-record collection and posting is
		// the fully-drained case, treated the same as zero pending shares.
		entry, ok := l.Entry(b.RedemptionID)
		if !ok || entry.PendingShares == 0 {
			skipped++
			continue
		}
		if b.RoundID != roundID {
			return nil, fmt.Errorf("%w: bid %d signed for round %d", ErrWrongRound, i, b.RoundID)
		}
		signer, err := b.Signer()
		if err != nil || signer != entry.Controller {
			return nil, fmt.Errorf("%w: bid %d entry %d", ErrBadSignature, i, b.RedemptionID)
		}
		if b.FeeBps < reg.params.MinFeeBps || b.FeeBps > reg.params.MaxFeeBps {
			return nil, fmt.Errorf("%w: bid %d fee %d", ErrFeeOutOfRange, i, b.FeeBps)
		}
		if havePrev {
			if b.FeeBps > prevFee || (b.FeeBps == prevFee && b.Timestamp < prevTs) {
				return nil, fmt.Errorf("%w: bid %d fee %d ts %d after fee %d ts %d",
					ErrMisorderedBid, i, b.FeeBps, b.Timestamp, prevFee, prevTs)
			}
		}
		if b.Timestamp < r.OpensAt || b.Timestamp >= r.ClosesAt {
			return nil, fmt.Errorf("%w: bid %d ts %d window [%d,%d)", ErrBidOutsideWindow, i, b.Timestamp, r.OpensAt, r.ClosesAt)
		}
		if b.RequestedShares <= 0 {
			return nil, fmt.Errorf("%w: bid %d", ErrZeroBidShares, i)
		}
		if bidOverlay[b.RedemptionID] || r.hasBidFor(b.RedemptionID) {
			return nil, fmt.Errorf("%w: bid %d entry %d", ErrDuplicateBid, i, b.RedemptionID)
		}
		expectedNonce, seen := nonceOverlay[b.RedemptionID]
		if !seen {
			expectedNonce = r.Nonces[b.RedemptionID]
		}
		if b.Nonce != expectedNonce {
			return nil, fmt.Errorf("%w: bid %d entry %d expected %d got %d",
				ErrStaleNonce, i, b.RedemptionID, expectedNonce, b.Nonce)
		}

		accepted = append(accepted, b)
		nonceOverlay[b.RedemptionID] = expectedNonce + 1
		bidOverlay[b.RedemptionID] = true
		prevFee, prevTs = b.FeeBps, b.Timestamp
		havePrev = true
	}

	// Commit.
	r.Bids = append(r.Bids, accepted...)
	for id, n := range nonceOverlay {
		r.Nonces[id] = n
	}

	return &AcceptResult{Accepted: len(accepted), Skipped: skipped}, nil
}

// SettleResult reports a settlement.
type SettleResult struct {
	RoundID     int64
	SettledAt   int64
	BidCount    int
	NextRoundID int64
}

// Settle closes out the current round's bid collection and opens the next
// round. Only permitted once the bidding window has passed, and only while
// no earlier round has unprocessed bids; rounds are applied strictly one
// at a time.
func (reg *Registry) Settle(roundID, now int64) (*SettleResult, error) {
	if roundID != reg.currentRoundID {
		return nil, fmt.Errorf("%w: current is %d, got %d", ErrWrongRound, reg.currentRoundID, roundID)
	}
	r := reg.rounds[roundID]
	if now < r.ClosesAt {
		return nil, fmt.Errorf("%w: closes at %d", ErrRoundStillOpen, r.ClosesAt)
	}
	if r.SettledAt != 0 {
		return nil, fmt.Errorf("%w: round %d", ErrRoundAlreadySettled, roundID)
	}
	if reg.settledRoundID != 0 {
		prev := reg.rounds[reg.settledRoundID]
		if !prev.FullyProcessed() {
			return nil, fmt.Errorf("%w: round %d at %d/%d",
				ErrPreviousRoundUnfinished, prev.ID, prev.ProcessedBidCount, len(prev.Bids))
		}
	}

	r.SettledAt = now
	reg.settledRoundID = roundID

	next := newRound(roundID+1, now, reg.params.RoundDuration)
	reg.rounds[next.ID] = next
	reg.currentRoundID = next.ID

	return &SettleResult{
		RoundID:     roundID,
		SettledAt:   now,
		BidCount:    len(r.Bids),
		NextRoundID: next.ID,
	}, nil
}
