package ledger

import (
	"errors"
	"fmt"

	fpmath "VaultQueue/internal/math"
)

// State-precondition errors for fulfillment.
var (
	ErrZeroFulfillment    = errors.New("nothing to fulfill")
	ErrInvalidSharePrice  = errors.New("share price must be positive")
	ErrWindowNotElapsed   = errors.New("reached an entry whose window has not elapsed")
	ErrInsufficientQueued = errors.New("requested more shares than are queued")
)

// FulfillResult reports the effect of one fulfillment step.
type FulfillResult struct {
	// SharesProcessed is the share total converted to redeemable.
	SharesProcessed int64

	// AmountReserved is the underlying-asset total reserved for those shares.
	AmountReserved int64

	// Drained is true when no eligible pending shares remain afterwards.
	Drained bool

	// Touched lists every entry id mutated, in head-to-tail order.
	Touched []int64
}

// Fulfill walks forward from head, converting up to sharesToProcess pending
// shares into redeemable shares and reserved asset at the given fixed-point
// share price (rounding down). The walk only consumes entries whose
// redemption window has elapsed at now; hitting an ineligible entry, or
// exhausting the queue, before sharesToProcess is satisfied fails the whole
// call with no state change. The caller must not request more than is
// currently eligible. Entries drained to zero pending are unlinked from the
// chain (their claimable balances stay in the arena). Fulfillment never
// reorders; it only walks and shrinks from the head.
func (l *Ledger) Fulfill(sharesToProcess, sharePrice, now int64) (*FulfillResult, error) {
	if sharesToProcess <= 0 {
		return nil, ErrZeroFulfillment
	}
	if sharePrice <= 0 {
		return nil, ErrInvalidSharePrice
	}

	// Validation pass: prove the request is satisfiable before mutating.
	remaining := sharesToProcess
	for id := l.head; id != 0 && remaining > 0; id = l.entries[id].Next {
		e := l.entries[id]
		if e.PendingShares == 0 {
			continue
		}
		if !e.EligibleAt(now, l.cfg.WindowDuration) {
			return nil, fmt.Errorf("%w: entry %d window %d", ErrWindowNotElapsed, id, e.CreatedAtWindow)
		}
		if e.PendingShares >= remaining {
			remaining = 0
		} else {
			remaining -= e.PendingShares
		}
	}
	if remaining > 0 {
		return nil, fmt.Errorf("%w: short by %d", ErrInsufficientQueued, remaining)
	}

	// Apply pass.
	result := &FulfillResult{}
	remaining = sharesToProcess
	for remaining > 0 {
		id := l.head
		e := l.entries[id]

		f := e.PendingShares
		if f > remaining {
			f = remaining
		}
		amount := fpmath.SharesToAsset(f, sharePrice)

		e.PendingShares -= f
		e.RedeemableShares += f
		e.WithdrawableAmount += amount
		l.totalPendingShares -= f
		l.totalReservedAsset += amount

		result.SharesProcessed += f
		result.AmountReserved += amount
		result.Touched = append(result.Touched, id)
		remaining -= f

		if e.PendingShares == 0 {
			if err := l.Unlink(id); err != nil {
				panic(fmt.Sprintf("FATAL: unlink drained entry %d: %v", id, err))
			}
		}
	}

	result.Drained = l.head == 0 || !l.entries[l.head].EligibleAt(now, l.cfg.WindowDuration)
	return result, nil
}

// EligibleShares sums the pending shares whose window has elapsed at now,
// walking from head until the first ineligible entry. Callers size their
// Fulfill requests with this.
func (l *Ledger) EligibleShares(now int64) int64 {
	var sum int64
	for id := l.head; id != 0; id = l.entries[id].Next {
		e := l.entries[id]
		if !e.EligibleAt(now, l.cfg.WindowDuration) {
			break
		}
		sum += e.PendingShares
	}
	return sum
}
