package ledger

import (
	"errors"
	"fmt"

	"VaultQueue/internal/auth"
	fpmath "VaultQueue/internal/math"
)

// State-precondition errors for claims.
var (
	ErrZeroClaim             = errors.New("claim must be positive")
	ErrInsufficientClaimable = errors.New("insufficient claimable balance")
)

// ClaimResult reports what a withdraw or redeem consumed.
type ClaimResult struct {
	// SharesConsumed is the redeemable-share total consumed.
	SharesConsumed int64

	// AmountPaid is the underlying-asset total released to the controller.
	AmountPaid int64

	// Touched lists every entry id mutated, oldest first.
	Touched []int64

	// Retired lists entry ids dropped from the arena.
	Retired []int64
}

// Claimable returns the controller's aggregate redeemable shares and
// withdrawable amount across all of its entries.
func (l *Ledger) Claimable(controller auth.Address) (shares, amount int64) {
	for _, id := range l.byOwner[controller] {
		e := l.entries[id]
		shares += e.RedeemableShares
		amount += e.WithdrawableAmount
	}
	return shares, amount
}

// Withdraw consumes up to amount of the controller's withdrawable asset,
// oldest entry first, releasing redeemable shares proportionally. Fails
// without state change if the controller's aggregate withdrawable amount is
// insufficient.
func (l *Ledger) Withdraw(controller auth.Address, amount int64) (*ClaimResult, error) {
	if amount <= 0 {
		return nil, ErrZeroClaim
	}
	if _, total := l.Claimable(controller); total < amount {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrInsufficientClaimable, total, amount)
	}

	result := &ClaimResult{}
	remaining := amount
	for _, id := range l.OwnerEntries(controller) {
		if remaining == 0 {
			break
		}
		e := l.entries[id]
		if e.WithdrawableAmount == 0 {
			continue
		}

		take := e.WithdrawableAmount
		shares := e.RedeemableShares
		if take > remaining {
			take = remaining
			// Proportional share release, rounded down: dust shares stay
			// attached to the remaining withdrawable balance.
			shares = fpmath.ProportionOf(e.RedeemableShares, take, e.WithdrawableAmount)
		}

		e.WithdrawableAmount -= take
		e.RedeemableShares -= shares
		l.totalReservedAsset -= take

		result.AmountPaid += take
		result.SharesConsumed += shares
		result.Touched = append(result.Touched, id)
		remaining -= take

		if e.IsDead() {
			l.retire(e)
			result.Retired = append(result.Retired, id)
		}
	}
	return result, nil
}

// Redeem consumes up to shares of the controller's redeemable shares,
// oldest entry first, releasing withdrawable asset proportionally. Fails
// without state change if the controller's aggregate redeemable shares are
// insufficient.
func (l *Ledger) Redeem(controller auth.Address, shares int64) (*ClaimResult, error) {
	if shares <= 0 {
		return nil, ErrZeroClaim
	}
	if total, _ := l.Claimable(controller); total < shares {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrInsufficientClaimable, total, shares)
	}

	result := &ClaimResult{}
	remaining := shares
	for _, id := range l.OwnerEntries(controller) {
		if remaining == 0 {
			break
		}
		e := l.entries[id]
		if e.RedeemableShares == 0 {
			continue
		}

		take := e.RedeemableShares
		amount := e.WithdrawableAmount
		if take > remaining {
			take = remaining
			amount = fpmath.ProportionOf(e.WithdrawableAmount, take, e.RedeemableShares)
		}

		e.RedeemableShares -= take
		e.WithdrawableAmount -= amount
		l.totalReservedAsset -= amount

		result.SharesConsumed += take
		result.AmountPaid += amount
		result.Touched = append(result.Touched, id)
		remaining -= take

		if e.IsDead() {
			l.retire(e)
			result.Retired = append(result.Retired, id)
		}
	}
	return result, nil
}
