package auction_test

import (
	"errors"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"VaultQueue/internal/auction"
	"VaultQueue/internal/auth"
	"VaultQueue/internal/ledger"
)

const (
	roundLen   = 100
	afterClose = roundLen // first round closes at genesis + roundLen
)

func keyFor(seed byte) *secp256k1.PrivateKey {
	var raw [32]byte
	raw[31] = seed
	return secp256k1.PrivKeyFromBytes(raw[:])
}

func addrOf(seed byte) auth.Address {
	return auth.PubKeyToAddress(keyFor(seed).PubKey())
}

func testParams() auction.Params {
	return auction.Params{
		RoundDuration:     roundLen,
		MinFeeBps:         1,
		MaxFeeBps:         1_000,
		AdminFeeRateBps:   1_000,
		AdminFeeRecipient: auth.MustParseAddress("0xadadadadadadadadadadadadadadadadadadadad"),
	}
}

func newQueueWithEntries(t *testing.T, seeds ...byte) (*ledger.Ledger, []int64) {
	t.Helper()
	l := ledger.New(ledger.Config{
		MinRedemptionShares: 1_000_000,
		MaxEntriesPerOwner:  8,
		WindowDuration:      1, // windows elapse immediately in these tests
		SharesAheadScanCap:  256,
	})
	ids := make([]int64, 0, len(seeds))
	for _, s := range seeds {
		id, err := l.Append(addrOf(s), 10_000_000, 0)
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		ids = append(ids, id)
	}
	return l, ids
}

func signedBid(seed byte, roundID, entryID, shares, feeBps int64, nonce uint64, ts int64) auction.Bid {
	b := auction.Bid{
		RoundID:         roundID,
		RedemptionID:    entryID,
		RequestedShares: shares,
		FeeBps:          feeBps,
		Nonce:           nonce,
		Timestamp:       ts,
	}
	b.Signature = auth.SignBid(keyFor(seed), b.Digest())
	return b
}

// ============================================================================
// Test: AcceptBids
// ============================================================================

func TestAcceptBids_CanonicalOrder(t *testing.T) {
	l, ids := newQueueWithEntries(t, 1, 2, 3)
	reg := auction.NewRegistry(testParams(), 0)

	bids := []auction.Bid{
		signedBid(2, 1, ids[1], 5_000_000, 300, 0, 10),
		signedBid(3, 1, ids[2], 5_000_000, 200, 0, 5),
		signedBid(1, 1, ids[0], 5_000_000, 200, 0, 20), // equal fee, later ts
	}

	res, err := reg.AcceptBids(l, 1, bids, afterClose)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if res.Accepted != 3 || res.Skipped != 0 {
		t.Errorf("result: %+v", res)
	}

	r, _ := reg.Round(1)
	if r.AcceptedBidCount() != 3 {
		t.Fatalf("bid count: %d", r.AcceptedBidCount())
	}
}

func TestAcceptBids_RejectsWhileOpen(t *testing.T) {
	l, ids := newQueueWithEntries(t, 1)
	reg := auction.NewRegistry(testParams(), 0)

	bids := []auction.Bid{signedBid(1, 1, ids[0], 1_000_000, 100, 0, 10)}
	_, err := reg.AcceptBids(l, 1, bids, afterClose-1)
	if !errors.Is(err, auction.ErrRoundStillOpen) {
		t.Errorf("got %v, want ErrRoundStillOpen", err)
	}
}

func TestAcceptBids_RejectsAscendingFee(t *testing.T) {
	l, ids := newQueueWithEntries(t, 1, 2)
	reg := auction.NewRegistry(testParams(), 0)

	bids := []auction.Bid{
		signedBid(1, 1, ids[0], 1_000_000, 100, 0, 10),
		signedBid(2, 1, ids[1], 1_000_000, 200, 0, 10),
	}
	_, err := reg.AcceptBids(l, 1, bids, afterClose)
	if !errors.Is(err, auction.ErrMisorderedBid) {
		t.Errorf("got %v, want ErrMisorderedBid", err)
	}

	// Atomic rejection: the valid first bid must not have been kept.
	r, _ := reg.Round(1)
	if r.AcceptedBidCount() != 0 {
		t.Errorf("partial batch accepted: %d bids", r.AcceptedBidCount())
	}
}

func TestAcceptBids_RejectsEqualFeeDescendingTimestamp(t *testing.T) {
	l, ids := newQueueWithEntries(t, 1, 2)
	reg := auction.NewRegistry(testParams(), 0)

	bids := []auction.Bid{
		signedBid(1, 1, ids[0], 1_000_000, 100, 0, 20),
		signedBid(2, 1, ids[1], 1_000_000, 100, 0, 10),
	}
	_, err := reg.AcceptBids(l, 1, bids, afterClose)
	if !errors.Is(err, auction.ErrMisorderedBid) {
		t.Errorf("got %v, want ErrMisorderedBid", err)
	}
}

func TestAcceptBids_OrderingSpansBatches(t *testing.T) {
	l, ids := newQueueWithEntries(t, 1, 2)
	reg := auction.NewRegistry(testParams(), 0)

	first := []auction.Bid{signedBid(1, 1, ids[0], 1_000_000, 100, 0, 10)}
	if _, err := reg.AcceptBids(l, 1, first, afterClose); err != nil {
		t.Fatalf("first batch: %v", err)
	}

	second := []auction.Bid{signedBid(2, 1, ids[1], 1_000_000, 200, 0, 10)}
	_, err := reg.AcceptBids(l, 1, second, afterClose)
	if !errors.Is(err, auction.ErrMisorderedBid) {
		t.Errorf("got %v, want ErrMisorderedBid", err)
	}
}

func TestAcceptBids_RejectsWrongSigner(t *testing.T) {
	l, ids := newQueueWithEntries(t, 1)
	reg := auction.NewRegistry(testParams(), 0)

	// Signed by a key that does not control the entry.
	bids := []auction.Bid{signedBid(9, 1, ids[0], 1_000_000, 100, 0, 10)}
	_, err := reg.AcceptBids(l, 1, bids, afterClose)
	if !errors.Is(err, auction.ErrBadSignature) {
		t.Errorf("got %v, want ErrBadSignature", err)
	}
}

func TestAcceptBids_RejectsTamperedTerms(t *testing.T) {
	l, ids := newQueueWithEntries(t, 1)
	reg := auction.NewRegistry(testParams(), 0)

	b := signedBid(1, 1, ids[0], 1_000_000, 100, 0, 10)
	b.FeeBps = 50 // altered after signing
	_, err := reg.AcceptBids(l, 1, []auction.Bid{b}, afterClose)
	if !errors.Is(err, auction.ErrBadSignature) {
		t.Errorf("got %v, want ErrBadSignature", err)
	}
}

func TestAcceptBids_RejectsFeeOutOfRange(t *testing.T) {
	l, ids := newQueueWithEntries(t, 1)
	reg := auction.NewRegistry(testParams(), 0)

	bids := []auction.Bid{signedBid(1, 1, ids[0], 1_000_000, 1_001, 0, 10)}
	_, err := reg.AcceptBids(l, 1, bids, afterClose)
	if !errors.Is(err, auction.ErrFeeOutOfRange) {
		t.Errorf("got %v, want ErrFeeOutOfRange", err)
	}
}

func TestAcceptBids_RejectsDuplicateEntry(t *testing.T) {
	l, ids := newQueueWithEntries(t, 1)
	reg := auction.NewRegistry(testParams(), 0)

	bids := []auction.Bid{
		signedBid(1, 1, ids[0], 1_000_000, 200, 0, 10),
		signedBid(1, 1, ids[0], 1_000_000, 100, 1, 20),
	}
	_, err := reg.AcceptBids(l, 1, bids, afterClose)
	if !errors.Is(err, auction.ErrDuplicateBid) {
		t.Errorf("got %v, want ErrDuplicateBid", err)
	}
}

func TestAcceptBids_RejectsStaleNonce(t *testing.T) {
	l, ids := newQueueWithEntries(t, 1)
	reg := auction.NewRegistry(testParams(), 0)

	bids := []auction.Bid{signedBid(1, 1, ids[0], 1_000_000, 100, 1, 10)}
	_, err := reg.AcceptBids(l, 1, bids, afterClose)
	if !errors.Is(err, auction.ErrStaleNonce) {
		t.Errorf("got %v, want ErrStaleNonce", err)
	}
}

func TestAcceptBids_RejectsTimestampOutsideWindow(t *testing.T) {
	l, ids := newQueueWithEntries(t, 1)
	reg := auction.NewRegistry(testParams(), 0)

	bids := []auction.Bid{signedBid(1, 1, ids[0], 1_000_000, 100, 0, roundLen)}
	_, err := reg.AcceptBids(l, 1, bids, afterClose)
	if !errors.Is(err, auction.ErrBidOutsideWindow) {
		t.Errorf("got %v, want ErrBidOutsideWindow", err)
	}
}

func TestAcceptBids_SkipsDrainedEntry(t *testing.T) {
	l, ids := newQueueWithEntries(t, 1, 2)
	reg := auction.NewRegistry(testParams(), 0)

	// Drain the first entry entirely before bids are posted.
	if _, err := l.Fulfill(10_000_000, 1_000_000, 10); err != nil {
		t.Fatalf("fulfill: %v", err)
	}

	bids := []auction.Bid{
		signedBid(1, 1, ids[0], 1_000_000, 200, 0, 10),
		signedBid(2, 1, ids[1], 1_000_000, 100, 0, 10),
	}
	res, err := reg.AcceptBids(l, 1, bids, afterClose)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if res.Accepted != 1 || res.Skipped != 1 {
		t.Errorf("result: %+v", res)
	}
}

func TestAcceptBids_SkipsRetiredEntry(t *testing.T) {
	l, ids := newQueueWithEntries(t, 1, 2)
	reg := auction.NewRegistry(testParams(), 0)

	// Fulfill the first entry and claim everything so it is retired from
	// the arena before the batch is posted.
	if _, err := l.Fulfill(10_000_000, 1_000_000, 10); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if _, err := l.Withdraw(addrOf(1), 10_000_000); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if _, ok := l.Entry(ids[0]); ok {
		t.Fatal("entry still in arena after full claim")
	}

	bids := []auction.Bid{
		signedBid(2, 1, ids[1], 1_000_000, 200, 0, 10),
		signedBid(1, 1, ids[0], 1_000_000, 100, 0, 10),
	}
	res, err := reg.AcceptBids(l, 1, bids, afterClose)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if res.Accepted != 1 || res.Skipped != 1 {
		t.Errorf("result: %+v", res)
	}
}

func TestAcceptBids_SkipsUnknownEntry(t *testing.T) {
	l, ids := newQueueWithEntries(t, 1)
	reg := auction.NewRegistry(testParams(), 0)

	bids := []auction.Bid{
		signedBid(1, 1, ids[0], 1_000_000, 200, 0, 10),
		signedBid(1, 1, 99, 1_000_000, 100, 0, 10),
	}
	res, err := reg.AcceptBids(l, 1, bids, afterClose)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if res.Accepted != 1 || res.Skipped != 1 {
		t.Errorf("result: %+v", res)
	}
}

func TestAcceptBids_RejectsWrongRound(t *testing.T) {
	l, ids := newQueueWithEntries(t, 1)
	reg := auction.NewRegistry(testParams(), 0)

	bids := []auction.Bid{signedBid(1, 2, ids[0], 1_000_000, 100, 0, 10)}
	_, err := reg.AcceptBids(l, 2, bids, afterClose)
	if !errors.Is(err, auction.ErrWrongRound) {
		t.Errorf("got %v, want ErrWrongRound", err)
	}
}

// ============================================================================
// Test: Settle
// ============================================================================

func TestSettle_OpensNextRound(t *testing.T) {
	l, ids := newQueueWithEntries(t, 1)
	reg := auction.NewRegistry(testParams(), 0)

	bids := []auction.Bid{signedBid(1, 1, ids[0], 1_000_000, 100, 0, 10)}
	if _, err := reg.AcceptBids(l, 1, bids, afterClose); err != nil {
		t.Fatalf("accept: %v", err)
	}

	res, err := reg.Settle(1, afterClose)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if res.BidCount != 1 || res.NextRoundID != 2 {
		t.Errorf("result: %+v", res)
	}
	if reg.CurrentRoundID() != 2 || reg.SettledRoundID() != 1 {
		t.Errorf("registry: current=%d settled=%d", reg.CurrentRoundID(), reg.SettledRoundID())
	}

	// The next round's window starts at settlement time.
	next, _ := reg.Round(2)
	if next.OpensAt != afterClose || next.ClosesAt != afterClose+roundLen {
		t.Errorf("next round window: [%d,%d)", next.OpensAt, next.ClosesAt)
	}
}

func TestSettle_RejectsWhileOpen(t *testing.T) {
	reg := auction.NewRegistry(testParams(), 0)
	_, err := reg.Settle(1, afterClose-1)
	if !errors.Is(err, auction.ErrRoundStillOpen) {
		t.Errorf("got %v, want ErrRoundStillOpen", err)
	}
}

func TestSettle_RejectsWhilePreviousUnprocessed(t *testing.T) {
	l, ids := newQueueWithEntries(t, 1)
	reg := auction.NewRegistry(testParams(), 0)

	bids := []auction.Bid{signedBid(1, 1, ids[0], 1_000_000, 100, 0, 10)}
	if _, err := reg.AcceptBids(l, 1, bids, afterClose); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := reg.Settle(1, afterClose); err != nil {
		t.Fatalf("settle 1: %v", err)
	}

	// Round 1's bid was never reordered in; round 2 cannot settle.
	_, err := reg.Settle(2, afterClose+roundLen)
	if !errors.Is(err, auction.ErrPreviousRoundUnfinished) {
		t.Errorf("got %v, want ErrPreviousRoundUnfinished", err)
	}
}

func TestSettle_EmptyRoundNeverBlocks(t *testing.T) {
	reg := auction.NewRegistry(testParams(), 0)

	// Rounds with no bids settle and chain indefinitely.
	now := int64(afterClose)
	for round := int64(1); round <= 3; round++ {
		if _, err := reg.Settle(round, now); err != nil {
			t.Fatalf("settle %d: %v", round, err)
		}
		now += roundLen
	}
	if reg.CurrentRoundID() != 4 {
		t.Errorf("current round: %d", reg.CurrentRoundID())
	}
}

// ============================================================================
// Test: Round state
// ============================================================================

func TestRoundState_Lifecycle(t *testing.T) {
	l, ids := newQueueWithEntries(t, 1)
	reg := auction.NewRegistry(testParams(), 0)
	r, _ := reg.Round(1)

	if got := r.State(10); got != auction.RoundOpen {
		t.Errorf("open: got %v", got)
	}
	if got := r.State(afterClose); got != auction.RoundClosed {
		t.Errorf("closed: got %v", got)
	}

	bids := []auction.Bid{signedBid(1, 1, ids[0], 1_000_000, 100, 0, 10)}
	if _, err := reg.AcceptBids(l, 1, bids, afterClose); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := reg.Settle(1, afterClose); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if got := r.State(afterClose); got != auction.RoundProcessing {
		t.Errorf("processing: got %v", got)
	}

	if _, err := reg.Reorder(l, 1, 10); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if got := r.State(afterClose); got != auction.RoundSettled {
		t.Errorf("settled: got %v", got)
	}
}
