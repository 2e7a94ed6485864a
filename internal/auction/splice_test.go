package auction_test

import (
	"errors"
	"testing"

	"VaultQueue/internal/auction"
	"VaultQueue/internal/ledger"
)

// settleWithBids posts the bids after the round closes and settles it,
// leaving the round ready for reorder batches.
func settleWithBids(t *testing.T, reg *auction.Registry, l *ledger.Ledger, bids []auction.Bid) {
	t.Helper()
	if _, err := reg.AcceptBids(l, 1, bids, afterClose); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := reg.Settle(1, afterClose); err != nil {
		t.Fatalf("settle: %v", err)
	}
}

func chainOf(t *testing.T, l *ledger.Ledger) []int64 {
	t.Helper()
	if err := l.CheckIntegrity(); err != nil {
		t.Fatalf("integrity: %v", err)
	}
	return l.ChainIDs()
}

func sameChain(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ============================================================================
// Test: Reorder, full-claim moves
// ============================================================================

func TestReorder_FullClaimMovesToHead(t *testing.T) {
	l, ids := newQueueWithEntries(t, 1, 2, 3)
	reg := auction.NewRegistry(testParams(), 0)

	settleWithBids(t, reg, l, []auction.Bid{
		signedBid(3, 1, ids[2], 10_000_000, 100, 0, 10),
	})

	res, err := reg.Reorder(l, 1, 10)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}

	// 100 bps of 10.0 shares = 0.1 shares fee.
	if res.TotalFee != 100_000 {
		t.Errorf("total fee: got %d, want 100_000", res.TotalFee)
	}
	if len(res.Steps) != 1 || res.Steps[0].Outcome != auction.OutcomeMoved {
		t.Errorf("steps: %+v", res.Steps)
	}
	if !res.RoundComplete {
		t.Error("single-bid round should complete in one batch")
	}

	want := []int64{ids[2], ids[0], ids[1]}
	if got := chainOf(t, l); !sameChain(got, want) {
		t.Errorf("chain: got %v, want %v", got, want)
	}

	// The winner pays the fee out of its pending claim.
	e, _ := l.Entry(ids[2])
	if e.PendingShares != 9_900_000 {
		t.Errorf("winner pending: got %d, want 9_900_000", e.PendingShares)
	}
	if l.TotalPendingShares() != 30_000_000-100_000 {
		t.Errorf("total pending: got %d", l.TotalPendingShares())
	}
}

func TestReorder_WinnersPlaceInCanonicalOrder(t *testing.T) {
	l, ids := newQueueWithEntries(t, 1, 2, 3, 4)
	reg := auction.NewRegistry(testParams(), 0)

	settleWithBids(t, reg, l, []auction.Bid{
		signedBid(4, 1, ids[3], 10_000_000, 300, 0, 10),
		signedBid(2, 1, ids[1], 10_000_000, 200, 0, 10),
	})

	if _, err := reg.Reorder(l, 1, 10); err != nil {
		t.Fatalf("reorder: %v", err)
	}

	// Highest fee first, then each later winner right after the previous.
	want := []int64{ids[3], ids[1], ids[0], ids[2]}
	if got := chainOf(t, l); !sameChain(got, want) {
		t.Errorf("chain: got %v, want %v", got, want)
	}
}

func TestReorder_WinnerAlreadyAtTarget(t *testing.T) {
	l, ids := newQueueWithEntries(t, 1, 2)
	reg := auction.NewRegistry(testParams(), 0)

	// The head bids on itself: no pointer movement, fee still charged.
	settleWithBids(t, reg, l, []auction.Bid{
		signedBid(1, 1, ids[0], 10_000_000, 100, 0, 10),
	})

	if _, err := reg.Reorder(l, 1, 10); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	want := []int64{ids[0], ids[1]}
	if got := chainOf(t, l); !sameChain(got, want) {
		t.Errorf("chain: got %v, want %v", got, want)
	}
	e, _ := l.Entry(ids[0])
	if e.PendingShares != 9_900_000 {
		t.Errorf("pending: got %d, want 9_900_000", e.PendingShares)
	}
}

// ============================================================================
// Test: Reorder, partial-claim splits
// ============================================================================

func TestReorder_PartialClaimSplits(t *testing.T) {
	l, ids := newQueueWithEntries(t, 1, 2)
	reg := auction.NewRegistry(testParams(), 0)

	settleWithBids(t, reg, l, []auction.Bid{
		signedBid(2, 1, ids[1], 4_000_000, 100, 0, 10),
	})

	res, err := reg.Reorder(l, 1, 10)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if len(res.Steps) != 1 || res.Steps[0].Outcome != auction.OutcomeSplit {
		t.Fatalf("steps: %+v", res.Steps)
	}

	winner := res.Steps[0].WinnerID
	if winner == ids[1] {
		t.Fatal("split should mint a new entry")
	}

	// New entry at the head carrying the won portion minus the fee;
	// the original keeps its slot, shrunk by the full won portion.
	want := []int64{winner, ids[0], ids[1]}
	if got := chainOf(t, l); !sameChain(got, want) {
		t.Errorf("chain: got %v, want %v", got, want)
	}

	w, _ := l.Entry(winner)
	if w.PendingShares != 4_000_000-40_000 {
		t.Errorf("winner pending: got %d, want 3_960_000", w.PendingShares)
	}
	orig, _ := l.Entry(ids[1])
	if orig.PendingShares != 6_000_000 {
		t.Errorf("original pending: got %d, want 6_000_000", orig.PendingShares)
	}

	// The split entry inherits controller and window.
	if w.Controller != orig.Controller {
		t.Error("split entry should keep the controller")
	}
	if w.CreatedAtWindow != orig.CreatedAtWindow {
		t.Error("split entry should keep the creation window")
	}
}

// ============================================================================
// Test: Reorder, batching and resumability
// ============================================================================

func TestReorder_BatchedMatchesSingleShot(t *testing.T) {
	run := func(t *testing.T, batchSize int) ([]int64, int64, int, int64) {
		l, ids := newQueueWithEntries(t, 1, 2, 3, 4)
		reg := auction.NewRegistry(testParams(), 0)

		settleWithBids(t, reg, l, []auction.Bid{
			signedBid(4, 1, ids[3], 10_000_000, 300, 0, 10),
			signedBid(3, 1, ids[2], 3_000_000, 200, 0, 10),
			signedBid(2, 1, ids[1], 10_000_000, 100, 0, 10),
		})

		var totalFee int64
		for {
			res, err := reg.Reorder(l, 1, batchSize)
			if err != nil {
				t.Fatalf("reorder: %v", err)
			}
			totalFee += res.TotalFee
			if res.RoundComplete {
				break
			}
		}
		r, ok := reg.Round(1)
		if !ok {
			t.Fatal("round 1 missing")
		}
		return chainOf(t, l), totalFee, r.ProcessedBidCount, r.LastProcessedRedemptionID
	}

	oneShot, oneFee, oneCount, oneLast := run(t, 10)
	stepped, stepFee, stepCount, stepLast := run(t, 1)

	if !sameChain(oneShot, stepped) {
		t.Errorf("chain diverges: one-shot %v, batched %v", oneShot, stepped)
	}
	if oneFee != stepFee {
		t.Errorf("fees diverge: one-shot %d, batched %d", oneFee, stepFee)
	}
	if oneCount != stepCount || oneLast != stepLast {
		t.Errorf("checkpoints diverge: one-shot (%d, %d), batched (%d, %d)",
			oneCount, oneLast, stepCount, stepLast)
	}
}

func TestReorder_CheckpointSurvivesDrainedWinner(t *testing.T) {
	l, ids := newQueueWithEntries(t, 1, 2, 3, 4)
	reg := auction.NewRegistry(testParams(), 0)

	settleWithBids(t, reg, l, []auction.Bid{
		signedBid(3, 1, ids[2], 10_000_000, 300, 0, 10),
		signedBid(4, 1, ids[3], 10_000_000, 200, 0, 10),
	})

	res, err := reg.Reorder(l, 1, 1)
	if err != nil {
		t.Fatalf("batch 1: %v", err)
	}
	if res.RoundComplete {
		t.Fatal("first batch should leave one bid unprocessed")
	}

	// Drain the placed winner out of the chain between batches.
	first, _ := l.Entry(ids[2])
	if _, err := l.Fulfill(first.PendingShares, 1_000_000, 10); err != nil {
		t.Fatalf("fulfill: %v", err)
	}

	// The remaining winner resumes at the new head.
	if _, err := reg.Reorder(l, 1, 1); err != nil {
		t.Fatalf("batch 2: %v", err)
	}
	want := []int64{ids[3], ids[0], ids[1]}
	if got := chainOf(t, l); !sameChain(got, want) {
		t.Errorf("chain: got %v, want %v", got, want)
	}
}

func TestReorder_SkipsDrainedTarget(t *testing.T) {
	l, ids := newQueueWithEntries(t, 1, 2, 3)
	reg := auction.NewRegistry(testParams(), 0)

	settleWithBids(t, reg, l, []auction.Bid{
		signedBid(3, 1, ids[2], 10_000_000, 300, 0, 10),
		signedBid(2, 1, ids[1], 10_000_000, 200, 0, 10),
	})

	// Entries 1 and 2 drain before processing starts.
	if _, err := l.Fulfill(20_000_000, 1_000_000, 10); err != nil {
		t.Fatalf("fulfill: %v", err)
	}

	res, err := reg.Reorder(l, 1, 10)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if len(res.Steps) != 2 {
		t.Fatalf("steps: %+v", res.Steps)
	}
	if res.Steps[0].Outcome != auction.OutcomeMoved || res.Steps[1].Outcome != auction.OutcomeSkipped {
		t.Errorf("outcomes: %v %v", res.Steps[0].Outcome, res.Steps[1].Outcome)
	}
	if !res.RoundComplete {
		t.Error("skipped bids still advance the checkpoint")
	}
}

// ============================================================================
// Test: Reorder, fee accounting
// ============================================================================

func TestReorder_FeeSplit(t *testing.T) {
	l, ids := newQueueWithEntries(t, 1, 2)
	reg := auction.NewRegistry(testParams(), 0)

	settleWithBids(t, reg, l, []auction.Bid{
		signedBid(2, 1, ids[1], 10_000_000, 100, 0, 10),
	})

	res, err := reg.Reorder(l, 1, 10)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	// 0.1 shares total, 10% to admin, remainder burnt.
	if res.TotalFee != 100_000 || res.AdminFee != 10_000 || res.Burnt != 90_000 {
		t.Errorf("fees: total=%d admin=%d burnt=%d", res.TotalFee, res.AdminFee, res.Burnt)
	}
	if res.AdminFee+res.Burnt != res.TotalFee {
		t.Error("fee split leaks")
	}
	if res.AdminFeeRecipient != testParams().AdminFeeRecipient {
		t.Errorf("recipient: %s", res.AdminFeeRecipient)
	}

	r, _ := reg.Round(1)
	if r.TotalFeeCollected != 100_000 {
		t.Errorf("round fee total: %d", r.TotalFeeCollected)
	}
}

// ============================================================================
// Test: Reorder, rejections
// ============================================================================

func TestReorder_Rejections(t *testing.T) {
	l, ids := newQueueWithEntries(t, 1, 2)
	reg := auction.NewRegistry(testParams(), 0)

	// Round 1 not yet settled.
	if _, err := reg.Reorder(l, 1, 10); !errors.Is(err, auction.ErrRoundNotSettled) {
		t.Errorf("unsettled: got %v", err)
	}

	settleWithBids(t, reg, l, []auction.Bid{
		signedBid(2, 1, ids[1], 10_000_000, 100, 0, 10),
	})

	if _, err := reg.Reorder(l, 2, 10); !errors.Is(err, auction.ErrRoundNotSettled) {
		t.Errorf("wrong round: got %v", err)
	}
	if _, err := reg.Reorder(l, 1, 0); !errors.Is(err, auction.ErrZeroBatchSize) {
		t.Errorf("zero batch: got %v", err)
	}

	if _, err := reg.Reorder(l, 1, 10); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if _, err := reg.Reorder(l, 1, 10); !errors.Is(err, auction.ErrRoundFullyProcessed) {
		t.Errorf("fully processed: got %v", err)
	}
}

func TestReorder_EmptyRoundRejects(t *testing.T) {
	l, _ := newQueueWithEntries(t, 1)
	reg := auction.NewRegistry(testParams(), 0)

	if _, err := reg.Settle(1, afterClose); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if _, err := reg.Reorder(l, 1, 10); !errors.Is(err, auction.ErrNoAcceptedBids) {
		t.Errorf("got %v, want ErrNoAcceptedBids", err)
	}
}
