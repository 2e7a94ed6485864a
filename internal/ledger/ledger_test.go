package ledger_test

import (
	"errors"
	"testing"

	"VaultQueue/internal/auth"
	"VaultQueue/internal/ledger"
)

var (
	alice = auth.MustParseAddress("0x1111111111111111111111111111111111111111")
	bob   = auth.MustParseAddress("0x2222222222222222222222222222222222222222")
	carol = auth.MustParseAddress("0x3333333333333333333333333333333333333333")
)

func testConfig() ledger.Config {
	return ledger.Config{
		MinRedemptionShares: 1_000_000,
		MaxEntriesPerOwner:  3,
		WindowDuration:      86_400,
		SharesAheadScanCap:  4,
	}
}

func mustAppend(t *testing.T, l *ledger.Ledger, controller auth.Address, shares, now int64) int64 {
	t.Helper()
	id, err := l.Append(controller, shares, now)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	return id
}

func checkChain(t *testing.T, l *ledger.Ledger, want ...int64) {
	t.Helper()
	got := l.ChainIDs()
	if len(got) != len(want) {
		t.Fatalf("chain length: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chain order: got %v, want %v", got, want)
		}
	}
	if err := l.CheckIntegrity(); err != nil {
		t.Fatalf("integrity: %v", err)
	}
}

// ============================================================================
// Test: Append
// ============================================================================

func TestAppend_FIFOOrder(t *testing.T) {
	l := ledger.New(testConfig())

	a := mustAppend(t, l, alice, 1_000_000, 0)
	b := mustAppend(t, l, bob, 2_000_000, 0)
	c := mustAppend(t, l, carol, 3_000_000, 0)

	checkChain(t, l, a, b, c)
	if l.Head() != a || l.Tail() != c {
		t.Errorf("head=%d tail=%d, want %d %d", l.Head(), l.Tail(), a, c)
	}
	if l.TotalPendingShares() != 6_000_000 {
		t.Errorf("total pending: got %d, want 6_000_000", l.TotalPendingShares())
	}
}

func TestAppend_BelowMinimumQuantum(t *testing.T) {
	l := ledger.New(testConfig())

	_, err := l.Append(alice, 999_999, 0)
	if !errors.Is(err, ledger.ErrBelowMinimumQuantum) {
		t.Errorf("got %v, want ErrBelowMinimumQuantum", err)
	}
	if l.EntryCount() != 0 {
		t.Error("rejected append should not allocate")
	}
}

func TestAppend_PerOwnerCap(t *testing.T) {
	l := ledger.New(testConfig())

	for i := 0; i < 3; i++ {
		mustAppend(t, l, alice, 1_000_000, 0)
	}
	_, err := l.Append(alice, 1_000_000, 0)
	if !errors.Is(err, ledger.ErrTooManyEntries) {
		t.Errorf("got %v, want ErrTooManyEntries", err)
	}

	// Other controllers are unaffected.
	mustAppend(t, l, bob, 1_000_000, 0)
}

func TestAppend_WindowBucketing(t *testing.T) {
	l := ledger.New(testConfig())

	// 100_000 seconds falls in the second 86_400-second window.
	id := mustAppend(t, l, alice, 1_000_000, 100_000)
	e, ok := l.Entry(id)
	if !ok {
		t.Fatal("entry missing")
	}
	if e.CreatedAtWindow != 86_400 {
		t.Errorf("window: got %d, want 86_400", e.CreatedAtWindow)
	}
}

// ============================================================================
// Test: Link / Unlink
// ============================================================================

func TestUnlink_Middle(t *testing.T) {
	l := ledger.New(testConfig())
	a := mustAppend(t, l, alice, 1_000_000, 0)
	b := mustAppend(t, l, bob, 1_000_000, 0)
	c := mustAppend(t, l, carol, 1_000_000, 0)

	if err := l.Unlink(b); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	checkChain(t, l, a, c)

	// Balances survive detachment.
	if l.TotalPendingShares() != 3_000_000 {
		t.Errorf("total pending changed on unlink: %d", l.TotalPendingShares())
	}
}

func TestUnlink_Head(t *testing.T) {
	l := ledger.New(testConfig())
	a := mustAppend(t, l, alice, 1_000_000, 0)
	b := mustAppend(t, l, bob, 1_000_000, 0)

	if err := l.Unlink(a); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	checkChain(t, l, b)
	if l.Head() != b {
		t.Errorf("head: got %d, want %d", l.Head(), b)
	}
}

func TestUnlink_OnlyEntry(t *testing.T) {
	l := ledger.New(testConfig())
	a := mustAppend(t, l, alice, 1_000_000, 0)

	if err := l.Unlink(a); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	checkChain(t, l)
	if l.Head() != 0 || l.Tail() != 0 {
		t.Errorf("empty chain sentinels: head=%d tail=%d", l.Head(), l.Tail())
	}
}

func TestLink_Reinsert(t *testing.T) {
	l := ledger.New(testConfig())
	a := mustAppend(t, l, alice, 1_000_000, 0)
	b := mustAppend(t, l, bob, 1_000_000, 0)
	c := mustAppend(t, l, carol, 1_000_000, 0)

	// Move b to the front.
	if err := l.Unlink(b); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if err := l.Link(b, 0, a); err != nil {
		t.Fatalf("link: %v", err)
	}
	checkChain(t, l, b, a, c)
}

func TestLink_RejectsLinkedEntry(t *testing.T) {
	l := ledger.New(testConfig())
	a := mustAppend(t, l, alice, 1_000_000, 0)
	b := mustAppend(t, l, bob, 1_000_000, 0)

	err := l.Link(a, b, 0)
	if !errors.Is(err, ledger.ErrEntryLinked) {
		t.Errorf("got %v, want ErrEntryLinked", err)
	}
}

func TestLink_RejectsNonAdjacentTargets(t *testing.T) {
	l := ledger.New(testConfig())
	a := mustAppend(t, l, alice, 1_000_000, 0)
	b := mustAppend(t, l, bob, 1_000_000, 0)
	c := mustAppend(t, l, carol, 1_000_000, 0)

	d := l.NewDetachedEntry(alice, 1_000_000, 0)
	err := l.Link(d, a, c) // a and c are not adjacent
	if !errors.Is(err, ledger.ErrBadLinkTarget) {
		t.Errorf("got %v, want ErrBadLinkTarget", err)
	}
	checkChain(t, l, a, b, c)
}

// ============================================================================
// Test: SharesAhead
// ============================================================================

func TestSharesAhead_SumsPredecessors(t *testing.T) {
	l := ledger.New(testConfig())
	mustAppend(t, l, alice, 1_000_000, 0)
	mustAppend(t, l, bob, 2_000_000, 0)
	c := mustAppend(t, l, carol, 3_000_000, 0)

	shares, truncated, err := l.SharesAhead(c)
	if err != nil {
		t.Fatalf("shares ahead: %v", err)
	}
	if truncated {
		t.Error("walk of 2 should not truncate with cap 4")
	}
	if shares != 3_000_000 {
		t.Errorf("got %d, want 3_000_000", shares)
	}
}

func TestSharesAhead_Head(t *testing.T) {
	l := ledger.New(testConfig())
	a := mustAppend(t, l, alice, 1_000_000, 0)

	shares, truncated, err := l.SharesAhead(a)
	if err != nil || truncated || shares != 0 {
		t.Errorf("head should have nothing ahead: shares=%d truncated=%v err=%v", shares, truncated, err)
	}
}

func TestSharesAhead_TruncatesAtScanCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxEntriesPerOwner = 10
	l := ledger.New(cfg)

	var last int64
	for i := 0; i < 6; i++ {
		last = mustAppend(t, l, alice, 1_000_000, 0)
	}

	shares, truncated, err := l.SharesAhead(last)
	if err != nil {
		t.Fatalf("shares ahead: %v", err)
	}
	if !truncated {
		t.Error("walk of 5 should truncate with cap 4")
	}
	if shares != 4_000_000 {
		t.Errorf("truncated sum: got %d, want 4_000_000", shares)
	}
}

func TestSharesAhead_UnknownEntry(t *testing.T) {
	l := ledger.New(testConfig())
	_, _, err := l.SharesAhead(99)
	if !errors.Is(err, ledger.ErrUnknownEntry) {
		t.Errorf("got %v, want ErrUnknownEntry", err)
	}
}

// ============================================================================
// Test: OwnerEntries
// ============================================================================

func TestOwnerEntries_AscendingAndIsolated(t *testing.T) {
	l := ledger.New(testConfig())
	a1 := mustAppend(t, l, alice, 1_000_000, 0)
	mustAppend(t, l, bob, 1_000_000, 0)
	a2 := mustAppend(t, l, alice, 1_000_000, 0)

	ids := l.OwnerEntries(alice)
	if len(ids) != 2 || ids[0] != a1 || ids[1] != a2 {
		t.Errorf("got %v, want [%d %d]", ids, a1, a2)
	}
	if len(l.OwnerEntries(carol)) != 0 {
		t.Error("carol should have no entries")
	}
}
