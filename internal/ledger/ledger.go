package ledger

import (
	"errors"
	"fmt"
	"sort"

	"VaultQueue/internal/auth"
)

// Validation errors, rejected synchronously with no state change.
var (
	ErrBelowMinimumQuantum = errors.New("redemption below minimum share quantum")
	ErrTooManyEntries      = errors.New("controller has too many live entries")
	ErrUnknownEntry        = errors.New("unknown redemption entry")
	ErrEntryLinked         = errors.New("entry is still linked")
	ErrBadLinkTarget       = errors.New("link target positions are not adjacent")
)

// Config bounds the ledger's per-operation costs.
type Config struct {
	// MinRedemptionShares is the smallest accepted redemption request.
	MinRedemptionShares int64

	// MaxEntriesPerOwner bounds the per-owner index so claim scans stay cheap.
	MaxEntriesPerOwner int

	// WindowDuration is the redemption window length in seconds.
	WindowDuration int64

	// SharesAheadScanCap bounds the backward walk of SharesAhead.
	SharesAheadScanCap int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MinRedemptionShares: 1_000_000, // 1.0 share
		MaxEntriesPerOwner:  8,
		WindowDuration:      24 * 60 * 60,
		SharesAheadScanCap:  256,
	}
}

// Ledger is the redemption queue: an arena of entries keyed by id, the
// head/tail chain pointers, aggregate counters, and the per-owner index.
// Created once at vault genesis and passed explicitly into every operation;
// multiple independent instances can coexist in one process.
//
// Not thread-safe: each externally-triggered step runs as a single atomic
// unit with one logical writer.
type Ledger struct {
	cfg Config

	idCounter int64
	head      int64
	tail      int64

	totalPendingShares int64
	totalReservedAsset int64

	entries map[int64]*RedemptionEntry
	byOwner map[auth.Address][]int64 // ascending ids
}

// New creates an empty ledger.
func New(cfg Config) *Ledger {
	return &Ledger{
		cfg:     cfg,
		entries: make(map[int64]*RedemptionEntry),
		byOwner: make(map[auth.Address][]int64),
	}
}

// Config returns the ledger's configured bounds.
func (l *Ledger) Config() Config { return l.cfg }

// Head returns the id of the first queued entry, 0 if the chain is empty.
func (l *Ledger) Head() int64 { return l.head }

// Tail returns the id of the last queued entry, 0 if the chain is empty.
func (l *Ledger) Tail() int64 { return l.tail }

// TotalPendingShares returns the ledger-wide unfulfilled claim total.
func (l *Ledger) TotalPendingShares() int64 { return l.totalPendingShares }

// TotalReservedAsset returns the underlying-asset total reserved for
// fulfilled-but-unclaimed shares.
func (l *Ledger) TotalReservedAsset() int64 { return l.totalReservedAsset }

// EntryCount returns the number of live arena entries.
func (l *Ledger) EntryCount() int { return len(l.entries) }

// LastAssignedID returns the most recently allocated entry id.
func (l *Ledger) LastAssignedID() int64 { return l.idCounter }

// Entry returns the live entry for id. The pointer aliases ledger state;
// callers outside this package must treat it as read-only and mutate through
// ledger operations.
func (l *Ledger) Entry(id int64) (*RedemptionEntry, bool) {
	e, ok := l.entries[id]
	return e, ok
}

// OwnerEntries returns the ascending entry ids owned by controller.
func (l *Ledger) OwnerEntries(controller auth.Address) []int64 {
	ids := l.byOwner[controller]
	out := make([]int64, len(ids))
	copy(out, ids)
	return out
}

// WindowOf buckets a timestamp into its redemption window start.
func (l *Ledger) WindowOf(now int64) int64 {
	return now - now%l.cfg.WindowDuration
}

// Append queues a new redemption request at the tail and returns its id.
func (l *Ledger) Append(controller auth.Address, shares int64, now int64) (int64, error) {
	if shares < l.cfg.MinRedemptionShares {
		return 0, fmt.Errorf("%w: %d < %d", ErrBelowMinimumQuantum, shares, l.cfg.MinRedemptionShares)
	}
	if len(l.byOwner[controller]) >= l.cfg.MaxEntriesPerOwner {
		return 0, fmt.Errorf("%w: %s has %d", ErrTooManyEntries, controller, len(l.byOwner[controller]))
	}

	id := l.allocEntry(controller, shares, l.WindowOf(now))
	if err := l.Link(id, l.tail, 0); err != nil {
		panic(fmt.Sprintf("FATAL: append link failed: %v", err))
	}
	return id, nil
}

// NewDetachedEntry allocates an arena entry that is not yet linked into the
// chain. Used by the splice engine for the partial-claim split; the caller
// links it at the target position. The per-owner cap is not enforced here;
// it bounds external appends, not engine-created splits.
func (l *Ledger) NewDetachedEntry(controller auth.Address, shares int64, createdAtWindow int64) int64 {
	return l.allocEntry(controller, shares, createdAtWindow)
}

func (l *Ledger) allocEntry(controller auth.Address, shares int64, createdAtWindow int64) int64 {
	l.idCounter++
	id := l.idCounter

	l.entries[id] = &RedemptionEntry{
		ID:              id,
		Controller:      controller,
		PendingShares:   shares,
		CreatedAtWindow: createdAtWindow,
	}
	l.totalPendingShares += shares

	ids := l.byOwner[controller]
	ids = append(ids, id)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	l.byOwner[controller] = ids

	return id
}

// Unlink detaches an entry from the chain, reassigning head/tail as needed.
// The entry's balances are untouched; callers either relink it elsewhere or
// leave it detached for claiming.
func (l *Ledger) Unlink(id int64) error {
	e, ok := l.entries[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownEntry, id)
	}

	if e.Prev != 0 {
		l.entries[e.Prev].Next = e.Next
	} else if l.head == id {
		l.head = e.Next
	}
	if e.Next != 0 {
		l.entries[e.Next].Prev = e.Prev
	} else if l.tail == id {
		l.tail = e.Prev
	}

	e.Prev, e.Next = 0, 0
	return nil
}

// Link inserts a detached entry between prevID and nextID. prevID == 0
// makes it the new head, nextID == 0 the new tail. prevID and nextID must
// currently be adjacent; this is the single pointer-maintenance path shared
// by Append and the splice engine.
func (l *Ledger) Link(id, prevID, nextID int64) error {
	e, ok := l.entries[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownEntry, id)
	}
	if e.Prev != 0 || e.Next != 0 || l.head == id {
		return fmt.Errorf("%w: %d", ErrEntryLinked, id)
	}

	if prevID == 0 {
		if l.head != nextID {
			return fmt.Errorf("%w: head is %d, not %d", ErrBadLinkTarget, l.head, nextID)
		}
	} else {
		p, ok := l.entries[prevID]
		if !ok {
			return fmt.Errorf("%w: prev %d", ErrUnknownEntry, prevID)
		}
		if p.Next != nextID {
			return fmt.Errorf("%w: next of %d is %d, not %d", ErrBadLinkTarget, prevID, p.Next, nextID)
		}
	}
	if nextID == 0 {
		if l.tail != prevID {
			return fmt.Errorf("%w: tail is %d, not %d", ErrBadLinkTarget, l.tail, prevID)
		}
	}

	e.Prev, e.Next = prevID, nextID
	if prevID != 0 {
		l.entries[prevID].Next = id
	} else {
		l.head = id
	}
	if nextID != 0 {
		l.entries[nextID].Prev = id
	} else {
		l.tail = id
	}
	return nil
}

// ReducePending shrinks an entry's pending shares and the ledger-wide
// counter together. An underflow can only arise from an engine defect, so
// it is fatal rather than returned.
func (l *Ledger) ReducePending(id, shares int64) {
	e, ok := l.entries[id]
	if !ok {
		panic(fmt.Sprintf("FATAL: ReducePending on unknown entry %d", id))
	}
	if shares < 0 || shares > e.PendingShares {
		panic(fmt.Sprintf("FATAL: pending underflow on entry %d: %d - %d", id, e.PendingShares, shares))
	}
	e.PendingShares -= shares
	l.totalPendingShares -= shares
}

// retire removes a dead entry from the arena and its owner's index.
func (l *Ledger) retire(e *RedemptionEntry) {
	if !e.IsDead() {
		panic(fmt.Sprintf("FATAL: retiring live entry %d", e.ID))
	}
	if e.Prev != 0 || e.Next != 0 || l.head == e.ID {
		panic(fmt.Sprintf("FATAL: retiring linked entry %d", e.ID))
	}

	ids := l.byOwner[e.Controller]
	for i, id := range ids {
		if id == e.ID {
			l.byOwner[e.Controller] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(l.byOwner[e.Controller]) == 0 {
		delete(l.byOwner, e.Controller)
	}
	delete(l.entries, e.ID)
}

// SharesAhead sums the pending shares of an entry's predecessors, walking
// backward toward head. The walk is capped: past the scan cap it stops and
// reports truncated=true, returning a lower bound on the true sum.
func (l *Ledger) SharesAhead(id int64) (shares int64, truncated bool, err error) {
	e, ok := l.entries[id]
	if !ok {
		return 0, false, fmt.Errorf("%w: %d", ErrUnknownEntry, id)
	}

	scanned := 0
	for p := e.Prev; p != 0; p = l.entries[p].Prev {
		if scanned >= l.cfg.SharesAheadScanCap {
			return shares, true, nil
		}
		shares += l.entries[p].PendingShares
		scanned++
	}
	return shares, false, nil
}

// CheckIntegrity verifies the chain invariants: forward and backward walks
// visit the same ids in reverse order, no cycles, consistent head/tail, and
// the pending counter equals the arena sum. Used by tests and the engine's
// periodic post-checks.
func (l *Ledger) CheckIntegrity() error {
	var forward []int64
	for id := l.head; id != 0; id = l.entries[id].Next {
		if len(forward) > len(l.entries) {
			return errors.New("cycle detected in forward walk")
		}
		e, ok := l.entries[id]
		if !ok {
			return fmt.Errorf("chain references unknown entry %d", id)
		}
		if len(forward) == 0 && e.Prev != 0 {
			return fmt.Errorf("head %d has prev %d", id, e.Prev)
		}
		forward = append(forward, id)
	}

	var backward []int64
	for id := l.tail; id != 0; id = l.entries[id].Prev {
		if len(backward) > len(l.entries) {
			return errors.New("cycle detected in backward walk")
		}
		e, ok := l.entries[id]
		if !ok {
			return fmt.Errorf("chain references unknown entry %d", id)
		}
		if len(backward) == 0 && e.Next != 0 {
			return fmt.Errorf("tail %d has next %d", id, e.Next)
		}
		backward = append(backward, id)
	}

	if len(forward) != len(backward) {
		return fmt.Errorf("walk length mismatch: forward %d, backward %d", len(forward), len(backward))
	}
	for i, id := range forward {
		if backward[len(backward)-1-i] != id {
			return fmt.Errorf("walk order mismatch at position %d", i)
		}
	}
	if (l.head == 0) != (l.tail == 0) {
		return fmt.Errorf("head/tail sentinel mismatch: head=%d tail=%d", l.head, l.tail)
	}

	var pendingSum, reservedSum int64
	for _, e := range l.entries {
		pendingSum += e.PendingShares
		reservedSum += e.WithdrawableAmount
	}
	if pendingSum != l.totalPendingShares {
		return fmt.Errorf("pending conservation broken: counter=%d sum=%d", l.totalPendingShares, pendingSum)
	}
	if reservedSum != l.totalReservedAsset {
		return fmt.Errorf("reserved conservation broken: counter=%d sum=%d", l.totalReservedAsset, reservedSum)
	}
	return nil
}

// ChainIDs returns the forward walk of the chain. For tests and diagnostics.
func (l *Ledger) ChainIDs() []int64 {
	var ids []int64
	for id := l.head; id != 0; id = l.entries[id].Next {
		ids = append(ids, id)
		if len(ids) > len(l.entries) {
			break
		}
	}
	return ids
}
