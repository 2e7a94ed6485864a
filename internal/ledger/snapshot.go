package ledger

import (
	"sort"
)

// SnapshotState is the serializable form of a ledger. Entry ids double as
// the chain pointers, so the structure round-trips without any pointer
// fix-up.
type SnapshotState struct {
	IDCounter          int64             `json:"id_counter"`
	Head               int64             `json:"head"`
	Tail               int64             `json:"tail"`
	TotalPendingShares int64             `json:"total_pending_shares"`
	TotalReservedAsset int64             `json:"total_reserved_asset"`
	Entries            []RedemptionEntry `json:"entries"`
}

// Snapshot captures the ledger's full state. Entries are sorted by id for
// deterministic output.
func (l *Ledger) Snapshot() *SnapshotState {
	snap := &SnapshotState{
		IDCounter:          l.idCounter,
		Head:               l.head,
		Tail:               l.tail,
		TotalPendingShares: l.totalPendingShares,
		TotalReservedAsset: l.totalReservedAsset,
		Entries:            make([]RedemptionEntry, 0, len(l.entries)),
	}
	for _, e := range l.entries {
		snap.Entries = append(snap.Entries, *e)
	}
	sort.Slice(snap.Entries, func(i, j int) bool { return snap.Entries[i].ID < snap.Entries[j].ID })
	return snap
}

// Restore rebuilds a ledger from a snapshot.
func Restore(cfg Config, snap *SnapshotState) *Ledger {
	l := New(cfg)
	l.idCounter = snap.IDCounter
	l.head = snap.Head
	l.tail = snap.Tail
	l.totalPendingShares = snap.TotalPendingShares
	l.totalReservedAsset = snap.TotalReservedAsset

	for i := range snap.Entries {
		e := snap.Entries[i]
		l.entries[e.ID] = &e
		l.byOwner[e.Controller] = append(l.byOwner[e.Controller], e.ID)
	}
	for owner, ids := range l.byOwner {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		l.byOwner[owner] = ids
	}
	return l
}
