package auction

import "sort"

// SnapshotState is the serializable form of the registry.
type SnapshotState struct {
	CurrentRoundID int64   `json:"current_round_id"`
	SettledRoundID int64   `json:"settled_round_id"`
	Rounds         []Round `json:"rounds"`
}

// Snapshot captures the registry's full round state, sorted by round id.
func (reg *Registry) Snapshot() *SnapshotState {
	snap := &SnapshotState{
		CurrentRoundID: reg.currentRoundID,
		SettledRoundID: reg.settledRoundID,
		Rounds:         make([]Round, 0, len(reg.rounds)),
	}
	for _, r := range reg.rounds {
		snap.Rounds = append(snap.Rounds, *r)
	}
	sort.Slice(snap.Rounds, func(i, j int) bool { return snap.Rounds[i].ID < snap.Rounds[j].ID })
	return snap
}

// RestoreRegistry rebuilds a registry from a snapshot.
func RestoreRegistry(params Params, snap *SnapshotState) *Registry {
	reg := &Registry{
		params:         params,
		rounds:         make(map[int64]*Round, len(snap.Rounds)),
		currentRoundID: snap.CurrentRoundID,
		settledRoundID: snap.SettledRoundID,
	}
	for i := range snap.Rounds {
		r := snap.Rounds[i]
		if r.Nonces == nil {
			r.Nonces = make(map[int64]uint64)
		}
		reg.rounds[r.ID] = &r
	}
	return reg
}
