package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// EventLogWriter writes events, entry changes, and round checkpoints to
// Postgres using multi-row INSERTs. All writes are idempotent: replaying a
// batch after a crash is a no-op thanks to ON CONFLICT DO NOTHING.
type EventLogWriter struct {
	db *sql.DB
}

// execer abstracts *sql.DB and *sql.Tx so batch writes can run inside the
// flush transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// EventRow represents a row in queue_log.events
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	Payload        []byte // JSON-encoded event payload
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
	SourceSequence int64
}

// EntryChangeRow represents a row in queue_log.entry_changes: the post-state
// of one redemption entry after the event at Sequence.
type EntryChangeRow struct {
	Sequence           int64
	EntryID            int64
	Kind               int32
	Controller         string // 0x-prefixed hex address
	PendingShares      int64
	RedeemableShares   int64
	WithdrawableAmount int64
	CreatedAtWindow    int64
}

// CheckpointRow represents a row in queue_log.round_checkpoints. One row is
// written per bid-posting or reorder event, carrying the round's processing
// progress and the batch's fee partition.
type CheckpointRow struct {
	Sequence                  int64
	RoundID                   int64
	AcceptedBidCount          int
	ProcessedBidCount         int
	LastProcessedRedemptionID int64
	RoundComplete             bool
	TotalFee                  int64
	AdminFee                  int64
	Burnt                     int64
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteEventBatch writes a batch of events to queue_log.events.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, ex execer, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO queue_log.events
		(sequence, event_type, idempotency_key, payload, state_hash, prev_hash, timestamp, source_sequence)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*8)

	for i, e := range events {
		base := i * 8
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args,
			e.Sequence, e.EventType, e.IdempotencyKey, e.Payload,
			e.StateHash, e.PrevHash, e.Timestamp, e.SourceSequence,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING" // Idempotent writes

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WriteEntryChangeBatch writes a batch of entry changes to queue_log.entry_changes.
func (w *EventLogWriter) WriteEntryChangeBatch(ctx context.Context, ex execer, changes []EntryChangeRow) error {
	if len(changes) == 0 {
		return nil
	}

	query := `INSERT INTO queue_log.entry_changes
		(sequence, entry_id, kind, controller, pending_shares, redeemable_shares, withdrawable_amount, created_at_window)
		VALUES `

	values := make([]string, 0, len(changes))
	args := make([]interface{}, 0, len(changes)*8)

	for i, c := range changes {
		base := i * 8
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args,
			c.Sequence, c.EntryID, c.Kind, c.Controller,
			c.PendingShares, c.RedeemableShares, c.WithdrawableAmount, c.CreatedAtWindow,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence, entry_id) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WriteCheckpointBatch writes a batch of round checkpoints to
// queue_log.round_checkpoints.
func (w *EventLogWriter) WriteCheckpointBatch(ctx context.Context, ex execer, checkpoints []CheckpointRow) error {
	if len(checkpoints) == 0 {
		return nil
	}

	query := `INSERT INTO queue_log.round_checkpoints
		(sequence, round_id, accepted_bid_count, processed_bid_count, last_processed_redemption_id, round_complete, total_fee, admin_fee, burnt)
		VALUES `

	values := make([]string, 0, len(checkpoints))
	args := make([]interface{}, 0, len(checkpoints)*9)

	for i, cp := range checkpoints {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			cp.Sequence, cp.RoundID, cp.AcceptedBidCount, cp.ProcessedBidCount,
			cp.LastProcessedRedemptionID, cp.RoundComplete, cp.TotalFee, cp.AdminFee, cp.Burnt,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}
