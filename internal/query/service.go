package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"VaultQueue/internal/auth"
)

// ErrNotFound reports a missing entry or round.
var ErrNotFound = errors.New("not found")

// Service provides read-only access to the projection tables. Responses
// include as_of_sequence (the projection watermark) for freshness semantics;
// reads never touch the in-memory engine state.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// GetEntry returns one redemption entry.
func (qs *Service) GetEntry(ctx context.Context, entryID int64) (*EntryResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	var e EntryResponse
	e.AsOfSequence = asOfSeq
	err = qs.db.QueryRowContext(ctx, `
		SELECT entry_id, controller, pending_shares, redeemable_shares, withdrawable_amount, created_at_window
		FROM projections.entries
		WHERE entry_id = $1
	`, entryID).Scan(
		&e.EntryID, &e.Controller, &e.PendingShares, &e.RedeemableShares,
		&e.WithdrawableAmount, &e.CreatedAtWindow,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: entry %d", ErrNotFound, entryID)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetOwnerEntries returns all live entries for a controller, ascending id.
func (qs *Service) GetOwnerEntries(ctx context.Context, controller auth.Address) ([]EntryResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT entry_id, controller, pending_shares, redeemable_shares, withdrawable_amount, created_at_window
		FROM projections.entries
		WHERE controller = $1
		ORDER BY entry_id
	`, controller.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []EntryResponse
	for rows.Next() {
		var e EntryResponse
		e.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&e.EntryID, &e.Controller, &e.PendingShares, &e.RedeemableShares,
			&e.WithdrawableAmount, &e.CreatedAtWindow,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetClaimable aggregates a controller's claimable balances across entries.
func (qs *Service) GetClaimable(ctx context.Context, controller auth.Address) (*ClaimableResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	resp := &ClaimableResponse{
		Controller:   controller.String(),
		AsOfSequence: asOfSeq,
	}
	err = qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(redeemable_shares), 0), COALESCE(SUM(withdrawable_amount), 0), COUNT(*)
		FROM projections.entries
		WHERE controller = $1
	`, controller.String()).Scan(&resp.RedeemableShares, &resp.WithdrawableAmount, &resp.EntryCount)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetRound returns one auction round.
func (qs *Service) GetRound(ctx context.Context, roundID int64) (*RoundResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var r RoundResponse
	r.AsOfSequence = asOfSeq
	var settledAt sql.NullInt64
	err = qs.db.QueryRowContext(ctx, `
		SELECT round_id, accepted_bid_count, processed_bid_count, last_processed_redemption_id,
		       round_complete, settled_at, total_fee, admin_fee, burnt
		FROM projections.rounds
		WHERE round_id = $1
	`, roundID).Scan(
		&r.RoundID, &r.AcceptedBidCount, &r.ProcessedBidCount, &r.LastProcessedRedemptionID,
		&r.RoundComplete, &settledAt, &r.TotalFee, &r.AdminFee, &r.Burnt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: round %d", ErrNotFound, roundID)
	}
	if err != nil {
		return nil, err
	}
	if settledAt.Valid {
		r.SettledAt = settledAt.Int64
	}
	return &r, nil
}

// GetLatestRounds returns the most recent rounds, newest first.
func (qs *Service) GetLatestRounds(ctx context.Context, limit int) ([]RoundResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT round_id, accepted_bid_count, processed_bid_count, last_processed_redemption_id,
		       round_complete, settled_at, total_fee, admin_fee, burnt
		FROM projections.rounds
		ORDER BY round_id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []RoundResponse
	for rows.Next() {
		var r RoundResponse
		r.AsOfSequence = asOfSeq
		var settledAt sql.NullInt64
		if err := rows.Scan(
			&r.RoundID, &r.AcceptedBidCount, &r.ProcessedBidCount, &r.LastProcessedRedemptionID,
			&r.RoundComplete, &settledAt, &r.TotalFee, &r.AdminFee, &r.Burnt,
		); err != nil {
			return nil, err
		}
		if settledAt.Valid {
			r.SettledAt = settledAt.Int64
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

// GetAggregates returns queue-wide totals.
func (qs *Service) GetAggregates(ctx context.Context) (*AggregatesResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	resp := &AggregatesResponse{AsOfSequence: asOfSeq}
	err = qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(pending_shares), 0), COALESCE(SUM(withdrawable_amount), 0), COUNT(*)
		FROM projections.entries
	`).Scan(&resp.TotalPendingShares, &resp.TotalReservedAsset, &resp.EntryCount)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetEventHistory returns event-log rows with cursor pagination.
func (qs *Service) GetEventHistory(ctx context.Context, limit int, afterSequence *int64) ([]EventHistoryEntry, error) {
	query := `
		SELECT sequence, event_type, idempotency_key, source_sequence, timestamp
		FROM queue_log.events
	`
	args := []interface{}{}
	argIdx := 1

	if afterSequence != nil {
		query += fmt.Sprintf(" WHERE sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []EventHistoryEntry
	for rows.Next() {
		var e EventHistoryEntry
		var ts time.Time
		if err := rows.Scan(&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.SourceSequence, &ts); err != nil {
			return nil, err
		}
		e.Timestamp = ts.Unix()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity in the event log and scans
// the entry projection for negative balances.
func (qs *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM queue_log.events e1
		LEFT JOIN queue_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > 0 AND e1.prev_hash != COALESCE(e2.state_hash, e1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	negRows, err := qs.db.QueryContext(ctx, `
		SELECT entry_id FROM projections.entries
		WHERE pending_shares < 0 OR redeemable_shares < 0 OR withdrawable_amount < 0
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer negRows.Close()

	for negRows.Next() {
		var id int64
		if err := negRows.Scan(&id); err != nil {
			return nil, err
		}
		report.NegativeEntries = append(report.NegativeEntries, id)
	}
	if err := negRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.NegativeEntries) == 0
	return report, nil
}

// --- helpers ---

func (qs *Service) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
