package projection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"VaultQueue/internal/event"
	"VaultQueue/internal/observability"
)

// Output mirrors the part of core.CoreOutput the projection workers need.
// The orchestrator bridges between the two.
type Output struct {
	Sequence   int64
	EventType  string
	Changes    []event.EntryChange
	Checkpoint *event.RoundCheckpoint
	Settlement *event.RoundSettled
	Fees       *event.BatchFees
	Timestamp  time.Time
}

// Worker updates the projection tables from processed events. The
// projection channel is non-blocking with drop: if projections fall
// behind, they are rebuilt from the event log.
type Worker struct {
	db        *sql.DB
	inputChan <-chan Output
	metrics   *observability.Metrics
	log       zerolog.Logger
	lastSeq   int64
}

func NewWorker(db *sql.DB, inputChan <-chan Output, metrics *observability.Metrics) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		log:       observability.NewLogger("projection"),
	}
}

// Run starts the projection worker loop.
func (pw *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			start := time.Now()
			if err := pw.processOutput(ctx, output); err != nil {
				// Continue; projections are eventually consistent and can
				// be rebuilt from the event log.
				pw.log.Warn().Err(err).Int64("sequence", output.Sequence).Msg("projection update failed")
			}
			if pw.metrics != nil {
				pw.metrics.ProjectionUpdateDur.WithLabelValues("main").Observe(time.Since(start).Seconds())
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *Worker) processOutput(ctx context.Context, output Output) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range output.Changes {
		if err := pw.applyEntryChange(ctx, tx, output.Sequence, &output.Changes[i]); err != nil {
			return fmt.Errorf("entry projection: %w", err)
		}
	}

	if output.Checkpoint != nil {
		if err := pw.applyCheckpoint(ctx, tx, output.Sequence, output.Checkpoint, output.Fees); err != nil {
			return fmt.Errorf("round projection: %w", err)
		}
	}

	if output.Settlement != nil {
		if err := pw.applySettlement(ctx, tx, output.Sequence, output.Settlement); err != nil {
			return fmt.Errorf("settlement projection: %w", err)
		}
	}

	// Update projection watermark
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func (pw *Worker) applyEntryChange(ctx context.Context, tx *sql.Tx, seq int64, ch *event.EntryChange) error {
	if ch.Kind == event.EntryRemoved {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM projections.entries WHERE entry_id = $1
		`, ch.EntryID)
		return err
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.entries
			(entry_id, controller, pending_shares, redeemable_shares, withdrawable_amount, created_at_window, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (entry_id) DO UPDATE SET
			pending_shares      = $3,
			redeemable_shares   = $4,
			withdrawable_amount = $5,
			last_sequence       = $7
	`, ch.EntryID, ch.Controller.String(), ch.PendingShares, ch.RedeemableShares,
		ch.WithdrawableAmount, ch.CreatedAtWindow, seq)
	return err
}

func (pw *Worker) applyCheckpoint(ctx context.Context, tx *sql.Tx, seq int64, cp *event.RoundCheckpoint, fees *event.BatchFees) error {
	var totalFee, adminFee, burnt int64
	if fees != nil {
		totalFee, adminFee, burnt = fees.TotalFee, fees.AdminFee, fees.Burnt
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.rounds
			(round_id, accepted_bid_count, processed_bid_count, last_processed_redemption_id,
			 round_complete, total_fee, admin_fee, burnt, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (round_id) DO UPDATE SET
			accepted_bid_count           = $2,
			processed_bid_count          = $3,
			last_processed_redemption_id = $4,
			round_complete               = $5,
			total_fee                    = projections.rounds.total_fee + $6,
			admin_fee                    = projections.rounds.admin_fee + $7,
			burnt                        = projections.rounds.burnt + $8,
			last_sequence                = $9
	`, cp.RoundID, cp.AcceptedBidCount, cp.ProcessedBidCount, cp.LastProcessedRedemptionID,
		cp.RoundComplete, totalFee, adminFee, burnt, seq)
	return err
}

func (pw *Worker) applySettlement(ctx context.Context, tx *sql.Tx, seq int64, s *event.RoundSettled) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.rounds
			(round_id, accepted_bid_count, processed_bid_count, last_processed_redemption_id,
			 round_complete, settled_at, total_fee, admin_fee, burnt, last_sequence)
		VALUES ($1, $2, 0, 0, $3, $4, 0, 0, 0, $5)
		ON CONFLICT (round_id) DO UPDATE SET
			accepted_bid_count = $2,
			round_complete     = $3,
			settled_at         = $4,
			last_sequence      = $5
	`, s.RoundID, s.AcceptedBidCount, s.AcceptedBidCount == 0, s.SettledAt, seq)
	return err
}

// Rebuild rebuilds all projection tables from the event log.
func Rebuild(ctx context.Context, db *sql.DB) error {
	log := observability.NewLogger("projection")

	truncateStatements := []string{
		`TRUNCATE projections.entries`,
		`TRUNCATE projections.rounds`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Rebuild entries from the latest change row per entry, dropping the
	// ones whose latest change is a removal.
	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.entries
			(entry_id, controller, pending_shares, redeemable_shares, withdrawable_amount, created_at_window, last_sequence)
		SELECT entry_id, controller, pending_shares, redeemable_shares, withdrawable_amount, created_at_window, sequence
		FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY entry_id ORDER BY sequence DESC) AS rn
			FROM queue_log.entry_changes
		) latest
		WHERE rn = 1 AND kind <> 2
	`)
	if err != nil {
		return fmt.Errorf("rebuild entries: %w", err)
	}

	// Rebuild rounds from checkpoints: latest progress plus cumulative fees.
	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.rounds
			(round_id, accepted_bid_count, processed_bid_count, last_processed_redemption_id,
			 round_complete, total_fee, admin_fee, burnt, last_sequence)
		SELECT
			latest.round_id, latest.accepted_bid_count, latest.processed_bid_count,
			latest.last_processed_redemption_id, latest.round_complete,
			fees.total_fee, fees.admin_fee, fees.burnt, latest.sequence
		FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY round_id ORDER BY sequence DESC) AS rn
			FROM queue_log.round_checkpoints
		) latest
		JOIN (
			SELECT round_id, SUM(total_fee) AS total_fee, SUM(admin_fee) AS admin_fee, SUM(burnt) AS burnt
			FROM queue_log.round_checkpoints
			GROUP BY round_id
		) fees ON fees.round_id = latest.round_id
		WHERE latest.rn = 1
	`)
	if err != nil {
		return fmt.Errorf("rebuild rounds: %w", err)
	}

	log.Info().Msg("projection rebuild complete")
	return nil
}
