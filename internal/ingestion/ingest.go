package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"VaultQueue/internal/auction"
	"VaultQueue/internal/auth"
	"VaultQueue/internal/event"
)

// Partition names for source-sequence numbering. Must match the core's
// partitioning of event types.
const (
	PartitionRedemptions = "redemptions"
	PartitionFulfillment = "fulfillment"
	PartitionAuction     = "auction"
	PartitionClaims      = "claims"
)

// IngestService provides command submission via the HTTP API. It numbers
// each command with the next source sequence for its partition, so it
// must be the only producer for the partitions it serves. Seed the
// counters from the recovered core state before accepting commands.
type IngestService struct {
	eventChan chan<- event.Event

	mu   sync.Mutex
	next map[string]int64 // partition -> next source sequence
}

func NewIngestService(eventChan chan<- event.Event) *IngestService {
	return &IngestService{
		eventChan: eventChan,
		next:      make(map[string]int64),
	}
}

// SeedSequences initializes the per-partition counters from the core's
// recovered sequence-validator state.
func (s *IngestService) SeedSequences(state map[string]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for partition, seq := range state {
		s.next[partition] = seq
	}
}

func (s *IngestService) nextSequence(partition string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.next[partition]
	s.next[partition] = seq + 1
	return seq
}

// SubmitRedemption queues a redemption request for a controller.
func (s *IngestService) SubmitRedemption(
	ctx context.Context,
	sender auth.Address,
	controller auth.Address,
	shares int64,
) (uuid.UUID, error) {
	if shares <= 0 {
		return uuid.Nil, fmt.Errorf("shares must be positive")
	}

	evt := &event.RedemptionRequested{
		RequestID:  uuid.New(),
		Sender:     sender,
		Controller: controller,
		Shares:     shares,
		Sequence:   s.nextSequence(PartitionRedemptions),
		Timestamp:  time.Now(),
	}

	return evt.RequestID, s.send(ctx, evt)
}

// SubmitFulfillment triggers fulfillment of the queue head.
func (s *IngestService) SubmitFulfillment(
	ctx context.Context,
	sender auth.Address,
	sharesToProcess int64,
	sharePrice int64,
) (uuid.UUID, error) {
	if sharesToProcess <= 0 {
		return uuid.Nil, fmt.Errorf("shares_to_process must be positive")
	}
	if sharePrice <= 0 {
		return uuid.Nil, fmt.Errorf("share_price must be positive")
	}

	evt := &event.FulfillmentTriggered{
		RequestID:       uuid.New(),
		Sender:          sender,
		SharesToProcess: sharesToProcess,
		SharePrice:      sharePrice,
		Sequence:        s.nextSequence(PartitionFulfillment),
		Timestamp:       time.Now(),
	}

	return evt.RequestID, s.send(ctx, evt)
}

// SubmitBidBatch posts a batch of signed bids to a round.
func (s *IngestService) SubmitBidBatch(
	ctx context.Context,
	sender auth.Address,
	roundID int64,
	bids []auction.Bid,
) (uuid.UUID, error) {
	if len(bids) == 0 {
		return uuid.Nil, fmt.Errorf("bid batch is empty")
	}

	evt := &event.BidBatchPosted{
		BatchID:   uuid.New(),
		Sender:    sender,
		RoundID:   roundID,
		Bids:      bids,
		Sequence:  s.nextSequence(PartitionAuction),
		Timestamp: time.Now(),
	}

	return evt.BatchID, s.send(ctx, evt)
}

// SubmitSettle settles a round and opens the next one.
func (s *IngestService) SubmitSettle(
	ctx context.Context,
	sender auth.Address,
	roundID int64,
) (uuid.UUID, error) {
	evt := &event.RoundSettleRequested{
		RequestID: uuid.New(),
		Sender:    sender,
		RoundID:   roundID,
		Sequence:  s.nextSequence(PartitionAuction),
		Timestamp: time.Now(),
	}

	return evt.RequestID, s.send(ctx, evt)
}

// SubmitReorder runs one bounded splice batch against a settled round.
func (s *IngestService) SubmitReorder(
	ctx context.Context,
	sender auth.Address,
	roundID int64,
	batchSize int,
) (uuid.UUID, error) {
	if batchSize <= 0 {
		return uuid.Nil, fmt.Errorf("batch_size must be positive")
	}

	evt := &event.ReorderBatchRequested{
		RequestID: uuid.New(),
		Sender:    sender,
		RoundID:   roundID,
		BatchSize: batchSize,
		Sequence:  s.nextSequence(PartitionAuction),
		Timestamp: time.Now(),
	}

	return evt.RequestID, s.send(ctx, evt)
}

// SubmitWithdrawClaim claims withdrawable asset for a controller.
func (s *IngestService) SubmitWithdrawClaim(
	ctx context.Context,
	controller auth.Address,
	amount int64,
) (uuid.UUID, error) {
	if amount <= 0 {
		return uuid.Nil, fmt.Errorf("amount must be positive")
	}

	evt := &event.WithdrawalClaimed{
		RequestID:  uuid.New(),
		Controller: controller,
		Amount:     amount,
		Sequence:   s.nextSequence(PartitionClaims),
		Timestamp:  time.Now(),
	}

	return evt.RequestID, s.send(ctx, evt)
}

// SubmitRedeemClaim claims redeemable shares for a controller.
func (s *IngestService) SubmitRedeemClaim(
	ctx context.Context,
	controller auth.Address,
	shares int64,
) (uuid.UUID, error) {
	if shares <= 0 {
		return uuid.Nil, fmt.Errorf("shares must be positive")
	}

	evt := &event.SharesRedeemed{
		RequestID:  uuid.New(),
		Controller: controller,
		Shares:     shares,
		Sequence:   s.nextSequence(PartitionClaims),
		Timestamp:  time.Now(),
	}

	return evt.RequestID, s.send(ctx, evt)
}

func (s *IngestService) send(ctx context.Context, evt event.Event) error {
	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
