package query

// EntryResponse represents one redemption entry for API queries.
type EntryResponse struct {
	EntryID            int64  `json:"entry_id"`
	Controller         string `json:"controller"`
	PendingShares      int64  `json:"pending_shares"`
	RedeemableShares   int64  `json:"redeemable_shares"`
	WithdrawableAmount int64  `json:"withdrawable_amount"`
	CreatedAtWindow    int64  `json:"created_at_window"`
	AsOfSequence       int64  `json:"as_of_sequence"`
}

// SharesAheadResponse reports the queue depth in front of an entry. The sum
// is exact unless Truncated is set, in which case it is a lower bound after
// the scan cap was hit.
type SharesAheadResponse struct {
	EntryID     int64 `json:"entry_id"`
	SharesAhead int64 `json:"shares_ahead"`
	Truncated   bool  `json:"truncated"`
	AsOfSequence int64 `json:"as_of_sequence"`
}

// ClaimableResponse aggregates a controller's claimable balances.
type ClaimableResponse struct {
	Controller         string `json:"controller"`
	RedeemableShares   int64  `json:"redeemable_shares"`
	WithdrawableAmount int64  `json:"withdrawable_amount"`
	EntryCount         int    `json:"entry_count"`
	AsOfSequence       int64  `json:"as_of_sequence"`
}

// RoundResponse represents one auction round for API queries.
type RoundResponse struct {
	RoundID                   int64 `json:"round_id"`
	AcceptedBidCount          int   `json:"accepted_bid_count"`
	ProcessedBidCount         int   `json:"processed_bid_count"`
	LastProcessedRedemptionID int64 `json:"last_processed_redemption_id"`
	RoundComplete             bool  `json:"round_complete"`
	SettledAt                 int64 `json:"settled_at"`
	TotalFee                  int64 `json:"total_fee"`
	AdminFee                  int64 `json:"admin_fee"`
	Burnt                     int64 `json:"burnt"`
	AsOfSequence              int64 `json:"as_of_sequence"`
}

// AggregatesResponse reports queue-wide totals.
type AggregatesResponse struct {
	TotalPendingShares int64 `json:"total_pending_shares"`
	TotalReservedAsset int64 `json:"total_reserved_asset"`
	EntryCount         int64 `json:"entry_count"`
	AsOfSequence       int64 `json:"as_of_sequence"`
}

// EventHistoryEntry represents one event-log row for API queries.
type EventHistoryEntry struct {
	Sequence       int64  `json:"sequence"`
	EventType      string `json:"event_type"`
	IdempotencyKey string `json:"idempotency_key"`
	SourceSequence int64  `json:"source_sequence"`
	Timestamp      int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	NegativeEntries []int64 `json:"negative_entries,omitempty"`
}
