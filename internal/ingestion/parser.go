package ingestion

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"VaultQueue/internal/auction"
	"VaultQueue/internal/auth"
	"VaultQueue/internal/event"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into
// a typed event.Event. The shell validates, parses, and converts raw
// events before sending them to the deterministic core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "RedemptionRequested":
		return parseRedemptionRequested(raw.Data)
	case "FulfillmentTriggered":
		return parseFulfillmentTriggered(raw.Data)
	case "BidBatchPosted":
		return parseBidBatchPosted(raw.Data)
	case "RoundSettleRequested":
		return parseRoundSettleRequested(raw.Data)
	case "ReorderBatchRequested":
		return parseReorderBatchRequested(raw.Data)
	case "WithdrawalClaimed":
		return parseWithdrawalClaimed(raw.Data)
	case "SharesRedeemed":
		return parseSharesRedeemed(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers. Addresses are
// 0x-prefixed hex; signatures are 65-byte compact secp256k1, hex-encoded.

type redemptionRequestedJSON struct {
	RequestID   string `json:"request_id"`
	Sender      string `json:"sender"`
	Controller  string `json:"controller"`
	Shares      int64  `json:"shares"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseRedemptionRequested(data []byte) (*event.RedemptionRequested, error) {
	var j redemptionRequestedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RedemptionRequested: %w", err)
	}

	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	sender, err := auth.ParseAddress(j.Sender)
	if err != nil {
		return nil, fmt.Errorf("parse sender: %w", err)
	}
	controller, err := auth.ParseAddress(j.Controller)
	if err != nil {
		return nil, fmt.Errorf("parse controller: %w", err)
	}

	return &event.RedemptionRequested{
		RequestID:  requestID,
		Sender:     *sender,
		Controller: *controller,
		Shares:     j.Shares,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type fulfillmentTriggeredJSON struct {
	RequestID       string `json:"request_id"`
	Sender          string `json:"sender"`
	SharesToProcess int64  `json:"shares_to_process"`
	SharePrice      int64  `json:"share_price"`
	Sequence        int64  `json:"sequence"`
	TimestampUs     int64  `json:"timestamp_us"`
}

func parseFulfillmentTriggered(data []byte) (*event.FulfillmentTriggered, error) {
	var j fulfillmentTriggeredJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FulfillmentTriggered: %w", err)
	}

	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	sender, err := auth.ParseAddress(j.Sender)
	if err != nil {
		return nil, fmt.Errorf("parse sender: %w", err)
	}

	return &event.FulfillmentTriggered{
		RequestID:       requestID,
		Sender:          *sender,
		SharesToProcess: j.SharesToProcess,
		SharePrice:      j.SharePrice,
		Sequence:        j.Sequence,
		Timestamp:       time.UnixMicro(j.TimestampUs),
	}, nil
}

type bidJSON struct {
	RoundID         int64  `json:"round_id"`
	RedemptionID    int64  `json:"redemption_id"`
	RequestedShares int64  `json:"requested_shares"`
	FeeBps          int64  `json:"fee_bps"`
	Nonce           uint64 `json:"nonce"`
	Timestamp       int64  `json:"timestamp"`
	Signature       string `json:"signature"`
}

type bidBatchPostedJSON struct {
	BatchID     string    `json:"batch_id"`
	Sender      string    `json:"sender"`
	RoundID     int64     `json:"round_id"`
	Bids        []bidJSON `json:"bids"`
	Sequence    int64     `json:"sequence"`
	TimestampUs int64     `json:"timestamp_us"`
}

func parseBidBatchPosted(data []byte) (*event.BidBatchPosted, error) {
	var j bidBatchPostedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse BidBatchPosted: %w", err)
	}

	batchID, err := uuid.Parse(j.BatchID)
	if err != nil {
		return nil, fmt.Errorf("parse batch_id: %w", err)
	}
	sender, err := auth.ParseAddress(j.Sender)
	if err != nil {
		return nil, fmt.Errorf("parse sender: %w", err)
	}

	bids := make([]auction.Bid, 0, len(j.Bids))
	for i, bj := range j.Bids {
		sig, err := parseHexSignature(bj.Signature)
		if err != nil {
			return nil, fmt.Errorf("parse bid[%d] signature: %w", i, err)
		}
		bids = append(bids, auction.Bid{
			RoundID:         bj.RoundID,
			RedemptionID:    bj.RedemptionID,
			RequestedShares: bj.RequestedShares,
			FeeBps:          bj.FeeBps,
			Nonce:           bj.Nonce,
			Timestamp:       bj.Timestamp,
			Signature:       sig,
		})
	}

	return &event.BidBatchPosted{
		BatchID:   batchID,
		Sender:    *sender,
		RoundID:   j.RoundID,
		Bids:      bids,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type roundSettleRequestedJSON struct {
	RequestID   string `json:"request_id"`
	Sender      string `json:"sender"`
	RoundID     int64  `json:"round_id"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseRoundSettleRequested(data []byte) (*event.RoundSettleRequested, error) {
	var j roundSettleRequestedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RoundSettleRequested: %w", err)
	}

	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	sender, err := auth.ParseAddress(j.Sender)
	if err != nil {
		return nil, fmt.Errorf("parse sender: %w", err)
	}

	return &event.RoundSettleRequested{
		RequestID: requestID,
		Sender:    *sender,
		RoundID:   j.RoundID,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type reorderBatchRequestedJSON struct {
	RequestID   string `json:"request_id"`
	Sender      string `json:"sender"`
	RoundID     int64  `json:"round_id"`
	BatchSize   int    `json:"batch_size"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseReorderBatchRequested(data []byte) (*event.ReorderBatchRequested, error) {
	var j reorderBatchRequestedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ReorderBatchRequested: %w", err)
	}

	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	sender, err := auth.ParseAddress(j.Sender)
	if err != nil {
		return nil, fmt.Errorf("parse sender: %w", err)
	}

	return &event.ReorderBatchRequested{
		RequestID: requestID,
		Sender:    *sender,
		RoundID:   j.RoundID,
		BatchSize: j.BatchSize,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type withdrawalClaimedJSON struct {
	RequestID   string `json:"request_id"`
	Controller  string `json:"controller"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseWithdrawalClaimed(data []byte) (*event.WithdrawalClaimed, error) {
	var j withdrawalClaimedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WithdrawalClaimed: %w", err)
	}

	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	controller, err := auth.ParseAddress(j.Controller)
	if err != nil {
		return nil, fmt.Errorf("parse controller: %w", err)
	}

	return &event.WithdrawalClaimed{
		RequestID:  requestID,
		Controller: *controller,
		Amount:     j.Amount,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type sharesRedeemedJSON struct {
	RequestID   string `json:"request_id"`
	Controller  string `json:"controller"`
	Shares      int64  `json:"shares"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseSharesRedeemed(data []byte) (*event.SharesRedeemed, error) {
	var j sharesRedeemedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SharesRedeemed: %w", err)
	}

	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	controller, err := auth.ParseAddress(j.Controller)
	if err != nil {
		return nil, fmt.Errorf("parse controller: %w", err)
	}

	return &event.SharesRedeemed{
		RequestID:  requestID,
		Controller: *controller,
		Shares:     j.Shares,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseHexSignature(s string) ([]byte, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, err
	}
	if len(sig) != auth.SignatureLength {
		return nil, fmt.Errorf("signature must be %d bytes, got %d", auth.SignatureLength, len(sig))
	}
	return sig, nil
}
