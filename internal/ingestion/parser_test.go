package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"VaultQueue/internal/event"
	"VaultQueue/internal/ingestion"
)

const (
	testSender     = "0x1111111111111111111111111111111111111111"
	testController = "0x2222222222222222222222222222222222222222"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseRedemptionRequested(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":   "550e8400-e29b-41d4-a716-446655440000",
		"sender":       testSender,
		"controller":   testController,
		"shares":       int64(5_000_000),
		"sequence":     int64(7),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "RedemptionRequested")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	rr, ok := evt.(*event.RedemptionRequested)
	if !ok {
		t.Fatalf("expected *event.RedemptionRequested, got %T", evt)
	}

	if rr.Controller.String() != testController {
		t.Errorf("controller: got %s, want %s", rr.Controller, testController)
	}
	if rr.Shares != 5_000_000 {
		t.Errorf("shares: got %d, want 5_000_000", rr.Shares)
	}
	if rr.SourceSequence() != 7 {
		t.Errorf("sequence: got %d, want 7", rr.SourceSequence())
	}
	if rr.EventType() != event.EventTypeRedemptionRequested {
		t.Errorf("event type: got %v, want RedemptionRequested", rr.EventType())
	}
	if rr.Caller() != rr.Sender {
		t.Error("caller should be the sender")
	}
}

func TestParseFulfillmentTriggered(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":        "550e8400-e29b-41d4-a716-446655440000",
		"sender":            testSender,
		"shares_to_process": int64(10_000_000),
		"share_price":       int64(1_050_000),
		"sequence":          int64(3),
		"timestamp_us":      int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "FulfillmentTriggered")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	ft, ok := evt.(*event.FulfillmentTriggered)
	if !ok {
		t.Fatalf("expected *event.FulfillmentTriggered, got %T", evt)
	}

	if ft.SharesToProcess != 10_000_000 {
		t.Errorf("shares_to_process: got %d, want 10_000_000", ft.SharesToProcess)
	}
	if ft.SharePrice != 1_050_000 {
		t.Errorf("share_price: got %d, want 1_050_000", ft.SharePrice)
	}
}

func TestParseBidBatchPosted(t *testing.T) {
	sig := "0x" + repeatHex("ab", 65)
	payload := map[string]interface{}{
		"batch_id": "660e8400-e29b-41d4-a716-446655440001",
		"sender":   testSender,
		"round_id": int64(4),
		"bids": []map[string]interface{}{
			{
				"round_id":         int64(4),
				"redemption_id":    int64(12),
				"requested_shares": int64(2_000_000),
				"fee_bps":          int64(250),
				"nonce":            uint64(1),
				"timestamp":        int64(1700000000),
				"signature":        sig,
			},
		},
		"sequence":     int64(9),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "BidBatchPosted")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	bb, ok := evt.(*event.BidBatchPosted)
	if !ok {
		t.Fatalf("expected *event.BidBatchPosted, got %T", evt)
	}

	if bb.RoundID != 4 {
		t.Errorf("round_id: got %d, want 4", bb.RoundID)
	}
	if len(bb.Bids) != 1 {
		t.Fatalf("bids: got %d, want 1", len(bb.Bids))
	}
	bid := bb.Bids[0]
	if bid.RedemptionID != 12 {
		t.Errorf("redemption_id: got %d, want 12", bid.RedemptionID)
	}
	if bid.FeeBps != 250 {
		t.Errorf("fee_bps: got %d, want 250", bid.FeeBps)
	}
	if len(bid.Signature) != 65 {
		t.Errorf("signature length: got %d, want 65", len(bid.Signature))
	}
}

func TestParseBidBatchPosted_BadSignatureLength(t *testing.T) {
	payload := map[string]interface{}{
		"batch_id": "660e8400-e29b-41d4-a716-446655440001",
		"sender":   testSender,
		"round_id": int64(4),
		"bids": []map[string]interface{}{
			{
				"round_id":         int64(4),
				"redemption_id":    int64(12),
				"requested_shares": int64(2_000_000),
				"fee_bps":          int64(250),
				"nonce":            uint64(1),
				"timestamp":        int64(1700000000),
				"signature":        "0xdeadbeef",
			},
		},
		"sequence":     int64(9),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "BidBatchPosted"); err == nil {
		t.Fatal("expected error for short signature")
	}
}

func TestParseRoundSettleRequested(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":   "770e8400-e29b-41d4-a716-446655440002",
		"sender":       testSender,
		"round_id":     int64(2),
		"sequence":     int64(10),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "RoundSettleRequested")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	rs, ok := evt.(*event.RoundSettleRequested)
	if !ok {
		t.Fatalf("expected *event.RoundSettleRequested, got %T", evt)
	}

	if rs.RoundID != 2 {
		t.Errorf("round_id: got %d, want 2", rs.RoundID)
	}
}

func TestParseReorderBatchRequested(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":   "880e8400-e29b-41d4-a716-446655440003",
		"sender":       testSender,
		"round_id":     int64(2),
		"batch_size":   int64(50),
		"sequence":     int64(11),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "ReorderBatchRequested")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	rb, ok := evt.(*event.ReorderBatchRequested)
	if !ok {
		t.Fatalf("expected *event.ReorderBatchRequested, got %T", evt)
	}

	if rb.BatchSize != 50 {
		t.Errorf("batch_size: got %d, want 50", rb.BatchSize)
	}
}

func TestParseWithdrawalClaimed(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":   "990e8400-e29b-41d4-a716-446655440004",
		"controller":   testController,
		"amount":       int64(750_000),
		"sequence":     int64(0),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "WithdrawalClaimed")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	wc, ok := evt.(*event.WithdrawalClaimed)
	if !ok {
		t.Fatalf("expected *event.WithdrawalClaimed, got %T", evt)
	}

	if wc.Amount != 750_000 {
		t.Errorf("amount: got %d, want 750_000", wc.Amount)
	}
	if wc.Caller() != wc.Controller {
		t.Error("claims are self-authorized: caller should be the controller")
	}
}

func TestParseSharesRedeemed(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":   "aa0e8400-e29b-41d4-a716-446655440005",
		"controller":   testController,
		"shares":       int64(1_250_000),
		"sequence":     int64(1),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "SharesRedeemed")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	sr, ok := evt.(*event.SharesRedeemed)
	if !ok {
		t.Fatalf("expected *event.SharesRedeemed, got %T", evt)
	}

	if sr.Shares != 1_250_000 {
		t.Errorf("shares: got %d, want 1_250_000", sr.Shares)
	}
	if sr.EventType() != event.EventTypeSharesRedeemed {
		t.Errorf("event type: got %v, want SharesRedeemed", sr.EventType())
	}
}

func TestParseUnknownEventType_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{}`)}
	_, err := ingestion.ParseRawEvent(raw, "NonExistentType")
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{invalid json`)}
	_, err := ingestion.ParseRawEvent(raw, "RedemptionRequested")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseInvalidAddress_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":   "550e8400-e29b-41d4-a716-446655440000",
		"sender":       "0x1234",
		"controller":   testController,
		"shares":       int64(1),
		"sequence":     int64(0),
		"timestamp_us": int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawEvent(raw, "RedemptionRequested")
	if err == nil {
		t.Fatal("expected error for invalid address")
	}
}

func repeatHex(b string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += b
	}
	return out
}
