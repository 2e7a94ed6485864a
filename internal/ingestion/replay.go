package ingestion

import (
	"encoding/json"
	"fmt"

	"VaultQueue/internal/event"
)

// DecodeStoredEvent decodes an event-log payload back into a typed event
// for replay. Stored payloads are the canonical JSON encoding of the
// typed event written by the core, not the wire format produced by
// upstream producers.
func DecodeStoredEvent(eventType string, payload []byte) (event.Event, error) {
	var evt event.Event
	switch eventType {
	case "RedemptionRequested":
		evt = &event.RedemptionRequested{}
	case "FulfillmentTriggered":
		evt = &event.FulfillmentTriggered{}
	case "BidBatchPosted":
		evt = &event.BidBatchPosted{}
	case "RoundSettleRequested":
		evt = &event.RoundSettleRequested{}
	case "ReorderBatchRequested":
		evt = &event.ReorderBatchRequested{}
	case "WithdrawalClaimed":
		evt = &event.WithdrawalClaimed{}
	case "SharesRedeemed":
		evt = &event.SharesRedeemed{}
	default:
		return nil, fmt.Errorf("unknown stored event type: %s", eventType)
	}

	if err := json.Unmarshal(payload, evt); err != nil {
		return nil, fmt.Errorf("decode stored %s: %w", eventType, err)
	}
	return evt, nil
}
