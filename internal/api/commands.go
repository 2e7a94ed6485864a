package api

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"VaultQueue/internal/auction"
	"VaultQueue/internal/auth"
	"VaultQueue/internal/ingestion"
)

// Commands serves write endpoints. Each accepted command is handed to
// the ingest service, which numbers it and feeds it to the core; the
// response carries the request id, not the outcome. Callers observe the
// outcome through the query endpoints once the event has been applied.
type Commands struct {
	ingest *ingestion.IngestService
}

func NewCommands(ingest *ingestion.IngestService) *Commands {
	return &Commands{ingest: ingest}
}

type commandAccepted struct {
	RequestID string `json:"request_id"`
}

type redemptionRequest struct {
	Sender     string `json:"sender"`
	Controller string `json:"controller"`
	Shares     int64  `json:"shares"`
}

func (c *Commands) handleSubmitRedemption(w http.ResponseWriter, req *http.Request) error {
	var body redemptionRequest
	if err := ParseJSON(req.Body, &body); err != nil {
		return BadRequest(fmt.Errorf("body: %w", err))
	}

	sender, err := auth.ParseAddress(body.Sender)
	if err != nil {
		return BadRequest(fmt.Errorf("sender: %w", err))
	}
	controller, err := auth.ParseAddress(body.Controller)
	if err != nil {
		return BadRequest(fmt.Errorf("controller: %w", err))
	}

	id, err := c.ingest.SubmitRedemption(req.Context(), *sender, *controller, body.Shares)
	if err != nil {
		return BadRequest(err)
	}
	return writeJSONStatus(w, http.StatusAccepted, commandAccepted{RequestID: id.String()})
}

type fulfillmentRequest struct {
	Sender          string `json:"sender"`
	SharesToProcess int64  `json:"shares_to_process"`
	SharePrice      int64  `json:"share_price"`
}

func (c *Commands) handleSubmitFulfillment(w http.ResponseWriter, req *http.Request) error {
	var body fulfillmentRequest
	if err := ParseJSON(req.Body, &body); err != nil {
		return BadRequest(fmt.Errorf("body: %w", err))
	}

	sender, err := auth.ParseAddress(body.Sender)
	if err != nil {
		return BadRequest(fmt.Errorf("sender: %w", err))
	}

	id, err := c.ingest.SubmitFulfillment(req.Context(), *sender, body.SharesToProcess, body.SharePrice)
	if err != nil {
		return BadRequest(err)
	}
	return writeJSONStatus(w, http.StatusAccepted, commandAccepted{RequestID: id.String()})
}

type bidBody struct {
	RedemptionID    int64  `json:"redemption_id"`
	RequestedShares int64  `json:"requested_shares"`
	FeeBps          int64  `json:"fee_bps"`
	Nonce           uint64 `json:"nonce"`
	Timestamp       int64  `json:"timestamp"`
	Signature       string `json:"signature"`
}

type bidBatchRequest struct {
	Sender string    `json:"sender"`
	Bids   []bidBody `json:"bids"`
}

func (c *Commands) handleSubmitBids(w http.ResponseWriter, req *http.Request) error {
	roundID, err := pathInt64(req, "id")
	if err != nil {
		return BadRequest(fmt.Errorf("invalid round id: %w", err))
	}

	var body bidBatchRequest
	if err := ParseJSON(req.Body, &body); err != nil {
		return BadRequest(fmt.Errorf("body: %w", err))
	}

	sender, err := auth.ParseAddress(body.Sender)
	if err != nil {
		return BadRequest(fmt.Errorf("sender: %w", err))
	}

	bids := make([]auction.Bid, 0, len(body.Bids))
	for i, b := range body.Bids {
		sig, err := hex.DecodeString(strings.TrimPrefix(b.Signature, "0x"))
		if err != nil {
			return BadRequest(fmt.Errorf("bid[%d] signature: %w", i, err))
		}
		if len(sig) != auth.SignatureLength {
			return BadRequest(fmt.Errorf("bid[%d] signature must be %d bytes", i, auth.SignatureLength))
		}
		bids = append(bids, auction.Bid{
			RoundID:         roundID,
			RedemptionID:    b.RedemptionID,
			RequestedShares: b.RequestedShares,
			FeeBps:          b.FeeBps,
			Nonce:           b.Nonce,
			Timestamp:       b.Timestamp,
			Signature:       sig,
		})
	}

	id, err := c.ingest.SubmitBidBatch(req.Context(), *sender, roundID, bids)
	if err != nil {
		return BadRequest(err)
	}
	return writeJSONStatus(w, http.StatusAccepted, commandAccepted{RequestID: id.String()})
}

type settleRequest struct {
	Sender string `json:"sender"`
}

func (c *Commands) handleSettleRound(w http.ResponseWriter, req *http.Request) error {
	roundID, err := pathInt64(req, "id")
	if err != nil {
		return BadRequest(fmt.Errorf("invalid round id: %w", err))
	}

	var body settleRequest
	if err := ParseJSON(req.Body, &body); err != nil {
		return BadRequest(fmt.Errorf("body: %w", err))
	}

	sender, err := auth.ParseAddress(body.Sender)
	if err != nil {
		return BadRequest(fmt.Errorf("sender: %w", err))
	}

	id, err := c.ingest.SubmitSettle(req.Context(), *sender, roundID)
	if err != nil {
		return BadRequest(err)
	}
	return writeJSONStatus(w, http.StatusAccepted, commandAccepted{RequestID: id.String()})
}

type reorderRequest struct {
	Sender    string `json:"sender"`
	BatchSize int    `json:"batch_size"`
}

func (c *Commands) handleReorderRound(w http.ResponseWriter, req *http.Request) error {
	roundID, err := pathInt64(req, "id")
	if err != nil {
		return BadRequest(fmt.Errorf("invalid round id: %w", err))
	}

	var body reorderRequest
	if err := ParseJSON(req.Body, &body); err != nil {
		return BadRequest(fmt.Errorf("body: %w", err))
	}

	sender, err := auth.ParseAddress(body.Sender)
	if err != nil {
		return BadRequest(fmt.Errorf("sender: %w", err))
	}

	id, err := c.ingest.SubmitReorder(req.Context(), *sender, roundID, body.BatchSize)
	if err != nil {
		return BadRequest(err)
	}
	return writeJSONStatus(w, http.StatusAccepted, commandAccepted{RequestID: id.String()})
}

type withdrawClaimRequest struct {
	Controller string `json:"controller"`
	Amount     int64  `json:"amount"`
}

func (c *Commands) handleWithdrawClaim(w http.ResponseWriter, req *http.Request) error {
	var body withdrawClaimRequest
	if err := ParseJSON(req.Body, &body); err != nil {
		return BadRequest(fmt.Errorf("body: %w", err))
	}

	controller, err := auth.ParseAddress(body.Controller)
	if err != nil {
		return BadRequest(fmt.Errorf("controller: %w", err))
	}

	id, err := c.ingest.SubmitWithdrawClaim(req.Context(), *controller, body.Amount)
	if err != nil {
		return BadRequest(err)
	}
	return writeJSONStatus(w, http.StatusAccepted, commandAccepted{RequestID: id.String()})
}

type redeemClaimRequest struct {
	Controller string `json:"controller"`
	Shares     int64  `json:"shares"`
}

func (c *Commands) handleRedeemClaim(w http.ResponseWriter, req *http.Request) error {
	var body redeemClaimRequest
	if err := ParseJSON(req.Body, &body); err != nil {
		return BadRequest(fmt.Errorf("body: %w", err))
	}

	controller, err := auth.ParseAddress(body.Controller)
	if err != nil {
		return BadRequest(fmt.Errorf("controller: %w", err))
	}

	id, err := c.ingest.SubmitRedeemClaim(req.Context(), *controller, body.Shares)
	if err != nil {
		return BadRequest(err)
	}
	return writeJSONStatus(w, http.StatusAccepted, commandAccepted{RequestID: id.String()})
}

// Mount registers the command routes on the router.
func (c *Commands) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/redemptions").
		Methods(http.MethodPost).
		Name("command_submit_redemption").
		HandlerFunc(WrapHandlerFunc(c.handleSubmitRedemption))
	sub.Path("/fulfillments").
		Methods(http.MethodPost).
		Name("command_submit_fulfillment").
		HandlerFunc(WrapHandlerFunc(c.handleSubmitFulfillment))
	sub.Path("/rounds/{id}/bids").
		Methods(http.MethodPost).
		Name("command_submit_bids").
		HandlerFunc(WrapHandlerFunc(c.handleSubmitBids))
	sub.Path("/rounds/{id}/settle").
		Methods(http.MethodPost).
		Name("command_settle_round").
		HandlerFunc(WrapHandlerFunc(c.handleSettleRound))
	sub.Path("/rounds/{id}/reorder").
		Methods(http.MethodPost).
		Name("command_reorder_round").
		HandlerFunc(WrapHandlerFunc(c.handleReorderRound))
	sub.Path("/claims/withdraw").
		Methods(http.MethodPost).
		Name("command_withdraw_claim").
		HandlerFunc(WrapHandlerFunc(c.handleWithdrawClaim))
	sub.Path("/claims/redeem").
		Methods(http.MethodPost).
		Name("command_redeem_claim").
		HandlerFunc(WrapHandlerFunc(c.handleRedeemClaim))
}
