package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"VaultQueue/internal/auction"
	"VaultQueue/internal/auth"
	"VaultQueue/internal/ledger"
	"VaultQueue/internal/observability"
	"VaultQueue/internal/query"
)

// StateInspector runs a closure against the live core state on the
// engine goroutine. Used for queries that need chain order, which the
// projections do not keep.
type StateInspector interface {
	Inspect(ctx context.Context, fn func(queue *ledger.Ledger, auctions *auction.Registry, sequence int64)) error
}

// Queries serves read endpoints backed by the projections, plus the
// shares-ahead endpoint backed by the live core state.
type Queries struct {
	svc       *query.Service
	inspector StateInspector
	metrics   *observability.Metrics
}

func NewQueries(svc *query.Service, inspector StateInspector, metrics *observability.Metrics) *Queries {
	return &Queries{
		svc:       svc,
		inspector: inspector,
		metrics:   metrics,
	}
}

func (q *Queries) handleGetEntry(w http.ResponseWriter, req *http.Request) error {
	entryID, err := pathInt64(req, "id")
	if err != nil {
		return BadRequest(fmt.Errorf("invalid entry id: %w", err))
	}

	entry, err := q.svc.GetEntry(req.Context(), entryID)
	if err != nil {
		if errors.Is(err, query.ErrNotFound) {
			return NotFound(fmt.Errorf("entry %d not found", entryID))
		}
		return err
	}
	return WriteJSON(w, entry)
}

func (q *Queries) handleSharesAhead(w http.ResponseWriter, req *http.Request) error {
	entryID, err := pathInt64(req, "id")
	if err != nil {
		return BadRequest(fmt.Errorf("invalid entry id: %w", err))
	}

	var (
		resp       query.SharesAheadResponse
		inspectErr error
	)
	err = q.inspector.Inspect(req.Context(), func(queue *ledger.Ledger, _ *auction.Registry, sequence int64) {
		shares, truncated, err := queue.SharesAhead(entryID)
		if err != nil {
			inspectErr = err
			return
		}
		resp = query.SharesAheadResponse{
			EntryID:      entryID,
			SharesAhead:  shares,
			Truncated:    truncated,
			AsOfSequence: sequence,
		}
	})
	if err != nil {
		return err
	}
	if inspectErr != nil {
		return NotFound(inspectErr)
	}
	return WriteJSON(w, resp)
}

func (q *Queries) handleOwnerEntries(w http.ResponseWriter, req *http.Request) error {
	controller, err := pathAddress(req, "address")
	if err != nil {
		return BadRequest(err)
	}

	entries, err := q.svc.GetOwnerEntries(req.Context(), controller)
	if err != nil {
		return err
	}
	return WriteJSON(w, entries)
}

func (q *Queries) handleClaimable(w http.ResponseWriter, req *http.Request) error {
	controller, err := pathAddress(req, "address")
	if err != nil {
		return BadRequest(err)
	}

	claimable, err := q.svc.GetClaimable(req.Context(), controller)
	if err != nil {
		return err
	}
	return WriteJSON(w, claimable)
}

func (q *Queries) handleAggregates(w http.ResponseWriter, req *http.Request) error {
	agg, err := q.svc.GetAggregates(req.Context())
	if err != nil {
		return err
	}
	return WriteJSON(w, agg)
}

func (q *Queries) handleGetRound(w http.ResponseWriter, req *http.Request) error {
	roundID, err := pathInt64(req, "id")
	if err != nil {
		return BadRequest(fmt.Errorf("invalid round id: %w", err))
	}

	round, err := q.svc.GetRound(req.Context(), roundID)
	if err != nil {
		if errors.Is(err, query.ErrNotFound) {
			return NotFound(fmt.Errorf("round %d not found", roundID))
		}
		return err
	}
	return WriteJSON(w, round)
}

func (q *Queries) handleLatestRounds(w http.ResponseWriter, req *http.Request) error {
	limit := queryInt(req, "limit", 20)
	if limit < 1 || limit > 200 {
		return BadRequest(fmt.Errorf("limit must be in [1,200]"))
	}

	rounds, err := q.svc.GetLatestRounds(req.Context(), limit)
	if err != nil {
		return err
	}
	return WriteJSON(w, rounds)
}

func (q *Queries) handleEvents(w http.ResponseWriter, req *http.Request) error {
	limit := queryInt(req, "limit", 100)
	if limit < 1 || limit > 1000 {
		return BadRequest(fmt.Errorf("limit must be in [1,1000]"))
	}

	var afterSequence *int64
	if s := req.URL.Query().Get("after"); s != "" {
		after, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return BadRequest(fmt.Errorf("invalid after cursor: %w", err))
		}
		afterSequence = &after
	}

	events, err := q.svc.GetEventHistory(req.Context(), limit, afterSequence)
	if err != nil {
		return err
	}
	return WriteJSON(w, events)
}

func (q *Queries) handleIntegrity(w http.ResponseWriter, req *http.Request) error {
	report, err := q.svc.VerifyIntegrity(req.Context())
	if err != nil {
		return err
	}
	return WriteJSON(w, report)
}

// Mount registers the query routes on the router.
func (q *Queries) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/entries/{id}").
		Methods(http.MethodGet).
		Name("query_get_entry").
		HandlerFunc(q.wrap("get_entry", q.handleGetEntry))
	sub.Path("/entries/{id}/ahead").
		Methods(http.MethodGet).
		Name("query_shares_ahead").
		HandlerFunc(q.wrap("shares_ahead", q.handleSharesAhead))
	sub.Path("/owners/{address}/entries").
		Methods(http.MethodGet).
		Name("query_owner_entries").
		HandlerFunc(q.wrap("owner_entries", q.handleOwnerEntries))
	sub.Path("/owners/{address}/claimable").
		Methods(http.MethodGet).
		Name("query_claimable").
		HandlerFunc(q.wrap("claimable", q.handleClaimable))
	sub.Path("/queue/aggregates").
		Methods(http.MethodGet).
		Name("query_aggregates").
		HandlerFunc(q.wrap("aggregates", q.handleAggregates))
	sub.Path("/rounds").
		Methods(http.MethodGet).
		Name("query_latest_rounds").
		HandlerFunc(q.wrap("latest_rounds", q.handleLatestRounds))
	sub.Path("/rounds/{id}").
		Methods(http.MethodGet).
		Name("query_get_round").
		HandlerFunc(q.wrap("get_round", q.handleGetRound))
	sub.Path("/events").
		Methods(http.MethodGet).
		Name("query_events").
		HandlerFunc(q.wrap("events", q.handleEvents))
	sub.Path("/admin/integrity").
		Methods(http.MethodGet).
		Name("query_integrity").
		HandlerFunc(q.wrap("integrity", q.handleIntegrity))
}

// wrap adapts a HandlerFunc and records per-endpoint metrics.
func (q *Queries) wrap(endpoint string, f HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		err := f(w, r)

		if q.metrics != nil {
			status := "ok"
			if err != nil {
				status = "error"
				code := "internal"
				if he, ok := err.(*httpError); ok {
					code = strconv.Itoa(he.status)
				}
				q.metrics.QueryErrors.WithLabelValues(endpoint, code).Inc()
			}
			q.metrics.QueryRequests.WithLabelValues(endpoint, status).Inc()
			q.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}

		if err != nil {
			WrapHandlerFunc(func(http.ResponseWriter, *http.Request) error { return err })(w, r)
		}
	}
}

func pathInt64(req *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(req)[name], 10, 64)
}

func pathAddress(req *http.Request, name string) (auth.Address, error) {
	addr, err := auth.ParseAddress(mux.Vars(req)[name])
	if err != nil {
		return auth.Address{}, fmt.Errorf("invalid address: %w", err)
	}
	return *addr, nil
}

func queryInt(req *http.Request, name string, fallback int) int {
	s := req.URL.Query().Get(name)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}
