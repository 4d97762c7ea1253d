/*
handlers.go - HTTP API handlers for the co-op bank tracker

PURPOSE:
  Exposes the ledger via REST. Handles HTTP request/response and JSON
  serialization and delegates to ledger.Manager. Reads are served from
  the last published snapshot; writes go through the Manager.

ENDPOINTS:
  GET    /api/ledger          Pool summary (balance, drift, upgrade cap)
  GET    /api/members         Member shares and 24h change, largest first
  GET    /api/journal?limit=N Stacked history, newest first (default 25)
  GET    /api/runs?limit=N    Recorded reconciliation passes
  POST   /api/reconcile       Run a reconciliation pass now
  POST   /api/transfers       Record a manual transfer between members

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input, invalid transfer
  - 404: Feature not configured
  - 502: Reconciliation pass failed upstream or in storage
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - hub.go: WebSocket variant of the write commands
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/coop-banker/ledger"
)

const (
	defaultHistoryLimit = 25
	maxHistoryLimit     = 1000
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// RunLister lists recorded reconciliation passes, most recent first.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]ledger.Run, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Manager *ledger.Manager
	Hub     *Hub

	// Runs is optional; without it /api/runs answers 404.
	Runs RunLister
	// Now is the clock used for the 24h evolution window.
	Now func() time.Time

	logger    zerolog.Logger
	dashboard *template.Template
}

// NewHandler creates a handler and its websocket hub.
func NewHandler(manager *ledger.Manager, logger zerolog.Logger) *Handler {
	h := &Handler{
		Manager:   manager,
		Now:       time.Now,
		logger:    logger.With().Str("component", "api").Logger(),
		dashboard: dashboardTemplate,
	}
	h.Hub = NewHub(h, logger)
	return h
}

// =============================================================================
// COMMANDS - Shared by REST, websocket and the scheduler
// =============================================================================

// Reconcile runs one pass and notifies dashboards on success.
func (h *Handler) Reconcile(ctx context.Context) error {
	_, err := h.runPass(ctx)
	return err
}

func (h *Handler) runPass(ctx context.Context) (ledger.PassReport, error) {
	report, err := h.Manager.RunPass(ctx)
	if err != nil {
		return report, err
	}
	h.Hub.Broadcast(MessageReload)
	return report, nil
}

// Transfer records a manual transfer and notifies dashboards on success.
func (h *Handler) Transfer(ctx context.Context, amount decimal.Decimal, sender, receiver ledger.Username) error {
	_, err := h.transfer(ctx, amount, sender, receiver)
	return err
}

func (h *Handler) transfer(ctx context.Context, amount decimal.Decimal, sender, receiver ledger.Username) (ledger.Entry, error) {
	entry, err := h.Manager.Transfer(ctx, amount, sender, receiver)
	if err != nil {
		return entry, err
	}
	h.Hub.Broadcast(MessageReload)
	return entry, nil
}

// =============================================================================
// LEDGER ENDPOINTS
// =============================================================================

// GetLedger returns the pool summary.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toLedgerDTO(h.Manager.Snapshot()))
}

// ListMembers returns member shares with their 24h change.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toMemberDTOs(h.Manager.Snapshot(), h.Now()))
}

// GetJournal returns the stacked history.
func (h *Handler) GetJournal(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit", err)
		return
	}

	items := ledger.History(h.Manager.Snapshot().Journal, limit)
	writeJSON(w, http.StatusOK, toHistoryDTOs(items))
}

// ListRuns returns recorded passes.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.Runs == nil {
		writeError(w, http.StatusNotFound, "run audit is not available with this store", nil)
		return
	}
	limit, err := parseLimit(r, defaultHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit", err)
		return
	}

	runs, err := h.Runs.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTOs(runs))
}

// =============================================================================
// WRITE ENDPOINTS
// =============================================================================

// TriggerReconcile runs a pass immediately.
func (h *Handler) TriggerReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.runPass(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "reconciliation pass failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toPassReportDTO(report))
}

// CreateTransfer records a manual transfer.
func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	entry, err := h.transfer(r.Context(), req.Amount, ledger.Username(req.Sender), ledger.Username(req.Receiver))
	if err != nil {
		if ledger.IsClientError(err) {
			writeError(w, http.StatusBadRequest, "invalid transfer", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to record transfer", err)
		return
	}

	h.logger.Info().
		Str("sender", req.Sender).
		Str("receiver", req.Receiver).
		Str("amount", req.Amount.String()).
		Msg("manual transfer recorded")
	writeJSON(w, http.StatusCreated, toHistoryDTOs([]ledger.HistoryItem{{At: entry.At, Operation: entry.Operation}})[0])
}

// =============================================================================
// HELPERS
// =============================================================================

func parseLimit(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if limit < 1 || limit > maxHistoryLimit {
		return 0, errors.New("limit must be between 1 and " + strconv.Itoa(maxHistoryLimit))
	}
	return limit, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
