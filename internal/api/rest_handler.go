package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"monetary_core/internal/credit"
	"monetary_core/internal/domain"
	"monetary_core/internal/ledger"
	"monetary_core/internal/monitor"
	"monetary_core/internal/repository"
	"monetary_core/internal/settlement"
	"monetary_core/pkg/crypto"
)

type APIHandler struct {
	facade         *settlement.Facade
	ledger         *ledger.Ledger
	book           *credit.Book
	monitor        *monitor.Monitor
	results        repository.ResultRepository
	rules          repository.RuleRepository
	signer         *crypto.Signer
	logger         *slog.Logger
	requestTimeout time.Duration
}

type Dependencies struct {
	Facade  *settlement.Facade
	Ledger  *ledger.Ledger
	Book    *credit.Book
	Monitor *monitor.Monitor
	Results repository.ResultRepository
	Rules   repository.RuleRepository
	Signer  *crypto.Signer
	Logger  *slog.Logger
}

func NewAPIHandler(deps Dependencies) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &APIHandler{
		facade:         deps.Facade,
		ledger:         deps.Ledger,
		book:           deps.Book,
		monitor:        deps.Monitor,
		results:        deps.Results,
		rules:          deps.Rules,
		signer:         deps.Signer,
		logger:         logger,
		requestTimeout: 30 * time.Second,
	}
}

type SubmitTransactionRequest struct {
	ID       string                 `json:"id,omitempty"`
	Type     domain.TransactionType `json:"type"`
	Tick     int64                  `json:"tick"`
	Legs     []domain.Leg           `json:"legs"`
	Memo     string                 `json:"memo,omitempty"`
	Metadata map[string]string      `json:"metadata,omitempty"`
}

type AccountResponse struct {
	Account    domain.Account    `json:"account"`
	Deposits   []domain.Deposit  `json:"deposits"`
	Debt       credit.DebtStatus `json:"debt"`
	TickVolume int64             `json:"tick_volume"`
}

type FingerprintResponse struct {
	Tick        int64  `json:"tick"`
	Fingerprint string `json:"fingerprint"`
	Verified    bool   `json:"verified,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *APIHandler) SubmitTransactionHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req SubmitTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if req.Type == "" || len(req.Legs) == 0 {
		h.sendError(w, "type and legs are required", http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	tx := domain.NewTransaction(req.Type, req.Tick, req.Legs...).WithMemo(req.Memo)
	if req.ID != "" {
		tx.ID = req.ID
	}
	for k, v := range req.Metadata {
		tx = tx.WithMetadata(k, v)
	}

	result := h.facade.Execute(ctx, tx)
	if !result.Success {
		h.sendJSON(w, result, http.StatusUnprocessableEntity)
		return
	}
	h.sendJSON(w, result, http.StatusCreated)
}

func (h *APIHandler) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	q := r.URL.Query()
	if id := q.Get("id"); id != "" {
		record, err := h.results.GetByID(ctx, id)
		if err != nil {
			h.sendLookupError(w, "Transaction", err)
			return
		}
		h.sendJSON(w, record, http.StatusOK)
		return
	}

	agent, ok := h.agentParam(w, q.Get("agent_id"))
	if !ok {
		return
	}
	limit := intParam(q.Get("limit"), 50)
	offset := intParam(q.Get("offset"), 0)

	records, err := h.results.GetByAgent(ctx, agent, limit, offset)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		h.sendError(w, "Failed to list transactions", http.StatusInternalServerError, "SERVER_ERROR")
		return
	}
	if records == nil {
		records = []*domain.SettlementRecord{}
	}
	h.sendJSON(w, records, http.StatusOK)
}

func (h *APIHandler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	agent, ok := h.agentParam(w, r.URL.Query().Get("id"))
	if !ok {
		return
	}

	acc, err := h.ledger.Account(agent)
	if err != nil {
		h.sendLookupError(w, "Account", err)
		return
	}

	deposits := h.book.DepositsFor(agent)
	if deposits == nil {
		deposits = []domain.Deposit{}
	}
	volume, err := h.results.GetTickVolume(ctx, agent, h.ledger.Tick())
	if err != nil {
		h.sendError(w, "Failed to get tick volume", http.StatusInternalServerError, "SERVER_ERROR")
		return
	}

	h.sendJSON(w, AccountResponse{
		Account:    acc,
		Deposits:   deposits,
		Debt:       h.book.DebtStatus(agent),
		TickVolume: volume,
	}, http.StatusOK)
}

func (h *APIHandler) GetLoanHandler(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		h.sendError(w, "Loan ID is required", http.StatusBadRequest, "MISSING_ID")
		return
	}

	loan, err := h.book.Loan(id)
	if err != nil {
		h.sendLookupError(w, "Loan", err)
		return
	}
	h.sendJSON(w, loan, http.StatusOK)
}

func (h *APIHandler) ConservationHandler(w http.ResponseWriter, r *http.Request) {
	var snapshot monitor.Snapshot
	var checkErr error
	h.facade.Consistent(func() {
		tick := h.ledger.Tick()
		snapshot = h.monitor.Snapshot(tick)
		checkErr = h.monitor.Check(tick)
	})

	status := http.StatusOK
	if checkErr != nil {
		status = http.StatusConflict
	}
	h.sendJSON(w, snapshot, status)
}

// FingerprintHandler returns the current state fingerprint. With ?expect= it
// instead compares the state against a fingerprint taken earlier.
func (h *APIHandler) FingerprintHandler(w http.ResponseWriter, r *http.Request) {
	expected := r.URL.Query().Get("expect")

	var resp FingerprintResponse
	var verifyErr error
	h.facade.Consistent(func() {
		resp.Tick = h.ledger.Tick()
		resp.Fingerprint = h.monitor.Fingerprint(h.signer)
		if expected != "" {
			verifyErr = h.monitor.VerifyFingerprint(h.signer, expected)
		}
	})

	switch {
	case expected == "":
		h.sendJSON(w, resp, http.StatusOK)
	case errors.Is(verifyErr, crypto.ErrFingerprintMismatch):
		h.sendError(w, "State does not match fingerprint", http.StatusConflict, "FINGERPRINT_MISMATCH")
	case verifyErr != nil:
		h.sendError(w, "Failed to verify fingerprint", http.StatusInternalServerError, "SERVER_ERROR")
	default:
		resp.Verified = true
		h.sendJSON(w, resp, http.StatusOK)
	}
}

// GetRulesHandler lists bank rules, optionally by type or by an inclusive
// priority range. The priority filter only returns active rules.
func (h *APIHandler) GetRulesHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	if h.rules == nil {
		h.sendError(w, "Rules are not configured", http.StatusNotFound, "NOT_FOUND")
		return
	}

	q := r.URL.Query()
	var rules []*domain.Rule
	var err error
	switch {
	case q.Get("type") != "":
		rules, err = h.rules.GetByType(ctx, domain.RuleType(q.Get("type")))
	case q.Get("min_priority") != "" || q.Get("max_priority") != "":
		lo, hi := intParam(q.Get("min_priority"), 0), intParam(q.Get("max_priority"), math.MaxInt)
		if lo > hi {
			h.sendError(w, "min_priority exceeds max_priority", http.StatusBadRequest, "VALIDATION_ERROR")
			return
		}
		rules, err = h.rules.GetByPriority(ctx, lo, hi)
	default:
		rules, err = h.rules.GetAll(ctx)
	}
	if err != nil {
		h.sendError(w, "Failed to list rules", http.StatusInternalServerError, "SERVER_ERROR")
		return
	}
	if rules == nil {
		rules = []*domain.Rule{}
	}
	h.sendJSON(w, rules, http.StatusOK)
}

func (h *APIHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"tick":      h.ledger.Tick(),
	}
	h.sendJSON(w, response, http.StatusOK)
}

func (h *APIHandler) agentParam(w http.ResponseWriter, raw string) (domain.AgentID, bool) {
	if raw == "" {
		h.sendError(w, "Agent ID is required", http.StatusBadRequest, "MISSING_ID")
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		h.sendError(w, fmt.Sprintf("Invalid agent ID %q", raw), http.StatusBadRequest, "INVALID_ID")
		return 0, false
	}
	return domain.AgentID(id), true
}

func intParam(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func (h *APIHandler) sendLookupError(w http.ResponseWriter, what string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, domain.ErrUnknownAgent),
		errors.Is(err, domain.ErrLoanNotFound):
		h.sendError(w, what+" not found", http.StatusNotFound, "NOT_FOUND")
	default:
		h.sendError(w, "Failed to get "+what, http.StatusInternalServerError, "SERVER_ERROR")
	}
}

func (h *APIHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func (h *APIHandler) sendError(w http.ResponseWriter, message string, statusCode int, code string) {
	h.sendJSON(w, ErrorResponse{Error: message, Code: code}, statusCode)

	h.logger.Warn("API error response",
		slog.String("message", message),
		slog.String("code", code),
		slog.Int("status", statusCode))
}

func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/transactions", h.SubmitTransactionHandler)
	mux.HandleFunc("GET /api/v1/transactions", h.GetTransactionHandler)
	mux.HandleFunc("GET /api/v1/accounts", h.GetAccountHandler)
	mux.HandleFunc("GET /api/v1/loans", h.GetLoanHandler)
	mux.HandleFunc("GET /api/v1/conservation", h.ConservationHandler)
	mux.HandleFunc("GET /api/v1/fingerprint", h.FingerprintHandler)
	mux.HandleFunc("GET /api/v1/rules", h.GetRulesHandler)
	mux.HandleFunc("GET /api/health", h.HealthCheckHandler)
}
