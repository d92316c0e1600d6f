// Package httpapi exposes the vault over REST plus a websocket event feed.
// Mutating endpoints act on the address carried in the caller's token; reads
// of another account's detail are refused.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	domain "github.com/R3E-Network/gas_vault/internal/app/domain/vault"
	"github.com/R3E-Network/gas_vault/internal/app/metrics"
	vaultsvc "github.com/R3E-Network/gas_vault/internal/app/services/vault"
	"github.com/R3E-Network/gas_vault/internal/events"
	"github.com/R3E-Network/gas_vault/internal/middleware"
	core "github.com/R3E-Network/gas_vault/internal/vault"
	"github.com/R3E-Network/gas_vault/pkg/logger"
)

// Options configures the HTTP surface. Vault and AuthSecret are required;
// everything else has a sensible default.
type Options struct {
	Vault   *vaultsvc.Service
	Auditor *vaultsvc.Auditor
	Events  events.EventLogger
	Log     *logger.Logger

	AuthSecret []byte

	RateLimit int
	RateBurst int

	CORSOrigins []string

	// AuditLogPath appends operation audit entries as JSON lines when set.
	AuditLogPath string
	// AuditMax caps the in-memory audit trail (default 256).
	AuditMax int
}

type handler struct {
	vault   *vaultsvc.Service
	auditor *vaultsvc.Auditor
	events  events.EventLogger
	audit   *auditLog
	log     *logger.Logger
}

// NewHandler assembles the router and middleware chain. The returned handler
// serves /health and /metrics unauthenticated; everything under /api requires
// a bearer token.
func NewHandler(opts Options) (http.Handler, error) {
	if opts.Vault == nil {
		return nil, fmt.Errorf("vault service is required")
	}
	if len(opts.AuthSecret) == 0 {
		return nil, fmt.Errorf("auth secret is required")
	}
	if opts.Log == nil {
		opts.Log = logger.NewDefault("httpapi")
	}
	if opts.Events == nil {
		opts.Events = events.NoOpLogger{}
	}

	sink, err := newFileAuditSink(opts.AuditLogPath)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	h := &handler{
		vault:   opts.Vault,
		auditor: opts.Auditor,
		events:  opts.Events,
		audit:   newAuditLog(opts.AuditMax, sink),
		log:     opts.Log,
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", h.health).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1/vault").Subrouter()
	api.HandleFunc("/deposits", h.deposit).Methods(http.MethodPost)
	api.HandleFunc("/withdrawals", h.withdraw).Methods(http.MethodPost)
	api.HandleFunc("/transfers/inbound", h.inbound).Methods(http.MethodPost)
	api.HandleFunc("/accounts", h.listAccounts).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{address}", h.account).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{address}/journal", h.accountJournal).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.stats).Methods(http.MethodGet)
	api.HandleFunc("/journal", h.journal).Methods(http.MethodGet)
	api.HandleFunc("/audit", h.auditTrail).Methods(http.MethodGet)
	api.HandleFunc("/audit/run", h.runAudit).Methods(http.MethodPost)
	api.HandleFunc("/events", h.streamEvents).Methods(http.MethodGet)
	api.HandleFunc("/events/recent", h.recentEvents).Methods(http.MethodGet)

	var chain http.Handler = router
	limiter := middleware.NewRateLimiter(opts.RateLimit, opts.RateBurst, opts.Log)
	chain = limiter.Handler(chain)
	auth := middleware.NewAuthMiddleware(opts.AuthSecret, opts.Log, []string{"/health", "/metrics"})
	chain = auth.Handler(chain)
	chain = metrics.InstrumentHandler(chain)
	tracing := middleware.NewTracingMiddleware(opts.Log)
	chain = tracing.Handler(chain)
	chain = middleware.CORS(opts.CORSOrigins)(chain)
	return chain, nil
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type amountPayload struct {
	Amount int64 `json:"amount"`
}

func (h *handler) deposit(w http.ResponseWriter, r *http.Request) {
	address := middleware.GetAddress(r.Context())
	if address == "" {
		writeError(w, http.StatusUnauthorized, errors.New("authentication required"))
		return
	}
	var payload amountPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := h.vault.Deposit(r.Context(), address, payload.Amount)
	h.recordAudit(r, "deposit", address, payload.Amount, err)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountPayload(view))
}

func (h *handler) withdraw(w http.ResponseWriter, r *http.Request) {
	address := middleware.GetAddress(r.Context())
	if address == "" {
		writeError(w, http.StatusUnauthorized, errors.New("authentication required"))
		return
	}
	var payload amountPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := h.vault.Withdraw(r.Context(), address, payload.Amount)
	h.recordAudit(r, "withdraw", address, payload.Amount, err)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountPayload(view))
}

// inbound lets a chain watcher report a transfer that arrived outside the
// deposit flow. The ledger refuses these unconditionally; the endpoint exists
// so the refusal is journaled and observable.
func (h *handler) inbound(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		From   string `json:"from"`
		Amount int64  `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err := h.vault.NotifyInbound(r.Context(), payload.From, payload.Amount)
	h.recordAudit(r, "inbound", payload.From, payload.Amount, err)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (h *handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	views := h.vault.Accounts()
	payloads := make([]accountPayload, 0, len(views))
	for _, view := range views {
		payloads = append(payloads, toAccountPayload(view))
	}
	writeJSON(w, http.StatusOK, payloads)
}

func (h *handler) account(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !h.authorizedFor(w, r, address) {
		return
	}
	view, err := h.vault.Account(address)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountPayload(view))
}

func (h *handler) accountJournal(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !h.authorizedFor(w, r, address) {
		return
	}
	entries, err := h.vault.Journal(r.Context(), address, queryLimit(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, toJournalPayloads(entries))
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	stats := h.vault.Stats()
	limits := h.vault.Limits()
	writeJSON(w, http.StatusOK, statsPayload{
		TotalDeposited:  stats.TotalDeposited,
		HeldValue:       stats.HeldValue,
		Capacity:        stats.Capacity,
		Allowance:       stats.Allowance,
		CooldownSeconds: int64(limits.Cooldown / time.Second),
		DepositCount:    stats.DepositCount,
		WithdrawCount:   stats.WithdrawCount,
		Accounts:        stats.Accounts,
	})
}

func (h *handler) journal(w http.ResponseWriter, r *http.Request) {
	entries, err := h.vault.Journal(r.Context(), "", queryLimit(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, toJournalPayloads(entries))
}

func (h *handler) auditTrail(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.audit.listLimit(queryLimit(r, 0)))
}

func (h *handler) runAudit(w http.ResponseWriter, r *http.Request) {
	if h.auditor == nil {
		writeError(w, http.StatusNotImplemented, errors.New("auditor not configured"))
		return
	}
	report, err := h.auditor.RunOnce(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, reportPayload{
		Clean:           report.Clean(),
		CheckedAccounts: report.CheckedAccounts,
		LedgerHeld:      report.LedgerHeld,
		StoredHeld:      report.StoredHeld,
		Findings:        report.Findings,
	})
}

func (h *handler) recentEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50)
	var recent []events.Event
	switch {
	case r.URL.Query().Get("address") != "":
		recent = h.events.RecentByAddress(r.URL.Query().Get("address"), limit)
	case r.URL.Query().Get("type") != "":
		recent = h.events.RecentByType(events.EventType(r.URL.Query().Get("type")), limit)
	default:
		recent = h.events.Recent(limit)
	}
	if recent == nil {
		recent = []events.Event{}
	}
	writeJSON(w, http.StatusOK, recent)
}

// authorizedFor rejects requests whose token address does not match the
// account being read. Comparison ignores case so a checksummed address in the
// token still reaches the account it funded.
func (h *handler) authorizedFor(w http.ResponseWriter, r *http.Request, address string) bool {
	caller := middleware.GetAddress(r.Context())
	if caller == "" {
		writeError(w, http.StatusUnauthorized, errors.New("authentication required"))
		return false
	}
	if !strings.EqualFold(caller, strings.TrimSpace(address)) {
		writeError(w, http.StatusForbidden, errors.New("token does not grant access to this account"))
		return false
	}
	return true
}

func (h *handler) recordAudit(r *http.Request, op, address string, amount int64, opErr error) {
	entry := auditEntry{
		Time:       time.Now().UTC(),
		TraceID:    events.GetTraceID(r.Context()),
		Op:         op,
		Address:    strings.TrimSpace(address),
		Amount:     amount,
		Outcome:    "accepted",
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}
	if opErr != nil {
		entry.Outcome = "rejected"
		entry.Reason = opErr.Error()
	}
	h.audit.add(entry)
}

// statusForError maps ledger rejections onto HTTP statuses. Malformed amounts
// are the caller's fault, limit rejections are valid requests the vault cannot
// honor right now, and a failed transfer is an upstream fault.
func statusForError(err error) int {
	switch {
	case errors.Is(err, core.ErrZeroAmount), errors.Is(err, core.ErrAmountOverflow):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotAccountHolder):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInsufficientBalance),
		errors.Is(err, core.ErrCapacityExceeded),
		errors.Is(err, core.ErrAllowanceExceeded),
		errors.Is(err, core.ErrUnsupportedOperation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrReentrancyDetected):
		return http.StatusConflict
	case errors.Is(err, core.ErrTransferFailed):
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

type accountPayload struct {
	Address           string     `json:"address"`
	Balance           int64      `json:"balance"`
	WithdrawnInWindow int64      `json:"withdrawn_in_window"`
	WindowStart       *time.Time `json:"window_start,omitempty"`
	DepositCount      int64      `json:"deposit_count"`
	WithdrawCount     int64      `json:"withdraw_count"`
}

func toAccountPayload(view core.AccountView) accountPayload {
	payload := accountPayload{
		Address:           view.Address,
		Balance:           view.Balance,
		WithdrawnInWindow: view.WithdrawnInWindow,
		DepositCount:      view.DepositCount,
		WithdrawCount:     view.WithdrawCount,
	}
	if !view.WindowStart.IsZero() {
		start := view.WindowStart
		payload.WindowStart = &start
	}
	return payload
}

type statsPayload struct {
	TotalDeposited  int64 `json:"total_deposited"`
	HeldValue       int64 `json:"held_value"`
	Capacity        int64 `json:"capacity"`
	Allowance       int64 `json:"allowance"`
	CooldownSeconds int64 `json:"cooldown_seconds"`
	DepositCount    int64 `json:"deposit_count"`
	WithdrawCount   int64 `json:"withdraw_count"`
	Accounts        int   `json:"accounts"`
}

type journalPayload struct {
	ID           string    `json:"id"`
	Address      string    `json:"address"`
	Kind         string    `json:"kind"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	Status       string    `json:"status"`
	Reason       string    `json:"reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type reportPayload struct {
	Clean           bool     `json:"clean"`
	CheckedAccounts int      `json:"checked_accounts"`
	LedgerHeld      int64    `json:"ledger_held"`
	StoredHeld      int64    `json:"stored_held"`
	Findings        []string `json:"findings,omitempty"`
}

func toJournalPayloads(entries []domain.JournalEntry) []journalPayload {
	payloads := make([]journalPayload, 0, len(entries))
	for _, entry := range entries {
		payloads = append(payloads, journalPayload{
			ID:           entry.ID,
			Address:      entry.Address,
			Kind:         entry.Kind,
			Amount:       entry.Amount,
			BalanceAfter: entry.BalanceAfter,
			Status:       entry.Status,
			Reason:       entry.Reason,
			CreatedAt:    entry.CreatedAt,
		})
	}
	return payloads
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// errorPayload is the error envelope for every endpoint. Code is a stable
// machine-readable token; Error is the human-readable cause.
type errorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorPayload{Error: err.Error(), Code: codeForError(status, err)})
}

func codeForError(status int, err error) string {
	switch {
	case errors.Is(err, core.ErrZeroAmount):
		return "zero_amount"
	case errors.Is(err, core.ErrAmountOverflow):
		return "amount_overflow"
	case errors.Is(err, core.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, core.ErrNotAccountHolder):
		return "not_account_holder"
	case errors.Is(err, core.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, core.ErrAllowanceExceeded):
		return "allowance_exceeded"
	case errors.Is(err, core.ErrReentrancyDetected):
		return "reentrancy_detected"
	case errors.Is(err, core.ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, core.ErrUnsupportedOperation):
		return "unsupported_operation"
	}
	switch status {
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusNotImplemented:
		return "not_implemented"
	case http.StatusInternalServerError:
		return "internal_error"
	case http.StatusBadGateway:
		return "bad_gateway"
	default:
		return "bad_request"
	}
}
