package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"regexp"
	"strconv"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/payflow/internal/domain"
	"github.com/punchamoorthee/payflow/internal/gateway"
	"github.com/punchamoorthee/payflow/internal/ledger"
	"github.com/punchamoorthee/payflow/internal/pending"
	"github.com/punchamoorthee/payflow/internal/recon"
	"github.com/shopspring/decimal"
)

// Metrics
var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payflow_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
	}, []string{"method", "endpoint"})
)

// Kenyan mobile-money subscriber format: 07 followed by 8 digits.
var phonePattern = regexp.MustCompile(`^07\d{8}$`)

// AccountStore is the ledger surface the HTTP layer needs: balance and
// account reads plus account creation. Crediting stays behind the engine.
type AccountStore interface {
	Balance(ctx context.Context, phoneNumber string) (decimal.Decimal, error)
	GetAccount(ctx context.Context, phoneNumber string) (*domain.Account, error)
	CreateAccount(ctx context.Context, phoneNumber string) (int64, error)
}

type Handler struct {
	engine  *recon.Engine
	pending pending.Store
	ledger  AccountStore
}

func NewHandler(engine *recon.Engine, store pending.Store, ledger AccountStore) *Handler {
	return &Handler{engine: engine, pending: store, ledger: ledger}
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, r.Method, "/health")
}

// ProcessPayment validates the request and hands it to the engine. The
// gateway's response body is relayed verbatim on success.
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", "/api/process-payment"))
	defer timer.ObserveDuration()

	var req domain.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/api/process-payment")
		return
	}

	if req.CustomerName == "" || req.PhoneNumber == "" || req.ExternalReference == "" || req.Amount.IsZero() {
		h.respondError(w, http.StatusBadRequest,
			"Missing required fields: customer_name, phone_number, amount, external_reference",
			"POST", "/api/process-payment")
		return
	}
	if !phonePattern.MatchString(req.PhoneNumber) {
		h.respondError(w, http.StatusBadRequest,
			"Invalid phone number format. Must start with 07 and be 10 digits",
			"POST", "/api/process-payment")
		return
	}
	if !req.Amount.IsPositive() {
		h.respondError(w, http.StatusBadRequest, "Amount must be greater than 0",
			"POST", "/api/process-payment")
		return
	}

	res, err := h.engine.Initiate(r.Context(), req)
	if err != nil {
		h.respondGatewayError(w, err, "POST", "/api/process-payment")
		return
	}

	h.respondRaw(w, http.StatusOK, res.Body, "POST", "/api/process-payment")
}

// CheckStatus polls the gateway for a reference. Crediting happens as a
// side effect inside the engine; the response carries only the gateway's
// own payload.
func (h *Handler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("GET", "/api/check-status"))
	defer timer.ObserveDuration()

	reference := r.URL.Query().Get("reference")
	if reference == "" {
		h.respondError(w, http.StatusBadRequest, "Reference parameter is required",
			"GET", "/api/check-status")
		return
	}
	phoneNumber := r.URL.Query().Get("phone_number")

	res, err := h.engine.CheckStatus(r.Context(), reference, phoneNumber)
	if err != nil {
		h.respondGatewayError(w, err, "GET", "/api/check-status")
		return
	}

	h.respondRaw(w, http.StatusOK, res.Body, "GET", "/api/check-status")
}

// PendingPayments lists the current bookkeeping table. Diagnostics only.
func (h *Handler) PendingPayments(w http.ResponseWriter, r *http.Request) {
	entries, err := h.pending.Entries(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error(), "GET", "/api/debug/payments")
		return
	}
	if entries == nil {
		entries = []domain.PendingPayment{}
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"total_payments": len(entries),
		"payments":       entries,
	}, "GET", "/api/debug/payments")
}

// GetBalance returns the ledger balance for a phone number.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	phoneNumber := r.URL.Query().Get("phone_number")
	if phoneNumber == "" {
		h.respondError(w, http.StatusBadRequest, "phone_number parameter is required",
			"GET", "/api/balance")
		return
	}

	balance, err := h.ledger.Balance(r.Context(), phoneNumber)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			h.respondError(w, http.StatusNotFound, "Account not found", "GET", "/api/balance")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Failed to read balance", "GET", "/api/balance")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"phone_number": phoneNumber,
		"balance":      balance,
	}, "GET", "/api/balance")
}

// GetAccount returns the full account row for a phone number.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	phoneNumber := r.URL.Query().Get("phone_number")
	if phoneNumber == "" {
		h.respondError(w, http.StatusBadRequest, "phone_number parameter is required",
			"GET", "/api/account")
		return
	}

	account, err := h.ledger.GetAccount(r.Context(), phoneNumber)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			h.respondError(w, http.StatusNotFound, "Account not found", "GET", "/api/account")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Failed to read account", "GET", "/api/account")
		return
	}

	h.respondJSON(w, http.StatusOK, account, "GET", "/api/account")
}

// CreateAccount registers a new zero-balance account for a phone number.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phone_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/api/accounts")
		return
	}
	if !phonePattern.MatchString(req.PhoneNumber) {
		h.respondError(w, http.StatusBadRequest,
			"Invalid phone number format. Must start with 07 and be 10 digits",
			"POST", "/api/accounts")
		return
	}

	id, err := h.ledger.CreateAccount(r.Context(), req.PhoneNumber)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountExists) {
			h.respondError(w, http.StatusConflict, "Account already exists", "POST", "/api/accounts")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Failed to create account", "POST", "/api/accounts")
		return
	}

	h.respondJSON(w, http.StatusCreated, map[string]any{
		"id":           id,
		"phone_number": req.PhoneNumber,
	}, "POST", "/api/accounts")
}

// Webhook acknowledges gateway callback payloads. Settlement is driven by
// polling, so the payload is only logged.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Stream read error", "POST", "/api/webhook")
		return
	}

	eventID := uuid.New().String()
	log.Printf("webhook %s received: %s", eventID, body)

	h.respondJSON(w, http.StatusOK, map[string]string{"status": "received", "event_id": eventID},
		"POST", "/api/webhook")
}

// respondGatewayError maps the gateway error taxonomy onto HTTP statuses:
// a gateway-side rejection passes through with the gateway's status code
// and payload, a timeout maps to 408, any other transport failure to 502.
func (h *Handler) respondGatewayError(w http.ResponseWriter, err error, method, endpoint string) {
	var rejected *gateway.RejectedError
	if errors.As(err, &rejected) {
		details := any(rejected.Body)
		if !json.Valid(rejected.Body) {
			details = string(rejected.Body)
		}
		h.respondJSON(w, rejected.StatusCode, map[string]any{
			"status":  "error",
			"message": "Payment gateway rejected the request",
			"details": details,
		}, method, endpoint)
		return
	}

	if errors.Is(err, gateway.ErrUnavailable) {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			h.respondError(w, http.StatusRequestTimeout, "Request timeout. Please try again.", method, endpoint)
			return
		}
		h.respondError(w, http.StatusBadGateway, "Payment gateway is unreachable. Please try again.", method, endpoint)
		return
	}

	log.Printf("unexpected error on %s %s: %v", method, endpoint, err)
	h.respondError(w, http.StatusInternalServerError, "Internal server error", method, endpoint)
}

// Helpers
func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload any, method, endpoint string) {
	httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) respondRaw(w http.ResponseWriter, code int, body []byte, method, endpoint string) {
	httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"status": "error", "message": msg}, method, endpoint)
}
