package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/punchamoorthee/payflow/internal/api"
	"github.com/punchamoorthee/payflow/internal/domain"
	"github.com/punchamoorthee/payflow/internal/gateway"
	"github.com/punchamoorthee/payflow/internal/ledger"
	"github.com/punchamoorthee/payflow/internal/pending"
	"github.com/punchamoorthee/payflow/internal/recon"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	initiateRes *domain.InitiateResult
	initiateErr error
	statusRes   *domain.StatusResult
	statusErr   error
}

func (g *stubGateway) Initiate(context.Context, domain.PaymentRequest) (*domain.InitiateResult, error) {
	return g.initiateRes, g.initiateErr
}

func (g *stubGateway) Status(context.Context, string) (*domain.StatusResult, error) {
	return g.statusRes, g.statusErr
}

type stubLedger struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	nextID   int64
	err      error
}

func newStubLedger() *stubLedger {
	return &stubLedger{balances: map[string]decimal.Decimal{}}
}

func (l *stubLedger) Credit(_ context.Context, phone string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.balances[phone] = l.balances[phone].Add(amount)
	return nil
}

func (l *stubLedger) Balance(_ context.Context, phone string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return decimal.Zero, l.err
	}
	balance, ok := l.balances[phone]
	if !ok {
		return decimal.Zero, ledger.ErrAccountNotFound
	}
	return balance, nil
}

func (l *stubLedger) GetAccount(_ context.Context, phone string) (*domain.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[phone]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return &domain.Account{ID: 1, PhoneNumber: phone, Balance: balance}, nil
}

func (l *stubLedger) CreateAccount(_ context.Context, phone string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.balances[phone]; ok {
		return 0, ledger.ErrAccountExists
	}
	l.nextID++
	l.balances[phone] = decimal.Zero
	return l.nextID, nil
}

type fixture struct {
	handler *api.Handler
	ledger  *stubLedger
	store   *pending.Memory
}

func newFixture(gw *stubGateway) *fixture {
	store := pending.NewMemory()
	lg := newStubLedger()
	engine := recon.New(recon.Config{Gateway: gw, Ledger: lg, Pending: store})
	return &fixture{
		handler: api.NewHandler(engine, store, lg),
		ledger:  lg,
		store:   store,
	}
}

func postPayment(t *testing.T, h *api.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/process-payment", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ProcessPayment(w, req)
	return w
}

func TestProcessPaymentValidation(t *testing.T) {
	fx := newFixture(&stubGateway{})

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{
			name:    "malformed json",
			body:    `{`,
			message: "Malformed JSON body",
		},
		{
			name:    "missing fields",
			body:    `{"customer_name":"Test User","amount":100}`,
			message: "Missing required fields",
		},
		{
			name:    "bad phone",
			body:    `{"customer_name":"Test User","phone_number":"254712345678","amount":100,"external_reference":"R1"}`,
			message: "Invalid phone number format",
		},
		{
			name:    "negative amount",
			body:    `{"customer_name":"Test User","phone_number":"0712345678","amount":-5,"external_reference":"R1"}`,
			message: "Amount must be greater than 0",
		},
		{
			name:    "zero amount",
			body:    `{"customer_name":"Test User","phone_number":"0712345678","amount":0,"external_reference":"R1"}`,
			message: "Missing required fields",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := postPayment(t, fx.handler, tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "error", resp["status"])
			assert.Contains(t, resp["message"], tc.message)
		})
	}

	size, err := fx.store.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, size, "rejected requests never reach the bookkeeping")
}

func TestProcessPaymentRelaysGatewayBody(t *testing.T) {
	gatewayBody := `{"success":true,"status":"QUEUED","reference":"G1","CheckoutRequestID":"ws_CO_1"}`
	fx := newFixture(&stubGateway{initiateRes: &domain.InitiateResult{
		Reference: "G1",
		Status:    domain.StatusQueued,
		Body:      json.RawMessage(gatewayBody),
	}})

	w := postPayment(t, fx.handler,
		`{"customer_name":"Test User","phone_number":"0712345678","amount":100,"external_reference":"R1"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, gatewayBody, w.Body.String(), "gateway response passes through verbatim")

	rec, ok, err := fx.store.Get(context.Background(), "G1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, rec.Amount.Equal(decimal.NewFromInt(100)))
}

func TestProcessPaymentGatewayRejectedPassthrough(t *testing.T) {
	fx := newFixture(&stubGateway{initiateErr: &gateway.RejectedError{
		StatusCode: http.StatusForbidden,
		Body:       json.RawMessage(`{"error_message":"invalid credentials"}`),
	}})

	w := postPayment(t, fx.handler,
		`{"customer_name":"Test User","phone_number":"0712345678","amount":100,"external_reference":"R1"}`)

	assert.Equal(t, http.StatusForbidden, w.Code)

	var resp struct {
		Status  string          `json:"status"`
		Details json.RawMessage `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.JSONEq(t, `{"error_message":"invalid credentials"}`, string(resp.Details))
}

func TestProcessPaymentGatewayUnavailable(t *testing.T) {
	fx := newFixture(&stubGateway{
		initiateErr: fmt.Errorf("%w: connection refused", gateway.ErrUnavailable),
	})

	w := postPayment(t, fx.handler,
		`{"customer_name":"Test User","phone_number":"0712345678","amount":100,"external_reference":"R1"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestProcessPaymentGatewayTimeout(t *testing.T) {
	fx := newFixture(&stubGateway{
		initiateErr: fmt.Errorf("%w: %w", gateway.ErrUnavailable, context.DeadlineExceeded),
	})

	w := postPayment(t, fx.handler,
		`{"customer_name":"Test User","phone_number":"0712345678","amount":100,"external_reference":"R1"}`)
	assert.Equal(t, http.StatusRequestTimeout, w.Code)
}

func TestCheckStatusRequiresReference(t *testing.T) {
	fx := newFixture(&stubGateway{})

	req := httptest.NewRequest(http.MethodGet, "/api/check-status", nil)
	w := httptest.NewRecorder()
	fx.handler.CheckStatus(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Reference parameter is required")
}

func TestCheckStatusSettlesAndRelaysBody(t *testing.T) {
	gatewayBody := `{"status":"SUCCESS","provider_reference":"MPE123"}`
	fx := newFixture(&stubGateway{statusRes: &domain.StatusResult{
		Status: domain.StatusSuccess,
		Body:   json.RawMessage(gatewayBody),
	}})

	require.NoError(t, fx.store.Put(context.Background(), domain.PendingPayment{
		Reference: "G1", PhoneNumber: "0712345678",
		Amount: decimal.NewFromInt(100), CreatedAt: time.Now(),
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/check-status?reference=G1&phone_number=0712345678", nil)
	w := httptest.NewRecorder()
	fx.handler.CheckStatus(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, gatewayBody, w.Body.String())

	balance, err := fx.ledger.Balance(context.Background(), "0712345678")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)))

	_, ok, err := fx.store.Get(context.Background(), "G1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPendingPaymentsDiagnostics(t *testing.T) {
	fx := newFixture(&stubGateway{})

	req := httptest.NewRequest(http.MethodGet, "/api/debug/payments", nil)
	w := httptest.NewRecorder()
	fx.handler.PendingPayments(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total_payments":0,"payments":[]}`, w.Body.String())

	require.NoError(t, fx.store.Put(context.Background(), domain.PendingPayment{
		Reference: "G1", PhoneNumber: "0712345678", CustomerName: "Test User",
		Amount: decimal.NewFromInt(100), CreatedAt: time.Now(),
	}))

	w = httptest.NewRecorder()
	fx.handler.PendingPayments(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		TotalPayments int `json:"total_payments"`
		Payments      []struct {
			Reference string `json:"reference"`
		} `json:"payments"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.TotalPayments)
	require.Len(t, resp.Payments, 1)
	assert.Equal(t, "G1", resp.Payments[0].Reference)
}

func TestGetBalance(t *testing.T) {
	fx := newFixture(&stubGateway{})
	fx.ledger.balances["0712345678"] = decimal.RequireFromString("150.25")

	req := httptest.NewRequest(http.MethodGet, "/api/balance?phone_number=0712345678", nil)
	w := httptest.NewRecorder()
	fx.handler.GetBalance(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"phone_number":"0712345678","balance":"150.25"}`, w.Body.String())
}

func TestGetBalanceNotFound(t *testing.T) {
	fx := newFixture(&stubGateway{})

	req := httptest.NewRequest(http.MethodGet, "/api/balance?phone_number=0700000000", nil)
	w := httptest.NewRecorder()
	fx.handler.GetBalance(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/balance", nil)
	w = httptest.NewRecorder()
	fx.handler.GetBalance(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetAccount(t *testing.T) {
	fx := newFixture(&stubGateway{})
	fx.ledger.balances["0712345678"] = decimal.RequireFromString("42.75")

	req := httptest.NewRequest(http.MethodGet, "/api/account?phone_number=0712345678", nil)
	w := httptest.NewRecorder()
	fx.handler.GetAccount(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		ID          int64  `json:"id"`
		PhoneNumber string `json:"phone_number"`
		Balance     string `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "0712345678", resp.PhoneNumber)
	assert.Equal(t, "42.75", resp.Balance)

	req = httptest.NewRequest(http.MethodGet, "/api/account?phone_number=0700000000", nil)
	w = httptest.NewRecorder()
	fx.handler.GetAccount(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/account", nil)
	w = httptest.NewRecorder()
	fx.handler.GetAccount(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAccount(t *testing.T) {
	fx := newFixture(&stubGateway{})

	req := httptest.NewRequest(http.MethodPost, "/api/accounts",
		strings.NewReader(`{"phone_number":"0712345678"}`))
	w := httptest.NewRecorder()
	fx.handler.CreateAccount(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		ID          int64  `json:"id"`
		PhoneNumber string `json:"phone_number"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.ID)
	assert.Equal(t, "0712345678", resp.PhoneNumber)

	// The new account is visible to the balance read.
	balance, err := fx.ledger.Balance(context.Background(), "0712345678")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	// Duplicate registration conflicts.
	req = httptest.NewRequest(http.MethodPost, "/api/accounts",
		strings.NewReader(`{"phone_number":"0712345678"}`))
	w = httptest.NewRecorder()
	fx.handler.CreateAccount(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/accounts",
		strings.NewReader(`{"phone_number":"123"}`))
	w = httptest.NewRecorder()
	fx.handler.CreateAccount(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid phone number format")
}

func TestWebhookAcknowledges(t *testing.T) {
	fx := newFixture(&stubGateway{})

	req := httptest.NewRequest(http.MethodPost, "/api/webhook",
		strings.NewReader(`{"response":{"Status":"Success"}}`))
	w := httptest.NewRecorder()
	fx.handler.Webhook(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "received", resp["status"])
	assert.NotEmpty(t, resp["event_id"])
}

func TestHealthCheck(t *testing.T) {
	fx := newFixture(&stubGateway{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	fx.handler.HealthCheck(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
