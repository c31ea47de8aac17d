// Package gateway implements the PayHero API client used to initiate
// mobile-money payments and poll their status. The gateway is the source
// of truth for money movement; this client never retries on its own.
package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/punchamoorthee/payflow/internal/domain"
)

// ErrUnavailable marks transport-level failures (connection refused, DNS,
// timeout). Callers may retry; this client will not.
var ErrUnavailable = errors.New("payment gateway unavailable")

// RejectedError is returned when the gateway answered with a non-2xx
// status. The gateway's own error payload is carried through for caller
// visibility.
type RejectedError struct {
	StatusCode int
	Body       json.RawMessage
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("payment gateway rejected request: status %d", e.StatusCode)
}

type Config struct {
	BaseURL   string
	AuthToken string

	// Static per-deployment payment parameters sent with every initiation.
	ChannelID    int64
	Provider     string
	NetworkCode  string
	CallbackURL  string
	CredentialID string

	// Timeout bounds every outbound call. Zero means no timeout.
	Timeout time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

// BasicToken builds the Authorization header value PayHero expects from an
// API credential pair.
func BasicToken(username, password string) string {
	creds := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return "Basic " + creds
}

type initiatePayload struct {
	CustomerName      string      `json:"customer_name"`
	PhoneNumber       string      `json:"phone_number"`
	Amount            json.Number `json:"amount"`
	ExternalReference string      `json:"external_reference"`
	ChannelID         int64       `json:"channel_id"`
	Provider          string      `json:"provider"`
	NetworkCode       string      `json:"network_code"`
	CallbackURL       string      `json:"callback_url"`
	CredentialID      *string     `json:"credential_id"`
}

// Initiate submits one payment request to the gateway. Exactly one outbound
// call is made; any failure is surfaced to the caller unretried.
func (c *Client) Initiate(ctx context.Context, req domain.PaymentRequest) (*domain.InitiateResult, error) {
	payload := initiatePayload{
		CustomerName:      req.CustomerName,
		PhoneNumber:       req.PhoneNumber,
		Amount:            json.Number(req.Amount.String()),
		ExternalReference: req.ExternalReference,
		ChannelID:         c.cfg.ChannelID,
		Provider:          c.cfg.Provider,
		NetworkCode:       c.cfg.NetworkCode,
		CallbackURL:       c.cfg.CallbackURL,
	}
	if c.cfg.CredentialID != "" {
		payload.CredentialID = &c.cfg.CredentialID
	}

	body, err := c.do(ctx, http.MethodPost, c.cfg.BaseURL+"/payments", payload)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Reference string        `json:"reference"`
		Status    domain.Status `json:"status"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("malformed gateway response: %w", err)
	}

	return &domain.InitiateResult{
		Reference: parsed.Reference,
		Status:    parsed.Status,
		Body:      body,
	}, nil
}

// Status queries the gateway for the current state of a payment reference.
func (c *Client) Status(ctx context.Context, reference string) (*domain.StatusResult, error) {
	statusURL := c.cfg.BaseURL + "/transaction-status?reference=" + url.QueryEscape(reference)

	body, err := c.do(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Status            domain.Status `json:"status"`
		ProviderReference string        `json:"provider_reference"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("malformed gateway response: %w", err)
	}

	return &domain.StatusResult{
		Status:            parsed.Status,
		ProviderReference: parsed.ProviderReference,
		Body:              body,
	}, nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, payload any) (json.RawMessage, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("payload encoding failed: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("request build failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.cfg.AuthToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RejectedError{StatusCode: resp.StatusCode, Body: body}
	}
	return body, nil
}
