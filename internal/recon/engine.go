// Package recon reconciles the gateway's asynchronous payment outcomes
// with the internal ledger. It records the expected credit at initiation
// time and applies it at most once when a later status poll reports
// terminal success.
package recon

import (
	"context"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/payflow/internal/domain"
	"github.com/punchamoorthee/payflow/internal/pending"
	"github.com/shopspring/decimal"
)

var (
	creditsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payflow_ledger_credits_applied_total",
		Help: "Ledger credits applied after a terminal-success status",
	})
	creditFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payflow_ledger_credit_failures_total",
		Help: "Ledger credit attempts that failed after the pending record was taken",
	})
	pendingTracked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payflow_pending_tracked_total",
		Help: "Pending payment records stored at initiation time",
	})
)

// Gateway is the external payment processor. One outbound call per
// operation, no internal retries.
type Gateway interface {
	Initiate(ctx context.Context, req domain.PaymentRequest) (*domain.InitiateResult, error)
	Status(ctx context.Context, reference string) (*domain.StatusResult, error)
}

// Ledger applies confirmed credits to a user balance.
type Ledger interface {
	Credit(ctx context.Context, phoneNumber string, amount decimal.Decimal) error
}

type Engine struct {
	gateway Gateway
	ledger  Ledger
	pending pending.Store
	now     func() time.Time
}

type Config struct {
	Gateway Gateway
	Ledger  Ledger
	Pending pending.Store

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

func New(cfg Config) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		gateway: cfg.Gateway,
		ledger:  cfg.Ledger,
		pending: cfg.Pending,
		now:     now,
	}
}

// Initiate forwards the payment request to the gateway and, when the
// response carries a reference, records the expected credit. The stored
// amount is the one observed here; later status payloads are never
// trusted for crediting. Bookkeeping is best-effort: a failed Put is
// logged and the gateway response still returned, because the gateway's
// money movement has already happened or not regardless.
func (e *Engine) Initiate(ctx context.Context, req domain.PaymentRequest) (*domain.InitiateResult, error) {
	res, err := e.gateway.Initiate(ctx, req)
	if err != nil {
		return nil, err
	}

	if res.Reference != "" {
		rec := domain.PendingPayment{
			Reference:    res.Reference,
			PhoneNumber:  req.PhoneNumber,
			CustomerName: req.CustomerName,
			Amount:       req.Amount,
			CreatedAt:    e.now(),
		}
		if err := e.pending.Put(ctx, rec); err != nil {
			log.Printf("failed to store pending payment %s: %v", res.Reference, err)
		} else {
			pendingTracked.Inc()
			log.Printf("stored pending payment %s for %s, amount %s", rec.Reference, rec.PhoneNumber, rec.Amount)
		}
	}

	return res, nil
}

// CheckStatus polls the gateway for a reference and settles the outcome.
// On terminal success the pending record is atomically taken and the
// ledger credited once; every other status leaves the store untouched.
// The gateway's payload is returned unchanged either way, so the caller's
// polling contract is independent of internal bookkeeping.
//
// A credit failure after the take does not restore the record: the credit
// is lost in-band and left to out-of-band reconciliation, signalled by
// the payflow_ledger_credit_failures_total counter.
func (e *Engine) CheckStatus(ctx context.Context, reference, phoneNumber string) (*domain.StatusResult, error) {
	res, err := e.gateway.Status(ctx, reference)
	if err != nil {
		return nil, err
	}

	if res.Status.TerminalSuccess() {
		e.settle(ctx, reference, phoneNumber)
	}

	return res, nil
}

func (e *Engine) settle(ctx context.Context, reference, phoneNumber string) {
	// Peek before taking: a record that cannot be credited anywhere must
	// not be consumed, or the credit opportunity is destroyed. It stays
	// put for a later poll that does carry an identifier.
	peeked, ok, err := e.pending.Get(ctx, reference)
	if err != nil {
		log.Printf("pending lookup failed for %s, skipping credit: %v", reference, err)
		return
	}
	if !ok {
		// Never tracked, already settled, or expired. Not an error.
		log.Printf("no pending payment for %s, nothing to credit", reference)
		return
	}
	if peeked.PhoneNumber == "" && phoneNumber == "" {
		log.Printf("pending payment %s has no account identifier, leaving record", reference)
		return
	}

	rec, ok, err := e.pending.Remove(ctx, reference)
	if err != nil {
		log.Printf("pending take failed for %s, skipping credit: %v", reference, err)
		return
	}
	if !ok {
		// Lost the take to a concurrent poll; that poll owns the credit.
		return
	}

	// The identifier captured at initiation is authoritative; the
	// caller-supplied one is only a fallback.
	account := rec.PhoneNumber
	if account == "" {
		account = phoneNumber
	}

	if err := e.ledger.Credit(ctx, account, rec.Amount); err != nil {
		creditFailures.Inc()
		log.Printf("ledger credit failed for %s (account %s, amount %s): %v", reference, account, rec.Amount, err)
		return
	}

	creditsApplied.Inc()
	log.Printf("credited %s to %s for payment %s", rec.Amount, account, reference)
}
