// Package registry is the single source of truth for inscription requests and
// owns every status transition.
package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"degenmint/internal/quote"
)

// Policy holds the quoting values applied to every new request.
type Policy struct {
	SendAmountSats int64
	FeeRate        float64
}

type Registry struct {
	store  Store
	issuer AddressIssuer
	params *chaincfg.Params
	policy Policy
	logger logrus.FieldLogger

	now   func() time.Time
	newID func() string
}

func New(store Store, issuer AddressIssuer, params *chaincfg.Params, policy Policy, logger logrus.FieldLogger) (*Registry, error) {
	if store == nil {
		return nil, errors.New("registry: store is required")
	}
	if issuer == nil {
		return nil, errors.New("registry: address issuer is required")
	}
	if params == nil {
		return nil, errors.New("registry: network params are required")
	}
	if _, err := quote.Compute(policy.FeeRate, policy.SendAmountSats); err != nil {
		return nil, fmt.Errorf("registry: policy: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registry{
		store:  store,
		issuer: issuer,
		params: params,
		policy: policy,
		logger: logger.WithField("component", "registry"),
		now:    time.Now,
		newID:  newRequestID,
	}, nil
}

func newRequestID() string {
	return "req_" + uuid.NewString()
}

func newInscriptionID() string {
	return "inscription_" + uuid.NewString()
}

// Create quotes and stores a new pending request for walletAddress.
func (r *Registry) Create(ctx context.Context, walletAddress string) (Request, error) {
	walletAddress = strings.TrimSpace(walletAddress)
	if err := ValidateAddress(walletAddress, r.params); err != nil {
		return Request{}, err
	}

	q, err := quote.Compute(r.policy.FeeRate, r.policy.SendAmountSats)
	if err != nil {
		return Request{}, fmt.Errorf("compute quote: %w", err)
	}

	payTo, err := r.issuer.IssueAddress(ctx)
	if err != nil {
		return Request{}, fmt.Errorf("%w: issue payment address: %w", ErrUpstreamUnavailable, err)
	}

	now := r.now().UTC()
	req := Request{
		ID:             r.newID(),
		WalletAddress:  walletAddress,
		PaymentAddress: payTo,
		AmountSats:     q.TotalAmountSats,
		FeeRate:        q.FeeRate,
		Quote:          q,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.store.Put(ctx, req); err != nil {
		return Request{}, fmt.Errorf("store request: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"request_id":  req.ID,
		"amount_sats": req.AmountSats,
		"fee_rate":    req.FeeRate,
	}).Info("inscription request created")
	return req, nil
}

func (r *Registry) Get(ctx context.Context, id string) (Request, error) {
	return r.store.Get(ctx, id)
}

// MarkPaid records the payment transaction of a pending request. It does not
// check the transaction against any ledger.
func (r *Registry) MarkPaid(ctx context.Context, id, paymentTxID string) (Request, error) {
	paymentTxID = strings.TrimSpace(paymentTxID)
	if paymentTxID == "" {
		return Request{}, fmt.Errorf("%w: payment tx id is required", ErrInvalidInput)
	}
	return r.transition(ctx, id, []Status{StatusPending}, func(req *Request) {
		req.Status = StatusPaid
		req.PaymentTxID = paymentTxID
	})
}

// Finalize completes a paid request. An empty inscriptionID is replaced with a
// generated one.
func (r *Registry) Finalize(ctx context.Context, id, inscriptionID string) (Request, error) {
	if inscriptionID == "" {
		inscriptionID = newInscriptionID()
	}
	return r.transition(ctx, id, []Status{StatusPaid}, func(req *Request) {
		req.Status = StatusCompleted
		req.InscriptionID = inscriptionID
	})
}

// Fail moves a pending or paid request to failed, keeping reason for display.
func (r *Registry) Fail(ctx context.Context, id, reason string) (Request, error) {
	if reason == "" {
		reason = "inscription failed"
	}
	return r.transition(ctx, id, []Status{StatusPending, StatusPaid}, func(req *Request) {
		req.Status = StatusFailed
		req.FailureReason = reason
	})
}

func (r *Registry) ListByStatus(ctx context.Context, status Status) ([]Request, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return r.store.ListByStatus(ctx, status)
}

func (r *Registry) transition(ctx context.Context, id string, from []Status, apply func(*Request)) (Request, error) {
	cur, err := r.store.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if !slices.Contains(from, cur.Status) {
		return Request{}, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, cur.Status)
	}

	next := cur
	apply(&next)
	next.UpdatedAt = r.now().UTC()
	if err := r.store.CompareAndSwap(ctx, id, cur.Status, next); err != nil {
		return Request{}, err
	}

	r.logger.WithFields(logrus.Fields{
		"request_id": id,
		"from":       cur.Status,
		"to":         next.Status,
	}).Info("inscription request transitioned")
	return next, nil
}
