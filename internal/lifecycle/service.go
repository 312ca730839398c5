// Package lifecycle drives an inscription request from creation through
// payment verification to its finalized inscription.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"degenmint/internal/metrics"
	"degenmint/internal/minter"
	"degenmint/internal/registry"
)

// Outcome is what a verify call reports to the polling client.
type Outcome string

const (
	OutcomeProcessing Outcome = "processing"
	OutcomeCompleted  Outcome = "completed"
	OutcomeFailed     Outcome = "failed"
)

type VerifyInput struct {
	WalletAddress string
	RequestID     string
	PaymentTxID   string
}

type Verification struct {
	Outcome Outcome
	Request registry.Request
	Message string
}

// Terminal reports whether the request will not change any more.
func (v Verification) Terminal() bool {
	return v.Outcome == OutcomeCompleted || v.Outcome == OutcomeFailed
}

const (
	messageProcessing = "Payment received. Processing your inscription..."
	messageAwaiting   = "Payment not yet confirmed. Keep polling."
	messageCompleted  = "Inscription completed"
	messageFailed     = "Inscription failed"
)

type Options struct {
	FinalizeDelay time.Duration
	DeadLetter    *DeadLetter
	Metrics       *metrics.Registry
	Logger        logrus.FieldLogger
}

type Service struct {
	registry      *registry.Registry
	verifier      PaymentVerifier
	minter        minter.Client
	scheduler     Scheduler
	finalizeDelay time.Duration
	deadLetter    *DeadLetter
	metrics       *metrics.Registry
	logger        logrus.FieldLogger
}

func NewService(reg *registry.Registry, verifier PaymentVerifier, mint minter.Client, scheduler Scheduler, opts Options) (*Service, error) {
	if reg == nil {
		return nil, errors.New("lifecycle: registry is required")
	}
	if mint == nil {
		return nil, errors.New("lifecycle: minter is required")
	}
	if scheduler == nil {
		return nil, errors.New("lifecycle: scheduler is required")
	}
	if verifier == nil {
		verifier = AcceptAllVerifier{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		registry:      reg,
		verifier:      verifier,
		minter:        mint,
		scheduler:     scheduler,
		finalizeDelay: opts.FinalizeDelay,
		deadLetter:    opts.DeadLetter,
		metrics:       opts.Metrics,
		logger:        logger.WithField("component", "lifecycle"),
	}, nil
}

func (s *Service) Create(ctx context.Context, walletAddress string) (registry.Request, error) {
	req, err := s.registry.Create(ctx, walletAddress)
	if err != nil {
		s.metrics.IncRequest("rejected")
		return registry.Request{}, err
	}
	s.metrics.IncRequest("created")
	return req, nil
}

func (s *Service) Get(ctx context.Context, id string) (registry.Request, error) {
	return s.registry.Get(ctx, id)
}

// Verify reports the state of a request and, for a pending one, checks the
// submitted payment. An accepted payment marks the request paid and schedules
// its finalization. Calling Verify again with the same transaction is safe.
func (s *Service) Verify(ctx context.Context, in VerifyInput) (Verification, error) {
	in.WalletAddress = strings.TrimSpace(in.WalletAddress)
	in.RequestID = strings.TrimSpace(in.RequestID)
	in.PaymentTxID = strings.TrimSpace(in.PaymentTxID)

	if in.RequestID == "" {
		return Verification{}, fmt.Errorf("%w: request id is required", registry.ErrInvalidInput)
	}
	if in.PaymentTxID == "" {
		return Verification{}, fmt.Errorf("%w: payment tx id is required", registry.ErrInvalidInput)
	}

	req, err := s.registry.Get(ctx, in.RequestID)
	if err != nil {
		return Verification{}, err
	}
	if in.WalletAddress != "" && in.WalletAddress != req.WalletAddress {
		return Verification{}, fmt.Errorf("%w: wallet address does not own request %s", registry.ErrInvalidInput, req.ID)
	}

	switch req.Status {
	case registry.StatusPending:
		return s.verifyPending(ctx, req, in.PaymentTxID)
	case registry.StatusPaid:
		if req.PaymentTxID != in.PaymentTxID {
			s.logger.WithFields(logrus.Fields{
				"request_id": req.ID,
				"paid_with":  req.PaymentTxID,
				"submitted":  in.PaymentTxID,
			}).Warn("verify with a different payment tx")
			return Verification{}, fmt.Errorf("%w: %s already paid by another transaction", registry.ErrInvalidTransition, req.ID)
		}
		s.metrics.IncVerification("replayed")
		return processing(req), nil
	default:
		s.metrics.IncVerification("replayed")
		return settled(req), nil
	}
}

func (s *Service) verifyPending(ctx context.Context, req registry.Request, txid string) (Verification, error) {
	logger := s.logger.WithFields(logrus.Fields{"request_id": req.ID, "payment_tx_id": txid})

	err := s.verifier.VerifyPayment(ctx, txid, req.PaymentAddress, req.AmountSats)
	switch {
	case err == nil:
	case errors.Is(err, registry.ErrInvalidInput):
		s.metrics.IncVerification("invalid")
		return Verification{}, err
	case errors.Is(err, ErrPaymentPending):
		s.metrics.IncVerification("awaiting")
		return Verification{Outcome: OutcomeProcessing, Request: req, Message: messageAwaiting}, nil
	case errors.Is(err, ErrPaymentRejected):
		s.metrics.IncVerification("rejected")
		failed, ferr := s.registry.Fail(ctx, req.ID, err.Error())
		if ferr != nil {
			return s.resolveRace(ctx, req.ID, txid, ferr)
		}
		logger.WithError(err).Warn("payment rejected")
		return settled(failed), nil
	default:
		s.metrics.IncVerification("unavailable")
		logger.WithError(err).Error("payment verifier unavailable")
		return Verification{}, fmt.Errorf("%w: verify payment: %w", registry.ErrUpstreamUnavailable, err)
	}

	paid, err := s.registry.MarkPaid(ctx, req.ID, txid)
	if errors.Is(err, registry.ErrPaymentTxReused) {
		s.metrics.IncVerification("reused")
		logger.WithError(err).Warn("payment tx already claimed")
		return Verification{}, err
	}
	if err != nil {
		return s.resolveRace(ctx, req.ID, txid, err)
	}
	s.metrics.IncVerification("accepted")

	if err := s.scheduler.ScheduleFinalize(ctx, paid.ID, s.finalizeDelay); err != nil {
		// Recover re-enqueues paid requests, so the payment is not lost.
		logger.WithError(err).Error("schedule finalize")
	}
	return processing(paid), nil
}

// resolveRace answers a verify that lost a transition to a concurrent caller
// by re-reading the request, so a duplicate call with the same transaction
// still observes the winner's state.
func (s *Service) resolveRace(ctx context.Context, id, txid string, cause error) (Verification, error) {
	if !errors.Is(cause, registry.ErrInvalidTransition) {
		return Verification{}, cause
	}
	cur, err := s.registry.Get(ctx, id)
	if err != nil {
		return Verification{}, err
	}
	switch {
	case cur.Status.Terminal():
		return settled(cur), nil
	case cur.Status == registry.StatusPaid && cur.PaymentTxID == txid:
		return processing(cur), nil
	default:
		s.logger.WithFields(logrus.Fields{"request_id": id, "status": cur.Status}).Warn("verify lost transition race")
		return Verification{}, cause
	}
}

func processing(req registry.Request) Verification {
	return Verification{Outcome: OutcomeProcessing, Request: req, Message: messageProcessing}
}

func settled(req registry.Request) Verification {
	if req.Status == registry.StatusCompleted {
		return Verification{Outcome: OutcomeCompleted, Request: req, Message: messageCompleted}
	}
	return Verification{Outcome: OutcomeFailed, Request: req, Message: messageFailed}
}

// ProcessFinalize runs one finalization attempt for a paid request. It is a
// no-op for completed requests and returns a permanent error for any other
// state. When lastAttempt is set and the minter still fails, the request is
// failed and written to the dead letter directory.
func (s *Service) ProcessFinalize(ctx context.Context, id string, lastAttempt bool) error {
	logger := s.logger.WithField("request_id", id)

	req, err := s.registry.Get(ctx, id)
	if err != nil {
		return Permanent(err)
	}
	switch req.Status {
	case registry.StatusCompleted:
		s.metrics.IncFinalization("duplicate")
		return nil
	case registry.StatusPaid:
	default:
		s.metrics.IncFinalization("skipped")
		return Permanent(fmt.Errorf("%w: %s is %s", registry.ErrInvalidTransition, id, req.Status))
	}

	resp, err := s.minter.Inscribe(ctx, minter.InscribeRequest{
		RequestID:     req.ID,
		WalletAddress: req.WalletAddress,
		PaymentTxID:   req.PaymentTxID,
	})
	if err != nil {
		if !lastAttempt && !IsPermanent(err) {
			s.metrics.IncRetry("retry")
			logger.WithError(err).Warn("inscribe failed, will retry")
			return err
		}
		s.metrics.IncRetry("failed")
		s.metrics.IncFinalization("failed")
		logger.WithError(err).Error("inscribe failed, giving up")
		if _, ferr := s.registry.Fail(ctx, id, "inscription failed: "+err.Error()); ferr != nil {
			logger.WithError(ferr).Warn("mark request failed")
		}
		s.writeDeadLetter(req, err)
		return Permanent(err)
	}

	if _, err := s.registry.Finalize(ctx, id, resp.InscriptionID); err != nil {
		if errors.Is(err, registry.ErrInvalidTransition) {
			// another worker finished first
			s.metrics.IncFinalization("duplicate")
			return nil
		}
		return err
	}
	s.metrics.IncRetry("success")
	s.metrics.IncFinalization("completed")
	logger.WithField("inscription_id", resp.InscriptionID).Info("inscription finalized")
	return nil
}

func (s *Service) writeDeadLetter(req registry.Request, cause error) {
	if s.deadLetter == nil {
		return
	}
	if err := s.deadLetter.Write(req, cause); err != nil {
		s.logger.WithError(err).WithField("request_id", req.ID).Error("dead letter write")
	}
	s.metrics.SetDLQDepth(s.deadLetter.Depth())
}

// Recover schedules finalization for every request left in paid, e.g. after
// a restart lost the in-process timers. It returns the number scheduled.
func (s *Service) Recover(ctx context.Context) (int, error) {
	paid, err := s.registry.ListByStatus(ctx, registry.StatusPaid)
	if err != nil {
		return 0, fmt.Errorf("list paid requests: %w", err)
	}
	scheduled := 0
	for _, req := range paid {
		if err := s.scheduler.ScheduleFinalize(ctx, req.ID, 0); err != nil {
			s.logger.WithError(err).WithField("request_id", req.ID).Error("recover: schedule finalize")
			continue
		}
		scheduled++
	}
	if scheduled > 0 {
		s.logger.WithField("count", scheduled).Info("recovered paid requests")
	}
	return scheduled, nil
}

// DeadLetterDepth is the number of entries in the dead letter directory.
func (s *Service) DeadLetterDepth() int {
	if s.deadLetter == nil {
		return 0
	}
	depth := s.deadLetter.Depth()
	s.metrics.SetDLQDepth(depth)
	return depth
}
