package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"degenmint/internal/mintapi"
)

type PollerConfig struct {
	// MaxErrors is how many consecutive transient failures end the poll.
	// Zero or less stops on the first failure.
	MaxErrors      int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     int
	// OnError is called once when the poll ends with an error.
	OnError func(error)
}

type Poller struct {
	api    MintAPI
	cfg    PollerConfig
	logger logrus.FieldLogger
}

func NewPoller(api MintAPI, cfg PollerConfig, logger logrus.FieldLogger) *Poller {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = 1
	}
	return &Poller{api: api, cfg: cfg, logger: logger.WithField("component", "poller")}
}

// PollHandle controls one running poll.
type PollHandle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	err  error
	last *mintapi.VerifyResponse
}

// Cancel stops future ticks. It is safe to call any number of times, also
// after the poll ended on its own. A verify call already in flight finishes.
func (h *PollHandle) Cancel() {
	h.cancel()
}

// Done is closed when the poll loop has exited.
func (h *PollHandle) Done() <-chan struct{} {
	return h.done
}

// Err is the reason the poll ended, nil after a terminal status or Cancel.
func (h *PollHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Last returns the most recent successful verify response.
func (h *PollHandle) Last() (mintapi.VerifyResponse, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return mintapi.VerifyResponse{}, false
	}
	return *h.last, true
}

// Poll calls verify every interval, first after one interval, and hands each
// successful response to onUpdate. It stops after a completed or failed
// status, after the error budget is spent, or when cancelled.
func (p *Poller) Poll(ctx context.Context, req mintapi.VerifyRequest, interval time.Duration, onUpdate func(mintapi.VerifyResponse)) *PollHandle {
	stopCtx, cancel := context.WithCancel(ctx)
	h := &PollHandle{cancel: cancel, done: make(chan struct{})}
	logger := p.logger.WithField("request_id", req.RequestID)

	go func() {
		defer close(h.done)
		defer cancel()

		timer := time.NewTimer(interval)
		defer timer.Stop()

		failures := 0
		for {
			select {
			case <-stopCtx.Done():
				if ctx.Err() != nil {
					h.finish(ctx.Err())
				}
				return
			case <-timer.C:
			}

			resp, err := p.api.Verify(ctx, req)
			if err != nil {
				failures++
				if !IsTransient(err) || failures >= p.cfg.MaxErrors {
					logger.WithError(err).WithField("failures", failures).Warn("polling stopped")
					h.finish(fmt.Errorf("verify %s: %w", req.RequestID, err))
					if p.cfg.OnError != nil {
						p.cfg.OnError(err)
					}
					return
				}
				wait := p.backoff(failures, interval)
				logger.WithError(err).WithField("retry_in", wait).Debug("verify failed, backing off")
				timer.Reset(wait)
				continue
			}

			failures = 0
			h.record(resp)
			if onUpdate != nil {
				onUpdate(resp)
			}
			if resp.Terminal() {
				logger.WithField("status", resp.Status).Info("polling finished")
				return
			}
			timer.Reset(interval)
		}
	}()
	return h
}

func (p *Poller) backoff(failures int, interval time.Duration) time.Duration {
	wait := p.cfg.InitialBackoff
	if wait <= 0 {
		wait = interval
	}
	for i := 1; i < failures; i++ {
		if p.cfg.Multiplier > 1 {
			wait *= time.Duration(p.cfg.Multiplier)
		}
		if p.cfg.MaxBackoff > 0 && wait > p.cfg.MaxBackoff {
			return p.cfg.MaxBackoff
		}
	}
	if p.cfg.MaxBackoff > 0 && wait > p.cfg.MaxBackoff {
		wait = p.cfg.MaxBackoff
	}
	return wait
}

func (h *PollHandle) finish(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

func (h *PollHandle) record(resp mintapi.VerifyResponse) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &resp
}
