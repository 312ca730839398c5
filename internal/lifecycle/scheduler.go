package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Scheduler arranges for a paid request to be finalized after delay.
// Scheduling the same id twice before it runs is a no-op.
type Scheduler interface {
	ScheduleFinalize(ctx context.Context, id string, delay time.Duration) error
}

// FinalizeFunc performs one finalization attempt; see Service.ProcessFinalize.
type FinalizeFunc func(ctx context.Context, id string, lastAttempt bool) error

var ErrSchedulerStopped = errors.New("scheduler stopped")

type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     int
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := p.InitialBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		if p.Multiplier > 1 {
			backoff *= time.Duration(p.Multiplier)
		}
		if p.MaxBackoff > 0 && backoff >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		backoff = p.MaxBackoff
	}
	return backoff
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// TimerScheduler finalizes in process with time.AfterFunc. Pending work is
// lost on exit; Service.Recover picks it up on the next start.
type TimerScheduler struct {
	policy RetryPolicy
	logger logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	handler FinalizeFunc
	timers  map[string]*time.Timer
	stopped bool
}

func NewTimerScheduler(policy RetryPolicy, logger logrus.FieldLogger) *TimerScheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TimerScheduler{
		policy: policy,
		logger: logger.WithField("component", "timer_scheduler"),
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[string]*time.Timer),
	}
}

// SetHandler must be called before the first timer fires.
func (t *TimerScheduler) SetHandler(h FinalizeFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

func (t *TimerScheduler) ScheduleFinalize(_ context.Context, id string, delay time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return ErrSchedulerStopped
	}
	if _, ok := t.timers[id]; ok {
		return nil
	}
	t.timers[id] = time.AfterFunc(delay, func() { t.run(id, 1) })
	return nil
}

func (t *TimerScheduler) run(id string, attempt int) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	handler := t.handler
	t.wg.Add(1)
	t.mu.Unlock()
	defer t.wg.Done()

	last := attempt >= t.policy.attempts()
	var err error
	if handler == nil {
		err = Permanent(errors.New("no finalize handler"))
	} else {
		err = handler(t.ctx, id, last)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err == nil || last || IsPermanent(err) || t.stopped {
		if err != nil {
			t.logger.WithError(err).WithFields(logrus.Fields{"request_id": id, "attempt": attempt}).Warn("finalize stopped")
		}
		delete(t.timers, id)
		return
	}
	wait := t.policy.Backoff(attempt)
	t.timers[id] = time.AfterFunc(wait, func() { t.run(id, attempt+1) })
}

// Pending is the number of requests with a timer outstanding or running.
func (t *TimerScheduler) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// Stop cancels outstanding timers and waits for running attempts to return.
func (t *TimerScheduler) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
}

const TypeFinalizeInscription = "inscription:finalize"

type FinalizePayload struct {
	RequestID string `json:"request_id"`
}

// TaskEnqueuer is the part of *asynq.Client the scheduler needs.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqScheduler enqueues finalization as a Redis-backed asynq task, which
// survives restarts and is retried by the worker.
type AsynqScheduler struct {
	client   TaskEnqueuer
	queue    string
	maxRetry int
	timeout  time.Duration
	logger   logrus.FieldLogger
}

func NewAsynqScheduler(client TaskEnqueuer, queue string, policy RetryPolicy, logger logrus.FieldLogger) *AsynqScheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if queue == "" {
		queue = "default"
	}
	return &AsynqScheduler{
		client:   client,
		queue:    queue,
		maxRetry: policy.attempts() - 1,
		timeout:  2 * time.Minute,
		logger:   logger.WithField("component", "asynq_scheduler"),
	}
}

func FinalizeTaskID(requestID string) string {
	return "finalize:" + requestID
}

func (a *AsynqScheduler) ScheduleFinalize(ctx context.Context, id string, delay time.Duration) error {
	payload, err := json.Marshal(FinalizePayload{RequestID: id})
	if err != nil {
		return fmt.Errorf("marshal finalize payload: %w", err)
	}

	info, err := a.client.EnqueueContext(ctx,
		asynq.NewTask(TypeFinalizeInscription, payload),
		asynq.TaskID(FinalizeTaskID(id)),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(a.maxRetry),
		asynq.Timeout(a.timeout),
		asynq.Queue(a.queue),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue finalize %s: %w", id, err)
	}
	a.logger.WithFields(logrus.Fields{
		"request_id": id,
		"task_id":    info.ID,
		"queue":      info.Queue,
	}).Debug("finalize task enqueued")
	return nil
}

// HandleFinalizeTask is the asynq handler for TypeFinalizeInscription.
func (s *Service) HandleFinalizeTask(ctx context.Context, t *asynq.Task) error {
	var p FinalizePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal finalize payload: %s, %w", err, asynq.SkipRetry)
	}
	if p.RequestID == "" {
		return fmt.Errorf("finalize payload without request id: %w", asynq.SkipRetry)
	}

	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	err := s.ProcessFinalize(ctx, p.RequestID, retried >= maxRetry)
	if err != nil && IsPermanent(err) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}
