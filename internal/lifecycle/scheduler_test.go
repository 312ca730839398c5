package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"degenmint/internal/registry"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := RetryPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(3))
	assert.Equal(t, 800*time.Millisecond, p.Backoff(4))
	assert.Equal(t, time.Second, p.Backoff(5))
	assert.Equal(t, time.Second, p.Backoff(50))

	assert.Equal(t, 500*time.Millisecond, RetryPolicy{}.Backoff(3))
}

func TestTimerSchedulerRunsAfterDelay(t *testing.T) {
	s := NewTimerScheduler(RetryPolicy{MaxAttempts: 1}, quietLogger())
	defer s.Stop()

	done := make(chan string, 1)
	s.SetHandler(func(_ context.Context, id string, last bool) error {
		assert.True(t, last)
		done <- id
		return nil
	})

	require.NoError(t, s.ScheduleFinalize(context.Background(), "req_1", 10*time.Millisecond))
	select {
	case id := <-done:
		assert.Equal(t, "req_1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("finalize never ran")
	}
	require.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestTimerSchedulerDeduplicates(t *testing.T) {
	s := NewTimerScheduler(RetryPolicy{MaxAttempts: 1}, quietLogger())
	defer s.Stop()

	var calls atomic.Int32
	s.SetHandler(func(context.Context, string, bool) error {
		calls.Add(1)
		return nil
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, s.ScheduleFinalize(context.Background(), "req_1", 20*time.Millisecond))
	}
	assert.Equal(t, 1, s.Pending())
	require.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTimerSchedulerRetriesUntilLastAttempt(t *testing.T) {
	s := NewTimerScheduler(RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, Multiplier: 2}, quietLogger())
	defer s.Stop()

	var mu sync.Mutex
	var lastFlags []bool
	s.SetHandler(func(_ context.Context, _ string, last bool) error {
		mu.Lock()
		defer mu.Unlock()
		lastFlags = append(lastFlags, last)
		return errors.New("still failing")
	})

	require.NoError(t, s.ScheduleFinalize(context.Background(), "req_1", 0))
	require.Eventually(t, func() bool { return s.Pending() == 0 }, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{false, false, true}, lastFlags)
}

func TestTimerSchedulerStopsOnPermanentError(t *testing.T) {
	s := NewTimerScheduler(RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Millisecond}, quietLogger())
	defer s.Stop()

	var calls atomic.Int32
	s.SetHandler(func(context.Context, string, bool) error {
		calls.Add(1)
		return Permanent(errors.New("not paid"))
	})

	require.NoError(t, s.ScheduleFinalize(context.Background(), "req_1", 0))
	require.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTimerSchedulerStopCancelsPending(t *testing.T) {
	s := NewTimerScheduler(RetryPolicy{MaxAttempts: 1}, quietLogger())

	var calls atomic.Int32
	s.SetHandler(func(context.Context, string, bool) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, s.ScheduleFinalize(context.Background(), "req_1", 50*time.Millisecond))
	s.Stop()
	s.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, calls.Load())
	assert.ErrorIs(t, s.ScheduleFinalize(context.Background(), "req_2", 0), ErrSchedulerStopped)
}

func TestTimerSchedulerDrivesServiceToCompletion(t *testing.T) {
	f := newFixture(t)
	f.minter.failures = 1

	timer := NewTimerScheduler(RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond}, quietLogger())
	defer timer.Stop()
	timer.SetHandler(f.svc.ProcessFinalize)
	f.svc.scheduler = timer
	f.svc.finalizeDelay = 10 * time.Millisecond

	ctx := context.Background()
	req, err := f.svc.Create(ctx, testWallet)
	require.NoError(t, err)
	_, err = f.svc.Verify(ctx, VerifyInput{WalletAddress: testWallet, RequestID: req.ID, PaymentTxID: "abc123"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		cur, err := f.svc.Get(ctx, req.ID)
		return err == nil && cur.Status == registry.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	cur, err := f.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, cur.InscriptionID)
	assert.Equal(t, 2, f.minter.callCount())
}

type capturingEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (c *capturingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	c.opts = append(c.opts, opts)
	return &asynq.TaskInfo{ID: FinalizeTaskID("x"), Queue: "inscriptions"}, nil
}

func TestAsynqSchedulerEnqueuesFinalizeTask(t *testing.T) {
	enq := &capturingEnqueuer{}
	s := NewAsynqScheduler(enq, "inscriptions", RetryPolicy{MaxAttempts: 4}, quietLogger())

	require.NoError(t, s.ScheduleFinalize(context.Background(), "req_1", 5*time.Second))
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TypeFinalizeInscription, enq.tasks[0].Type())

	var payload FinalizePayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, "req_1", payload.RequestID)

	values := map[asynq.OptionType]interface{}{}
	for _, o := range enq.opts[0] {
		values[o.Type()] = o.Value()
	}
	assert.Equal(t, "finalize:req_1", values[asynq.TaskIDOpt])
	assert.Equal(t, 5*time.Second, values[asynq.ProcessInOpt])
	assert.Equal(t, 3, values[asynq.MaxRetryOpt])
	assert.Equal(t, "inscriptions", values[asynq.QueueOpt])
}

func TestAsynqSchedulerTreatsConflictAsScheduled(t *testing.T) {
	s := NewAsynqScheduler(&capturingEnqueuer{err: asynq.ErrTaskIDConflict}, "", RetryPolicy{}, quietLogger())
	require.NoError(t, s.ScheduleFinalize(context.Background(), "req_1", 0))

	s = NewAsynqScheduler(&capturingEnqueuer{err: errors.New("dial tcp: refused")}, "", RetryPolicy{}, quietLogger())
	require.Error(t, s.ScheduleFinalize(context.Background(), "req_1", 0))
}

func TestHandleFinalizeTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, err := f.svc.Create(ctx, testWallet)
	require.NoError(t, err)
	_, err = f.svc.Verify(ctx, VerifyInput{WalletAddress: testWallet, RequestID: req.ID, PaymentTxID: "abc"})
	require.NoError(t, err)

	payload, err := json.Marshal(FinalizePayload{RequestID: req.ID})
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleFinalizeTask(ctx, asynq.NewTask(TypeFinalizeInscription, payload)))

	cur, err := f.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, registry.StatusCompleted, cur.Status)
}

func TestHandleFinalizeTaskSkipsRetryOnBadPayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.HandleFinalizeTask(ctx, asynq.NewTask(TypeFinalizeInscription, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = f.svc.HandleFinalizeTask(ctx, asynq.NewTask(TypeFinalizeInscription, []byte(`{}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)

	payload, _ := json.Marshal(FinalizePayload{RequestID: "nonexistent"})
	err = f.svc.HandleFinalizeTask(ctx, asynq.NewTask(TypeFinalizeInscription, payload))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.ErrorIs(t, err, registry.ErrNotFound)
}
