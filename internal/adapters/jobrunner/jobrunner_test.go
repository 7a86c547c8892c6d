package jobrunner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/time/rate"

	"github.com/target/mammoth/internal/adapters/dispatcher"
	"github.com/target/mammoth/internal/core"
	"github.com/target/mammoth/internal/domain/model"
	apperrors "github.com/target/mammoth/internal/errors"
	"github.com/target/mammoth/internal/mocks"
	"github.com/target/mammoth/internal/observability/metrics"
	"github.com/target/mammoth/internal/observability/statsd"
	"github.com/target/mammoth/internal/service"
	"github.com/target/mammoth/internal/testutil"
)

const token = "pool-token"

type harness struct {
	fake    *testutil.FakeDispatcher
	pool    *Pool
	metrics *statsd.Recorder
}

func newHarness(t *testing.T, workers int, process ProcessFunc) *harness {
	t.Helper()
	fake := testutil.NewFakeDispatcher(t, token)

	hc, err := dispatcher.NewHTTPClient(context.Background(), dispatcher.TransportOptions{
		Auth:    dispatcher.AuthConfig{APIKey: token},
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	client, err := dispatcher.NewClient(dispatcher.Options{BaseURL: fake.URL(), HTTPClient: hc})
	require.NoError(t, err)

	rec := &statsd.Recorder{}
	reporter, err := service.NewStatusReporter(service.StatusReporterOptions{
		Dispatcher: client,
		Retry:      service.RetryPolicy{Attempts: 1},
		Sinks:      service.ReporterSinks{Metrics: rec},
	})
	require.NoError(t, err)

	pool, err := NewPool(PoolOptions{
		Dispatcher:  client,
		Reporter:    reporter,
		Process:     process,
		Workers:     workers,
		IdleBackoff: 10 * time.Millisecond,
		Metrics:     rec,
	})
	require.NoError(t, err)
	return &harness{fake: fake, pool: pool, metrics: rec}
}

// start runs the pool in the background and returns a func that stops it and waits.
func (h *harness) start(t *testing.T) func() error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- h.pool.Run(context.Background()) }()
	return func() error {
		h.pool.Stop()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("pool did not stop")
			return nil
		}
	}
}

func (h *harness) waitFor(t *testing.T, jobID string, calls int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(h.fake.CallsFor(jobID)) >= calls
	}, 5*time.Second, 5*time.Millisecond, "job %s calls: %v", jobID, h.fake.CallsFor(jobID))
}

func TestPool_SuccessfulJobCallOrder(t *testing.T) {
	var seen atomic.Value
	h := newHarness(t, 1, func(_ context.Context, job *model.JobRecord) error {
		seen.Store(job.Payload())
		return nil
	})
	h.fake.Enqueue(testutil.NewJob("7").WithRequestID(42).WithRawString(`{"a":1}`).JSON())

	stop := h.start(t)
	h.waitFor(t, "7", 4)
	require.NoError(t, stop())

	assert.Equal(t, []string{
		"update-status:In Progress",
		"event",
		"update-status:Completed",
		"mark-handled",
	}, h.fake.CallsFor("7"))
	assert.Equal(t, map[string]any{"a": float64(1)}, seen.Load())
	assert.Equal(t, "Request processed successfully", h.fake.Calls()[1].Body["message"])
}

func TestPool_FailureAndPanicReportError(t *testing.T) {
	h := newHarness(t, 1, func(_ context.Context, job *model.JobRecord) error {
		switch job.JobID() {
		case "fail":
			return errors.New("bad input")
		case "panic":
			panic("kaboom")
		}
		return nil
	})
	h.fake.Enqueue(
		testutil.NewJob("fail").JSON(),
		testutil.NewJob("panic").JSON(),
		testutil.NewJob("ok").JSON(),
	)

	stop := h.start(t)
	h.waitFor(t, "ok", 4)
	require.NoError(t, stop())

	for _, id := range []string{"fail", "panic"} {
		assert.Equal(t, []string{
			"update-status:In Progress",
			"event",
			"update-status:Error",
		}, h.fake.CallsFor(id), id)
		assert.False(t, h.fake.Handled(id))
	}
	assert.True(t, h.fake.Handled("ok"))
	assert.Len(t, h.metrics.Named(metrics.MetricCallbackPanic), 1)

	var messages []string
	for _, c := range h.fake.Calls() {
		if c.Name() == "event" {
			messages = append(messages, c.Body["message"].(string))
		}
	}
	assert.Equal(t, []string{
		"Failed to process request: bad input",
		"Failed to process request: panic: kaboom",
		"Request processed successfully",
	}, messages)
}

func TestPool_MalformedPayloadSkipsCallback(t *testing.T) {
	var called atomic.Bool
	h := newHarness(t, 1, func(context.Context, *model.JobRecord) error {
		called.Store(true)
		return nil
	})
	h.fake.Enqueue(testutil.NewJob("9").WithRawString("not json").JSON())

	stop := h.start(t)
	h.waitFor(t, "9", 3)
	require.NoError(t, stop())

	assert.False(t, called.Load())
	assert.Equal(t, []string{"update-status:In Progress", "event", "update-status:Error"}, h.fake.CallsFor("9"))
	assert.Equal(t, "Failed to process request: malformed payload", h.fake.Calls()[1].Body["message"])
}

func TestPool_EmptyQueueMakesNoStatusCalls(t *testing.T) {
	h := newHarness(t, 2, func(context.Context, *model.JobRecord) error { return nil })

	stop := h.start(t)
	require.Eventually(t, func() bool {
		return len(h.metrics.Named(metrics.MetricFetch)) >= 4
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	assert.Empty(t, h.fake.Calls())
	for _, m := range h.metrics.Named(metrics.MetricFetch) {
		assert.Equal(t, metrics.ResultEmpty, m.Tags["result"])
	}
}

func TestPool_ProcessesEveryJobOnce(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[string]int{}
	)
	h := newHarness(t, 4, func(_ context.Context, job *model.JobRecord) error {
		mu.Lock()
		defer mu.Unlock()
		seen[job.JobID()]++
		return nil
	})
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, id := range ids {
		h.fake.Enqueue(testutil.NewJob(id).JSON())
	}

	stop := h.start(t)
	for _, id := range ids {
		h.waitFor(t, id, 4)
	}
	require.NoError(t, stop())

	assert.Equal(t, 4, h.pool.Size())
	for _, id := range ids {
		assert.Equal(t, 1, seen[id], id)
		assert.True(t, h.fake.Handled(id), id)
	}
}

func TestPool_StopFinishesInFlightJob(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	h := newHarness(t, 1, func(context.Context, *model.JobRecord) error {
		close(started)
		<-release
		return nil
	})
	h.fake.Enqueue(testutil.NewJob("slow").JSON(), testutil.NewJob("never").JSON())

	done := make(chan error, 1)
	go func() { done <- h.pool.Run(context.Background()) }()

	<-started
	h.pool.Stop()
	close(release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop")
	}

	assert.Equal(t, []string{
		"update-status:In Progress",
		"event",
		"update-status:Completed",
		"mark-handled",
	}, h.fake.CallsFor("slow"))
	assert.Empty(t, h.fake.CallsFor("never"))
	assert.Equal(t, 1, h.fake.Pending())
}

func TestPool_StopInterruptsIdleWait(t *testing.T) {
	h := newHarness(t, 1, func(context.Context, *model.JobRecord) error { return nil })
	h.pool.workers[0].idleBackoff = time.Hour

	done := make(chan error, 1)
	go func() { done <- h.pool.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		return len(h.metrics.Named(metrics.MetricFetch)) >= 1
	}, 5*time.Second, 5*time.Millisecond)
	h.pool.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not interrupt idle wait")
	}
	assert.True(t, h.pool.Stopped())
}

func TestPool_CancelIsHardAbort(t *testing.T) {
	h := newHarness(t, 2, func(context.Context, *model.JobRecord) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.pool.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not abort")
	}
	assert.True(t, h.pool.Stopped())
}

func newMockPool(t *testing.T, d core.Dispatcher, process ProcessFunc, workers int) *Pool {
	t.Helper()
	reporter, err := service.NewStatusReporter(service.StatusReporterOptions{Dispatcher: d})
	require.NoError(t, err)
	pool, err := NewPool(PoolOptions{
		Dispatcher:  d,
		Reporter:    reporter,
		Process:     process,
		Workers:     workers,
		IdleBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	return pool
}

func TestPool_FatalFetchErrorPropagates(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := mocks.NewMockDispatcher(ctrl)
	d.EXPECT().FetchNextPending(gomock.Any(), "").Return(nil, apperrors.Validation("bad base url")).MinTimes(1)

	pool := newMockPool(t, d, func(context.Context, *model.JobRecord) error { return nil }, 2)

	err := pool.Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.True(t, pool.Stopped())
}

func TestPool_RecoverableFetchErrorsKeepLooping(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := mocks.NewMockDispatcher(ctrl)

	var fetches atomic.Int32
	pool := (*Pool)(nil)
	d.EXPECT().FetchNextPending(gomock.Any(), "").DoAndReturn(
		func(context.Context, string) (*model.JobRecord, error) {
			if fetches.Add(1) == 3 {
				pool.Stop()
			}
			return nil, apperrors.Dispatcher("fetch next pending", 503, "")
		}).MinTimes(3)

	pool = newMockPool(t, d, func(context.Context, *model.JobRecord) error { return nil }, 1)
	require.NoError(t, pool.Run(context.Background()))
	assert.GreaterOrEqual(t, fetches.Load(), int32(3))
}

func TestWorker_PanicOutsideCallbackIsFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := mocks.NewMockDispatcher(ctrl)
	d.EXPECT().FetchNextPending(gomock.Any(), "").DoAndReturn(
		func(context.Context, string) (*model.JobRecord, error) { panic("driver bug") })

	pool := newMockPool(t, d, func(context.Context, *model.JobRecord) error { return nil }, 1)
	err := pool.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "driver bug")
}

func TestWorker_MalformedWithoutJobIDIsDropped(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := mocks.NewMockDispatcher(ctrl)

	var fetches atomic.Int32
	d.EXPECT().FetchNextPending(gomock.Any(), "").DoAndReturn(
		func(context.Context, string) (*model.JobRecord, error) {
			fetches.Add(1)
			return nil, apperrors.MalformedPayload("", errors.New("decode job object: invalid character '<'"))
		}).AnyTimes()
	d.EXPECT().UpdateStatus(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	d.EXPECT().InsertEvent(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	reporter, err := service.NewStatusReporter(service.StatusReporterOptions{Dispatcher: d})
	require.NoError(t, err)
	rec := &statsd.Recorder{}
	pool, err := NewPool(PoolOptions{
		Dispatcher:  d,
		Reporter:    reporter,
		Process:     func(context.Context, *model.JobRecord) error { return nil },
		Workers:     1,
		IdleBackoff: 50 * time.Millisecond,
		Metrics:     rec,
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- pool.Run(context.Background()) }()
	time.Sleep(250 * time.Millisecond)
	pool.Stop()
	require.NoError(t, <-done)

	// One fetch per backoff interval, with slack for scheduling.
	assert.Positive(t, fetches.Load())
	assert.LessOrEqual(t, fetches.Load(), int32(8))
	for _, m := range rec.Named(metrics.MetricFetch) {
		assert.Equal(t, metrics.ResultError, m.Tags["result"])
	}
}

func newLimitedPool(t *testing.T, d core.Dispatcher, limiter *rate.Limiter, workers int) *Pool {
	t.Helper()
	reporter, err := service.NewStatusReporter(service.StatusReporterOptions{Dispatcher: d})
	require.NoError(t, err)
	pool, err := NewPool(PoolOptions{
		Dispatcher:   d,
		Reporter:     reporter,
		Process:      func(context.Context, *model.JobRecord) error { return nil },
		Workers:      workers,
		IdleBackoff:  10 * time.Millisecond,
		FetchLimiter: limiter,
	})
	require.NoError(t, err)
	return pool
}

func TestPool_StopInterruptsLimiterWait(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := mocks.NewMockDispatcher(ctrl)

	var fetches atomic.Int32
	d.EXPECT().FetchNextPending(gomock.Any(), "").DoAndReturn(
		func(context.Context, string) (*model.JobRecord, error) {
			fetches.Add(1)
			return nil, nil
		}).AnyTimes()

	// One token up front, then one every four seconds.
	pool := newLimitedPool(t, d, rate.NewLimiter(0.25, 1), 2)

	done := make(chan error, 1)
	go func() { done <- pool.Run(context.Background()) }()
	require.Eventually(t, func() bool { return fetches.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	stopped := time.Now()
	pool.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("stop did not interrupt limiter wait")
	}
	assert.Less(t, time.Since(stopped), 500*time.Millisecond)
	assert.Equal(t, int32(1), fetches.Load())
}

func TestPool_LimiterThrottlesFetches(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := mocks.NewMockDispatcher(ctrl)

	var fetches atomic.Int32
	d.EXPECT().FetchNextPending(gomock.Any(), "").DoAndReturn(
		func(context.Context, string) (*model.JobRecord, error) {
			fetches.Add(1)
			return nil, nil
		}).AnyTimes()

	pool := newLimitedPool(t, d, rate.NewLimiter(rate.Every(100*time.Millisecond), 1), 3)

	ctx, cancel := context.WithTimeout(context.Background(), 350*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, pool.Run(ctx), context.DeadlineExceeded)

	// Burst of one plus a token every 100ms across all workers.
	assert.GreaterOrEqual(t, fetches.Load(), int32(2))
	assert.LessOrEqual(t, fetches.Load(), int32(5))
}

func TestNewWorker_Validation(t *testing.T) {
	_, err := NewWorker(WorkerOptions{})
	require.Error(t, err)

	_, err = NewPool(PoolOptions{Workers: 1})
	require.Error(t, err)
}

func TestNewPool_DefaultsToCPUCount(t *testing.T) {
	ctrl := gomock.NewController(t)
	pool := newMockPool(t, mocks.NewMockDispatcher(ctrl), func(context.Context, *model.JobRecord) error { return nil }, 0)
	assert.Positive(t, pool.Size())

	ids := map[string]bool{}
	for _, w := range pool.workers {
		ids[w.ID()] = true
	}
	assert.Len(t, ids, pool.Size())
}
