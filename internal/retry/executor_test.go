package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SolarDomo/HttpData/internal/env"
	"github.com/SolarDomo/HttpData/internal/transport"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type recordSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

type recordLog struct {
	mu     sync.Mutex
	levels []string
}

func (l *recordLog) add(level string) {
	l.mu.Lock()
	l.levels = append(l.levels, level)
	l.mu.Unlock()
}

func (l *recordLog) Info(string, logrus.Fields)         { l.add("info") }
func (l *recordLog) Error(string, error, logrus.Fields) { l.add("error") }
func (l *recordLog) Fatal(string, error, logrus.Fields) { l.add("fatal") }

func newTestExecutor(opts ...Option) (*Executor, *recordSleeper, *env.Counters, *recordLog) {
	sleeper := &recordSleeper{}
	counters := env.NewCounters(nil)
	log := &recordLog{}
	opts = append([]Option{WithSleeper(sleeper.Sleep)}, opts...)
	return New(env.Environment{Log: log, Metrics: counters}, opts...), sleeper, counters, log
}

func statusAction(code int, calls *int) Action {
	return func(ctx context.Context) (*transport.Response, error) {
		*calls++
		return &transport.Response{StatusCode: code}, nil
	}
}

func TestPolicyDelay(t *testing.T) {
	p := Policy{InitialDelay: 100 * time.Millisecond, AttemptLimit: 20, GrowthCapAttempt: 3}
	data := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 200 * time.Millisecond},
		{1, 300 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 500 * time.Millisecond},
		{4, 500 * time.Millisecond},
		{10, 500 * time.Millisecond},
	}
	for _, d := range data {
		assert.Equal(t, d.want, p.Delay(d.attempt), "attempt %d", d.attempt)
	}

	bo := p.NewBackOff()
	assert.Equal(t, 200*time.Millisecond, bo.NextBackOff())
	assert.Equal(t, 300*time.Millisecond, bo.NextBackOff())
	bo.Reset()
	assert.Equal(t, 200*time.Millisecond, bo.NextBackOff())

	short := Policy{InitialDelay: time.Second, AttemptLimit: 3}.NewBackOff()
	assert.Equal(t, 2*time.Second, short.NextBackOff())
	assert.Equal(t, 3*time.Second, short.NextBackOff())
	assert.Equal(t, backoff.Stop, short.NextBackOff())

	single := Policy{AttemptLimit: 1}.NewBackOff()
	assert.Equal(t, backoff.Stop, single.NextBackOff())
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy.Validate())
	assert.Error(t, Policy{AttemptLimit: 0}.Validate())
	assert.Error(t, Policy{AttemptLimit: 1, InitialDelay: -1}.Validate())
	assert.Error(t, Policy{AttemptLimit: 1, GrowthCapAttempt: -1}.Validate())
	assert.True(t, errors.Is(Policy{}.Validate(), ErrInvalidPolicy))
}

func TestExecutePerpetualFailure(t *testing.T) {
	ex, sleeper, counters, log := newTestExecutor()
	calls := 0
	p := Policy{InitialDelay: 10 * time.Millisecond, AttemptLimit: 6, GrowthCapAttempt: 2}

	out := ex.Execute(context.Background(), statusAction(500, &calls), p)

	assert.Equal(t, Fail, out.Status)
	assert.Equal(t, 6, calls)
	assert.Equal(t, 6, out.Attempts)
	assert.True(t, transport.IsStatus(out.Err, 500))
	require.NotNil(t, out.Response)
	assert.Equal(t, 500, out.Response.StatusCode)
	assert.Equal(t, time.Duration(0), out.Elapsed)

	// the first wait is the initial delay, then linear growth flattening at the cap
	assert.Equal(t, []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		30 * time.Millisecond,
		40 * time.Millisecond,
		40 * time.Millisecond,
		40 * time.Millisecond,
	}, sleeper.delays)
	for i := 1; i < len(sleeper.delays); i++ {
		assert.True(t, sleeper.delays[i] >= sleeper.delays[i-1])
	}

	assert.Equal(t, int64(6), counters.Value(env.TotalRequests))
	assert.Equal(t, int64(6), counters.Value(env.BadRequests))
	assert.Equal(t, int64(0), counters.Value(env.GoodRequests))
	assert.Len(t, log.levels, 6)
}

func TestExecuteSuccessAfterFailures(t *testing.T) {
	now := time.Unix(1000, 0)
	ex, _, counters, _ := newTestExecutor(WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))

	calls := 0
	action := func(ctx context.Context) (*transport.Response, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("connection reset")
		}
		return &transport.Response{StatusCode: 200, Body: []byte("ok")}, nil
	}

	out := ex.Execute(context.Background(), action, DefaultPolicy)
	assert.Equal(t, Success, out.Status)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, out.Attempts)
	assert.NoError(t, out.Err)
	assert.Equal(t, "ok", string(out.Response.Body))
	assert.Equal(t, time.Second, out.Elapsed)
	assert.Equal(t, int64(3), counters.Value(env.TotalRequests))
	assert.Equal(t, int64(1), counters.Value(env.GoodRequests))
	assert.Equal(t, int64(2), counters.Value(env.BadRequests))
}

func TestExecuteStop(t *testing.T) {
	for k := 1; k <= 4; k++ {
		ex, _, _, log := newTestExecutor()
		calls := 0
		action := func(ctx context.Context) (*transport.Response, error) {
			calls++
			if calls == k {
				return &transport.Response{StatusCode: 416}, nil
			}
			return &transport.Response{StatusCode: 502}, nil
		}

		out := ex.Execute(context.Background(), action, Policy{AttemptLimit: 10}, WithStop(func(err error) bool {
			return transport.IsStatus(err, 416)
		}))
		assert.Equal(t, Stopped, out.Status)
		assert.Equal(t, k, calls)
		assert.Equal(t, k, out.Attempts)
		assert.Equal(t, "info", log.levels[len(log.levels)-1])
	}
}

func TestExecutePreCheckFailure(t *testing.T) {
	ex, sleeper, counters, log := newTestExecutor()
	calls := 0
	checkErr := errors.New("bad url")

	out := ex.Execute(context.Background(), statusAction(200, &calls), DefaultPolicy, WithPreCheck(func() error {
		return checkErr
	}))
	assert.Equal(t, Fail, out.Status)
	assert.Equal(t, checkErr, out.Err)
	assert.Equal(t, 0, calls)
	assert.Empty(t, sleeper.delays)
	assert.Equal(t, int64(0), counters.Value(env.TotalRequests))
	assert.Equal(t, []string{"fatal"}, log.levels)
}

func TestExecuteInvalidPolicy(t *testing.T) {
	ex, _, _, log := newTestExecutor()
	calls := 0
	out := ex.Execute(context.Background(), statusAction(200, &calls), Policy{AttemptLimit: 0})
	assert.Equal(t, Fail, out.Status)
	assert.True(t, errors.Is(out.Err, ErrInvalidPolicy))
	assert.Equal(t, 0, calls)
	assert.Equal(t, []string{"fatal"}, log.levels)
}

func TestExecuteActionPanic(t *testing.T) {
	ex, _, counters, _ := newTestExecutor()
	calls := 0
	action := func(ctx context.Context) (*transport.Response, error) {
		calls++
		panic("boom")
	}

	out := ex.Execute(context.Background(), action, Policy{AttemptLimit: 3})
	assert.Equal(t, Fail, out.Status)
	assert.Equal(t, 3, calls)
	assert.True(t, errors.Is(out.Err, ErrPanic))
	assert.Equal(t, int64(3), counters.Value(env.BadRequests))
}

func TestExecuteNilResponse(t *testing.T) {
	ex, _, _, _ := newTestExecutor()
	out := ex.Execute(context.Background(), func(ctx context.Context) (*transport.Response, error) {
		return nil, nil
	}, Policy{AttemptLimit: 1})
	assert.Equal(t, Fail, out.Status)
	assert.Equal(t, ErrNilResponse, out.Err)
}

func TestExecuteCancelledContext(t *testing.T) {
	ex, _, counters, _ := newTestExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0

	out := ex.Execute(ctx, statusAction(200, &calls), DefaultPolicy)
	assert.Equal(t, Fail, out.Status)
	assert.Equal(t, context.Canceled, out.Err)
	assert.Equal(t, 0, calls)
	assert.Equal(t, int64(0), counters.Value(env.TotalRequests))
}

func TestExecuteCancelledBetweenAttempts(t *testing.T) {
	ex, sleeper, counters, _ := newTestExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0

	out := ex.Execute(ctx, func(ctx context.Context) (*transport.Response, error) {
		calls++
		cancel()
		return &transport.Response{StatusCode: 503}, nil
	}, Policy{InitialDelay: time.Millisecond, AttemptLimit: 5})

	assert.Equal(t, Fail, out.Status)
	assert.Equal(t, context.Canceled, out.Err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, out.Attempts)
	require.NotNil(t, out.Response)
	assert.Equal(t, 503, out.Response.StatusCode)
	assert.Equal(t, []time.Duration{time.Millisecond}, sleeper.delays)
	assert.Equal(t, int64(1), counters.Value(env.BadRequests))
}

func TestExecuteCustomSuccessAndHooks(t *testing.T) {
	ex, _, _, _ := newTestExecutor(
		WithSuccess(func(r *transport.Response) bool { return r.StatusCode == 304 }),
		WithLimiter(rate.NewLimiter(rate.Inf, 1)),
	)
	calls, observed := 0, 0

	out := ex.Execute(context.Background(), statusAction(304, &calls), DefaultPolicy,
		OnAttempt(func() { observed++ }),
		WithTrace("[abcd1234] ", "https://example.com/?token=x"),
	)
	assert.Equal(t, Success, out.Status)
	assert.Equal(t, 1, observed)
}

func TestContextSleep(t *testing.T) {
	assert.NoError(t, ContextSleep(context.Background(), time.Millisecond))
	assert.NoError(t, ContextSleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, context.Canceled, ContextSleep(ctx, time.Hour))
}
