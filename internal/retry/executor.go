// Package retry runs one request action with pacing, linear backoff and an optional
// stop condition. Every failure is reported through Outcome, never as a returned error.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/SolarDomo/HttpData/internal/env"
	"github.com/SolarDomo/HttpData/internal/transport"
	"github.com/SolarDomo/HttpData/pkg/utils"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type Status int

const (
	Fail Status = iota
	Success
	Stopped
)

func (s Status) String() string {
	switch s {
	case Success:
		return "Success"
	case Stopped:
		return "Stopped"
	default:
		return "Fail"
	}
}

// Outcome is the result of Execute.
// Elapsed is the duration of the successful attempt and zero otherwise.
type Outcome struct {
	Status   Status
	Response *transport.Response
	Err      error
	Attempts int
	Elapsed  time.Duration
}

type Action func(ctx context.Context) (*transport.Response, error)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type Option func(*Executor)

func WithSleeper(s Sleeper) Option {
	return func(e *Executor) {
		if s != nil {
			e.sleep = s
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLimiter makes every attempt wait for a token first.
func WithLimiter(l *rate.Limiter) Option {
	return func(e *Executor) {
		e.limiter = l
	}
}

// WithSuccess replaces the default 2xx success check.
func WithSuccess(fn func(*transport.Response) bool) Option {
	return func(e *Executor) {
		if fn != nil {
			e.success = fn
		}
	}
}

// Executor is safe for concurrent use; per-call state lives in Execute.
type Executor struct {
	log     env.LogSink
	metrics env.MetricSink
	sleep   Sleeper
	now     func() time.Time
	limiter *rate.Limiter
	success func(*transport.Response) bool
}

func New(environment env.Environment, opts ...Option) *Executor {
	e := &Executor{
		log:     environment.Logger(),
		metrics: environment.Meter(),
		sleep:   ContextSleep,
		now:     time.Now,
		success: (*transport.Response).IsSuccess,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

type CallOption func(*call)

type call struct {
	stop      func(error) bool
	preCheck  func() error
	onAttempt func()
	prefix    string
	url       string
}

// WithStop ends the loop with Stopped when fn matches an attempt error.
func WithStop(fn func(error) bool) CallOption {
	return func(c *call) {
		c.stop = fn
	}
}

// WithPreCheck runs fn once before the first attempt. An error fails the call with no attempt made.
func WithPreCheck(fn func() error) CallOption {
	return func(c *call) {
		c.preCheck = fn
	}
}

// OnAttempt runs fn right before each attempt.
func OnAttempt(fn func()) CallOption {
	return func(c *call) {
		c.onAttempt = fn
	}
}

// WithTrace sets the log line prefix and the URL shown in log fields. The URL is logged
// as given, so mask secrets before passing it.
func WithTrace(prefix, url string) CallOption {
	return func(c *call) {
		c.prefix = prefix
		c.url = url
	}
}

// TraceOf returns what WithTrace set among opts.
func TraceOf(opts ...CallOption) (prefix, url string) {
	c := &call{}
	for _, o := range opts {
		o(c)
	}
	return c.prefix, c.url
}

func (e *Executor) Execute(ctx context.Context, action Action, policy Policy, opts ...CallOption) (out Outcome) {
	c := &call{}
	for _, o := range opts {
		o(c)
	}
	fields := logrus.Fields{}
	if c.url != "" {
		fields["URL"] = c.url
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", ErrPanic, r)
			e.log.Fatal(c.prefix+"retry loop aborted", err, fields)
			out = Outcome{Status: Fail, Err: err, Attempts: out.Attempts}
		}
	}()

	if err := policy.Validate(); err != nil {
		e.log.Fatal(c.prefix+"refusing to run with invalid policy", err, fields)
		return Outcome{Status: Fail, Err: err}
	}
	if c.preCheck != nil {
		if err := c.preCheck(); err != nil {
			e.log.Fatal(c.prefix+"pre-check failed", err, fields)
			return Outcome{Status: Fail, Err: err}
		}
	}

	bo := backoff.WithContext(policy.NewBackOff(), ctx)
	sleepTime := policy.InitialDelay
	for i := 0; ; i++ {
		out.Attempts = i
		if err := e.sleep(ctx, sleepTime); err != nil {
			return Outcome{Status: Fail, Response: out.Response, Err: err, Attempts: i}
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return Outcome{Status: Fail, Response: out.Response, Err: err, Attempts: i}
			}
		}
		if c.onAttempt != nil {
			c.onAttempt()
		}

		e.metrics.Inc(env.TotalRequests)
		start := e.now()
		resp, err := e.attempt(ctx, action)
		elapsed := e.now().Sub(start)

		if err == nil {
			e.metrics.Inc(env.GoodRequests)
			return Outcome{Status: Success, Response: resp, Attempts: i + 1, Elapsed: elapsed}
		}

		e.metrics.Inc(env.BadRequests)
		attemptFields := utils.LogrusFieldsUnion(fields, logrus.Fields{
			"Attempt":     i + 1,
			"TimeElapsed": elapsed,
		})
		if c.stop != nil && c.stop(err) {
			e.log.Info(c.prefix+"stop condition met", utils.LogrusFieldsUnion(attemptFields, logrus.Fields{"Error": err}))
			return Outcome{Status: Stopped, Response: resp, Err: err, Attempts: i + 1}
		}

		sleepTime = bo.NextBackOff()
		if sleepTime == backoff.Stop {
			e.log.Error(c.prefix+"attempt failed, giving up", err, attemptFields)
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return Outcome{Status: Fail, Response: resp, Err: err, Attempts: i + 1}
		}
		out.Response = resp
		attemptFields["NextDelay"] = sleepTime
		e.log.Error(c.prefix+"attempt failed", err, attemptFields)
	}
}

// attempt runs the action once and turns panics and rejected statuses into errors.
func (e *Executor) attempt(ctx context.Context, action Action) (resp *transport.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	resp, err = action(ctx)
	if err != nil {
		return resp, err
	}
	if resp == nil {
		return nil, ErrNilResponse
	}
	if !e.success(resp) {
		return resp, &transport.StatusError{StatusCode: resp.StatusCode}
	}
	return resp, nil
}
