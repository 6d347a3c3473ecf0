package retry

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes how often and how patiently an action is retried.
//
// The first attempt waits InitialDelay. After the failed attempt i (0-based) the next
// wait is InitialDelay * (min(i, GrowthCapAttempt) + 2), so delays grow linearly and
// stay flat once i reaches GrowthCapAttempt.
type Policy struct {
	InitialDelay     time.Duration
	AttemptLimit     int
	GrowthCapAttempt int
}

var DefaultPolicy = Policy{
	InitialDelay:     time.Second,
	AttemptLimit:     5,
	GrowthCapAttempt: 8,
}

func (p Policy) Validate() error {
	if p.AttemptLimit < 1 {
		return fmt.Errorf("%w: attempt limit %d < 1", ErrInvalidPolicy, p.AttemptLimit)
	}
	if p.InitialDelay < 0 {
		return fmt.Errorf("%w: negative initial delay %s", ErrInvalidPolicy, p.InitialDelay)
	}
	if p.GrowthCapAttempt < 0 {
		return fmt.Errorf("%w: negative growth cap %d", ErrInvalidPolicy, p.GrowthCapAttempt)
	}
	return nil
}

// Delay returns the wait after the failed attempt i.
func (p Policy) Delay(i int) time.Duration {
	if i > p.GrowthCapAttempt {
		i = p.GrowthCapAttempt
	}
	if i < 0 {
		i = 0
	}
	return p.InitialDelay * time.Duration(i+2)
}

// NewBackOff returns the policy's delay sequence as a backoff.BackOff. It yields
// AttemptLimit-1 delays and then backoff.Stop.
func (p Policy) NewBackOff() backoff.BackOff {
	if p.AttemptLimit <= 1 {
		return &backoff.StopBackOff{}
	}
	return backoff.WithMaxRetries(&linearBackOff{policy: p}, uint64(p.AttemptLimit-1))
}

type linearBackOff struct {
	policy Policy
	failed int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	d := b.policy.Delay(b.failed)
	b.failed++
	return d
}

func (b *linearBackOff) Reset() {
	b.failed = 0
}
