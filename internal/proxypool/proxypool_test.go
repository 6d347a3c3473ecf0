package proxypool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SolarDomo/HttpData/internal/proxypool/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countLog struct {
	fatal int32
	info  int32
}

func (l *countLog) Info(string, logrus.Fields)         { atomic.AddInt32(&l.info, 1) }
func (l *countLog) Error(string, error, logrus.Fields) {}
func (l *countLog) Fatal(string, error, logrus.Fields) { atomic.AddInt32(&l.fatal, 1) }

// yieldSleep never waits for real but still lets other goroutines run.
func yieldSleep(ctx context.Context, d time.Duration) error {
	time.Sleep(time.Millisecond)
	return ctx.Err()
}

func TestInitEmptyGivesDirectIdentity(t *testing.T) {
	p := New()
	p.Init(nil)
	assert.Equal(t, 1, p.Available())

	identity, err := p.Checkout(context.Background(), "task")
	require.NoError(t, err)
	assert.True(t, identity.IsDirect())
	assert.Equal(t, "task", identity.TaskID)
	assert.Equal(t, 0, p.Available())
}

func TestCheckoutFIFOAndGeneratedTaskID(t *testing.T) {
	a := models.NewIdentity("10.0.0.1:3128", "", "")
	b := models.NewIdentity("10.0.0.2:3128", "", "")
	p := New()
	p.Init([]*models.Identity{a, b, a})
	assert.Equal(t, 2, p.Available())

	first, err := p.Checkout(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, a.ID, first.ID)
	assert.Len(t, first.TaskID, 8)

	second, err := p.Checkout(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, b.ID, second.ID)

	p.Return(first)
	third, err := p.Checkout(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, a.ID, third.ID)
}

func TestInitSkipsSameEndpointAndUser(t *testing.T) {
	p := New()
	p.Init([]*models.Identity{
		models.NewIdentity("10.0.0.1:3128", "bob", "a"),
		models.NewIdentity("10.0.0.1:3128", "bob", "b"),
		models.NewIdentity("10.0.0.1:3128", "alice", "a"),
	})
	assert.Equal(t, 2, p.Available())
}

func TestReturnIsIdempotent(t *testing.T) {
	p := New()
	p.Init([]*models.Identity{models.NewIdentity("10.0.0.1:3128", "", "")})

	identity, err := p.Checkout(context.Background(), "t")
	require.NoError(t, err)
	p.Return(identity)
	p.Return(identity)
	p.Return(nil)
	assert.Equal(t, 1, p.Available())
}

func TestCookiesSurviveReturn(t *testing.T) {
	p := New()
	p.Init(nil)

	identity, err := p.Checkout(context.Background(), "t1")
	require.NoError(t, err)
	identity.SetCookie("session", "s1")
	p.Return(identity)

	again, err := p.Checkout(context.Background(), "t2")
	require.NoError(t, err)
	assert.Equal(t, "s1", again.Cookies()["session"])
}

func TestExclusiveCheckout(t *testing.T) {
	identities := []*models.Identity{
		models.NewIdentity("10.0.0.1:3128", "", ""),
		models.NewIdentity("10.0.0.2:3128", "", ""),
	}
	p := New(WithSleeper(yieldSleep))
	p.Init(identities)

	var inUse sync.Map
	var overlap int32
	wg := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.Do(context.Background(), "", func(identity *models.Identity) error {
				if _, loaded := inUse.LoadOrStore(identity.ID, true); loaded {
					atomic.AddInt32(&overlap, 1)
				}
				time.Sleep(2 * time.Millisecond)
				inUse.Delete(identity.ID)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(0), atomic.LoadInt32(&overlap))
	assert.Equal(t, 2, p.Available())
	assert.Equal(t, 0, p.Waiters())
}

func TestDoReturnsOnErrorAndPanic(t *testing.T) {
	p := New()
	p.Init(nil)

	fnErr := errors.New("fetch failed")
	err := p.Do(context.Background(), "t", func(*models.Identity) error {
		return fnErr
	})
	assert.Equal(t, fnErr, err)
	assert.Equal(t, 1, p.Available())

	assert.Panics(t, func() {
		_ = p.Do(context.Background(), "t", func(*models.Identity) error {
			panic("boom")
		})
	})
	assert.Equal(t, 1, p.Available())
}

func TestCheckoutWaitsWithGrowingStep(t *testing.T) {
	var waits []time.Duration
	var p *Pool
	held := models.NewIdentity("10.0.0.1:3128", "", "")
	p = New(WithCheckInterval(5*time.Second), WithSleeper(func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		if len(waits) == 3 {
			p.Return(held)
		}
		return nil
	}))
	p.Init([]*models.Identity{held})
	_, err := p.Checkout(context.Background(), "holder")
	require.NoError(t, err)

	got, err := p.Checkout(context.Background(), "waiter")
	require.NoError(t, err)
	assert.Equal(t, held.ID, got.ID)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, waits)
}

func TestCheckoutFatalAfterLongWait(t *testing.T) {
	log := &countLog{}
	polls := 0
	p := New(WithLog(log), WithCheckInterval(time.Minute), WithFatalWait(2*time.Minute),
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			polls++
			if polls == 5 {
				return context.DeadlineExceeded
			}
			return nil
		}))
	p.Init(nil)
	_, err := p.Checkout(context.Background(), "holder")
	require.NoError(t, err)

	_, err = p.Checkout(context.Background(), "waiter")
	assert.Equal(t, context.DeadlineExceeded, err)
	// waited 0,1,2,3,4 minutes before each poll; only 3 and 4 exceed the limit
	assert.Equal(t, int32(2), atomic.LoadInt32(&log.fatal))
	assert.Equal(t, 0, p.Waiters())
}

func TestCheckoutCancelled(t *testing.T) {
	p := New()
	p.Init(nil)
	_, err := p.Checkout(context.Background(), "holder")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Checkout(ctx, "waiter")
	assert.Equal(t, context.DeadlineExceeded, err)
	assert.Equal(t, 0, p.Waiters())
}

func TestParseIdentities(t *testing.T) {
	identities, err := ParseIdentities([]string{
		"10.0.0.1:3128",
		" ",
		"http://alice:pw@proxy.local:8080",
	}, "bob", "secret")
	require.NoError(t, err)
	require.Len(t, identities, 2)

	assert.Equal(t, "10.0.0.1:3128", identities[0].Endpoint)
	assert.Equal(t, "bob", identities[0].User)
	assert.Equal(t, "secret", identities[0].Password)

	assert.Equal(t, "proxy.local:8080", identities[1].Endpoint)
	assert.Equal(t, "alice", identities[1].User)
	assert.Equal(t, "pw", identities[1].Password)

	_, err = ParseIdentities([]string{"no-port"}, "", "")
	assert.Error(t, err)
}
