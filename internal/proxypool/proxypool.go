// Package proxypool shares a bounded set of egress identities between concurrent tasks.
// A checked out identity is used by exactly one task until it is returned.
package proxypool

import (
	"container/list"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SolarDomo/HttpData/internal/env"
	"github.com/SolarDomo/HttpData/internal/proxypool/models"
	"github.com/SolarDomo/HttpData/internal/proxypool/storage"
	"github.com/SolarDomo/HttpData/pkg/utils"
	mapset "github.com/deckarep/golang-set"
	"github.com/sirupsen/logrus"
)

const (
	DefaultCheckInterval = 5 * time.Second
	DefaultFatalWait     = time.Hour
)

type Option func(*Pool)

// WithCheckInterval sets the per-waiter poll step. The wait between polls is
// this step times the number of waiters.
func WithCheckInterval(d time.Duration) Option {
	return func(p *Pool) {
		p.checkInterval = d
	}
}

// WithFatalWait sets how long a checkout may wait before every further poll is reported as fatal.
func WithFatalWait(d time.Duration) Option {
	return func(p *Pool) {
		p.fatalWait = d
	}
}

func WithLog(log env.LogSink) Option {
	return func(p *Pool) {
		if log != nil {
			p.log = log
		}
	}
}

// WithLogPrefix is prepended to task ids in log lines.
func WithLogPrefix(prefix string) Option {
	return func(p *Pool) {
		p.logPrefix = prefix
	}
}

func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pool) {
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

type Pool struct {
	mutex  sync.Mutex
	queue  *list.List
	queued mapset.Set

	waiters int32

	checkInterval time.Duration
	fatalWait     time.Duration
	log           env.LogSink
	logPrefix     string
	sleep         func(ctx context.Context, d time.Duration) error
}

func New(opts ...Option) *Pool {
	p := &Pool{
		queue:         list.New(),
		queued:        mapset.NewSet(),
		checkInterval: DefaultCheckInterval,
		fatalWait:     DefaultFatalWait,
		log:           env.NopLog{},
		sleep:         sleepContext,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Init replaces the pool content. With no identities the pool holds a single direct one.
func (this *Pool) Init(identities []*models.Identity) {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	this.queue.Init()
	this.queued.Clear()

	if len(identities) == 0 {
		this.push(models.Direct())
		this.log.Info(this.startPrefix()+"empty identity list, using a single direct connection", nil)
		return
	}

	endpoints := make([]string, 0, len(identities))
	for _, identity := range identities {
		if identity == nil || this.holds(identity) {
			continue
		}
		this.push(identity)
		endpoints = append(endpoints, identity.String())
	}
	this.log.Info(this.startPrefix()+"identities loaded", logrus.Fields{
		"Count":      this.queue.Len(),
		"Identities": endpoints,
	})
}

func (this *Pool) push(identity *models.Identity) {
	this.queue.PushBack(identity)
	this.queued.Add(identity.ID)
}

// holds reports whether identity, or another one for the same endpoint and user, is queued.
func (this *Pool) holds(identity *models.Identity) bool {
	if this.queued.Contains(identity.ID) {
		return true
	}
	for e := this.queue.Front(); e != nil; e = e.Next() {
		if e.Value.(*models.Identity).Equal(identity) {
			return true
		}
	}
	return false
}

func (this *Pool) tryTake() *models.Identity {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	front := this.queue.Front()
	if front == nil {
		return nil
	}
	identity := this.queue.Remove(front).(*models.Identity)
	this.queued.Remove(identity.ID)
	return identity
}

// Checkout blocks until an identity is free or ctx is done.
// An empty taskID is replaced by a generated one.
func (this *Pool) Checkout(ctx context.Context, taskID string) (*models.Identity, error) {
	curWaiters := atomic.AddInt32(&this.waiters, 1)
	defer atomic.AddInt32(&this.waiters, -1)

	if taskID == "" {
		taskID = utils.NewTraceID()
	}
	tag := this.taskTag(taskID)

	var waited time.Duration
	for {
		if identity := this.tryTake(); identity != nil {
			identity.TaskID = taskID
			return identity, nil
		}

		if waited > this.fatalWait {
			this.log.Fatal(tag+"still waiting for a free identity, maybe it is stuck", nil, logrus.Fields{
				"TimeWaited": waited,
			})
		}

		if now := atomic.LoadInt32(&this.waiters); now < curWaiters {
			curWaiters = now
		}
		wait := time.Duration(curWaiters) * this.checkInterval

		this.log.Info(tag+"waiting for a free identity", logrus.Fields{"Wait": wait})
		if err := this.sleep(ctx, wait); err != nil {
			return nil, err
		}
		waited += wait
	}
}

// Return puts identity back at the tail. Returning an identity that is already queued does nothing.
func (this *Pool) Return(identity *models.Identity) {
	if identity == nil {
		return
	}

	this.mutex.Lock()
	defer this.mutex.Unlock()

	if this.queued.Contains(identity.ID) {
		return
	}
	this.push(identity)
}

// Do checks out an identity, runs fn and returns the identity even when fn panics.
func (this *Pool) Do(ctx context.Context, taskID string, fn func(identity *models.Identity) error) error {
	identity, err := this.Checkout(ctx, taskID)
	if err != nil {
		return err
	}
	defer this.Return(identity)

	return fn(identity)
}

// Available is the number of identities currently queued.
func (this *Pool) Available() int {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	return this.queue.Len()
}

// Waiters is the number of callers blocked in Checkout.
func (this *Pool) Waiters() int {
	return int(atomic.LoadInt32(&this.waiters))
}

func (this *Pool) startPrefix() string {
	if this.logPrefix == "" {
		return ""
	}
	return "[" + this.logPrefix + "] "
}

func (this *Pool) taskTag(taskID string) string {
	if this.logPrefix == "" {
		return "[" + taskID + "] "
	}
	return "[" + this.logPrefix + "." + taskID + "] "
}

// ParseIdentities builds identities from "host:port" or proxy URL strings.
// Credentials embedded in a URL override user and password.
func ParseIdentities(endpoints []string, user, password string) ([]*models.Identity, error) {
	identities := make([]*models.Identity, 0, len(endpoints))
	for _, raw := range endpoints {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		endpoint, u, pw := raw, user, password
		if strings.Contains(raw, "://") {
			parsed, err := url.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("bad proxy %q: %w", raw, err)
			}
			if parsed.Host == "" {
				return nil, fmt.Errorf("bad proxy %q: missing host", raw)
			}
			if parsed.User != nil {
				u = parsed.User.Username()
				pw, _ = parsed.User.Password()
			}
			endpoint = parsed.Host
		} else if !strings.Contains(raw, ":") {
			return nil, fmt.Errorf("bad proxy %q: want host:port", raw)
		}

		identities = append(identities, models.NewIdentity(endpoint, u, pw))
	}
	return identities, nil
}

// LoadIdentities stores the configured endpoints that are new to s and returns
// everything s holds, ready for Init.
func LoadIdentities(s storage.AbsIdentityStorage, endpoints []string, user, password string) ([]*models.Identity, error) {
	parsed, err := ParseIdentities(endpoints, user, password)
	if err != nil {
		return nil, err
	}
	s.CreateIdentityList(parsed)
	return s.GetAllIdentities()
}
