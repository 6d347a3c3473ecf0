package httpdata

import (
	"context"
	"sync"

	"github.com/SolarDomo/HttpData/internal/env"
	"github.com/SolarDomo/HttpData/internal/proxypool"
	"github.com/SolarDomo/HttpData/internal/proxypool/models"
	"github.com/SolarDomo/HttpData/internal/retry"
	"github.com/sirupsen/logrus"
)

// Shuffler spreads requests over the identities of a pool. Each identity gets its own
// client bound to its proxy and cookies, reused on later checkouts.
type Shuffler struct {
	env      env.Environment
	log      env.LogSink
	pool     *proxypool.Pool
	settings Settings
	opts     []Option

	mutex   sync.Mutex
	clients map[string]*Client
}

func NewShuffler(environment env.Environment, pool *proxypool.Pool, settings Settings, opts ...Option) *Shuffler {
	return &Shuffler{
		env:      environment,
		log:      environment.Logger(),
		pool:     pool,
		settings: settings,
		opts:     opts,
		clients:  make(map[string]*Client),
	}
}

func (s *Shuffler) clientFor(identity *models.Identity) (*Client, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if c, ok := s.clients[identity.ID]; ok {
		return c, nil
	}

	settings := s.settings
	settings.Proxy = identity.Endpoint
	settings.ProxyUser = identity.User
	settings.ProxyPassword = identity.Password
	settings.CookiesPath = ""

	opts := append(append([]Option(nil), s.opts...), WithCookieJar(identity))
	c, err := New(s.env, settings, opts...)
	if err != nil {
		return nil, err
	}
	s.clients[identity.ID] = c
	return c, nil
}

// TryGet fetches url through the next free identity. The identity goes back to the pool
// whatever happens.
func (s *Shuffler) TryGet(ctx context.Context, url, taskID string) (*DataResult, bool) {
	var result *DataResult
	err := s.pool.Do(ctx, taskID, func(identity *models.Identity) error {
		c, err := s.clientFor(identity)
		if err != nil {
			return err
		}

		tag := "[" + identity.TaskID + "] "
		s.log.Info(tag+"start download", logrus.Fields{"Identity": identity.String()})
		result = c.Get(ctx, url, identity.TaskID)
		s.log.Info(tag+"end download", logrus.Fields{"Success": result.IsSuccess()})
		return nil
	})
	if err != nil {
		s.log.Error("no identity used", err, logrus.Fields{"TaskID": taskID})
		return &DataResult{Outcome: retry.Outcome{Status: retry.Fail, Err: err}, TraceID: taskID}, false
	}
	return result, result.IsSuccess()
}

// Close closes every per-identity client.
func (s *Shuffler) Close() error {
	s.mutex.Lock()
	clients := s.clients
	s.clients = make(map[string]*Client)
	s.mutex.Unlock()

	var firstErr error
	for _, c := range clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
