// Package httpdata is the entry point for fetching pages, API payloads and large files.
// A Client retries, paces and resumes requests according to its Settings.
package httpdata

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/SolarDomo/HttpData/internal/download"
	"github.com/SolarDomo/HttpData/internal/env"
	"github.com/SolarDomo/HttpData/internal/loadstat"
	"github.com/SolarDomo/HttpData/internal/retry"
	"github.com/SolarDomo/HttpData/internal/transport"
	"github.com/SolarDomo/HttpData/pkg/utils"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

type Option func(*options)

type options struct {
	transport transport.Transport
	dial      fasthttp.DialFunc
	sleeper   retry.Sleeper
	clock     func() time.Time
	jar       transport.CookieJar
}

// WithTransport replaces the fasthttp transport entirely.
func WithTransport(t transport.Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithDial keeps the fasthttp transport but connects through dial.
func WithDial(dial fasthttp.DialFunc) Option {
	return func(o *options) {
		o.dial = dial
	}
}

func WithSleeper(s retry.Sleeper) Option {
	return func(o *options) {
		o.sleeper = s
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

// WithCookieJar shares jar with the client instead of a private one.
func WithCookieJar(jar transport.CookieJar) Option {
	return func(o *options) {
		o.jar = jar
	}
}

type Client struct {
	settings Settings
	env      env.Environment
	log      env.LogSink
	now      func() time.Time
	base     *url.URL

	transport  transport.Transport
	executor   *retry.Executor
	downloader *download.Downloader

	jar       transport.CookieJar
	ownJar    *CookieJar
	loadStats *loadstat.Aggregator
	loadHost  string
	flushCron *cron.Cron

	closeOnce sync.Once
	closeErr  error
}

func New(environment env.Environment, settings Settings, opts ...Option) (*Client, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	if settings.Proxy != "" {
		settings.OnlyHTTPS = true
	}
	if err := settings.Policy().Validate(); err != nil {
		return nil, err
	}

	base, err := parseBaseURL(settings.BaseURL, settings.OnlyHTTPS)
	if err != nil {
		return nil, err
	}

	c := &Client{
		settings: settings,
		env:      environment,
		log:      environment.Logger(),
		now:      o.clock,
		base:     base,
		jar:      o.jar,
	}

	if c.jar == nil {
		c.ownJar = NewCookieJar()
		if settings.CookiesPath != "" {
			if err := c.ownJar.Load(settings.CookiesPath); err != nil {
				c.log.Error("cannot load cookies", err, logrus.Fields{"Path": settings.CookiesPath})
			}
		}
		c.jar = c.ownJar
	}

	c.transport = o.transport
	if c.transport == nil {
		c.transport = transport.NewFastHTTP(c.transportOptions(o)...)
	}

	retryOpts := []retry.Option{retry.WithClock(o.clock)}
	if o.sleeper != nil {
		retryOpts = append(retryOpts, retry.WithSleeper(o.sleeper))
	}
	if settings.RateLimit > 0 {
		burst := settings.RateBurst
		if burst < 1 {
			burst = 1
		}
		retryOpts = append(retryOpts, retry.WithLimiter(rate.NewLimiter(rate.Limit(settings.RateLimit), burst)))
	}
	c.executor = retry.New(environment, retryOpts...)

	c.downloader = download.New(c.transport, c.executor, environment, download.WithClock(o.clock))

	if base != nil {
		c.loadStats = loadstat.New(loadstat.WithLog(c.log), loadstat.WithClock(o.clock))
		c.loadHost = base.Host
		c.loadStats.Track(c.loadHost)
		if err := c.loadStats.Start(settings.LoadReportSpec); err != nil {
			return nil, fmt.Errorf("load report schedule: %w", err)
		}
	}

	if settings.MetricsFlushSpec != "" {
		c.flushCron = cron.New()
		if _, err := c.flushCron.AddFunc(settings.MetricsFlushSpec, environment.Meter().Flush); err != nil {
			c.stopSchedules()
			return nil, fmt.Errorf("metrics flush schedule: %w", err)
		}
		c.flushCron.Start()
	}

	return c, nil
}

func (c *Client) transportOptions(o *options) []transport.Option {
	s := c.settings
	opts := []transport.Option{
		transport.WithTimeout(s.DownloadTimeout),
		transport.WithCookieJar(c.jar),
	}
	if s.UseDefaultBrowserSettings {
		opts = append(opts, transport.WithBrowserHeaders())
	}
	if len(s.Headers) > 0 {
		opts = append(opts, transport.WithHeaders(s.Headers))
	}
	if s.Proxy != "" {
		opts = append(opts, transport.WithProxy(s.Proxy, s.ProxyUser, s.ProxyPassword))
	}
	if s.InsecureSkipVerify {
		opts = append(opts, transport.WithTLSConfig(&tls.Config{InsecureSkipVerify: true}))
	}
	if o.dial != nil {
		opts = append(opts, transport.WithDial(o.dial))
	}
	return opts
}

func (c *Client) Settings() Settings {
	return c.settings
}

// LoadStats is nil unless a base URL is set.
func (c *Client) LoadStats() *loadstat.Aggregator {
	return c.loadStats
}

func (c *Client) Cookies() map[string]string {
	return c.jar.Cookies()
}

func (c *Client) shownURL(raw string) string {
	if c.settings.HideSecrets {
		return utils.HideSecrets(raw)
	}
	return raw
}

func (c *Client) observe() {
	if c.loadStats != nil {
		c.loadStats.Observe(c.loadHost, c.now())
	}
}

func (c *Client) Get(ctx context.Context, rawURL, traceID string) *DataResult {
	return c.fetch(ctx, "GET", rawURL, nil, traceID)
}

func (c *Client) Post(ctx context.Context, rawURL string, body []byte, traceID string) *DataResult {
	return c.fetch(ctx, "POST", rawURL, body, traceID)
}

func (c *Client) GetSuccess(ctx context.Context, rawURL, traceID string) (*DataResult, error) {
	r := c.Get(ctx, rawURL, traceID)
	return r, c.dataError("get", rawURL, r)
}

func (c *Client) PostSuccess(ctx context.Context, rawURL string, body []byte, traceID string) (*DataResult, error) {
	r := c.Post(ctx, rawURL, body, traceID)
	return r, c.dataError("post", rawURL, r)
}

func (c *Client) dataError(op, rawURL string, r *DataResult) error {
	if r.IsSuccess() {
		return nil
	}
	return &FetchError{
		TracePrefix: utils.TracePrefix(r.TraceID),
		Op:          op,
		URL:         c.shownURL(rawURL),
		StatusCode:  r.StatusCode(),
		Err:         r.Err,
	}
}

func (c *Client) fetch(ctx context.Context, method, rawURL string, body []byte, traceID string) *DataResult {
	if traceID == "" {
		traceID = utils.NewTraceID()
	}
	prefix := utils.TracePrefix(traceID)
	shown := c.shownURL(rawURL)
	op := strings.ToLower(method)

	var target string
	header := map[string]string{}
	if method == "POST" && c.settings.PostContentType != "" {
		header["Content-Type"] = c.settings.PostContentType
	}

	out := c.executor.Execute(ctx, func(ctx context.Context) (*transport.Response, error) {
		return c.transport.Send(ctx, &transport.Request{
			Method: method,
			URL:    target,
			Header: header,
			Body:   body,
		})
	}, c.settings.Policy(),
		retry.WithPreCheck(func() error {
			var err error
			target, err = checkURL(c.base, rawURL, c.settings.OnlyHTTPS)
			return err
		}),
		retry.WithTrace(prefix, shown),
		retry.OnAttempt(c.observe),
	)

	result := &DataResult{Outcome: out, TraceID: traceID}
	switch out.Status {
	case retry.Success:
		c.log.Info(fmt.Sprintf("%s%s '%s'", prefix, op, shown), logrus.Fields{
			"StatusCode":  out.Response.StatusCode,
			"Length":      len(out.Response.Body),
			"TimeElapsed": out.Elapsed,
		})
	case retry.Fail:
		c.log.Info(fmt.Sprintf("%sfailed %s '%s'", prefix, op, shown), logrus.Fields{
			"Attempts": out.Attempts,
		})
	}
	return result
}

// GetStream downloads rawURL into the download directory, resuming a file left by an earlier call.
// An empty fileName is derived according to the naming strategy.
func (c *Client) GetStream(ctx context.Context, rawURL, fileName, traceID string) *StreamResult {
	if traceID == "" {
		traceID = utils.NewTraceID()
	}
	prefix := utils.TracePrefix(traceID)
	shown := c.shownURL(rawURL)
	fields := logrus.Fields{"URL": shown}

	target, err := checkURL(c.base, rawURL, c.settings.OnlyHTTPS)
	if err != nil {
		c.log.Fatal(prefix+"pre-check failed", err, fields)
		return &StreamResult{Result: &download.Result{Err: err}, TraceID: traceID}
	}

	name, err := download.ResolveFileName(c.settings.StrategyFileName, target, fileName)
	if err != nil {
		c.log.Fatal(prefix+"cannot name download", err, fields)
		return &StreamResult{Result: &download.Result{Err: err}, TraceID: traceID}
	}

	dir := c.settings.DownloadDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		c.log.Error(prefix+"cannot create download dir", err, fields)
		return &StreamResult{Result: &download.Result{Err: err}, TraceID: traceID}
	}

	chunk := c.settings.ChunkSize
	if chunk <= 0 {
		chunk = download.DefaultChunkSize
	}
	res := c.downloader.DownloadToFile(ctx, target, filepath.Join(dir, name), chunk, c.settings.Policy(),
		retry.WithTrace(prefix, shown),
		retry.OnAttempt(c.observe),
	)
	if !res.Success && !res.Partial {
		c.log.Info(prefix+"failed download '"+shown+"'", nil)
	}
	return &StreamResult{Result: res, TraceID: traceID}
}

func (c *Client) GetStreamSuccess(ctx context.Context, rawURL, fileName, traceID string) (*StreamResult, error) {
	r := c.GetStream(ctx, rawURL, fileName, traceID)
	if r.IsSuccess() {
		return r, nil
	}
	return r, &FetchError{
		TracePrefix: utils.TracePrefix(r.TraceID),
		Op:          "download",
		URL:         c.shownURL(rawURL),
		StatusCode:  r.StatusCode(),
		Err:         r.Err,
	}
}

func (c *Client) stopSchedules() {
	if c.loadStats != nil {
		c.loadStats.Stop()
	}
	if c.flushCron != nil {
		<-c.flushCron.Stop().Done()
	}
}

// Close stops the schedules, flushes metrics, saves cookies and, when ClearDownloadDir is set,
// trims the download directory. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.stopSchedules()
		c.env.Meter().Flush()

		if c.ownJar != nil && c.settings.CookiesPath != "" {
			if err := c.ownJar.Save(c.settings.CookiesPath); err != nil {
				c.log.Error("cannot save cookies", err, logrus.Fields{"Path": c.settings.CookiesPath})
				c.closeErr = err
			}
		}
		if c.settings.ClearDownloadDir && c.settings.DownloadDir != "" {
			if err := download.ClearDir(c.settings.DownloadDir, c.settings.keepOnClear()); err != nil {
				c.log.Error("cannot clear download dir", err, logrus.Fields{"Dir": c.settings.DownloadDir})
				if c.closeErr == nil {
					c.closeErr = err
				}
			}
		}
	})
	return c.closeErr
}
