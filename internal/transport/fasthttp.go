package transport

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpproxy"
)

const DefaultTimeout = 15 * time.Minute

// BrowserHeaders are sent when a client asks to look like a desktop browser.
var BrowserHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Encoding":           "gzip, deflate",
	"Accept-Language":           "en-US,en;q=0.9",
	"Cache-Control":             "max-age=0",
	"Upgrade-Insecure-Requests": "1",
	"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/86.0.4240.75 Safari/537.36",
}

type Option func(*FastHTTP)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(t *FastHTTP) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithProxy sends every request through an HTTP CONNECT proxy.
// An empty endpoint keeps the direct connection.
func WithProxy(endpoint, user, password string) Option {
	return func(t *FastHTTP) {
		addr := ProxyDialAddress(endpoint, user, password)
		if addr == "" {
			return
		}
		t.client.Dial = fasthttpproxy.FasthttpHTTPDialer(addr)
	}
}

// WithDial replaces the dialer, mostly for in-memory tests.
func WithDial(dial fasthttp.DialFunc) Option {
	return func(t *FastHTTP) {
		t.client.Dial = dial
	}
}

func WithHeaders(headers map[string]string) Option {
	return func(t *FastHTTP) {
		for k, v := range headers {
			t.headers[k] = v
		}
	}
}

func WithBrowserHeaders() Option {
	return WithHeaders(BrowserHeaders)
}

func WithCookieJar(jar CookieJar) Option {
	return func(t *FastHTTP) {
		t.jar = jar
	}
}

func WithTLSConfig(cfg *tls.Config) Option {
	return func(t *FastHTTP) {
		t.client.TLSConfig = cfg
	}
}

// ProxyDialAddress renders the "user:password@host:port" form fasthttpproxy expects.
func ProxyDialAddress(endpoint, user, password string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ""
	}
	if i := strings.Index(endpoint, "://"); i >= 0 {
		endpoint = endpoint[i+3:]
	}
	endpoint = strings.TrimSuffix(endpoint, "/")
	if user == "" {
		return endpoint
	}
	return user + ":" + password + "@" + endpoint
}

// FastHTTP is a Transport backed by a fasthttp.Client.
type FastHTTP struct {
	client  *fasthttp.Client
	timeout time.Duration
	headers map[string]string
	jar     CookieJar
}

func NewFastHTTP(opts ...Option) *FastHTTP {
	t := &FastHTTP{
		client: &fasthttp.Client{
			NoDefaultUserAgentHeader: true,
		},
		timeout: DefaultTimeout,
		headers: make(map[string]string),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *FastHTTP) Send(ctx context.Context, r *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timeout := t.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	method := r.Method
	if method == "" {
		method = fasthttp.MethodGet
	}
	req.SetRequestURI(r.URL)
	req.Header.SetMethod(method)
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	for k, v := range r.Header {
		req.Header.Set(k, v)
	}
	if t.jar != nil {
		for k, v := range t.jar.Cookies() {
			req.Header.SetCookie(k, v)
		}
	}
	if len(r.Body) > 0 {
		req.SetBody(r.Body)
	}

	if err := t.client.DoTimeout(req, resp, timeout); err != nil {
		return nil, err
	}

	body, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}

	out := &Response{
		StatusCode: resp.StatusCode(),
		Header:     make(map[string]string),
		Body:       body,
	}
	resp.Header.VisitAll(func(key, value []byte) {
		out.Header[string(key)] = string(value)
	})
	if t.jar != nil {
		resp.Header.VisitAllCookie(func(_, value []byte) {
			c := fasthttp.AcquireCookie()
			if c.ParseBytes(value) == nil {
				t.jar.SetCookie(string(c.Key()), string(c.Value()))
			}
			fasthttp.ReleaseCookie(c)
		})
	}
	return out, nil
}

// decodeBody hands the body to the caller without copying it: decoded bodies are fresh
// buffers, and a plain body is swapped out of the pooled response.
func decodeBody(resp *fasthttp.Response) ([]byte, error) {
	switch strings.ToLower(string(resp.Header.Peek(fasthttp.HeaderContentEncoding))) {
	case "gzip":
		return resp.BodyGunzip()
	case "deflate":
		return resp.BodyInflate()
	}
	return resp.SwapBody(nil), nil
}
