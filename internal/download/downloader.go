// Package download fetches large files chunk by chunk with HTTP Range requests and
// resumes from whatever is already on disk.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/SolarDomo/HttpData/internal/env"
	"github.com/SolarDomo/HttpData/internal/retry"
	"github.com/SolarDomo/HttpData/internal/transport"
	"github.com/SolarDomo/HttpData/pkg/utils"
	"github.com/sirupsen/logrus"
)

const DefaultChunkSize int64 = 1 << 30

// Target is the local file of a download.
type Target struct {
	Path     string
	Length   int64
	Complete bool
}

type Result struct {
	// Target is nil when nothing was ever written.
	Target  *Target
	Success bool
	// Partial means the download gave up after writing some bytes; calling again resumes.
	Partial  bool
	Response *transport.Response
	Elapsed  time.Duration
	// Rate is in bytes per second.
	Rate float64
	Err  error
}

type Option func(*Downloader)

func WithClock(now func() time.Time) Option {
	return func(d *Downloader) {
		if now != nil {
			d.now = now
		}
	}
}

// Downloader writes a single target at a time per call; concurrent calls must use different paths.
type Downloader struct {
	transport transport.Transport
	executor  *retry.Executor
	log       env.LogSink
	now       func() time.Time
}

func New(t transport.Transport, executor *retry.Executor, environment env.Environment, opts ...Option) *Downloader {
	d := &Downloader{
		transport: t,
		executor:  executor,
		log:       environment.Logger(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func rangeNotSatisfiable(err error) bool {
	return transport.IsStatus(err, 416)
}

// DownloadToFile appends chunks of url to path until a chunk comes back shorter than chunkSize.
// Each chunk goes through the retry executor; a 416 answer ends the download with whatever
// is already on disk.
func (d *Downloader) DownloadToFile(ctx context.Context, url, path string, chunkSize int64,
	policy retry.Policy, opts ...retry.CallOption) *Result {
	prefix, shownURL := retry.TraceOf(opts...)
	if shownURL == "" {
		shownURL = utils.HideSecrets(url)
	}
	fields := logrus.Fields{
		"URL":  shownURL,
		"Path": path,
	}

	if chunkSize <= 0 {
		d.log.Error(prefix+"download not started", ErrInvalidChunkSize, fields)
		return &Result{Err: ErrInvalidChunkSize}
	}

	d.log.Info(prefix+"start download", fields)
	start := d.now()
	callOpts := append(append([]retry.CallOption(nil), opts...), retry.WithStop(rangeNotSatisfiable))

	for {
		written, err := fileLength(path)
		if err != nil {
			d.log.Error(prefix+"cannot stat target", err, fields)
			return &Result{Err: err}
		}
		if written > 0 {
			d.log.Info(prefix+"resume download", utils.LogrusFieldsUnion(fields, logrus.Fields{"Written": written}))
		}

		req := &transport.Request{
			Method: "GET",
			URL:    url,
			Header: map[string]string{
				"Range": fmt.Sprintf("bytes=%d-%d", written, written+chunkSize-1),
			},
		}

		out := d.executor.Execute(ctx, func(ctx context.Context) (*transport.Response, error) {
			return d.transport.Send(ctx, req)
		}, policy, callOpts...)

		switch out.Status {
		case retry.Stopped:
			if written == 0 {
				return &Result{Response: out.Response, Err: out.Err}
			}
			return d.finish(prefix, fields, path, written, out.Response, start)
		case retry.Fail:
			if written == 0 {
				return &Result{Response: out.Response, Err: out.Err}
			}
			d.log.Error(prefix+"download interrupted", out.Err, utils.LogrusFieldsUnion(fields, logrus.Fields{"Written": written}))
			return &Result{
				Target:   &Target{Path: path, Length: written},
				Partial:  true,
				Response: out.Response,
				Elapsed:  d.now().Sub(start),
				Err:      out.Err,
			}
		}

		resp := out.Response
		body := resp.Body
		resp.Body = nil

		if resp.StatusCode != 206 {
			// Range was ignored and the body is the whole resource
			if err := os.WriteFile(path, body, 0644); err != nil {
				return d.writeFailed(prefix, fields, path, written, resp, err)
			}
			return d.finish(prefix, fields, path, int64(len(body)), resp, start)
		}

		if from, ok := contentRangeStart(resp.Header); ok && from != written {
			err := fmt.Errorf("%w: want %d, got %d", ErrRangeMismatch, written, from)
			return d.writeFailed(prefix, fields, path, written, resp, err)
		}
		if err := appendFile(path, body); err != nil {
			return d.writeFailed(prefix, fields, path, written, resp, err)
		}

		total := written + int64(len(body))
		if int64(len(body)) < chunkSize {
			return d.finish(prefix, fields, path, total, resp, start)
		}
		if size, ok := contentRangeSize(resp.Header); ok && total >= size {
			return d.finish(prefix, fields, path, total, resp, start)
		}
	}
}

func (d *Downloader) finish(prefix string, fields logrus.Fields, path string, length int64,
	resp *transport.Response, start time.Time) *Result {
	elapsed := d.now().Sub(start)
	rate := float64(length) / (elapsed.Seconds() + 0.0001)

	logFields := utils.LogrusFieldsUnion(fields, logrus.Fields{
		"Length":      length,
		"TimeElapsed": elapsed,
		"Rate":        fmt.Sprintf("%.2f MB/s", rate/1e6),
	})
	if resp != nil {
		logFields["StatusCode"] = resp.StatusCode
	}
	d.log.Info(prefix+"downloaded", logFields)

	return &Result{
		Target:   &Target{Path: path, Length: length, Complete: true},
		Success:  true,
		Response: resp,
		Elapsed:  elapsed,
		Rate:     rate,
	}
}

func (d *Downloader) writeFailed(prefix string, fields logrus.Fields, path string, written int64,
	resp *transport.Response, err error) *Result {
	d.log.Error(prefix+"cannot write target", err, fields)
	r := &Result{Response: resp, Err: err}
	if written > 0 {
		r.Target = &Target{Path: path, Length: written}
		r.Partial = true
	}
	return r
}

func fileLength(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: %s", ErrNotRegularFile, path)
	}
	return info.Size(), nil
}

func appendFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// contentRange parses "bytes <from>-<to>/<size>".
func contentRange(header map[string]string) (from, size int64, ok bool) {
	v := header["Content-Range"]
	if !strings.HasPrefix(v, "bytes ") {
		return 0, -1, false
	}
	v = strings.TrimPrefix(v, "bytes ")
	dash := strings.IndexByte(v, '-')
	slash := strings.IndexByte(v, '/')
	if dash < 0 || slash < dash {
		return 0, -1, false
	}
	from, err := strconv.ParseInt(v[:dash], 10, 64)
	if err != nil {
		return 0, -1, false
	}
	size, err = strconv.ParseInt(v[slash+1:], 10, 64)
	if err != nil {
		size = -1
	}
	return from, size, true
}

func contentRangeStart(header map[string]string) (int64, bool) {
	from, _, ok := contentRange(header)
	return from, ok
}

func contentRangeSize(header map[string]string) (int64, bool) {
	_, size, ok := contentRange(header)
	return size, ok && size >= 0
}
