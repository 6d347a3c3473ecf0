package httpdata

import (
	"os"

	"github.com/SolarDomo/HttpData/internal/download"
	"github.com/SolarDomo/HttpData/internal/retry"
)

// DataResult is the outcome of Get and Post.
type DataResult struct {
	retry.Outcome
	TraceID string
}

func (r *DataResult) IsSuccess() bool {
	return r != nil && r.Response.IsSuccess()
}

func (r *DataResult) StatusCode() int {
	if r == nil || r.Response == nil {
		return 0
	}
	return r.Response.StatusCode
}

// Data is the response body, nil when there was no response.
func (r *DataResult) Data() []byte {
	if r == nil || r.Response == nil {
		return nil
	}
	return r.Response.Body
}

func (r *DataResult) Content() string {
	return string(r.Data())
}

// StreamResult is the outcome of GetStream.
type StreamResult struct {
	*download.Result
	TraceID string
}

func (r *StreamResult) IsSuccess() bool {
	return r != nil && r.Result != nil && r.Success
}

// Path of the downloaded file, empty when nothing was written.
func (r *StreamResult) Path() string {
	if r == nil || r.Result == nil || r.Target == nil {
		return ""
	}
	return r.Target.Path
}

func (r *StreamResult) Length() int64 {
	if r == nil || r.Result == nil || r.Target == nil {
		return 0
	}
	return r.Target.Length
}

func (r *StreamResult) StatusCode() int {
	if r == nil || r.Result == nil || r.Response == nil {
		return 0
	}
	return r.Response.StatusCode
}

// Open opens the downloaded file for reading; the caller closes it.
func (r *StreamResult) Open() (*os.File, error) {
	path := r.Path()
	if path == "" {
		return nil, ErrNoFile
	}
	return os.Open(path)
}
