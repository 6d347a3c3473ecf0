package env

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

type Metric int

const (
	TotalRequests Metric = iota
	GoodRequests
	BadRequests
)

func (m Metric) String() string {
	switch m {
	case TotalRequests:
		return "urlTotalRequests"
	case GoodRequests:
		return "urlGoodRequests"
	case BadRequests:
		return "urlBadRequests"
	default:
		return "unknown"
	}
}

// MetricSink counts request outcomes.
// Flush atomically reads and clears every counter and reports each one as a delta.
type MetricSink interface {
	Inc(m Metric)
	Add(m Metric, n int64)
	Flush()
}

type NopMetrics struct{}

func (NopMetrics) Inc(Metric)        {}
func (NopMetrics) Add(Metric, int64) {}
func (NopMetrics) Flush()            {}

// ReportFunc receives one flushed delta.
type ReportFunc func(m Metric, delta int64)

// Counters is an in-memory MetricSink.
type Counters struct {
	mu     sync.Mutex
	values map[Metric]int64
	report ReportFunc
}

// NewCounters creates counters which hand flushed deltas to report.
// A nil report drops them.
func NewCounters(report ReportFunc) *Counters {
	if report == nil {
		report = func(Metric, int64) {}
	}
	return &Counters{
		values: make(map[Metric]int64),
		report: report,
	}
}

// NewLogrusCounters reports deltas as "DELTA <name> <value>" info lines.
func NewLogrusCounters(logger *logrus.Logger) *Counters {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return NewCounters(func(m Metric, delta int64) {
		logger.WithFields(logrus.Fields{
			"Metric": m.String(),
			"Delta":  delta,
		}).Infof("DELTA %s %d", m, delta)
	})
}

func (c *Counters) Inc(m Metric) {
	c.Add(m, 1)
}

func (c *Counters) Add(m Metric, n int64) {
	c.mu.Lock()
	c.values[m] += n
	c.mu.Unlock()
}

// Value returns the count accumulated since the last flush.
func (c *Counters) Value(m Metric) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[m]
}

func (c *Counters) Flush() {
	c.mu.Lock()
	flushed := c.values
	c.values = make(map[Metric]int64)
	c.mu.Unlock()

	keys := make([]Metric, 0, len(flushed))
	for m := range flushed {
		keys = append(keys, m)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	for _, m := range keys {
		c.report(m, flushed[m])
	}
}
