// Package loadstat keeps per-host request counts in minute, hour and day windows
// and reports peaks and averages on a schedule.
package loadstat

import (
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SolarDomo/HttpData/internal/env"
	"github.com/oklog/ulid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	DefaultCapacity   = 100000
	DefaultReportSpec = "@every 30m"
)

// TrackedSource is the load state of one host.
type TrackedSource struct {
	ID   string
	Host string

	firstSeen int64
	series    map[Granularity]*series
}

func newTrackedSource(id, host string, capacity int) *TrackedSource {
	return &TrackedSource{
		ID:   id,
		Host: host,
		series: map[Granularity]*series{
			Minute: newSeries(Minute, capacity),
			Hour:   newSeries(Hour, 0),
			Day:    newSeries(Day, 0),
		},
	}
}

// Observe counts one request at ts in every granularity and returns the number
// of minute buckets evicted.
func (this *TrackedSource) Observe(ts time.Time) int {
	atomic.CompareAndSwapInt64(&this.firstSeen, 0, ts.UnixNano())

	evicted := 0
	for _, g := range Granularities {
		evicted += this.series[g].observe(ts)
	}
	return evicted
}

// FirstSeen is the time of the first observation, zero before any.
func (this *TrackedSource) FirstSeen() time.Time {
	ns := atomic.LoadInt64(&this.firstSeen)
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Buckets returns the buckets of g ordered by start.
func (this *TrackedSource) Buckets(g Granularity) []*Bucket {
	return this.series[g].snapshot()
}

func (this *TrackedSource) BucketCount(g Granularity) int {
	return this.series[g].size()
}

type BucketStat struct {
	Start time.Time
	End   time.Time
	Count int64
}

func statOf(b *Bucket) *BucketStat {
	return &BucketStat{Start: b.Start, End: b.End, Count: b.Count()}
}

type GranularityReport struct {
	Granularity Granularity
	Buckets     int
	Peak        *BucketStat
	Average     float64
	// LastCompleted is the second most recent bucket, set once two buckets exist
	// and a whole window has passed since the first observation.
	LastCompleted *BucketStat
}

type SourceReport struct {
	SourceID      string
	Host          string
	FirstSeen     time.Time
	Granularities []GranularityReport
}

func (this *TrackedSource) report(now time.Time) SourceReport {
	r := SourceReport{
		SourceID:  this.ID,
		Host:      this.Host,
		FirstSeen: this.FirstSeen(),
	}
	for _, g := range Granularities {
		buckets := this.Buckets(g)
		if len(buckets) == 0 {
			continue
		}

		gr := GranularityReport{Granularity: g, Buckets: len(buckets)}
		var total int64
		peak := buckets[0]
		for _, b := range buckets {
			c := b.Count()
			total += c
			if c > peak.Count() {
				peak = b
			}
		}
		gr.Peak = statOf(peak)
		gr.Average = float64(total) / float64(len(buckets))
		if len(buckets) >= 2 && now.Sub(r.FirstSeen) >= g.Duration() {
			gr.LastCompleted = statOf(buckets[len(buckets)-2])
		}
		r.Granularities = append(r.Granularities, gr)
	}
	return r
}

type Option func(*Aggregator)

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

func WithLog(log env.LogSink) Option {
	return func(a *Aggregator) {
		if log != nil {
			a.log = log
		}
	}
}

// WithCapacity bounds the minute buckets kept per source. Zero disables eviction.
func WithCapacity(capacity int) Option {
	return func(a *Aggregator) {
		a.capacity = capacity
	}
}

type Aggregator struct {
	mutex   sync.RWMutex
	sources map[string]*TrackedSource

	capacity int
	now      func() time.Time
	log      env.LogSink

	entropyMutex sync.Mutex
	entropy      io.Reader

	cronMutex sync.Mutex
	cron      *cron.Cron
}

func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		sources:  make(map[string]*TrackedSource),
		capacity: DefaultCapacity,
		now:      time.Now,
		log:      env.NopLog{},
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (this *Aggregator) newID() string {
	this.entropyMutex.Lock()
	defer this.entropyMutex.Unlock()
	return ulid.MustNew(ulid.Timestamp(this.now()), this.entropy).String()
}

// Track starts monitoring host and returns its source. Tracking a host twice returns the same source.
func (this *Aggregator) Track(host string) *TrackedSource {
	host = strings.ToLower(host)

	this.mutex.RLock()
	source, ok := this.sources[host]
	this.mutex.RUnlock()
	if ok {
		return source
	}

	this.mutex.Lock()
	defer this.mutex.Unlock()
	if source, ok := this.sources[host]; ok {
		return source
	}
	source = newTrackedSource(this.newID(), host, this.capacity)
	this.sources[host] = source
	this.log.Info(this.logPrefix(source)+"start collecting load stats", logrus.Fields{"Host": host})
	return source
}

// Observe counts a request to host at ts, tracking host first if needed.
func (this *Aggregator) Observe(host string, ts time.Time) {
	source := this.Track(host)
	if evicted := source.Observe(ts); evicted > 0 {
		this.log.Info(this.logPrefix(source)+"evicted old minute buckets", logrus.Fields{"Evicted": evicted})
	}
}

// Report summarises every source as of now, ordered by host.
func (this *Aggregator) Report(now time.Time) []SourceReport {
	this.mutex.RLock()
	sources := make([]*TrackedSource, 0, len(this.sources))
	for _, s := range this.sources {
		sources = append(sources, s)
	}
	this.mutex.RUnlock()

	sort.Slice(sources, func(i, j int) bool {
		return sources[i].Host < sources[j].Host
	})
	reports := make([]SourceReport, 0, len(sources))
	for _, s := range sources {
		reports = append(reports, s.report(now))
	}
	return reports
}

// LogReport writes the current report through the log sink.
func (this *Aggregator) LogReport() {
	defer func() {
		if r := recover(); r != nil {
			this.log.Fatal("[loadstats] report failed", fmt.Errorf("%v", r), nil)
		}
	}()

	for _, r := range this.Report(this.now()) {
		prefix := "[loadstats." + r.SourceID + "] "
		for _, g := range r.Granularities {
			fields := logrus.Fields{
				"Host":        r.Host,
				"Granularity": g.Granularity.String(),
				"Buckets":     g.Buckets,
				"Peak":        g.Peak.Count,
				"PeakStart":   g.Peak.Start,
				"Average":     fmt.Sprintf("%.2f", g.Average),
			}
			if g.LastCompleted != nil {
				fields["Last"] = g.LastCompleted.Count
				fields["LastStart"] = g.LastCompleted.Start
			}
			this.log.Info(prefix+"site load", fields)
		}
	}
}

// Start schedules LogReport with a cron spec such as "@every 30m".
func (this *Aggregator) Start(spec string) error {
	if spec == "" {
		spec = DefaultReportSpec
	}

	this.cronMutex.Lock()
	defer this.cronMutex.Unlock()
	if this.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, this.LogReport); err != nil {
		return err
	}
	c.Start()
	this.cron = c
	return nil
}

// Stop halts the schedule and waits for a running report to finish.
func (this *Aggregator) Stop() {
	this.cronMutex.Lock()
	c := this.cron
	this.cron = nil
	this.cronMutex.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

func (this *Aggregator) logPrefix(source *TrackedSource) string {
	return "[loadstats." + source.ID + "] "
}
