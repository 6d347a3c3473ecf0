package loadstat

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
)

type Granularity int

const (
	Minute Granularity = iota
	Hour
	Day
)

var Granularities = []Granularity{Minute, Hour, Day}

func (g Granularity) Duration() time.Duration {
	switch g {
	case Minute:
		return time.Minute
	case Hour:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

func (g Granularity) String() string {
	switch g {
	case Minute:
		return "minute"
	case Hour:
		return "hour"
	default:
		return "day"
	}
}

// Bucket counts observations in [Start, End).
type Bucket struct {
	Granularity Granularity
	Start       time.Time
	End         time.Time

	count int64
}

func newBucket(g Granularity, start time.Time) *Bucket {
	return &Bucket{
		Granularity: g,
		Start:       start,
		End:         start.Add(g.Duration()),
		count:       1,
	}
}

func (b *Bucket) Count() int64 {
	return atomic.LoadInt64(&b.count)
}

func (b *Bucket) Contains(t time.Time) bool {
	return !t.Before(b.Start) && t.Before(b.End)
}

func (b *Bucket) inc() {
	atomic.AddInt64(&b.count, 1)
}

func (b *Bucket) String() string {
	return fmt.Sprintf("%d requests per %s from %s to %s",
		b.Count(), b.Granularity, b.Start.Format(time.RFC3339), b.End.Format(time.RFC3339))
}

// series holds the buckets of one granularity keyed by start time.
// The window of a new bucket starts at the observation that created it.
type series struct {
	mutex       sync.RWMutex
	granularity Granularity
	buckets     *treemap.Map
	capacity    int
}

func newSeries(g Granularity, capacity int) *series {
	return &series{
		granularity: g,
		buckets:     treemap.NewWith(utils.Int64Comparator),
		capacity:    capacity,
	}
}

// find returns the bucket containing ts. The caller holds the lock.
func (s *series) find(ts time.Time) *Bucket {
	_, v := s.buckets.Floor(ts.UnixNano())
	if v == nil {
		return nil
	}
	b := v.(*Bucket)
	if !b.Contains(ts) {
		return nil
	}
	return b
}

// observe counts ts and returns how many buckets were evicted.
func (s *series) observe(ts time.Time) int {
	s.mutex.RLock()
	b := s.find(ts)
	if b != nil {
		b.inc()
	}
	s.mutex.RUnlock()
	if b != nil {
		return 0
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if b := s.find(ts); b != nil {
		b.inc()
		return 0
	}
	s.buckets.Put(ts.UnixNano(), newBucket(s.granularity, ts))

	if s.capacity <= 0 || s.buckets.Size() <= s.capacity {
		return 0
	}
	evicted := 0
	for s.buckets.Size() > s.capacity/2 {
		oldest, _ := s.buckets.Min()
		s.buckets.Remove(oldest)
		evicted++
	}
	return evicted
}

// snapshot returns the buckets ordered by start.
func (s *series) snapshot() []*Bucket {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]*Bucket, 0, s.buckets.Size())
	it := s.buckets.Iterator()
	for it.Next() {
		out = append(out, it.Value().(*Bucket))
	}
	return out
}

func (s *series) size() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.buckets.Size()
}
