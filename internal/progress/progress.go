// Package progress tracks byte throughput of long transfers and estimates
// the time remaining.
package progress

import (
	"sync"
	"time"
)

// Estimator smooths transfer speed with an exponential moving average.
// Samples closer than minInterval are ignored to keep bursts from
// dominating.
type Estimator struct {
	mu sync.Mutex

	alpha       float64
	minInterval time.Duration
	warmup      int

	speed     float64 // bytes/sec
	lastAt    time.Time
	lastBytes int64
	samples   int
}

// NewEstimator creates an estimator. alpha is the weight of the newest
// sample, warmup the number of samples required before EstimateETA answers.
func NewEstimator(alpha float64, warmup int) *Estimator {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.2
	}
	if warmup < 1 {
		warmup = 3
	}
	return &Estimator{alpha: alpha, warmup: warmup, minInterval: 500 * time.Millisecond}
}

// Update records the cumulative byte count at now
func (e *Estimator) Update(total int64, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lastAt.IsZero() {
		e.lastAt, e.lastBytes = now, total
		return
	}
	elapsed := now.Sub(e.lastAt)
	if elapsed < e.minInterval {
		return
	}
	delta := total - e.lastBytes
	if delta < 0 {
		delta = 0
	}
	instant := float64(delta) / elapsed.Seconds()
	if e.samples == 0 {
		e.speed = instant
	} else {
		e.speed = e.alpha*instant + (1-e.alpha)*e.speed
	}
	e.lastAt, e.lastBytes = now, total
	e.samples++
}

// Speed returns the smoothed speed in bytes per second
func (e *Estimator) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// EstimateETA returns the time left for remaining bytes. It reports false
// during warmup or when the transfer is stalled.
func (e *Estimator) EstimateETA(remaining int64) (time.Duration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.samples < e.warmup || e.speed < 1 {
		return 0, false
	}
	return time.Duration(float64(remaining) / e.speed * float64(time.Second)), true
}

// Snapshot is a point-in-time view of a Tracker
type Snapshot struct {
	DoneItems  int
	TotalItems int
	DoneBytes  int64
	TotalBytes int64
	Speed      float64
	ETA        time.Duration
	HasETA     bool
}

// Percent returns the completed share of bytes, or of items when the
// total size is zero
func (s Snapshot) Percent() float64 {
	if s.TotalBytes > 0 {
		return float64(s.DoneBytes) * 100 / float64(s.TotalBytes)
	}
	if s.TotalItems > 0 {
		return float64(s.DoneItems) * 100 / float64(s.TotalItems)
	}
	return 100
}

// Tracker counts completed items of a known-size batch. It is safe for
// concurrent use.
type Tracker struct {
	mu         sync.Mutex
	est        *Estimator
	totalItems int
	totalBytes int64
	doneItems  int
	doneBytes  int64

	every      time.Duration
	lastReport time.Time
}

// NewTracker tracks items totalling totalBytes. Report returns true at
// most once per every.
func NewTracker(items int, totalBytes int64, every time.Duration, now time.Time) *Tracker {
	t := &Tracker{
		est:        NewEstimator(0.2, 3),
		totalItems: items,
		totalBytes: totalBytes,
		every:      every,
		lastReport: now,
	}
	t.est.Update(0, now)
	return t
}

// Done records one finished item of size bytes and reports whether a
// progress line is due
func (t *Tracker) Done(size int64, now time.Time) (Snapshot, bool) {
	t.mu.Lock()
	t.doneItems++
	t.doneBytes += size
	done := t.doneBytes
	due := t.every > 0 && now.Sub(t.lastReport) >= t.every && t.doneItems < t.totalItems
	if due {
		t.lastReport = now
	}
	t.mu.Unlock()

	t.est.Update(done, now)
	return t.Snapshot(), due
}

// Snapshot returns the current counters and estimate
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	s := Snapshot{
		DoneItems:  t.doneItems,
		TotalItems: t.totalItems,
		DoneBytes:  t.doneBytes,
		TotalBytes: t.totalBytes,
	}
	t.mu.Unlock()

	s.Speed = t.est.Speed()
	s.ETA, s.HasETA = t.est.EstimateETA(s.TotalBytes - s.DoneBytes)
	return s
}
