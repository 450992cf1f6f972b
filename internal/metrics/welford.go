// Package metrics keeps running statistics of sync cycles.
package metrics

import (
	"math"
	"sync"
	"time"
)

// Welford holds running statistics using Welford's online algorithm, so
// mean and standard deviation are updated in O(1) without keeping samples.
type Welford struct {
	Count int
	Mean  float64
	M2    float64
}

// Update adds a new observation.
// Reference: https://en.wikipedia.org/wiki/Algorithms_for_calculating_variance#Welford's_online_algorithm
func (w *Welford) Update(v float64) {
	w.Count++
	delta := v - w.Mean
	w.Mean += delta / float64(w.Count)
	w.M2 += delta * (v - w.Mean)
}

// StdDev returns the population standard deviation, 0 with fewer than 2 observations.
func (w *Welford) StdDev() float64 {
	if w.Count < 2 {
		return 0
	}
	return math.Sqrt(w.M2 / float64(w.Count))
}

// CycleStats is a snapshot of sync cycle outcomes and latency.
type CycleStats struct {
	Cycles    int       `json:"cycles"`
	Failures  int       `json:"failures"`
	Discarded int       `json:"discarded"`
	MeanMs    float64   `json:"meanMs"`
	StdDevMs  float64   `json:"stdDevMs"`
	MaxMs     float64   `json:"maxMs"`
	LastMs    float64   `json:"lastMs"`
	LastAt    time.Time `json:"lastAt,omitempty"`
	LastError string    `json:"lastError,omitempty"`
}

// Recorder accumulates cycle statistics. Safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	latency   Welford
	failures  int
	discarded int
	max       float64
	last      float64
	lastAt    time.Time
	lastErr   string
}

// Observe records a finished cycle. Failed cycles count but do not
// contribute to latency.
func (r *Recorder) Observe(at time.Time, d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastAt = at
	if err != nil {
		r.failures++
		r.lastErr = err.Error()
		return
	}
	ms := float64(d) / float64(time.Millisecond)
	r.latency.Update(ms)
	r.last = ms
	if ms > r.max {
		r.max = ms
	}
	r.lastErr = ""
}

// Discard counts a cycle whose result arrived after its session ended.
func (r *Recorder) Discard() {
	r.mu.Lock()
	r.discarded++
	r.mu.Unlock()
}

// Snapshot returns the current statistics.
func (r *Recorder) Snapshot() CycleStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return CycleStats{
		Cycles:    r.latency.Count + r.failures,
		Failures:  r.failures,
		Discarded: r.discarded,
		MeanMs:    r.latency.Mean,
		StdDevMs:  r.latency.StdDev(),
		MaxMs:     r.max,
		LastMs:    r.last,
		LastAt:    r.lastAt,
		LastError: r.lastErr,
	}
}
