// Package metrics keeps a bounded history of every AI call attempt and
// running aggregates for cost and reliability reporting. Cache hits are
// recorded too, with their original token counts and zero cost, which is what
// makes avoided-cost reporting possible.
package metrics

import (
	"sync"
	"time"
)

// DefaultHistorySize bounds the retained call history when no capacity is
// configured.
const DefaultHistorySize = 1000

// CallMetric is one attempted AI call. Exactly one metric is recorded per
// attempt; cache hits appear with Cached=true rather than being omitted.
type CallMetric struct {
	Timestamp     time.Time `json:"timestamp"`
	TaskTag       string    `json:"task_tag"`
	ModelKey      string    `json:"model_key"`
	InputTokens   int       `json:"input_tokens"`
	OutputTokens  int       `json:"output_tokens"`
	LatencyMs     int64     `json:"latency_ms"`
	Cached        bool      `json:"cached"`
	FallbackUsed  bool      `json:"fallback_used"`
	Success       bool      `json:"success"`
	EstimatedCost float64   `json:"estimated_cost"`
	Error         string    `json:"error,omitempty"`
}

// CostEstimator resolves the estimated USD cost of a call. The model catalog
// satisfies it.
type CostEstimator interface {
	EstimateCost(modelKey string, inputTokens, outputTokens int) float64
}

type modelAgg struct {
	calls        int64
	inputTokens  int64
	outputTokens int64
	totalCost    float64
	latencyMs    int64
	errors       int64
}

type taskAgg struct {
	calls     int64
	totalCost float64
	cacheHits int64
	latencyMs int64
	errors    int64
}

// Recorder holds the bounded history and lifetime aggregates. History is a
// fixed-capacity FIFO ring: appending past capacity drops the oldest record.
// Aggregates are maintained on append, so the top-level queries are O(1) and
// the windowed ones scan only the bounded ring.
type Recorder struct {
	mu      sync.Mutex
	history []CallMetric
	start   int
	size    int

	totalCalls     int64
	totalCost      float64
	totalLatencyMs int64
	cacheHits      int64
	fallbacks      int64
	failures       int64

	byModel map[string]*modelAgg
	byTask  map[string]*taskAgg

	estimator CostEstimator
}

// New creates a recorder with the given history capacity (DefaultHistorySize
// when non-positive). estimator may be nil, which disables avoided-cost
// computation.
func New(capacity int, estimator CostEstimator) *Recorder {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &Recorder{
		history:   make([]CallMetric, capacity),
		byModel:   make(map[string]*modelAgg),
		byTask:    make(map[string]*taskAgg),
		estimator: estimator,
	}
}

// Track appends one call metric. A zero Timestamp is stamped with the current
// time. Track never fails; at worst the oldest history entry is dropped.
func (r *Recorder) Track(m CallMetric) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	capacity := len(r.history)
	if r.size < capacity {
		r.history[(r.start+r.size)%capacity] = m
		r.size++
	} else {
		r.history[r.start] = m
		r.start = (r.start + 1) % capacity
	}

	r.totalCalls++
	r.totalCost += m.EstimatedCost
	r.totalLatencyMs += m.LatencyMs
	if m.Cached {
		r.cacheHits++
	}
	if m.FallbackUsed {
		r.fallbacks++
	}
	if !m.Success {
		r.failures++
	}

	ma := r.byModel[m.ModelKey]
	if ma == nil {
		ma = &modelAgg{}
		r.byModel[m.ModelKey] = ma
	}
	ma.calls++
	ma.inputTokens += int64(m.InputTokens)
	ma.outputTokens += int64(m.OutputTokens)
	ma.totalCost += m.EstimatedCost
	ma.latencyMs += m.LatencyMs
	if !m.Success {
		ma.errors++
	}

	ta := r.byTask[m.TaskTag]
	if ta == nil {
		ta = &taskAgg{}
		r.byTask[m.TaskTag] = ta
	}
	ta.calls++
	ta.totalCost += m.EstimatedCost
	ta.latencyMs += m.LatencyMs
	if m.Cached {
		ta.cacheHits++
	}
	if !m.Success {
		ta.errors++
	}
}

// AggregateStats are lifetime totals over every recorded call.
type AggregateStats struct {
	TotalCalls   int64   `json:"total_calls"`
	TotalCost    float64 `json:"total_cost"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	CacheHitRate float64 `json:"cache_hit_rate"`
	FallbackRate float64 `json:"fallback_rate"`
	ErrorRate    float64 `json:"error_rate"`
}

func (r *Recorder) AggregateStats() AggregateStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := AggregateStats{
		TotalCalls: r.totalCalls,
		TotalCost:  r.totalCost,
	}
	if r.totalCalls > 0 {
		s.AvgLatencyMs = float64(r.totalLatencyMs) / float64(r.totalCalls)
		s.CacheHitRate = float64(r.cacheHits) / float64(r.totalCalls)
		s.FallbackRate = float64(r.fallbacks) / float64(r.totalCalls)
		s.ErrorRate = float64(r.failures) / float64(r.totalCalls)
	}
	return s
}

// ModelStats are lifetime totals for one model key.
type ModelStats struct {
	Calls        int64   `json:"calls"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalCost    float64 `json:"total_cost"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	Errors       int64   `json:"errors"`
}

func (r *Recorder) StatsByModel() map[string]ModelStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]ModelStats, len(r.byModel))
	for key, a := range r.byModel {
		s := ModelStats{
			Calls:        a.calls,
			InputTokens:  a.inputTokens,
			OutputTokens: a.outputTokens,
			TotalCost:    a.totalCost,
			Errors:       a.errors,
		}
		if a.calls > 0 {
			s.AvgLatencyMs = float64(a.latencyMs) / float64(a.calls)
		}
		out[key] = s
	}
	return out
}

// TaskStats are lifetime totals for one task tag, including how often the
// task was served from cache.
type TaskStats struct {
	Calls        int64   `json:"calls"`
	TotalCost    float64 `json:"total_cost"`
	CacheHits    int64   `json:"cache_hits"`
	CacheHitRate float64 `json:"cache_hit_rate"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	Errors       int64   `json:"errors"`
}

func (r *Recorder) StatsByTask() map[string]TaskStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]TaskStats, len(r.byTask))
	for tag, a := range r.byTask {
		s := TaskStats{
			Calls:     a.calls,
			TotalCost: a.totalCost,
			CacheHits: a.cacheHits,
			Errors:    a.errors,
		}
		if a.calls > 0 {
			s.CacheHitRate = float64(a.cacheHits) / float64(a.calls)
			s.AvgLatencyMs = float64(a.latencyMs) / float64(a.calls)
		}
		out[tag] = s
	}
	return out
}

// Recent returns the most recent metrics, oldest first, at most limit
// entries. A non-positive limit returns the full retained history.
func (r *Recorder) Recent(limit int) []CallMetric {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.size
	if limit > 0 && limit < n {
		n = limit
	}
	capacity := len(r.history)
	out := make([]CallMetric, 0, n)
	for i := r.size - n; i < r.size; i++ {
		out = append(out, r.history[(r.start+i)%capacity])
	}
	return out
}

// CostBreakdown summarizes spend within a trailing window of the retained
// history. CostAvoided re-applies the cost formula to each cached call's
// original token counts.
type CostBreakdown struct {
	WindowMs    int64              `json:"window_ms"`
	TotalCost   float64            `json:"total_cost"`
	ByModel     map[string]float64 `json:"by_model"`
	ByTask      map[string]float64 `json:"by_task"`
	CostAvoided float64            `json:"cost_avoided"`
}

// CostBreakdown reports costs within the trailing window. A non-positive
// window covers the whole retained history.
func (r *Recorder) CostBreakdown(window time.Duration) CostBreakdown {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Time{}
	if window > 0 {
		cutoff = time.Now().Add(-window)
	}

	out := CostBreakdown{
		WindowMs: window.Milliseconds(),
		ByModel:  make(map[string]float64),
		ByTask:   make(map[string]float64),
	}
	capacity := len(r.history)
	for i := 0; i < r.size; i++ {
		m := r.history[(r.start+i)%capacity]
		if !cutoff.IsZero() && m.Timestamp.Before(cutoff) {
			continue
		}
		out.TotalCost += m.EstimatedCost
		out.ByModel[m.ModelKey] += m.EstimatedCost
		out.ByTask[m.TaskTag] += m.EstimatedCost
		if m.Cached && r.estimator != nil {
			out.CostAvoided += r.estimator.EstimateCost(m.ModelKey, m.InputTokens, m.OutputTokens)
		}
	}
	return out
}
