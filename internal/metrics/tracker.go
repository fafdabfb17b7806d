package metrics

import "time"

// Tracker times one call attempt from StartCall to Complete.
type Tracker struct {
	rec      *Recorder
	taskTag  string
	modelKey string
	start    time.Time
}

// StartCall captures the start time for one attempt against the routed model.
func (r *Recorder) StartCall(taskTag, modelKey string) *Tracker {
	return &Tracker{
		rec:      r,
		taskTag:  taskTag,
		modelKey: modelKey,
		start:    time.Now(),
	}
}

// Completion carries the outcome of a tracked call.
type Completion struct {
	// ModelKey overrides the tracked key when a fallback served the call.
	ModelKey     string
	InputTokens  int
	OutputTokens int
	Cached       bool
	FallbackUsed bool
	Success      bool
	Err          error
}

// Complete computes latency from the captured start time, resolves the final
// cost through the recorder's estimator (cache hits cost nothing), records
// the metric, and returns it for the caller's own logging.
func (t *Tracker) Complete(c Completion) CallMetric {
	modelKey := t.modelKey
	if c.ModelKey != "" {
		modelKey = c.ModelKey
	}

	m := CallMetric{
		Timestamp:    time.Now(),
		TaskTag:      t.taskTag,
		ModelKey:     modelKey,
		InputTokens:  c.InputTokens,
		OutputTokens: c.OutputTokens,
		LatencyMs:    time.Since(t.start).Milliseconds(),
		Cached:       c.Cached,
		FallbackUsed: c.FallbackUsed,
		Success:      c.Success,
	}
	if c.Err != nil {
		m.Error = c.Err.Error()
	}
	if !c.Cached && t.rec.estimator != nil {
		m.EstimatedCost = t.rec.estimator.EstimateCost(modelKey, c.InputTokens, c.OutputTokens)
	}

	t.rec.Track(m)
	return m
}
