// Package progress defines the core's progress-reporting contract: a
// two-event callback (progress ticks, then a terminal completion) and a
// small rate limiter so callers never see more than one tick per 1%
// change within a stage (spec §6).
package progress

import "sync"

// Stage names reported over the lifetime of a diff or apply job.
const (
	StageHashingOld = "hashing-old"
	StageHashingNew = "hashing-new"
	StageIndexing   = "indexing"
	StageMatching   = "matching"
	StageWriting    = "writing"
	StageApplying   = "applying"
)

// Callback receives progress ticks: percent in [0,1] and the current
// stage name.
type Callback func(percent float32, stage string)

// CompleteFunc receives the terminal result of a job.
type CompleteFunc func(result any)

// Reporter rate-limits calls into a Callback to at most one per whole
// percentage point within a single stage. Safe for concurrent use by
// multiple block workers reporting into the same stage.
type Reporter struct {
	mu         sync.Mutex
	cb         Callback
	stage      string
	lastBucket int
	started    bool
}

// NewReporter returns a Reporter that forwards to cb for the given stage.
// cb may be nil, in which case Report and Done are no-ops.
func NewReporter(cb Callback, stage string) *Reporter {
	return &Reporter{cb: cb, stage: stage, lastBucket: -1}
}

// Report emits a tick for fraction (clamped to [0,1]) if it has crossed
// into a new 1% bucket since the last emitted tick for this stage.
func (r *Reporter) Report(fraction float64) {
	if r.cb == nil {
		return
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	bucket := int(fraction * 100)

	r.mu.Lock()
	if bucket == r.lastBucket && r.started {
		r.mu.Unlock()
		return
	}
	r.lastBucket = bucket
	r.started = true
	r.mu.Unlock()

	r.cb(float32(fraction), r.stage)
}

// Done emits a final 100% tick for this stage, unless the last tick it
// emitted was already at 100%.
func (r *Reporter) Done() {
	r.Report(1)
}
