package livecache

import (
	"sync"
	"time"

	"github.com/zjrosen/pkgdb/internal/artifact"
	"github.com/zjrosen/pkgdb/internal/log"
	"github.com/zjrosen/pkgdb/internal/tracing"
)

// Feed call outcomes, as recorded in diagnostics and span attributes.
const (
	outcomeFound    = "found"
	outcomeNotFound = "not_found"
	outcomeError    = "error"
	outcomeTimeout  = "timeout"
)

type feedCall struct {
	feed    string
	key     artifact.Instance
	outcome string
	elapsed time.Duration
}

// diagnostics collects what one resolution did. Feed calls of a request
// run in parallel, so recording is locked.
type diagnostics struct {
	requestID string
	started   time.Time

	mu    sync.Mutex
	calls []feedCall
	ghost int
}

var diagnosticsPool = sync.Pool{
	New: func() any { return &diagnostics{calls: make([]feedCall, 0, 8)} },
}

func acquireDiagnostics() *diagnostics {
	d := diagnosticsPool.Get().(*diagnostics)
	d.requestID = tracing.NewRequestID()
	d.started = time.Now()
	return d
}

func (d *diagnostics) release() {
	d.mu.Lock()
	d.calls = d.calls[:0]
	d.ghost = 0
	d.mu.Unlock()
	d.requestID = ""
	diagnosticsPool.Put(d)
}

func (d *diagnostics) record(feed string, key artifact.Instance, outcome string, elapsed time.Duration) {
	d.mu.Lock()
	d.calls = append(d.calls, feedCall{feed: feed, key: key, outcome: outcome, elapsed: elapsed})
	d.mu.Unlock()
}

func (d *diagnostics) ghostCreated() {
	d.mu.Lock()
	d.ghost++
	d.mu.Unlock()
}

// summarize logs one line for the finished request.
func (d *diagnostics) summarize(key artifact.Instance, status Status) {
	d.mu.Lock()
	defer d.mu.Unlock()

	counts := make(map[string]int, 4)
	for _, c := range d.calls {
		counts[c.outcome]++
	}
	log.Debug(log.CatLive, "Resolution finished",
		"request_id", d.requestID,
		"key", key,
		"status", status,
		"feed_calls", len(d.calls),
		"found", counts[outcomeFound],
		"not_found", counts[outcomeNotFound],
		"errors", counts[outcomeError]+counts[outcomeTimeout],
		"ghosts", d.ghost,
		"elapsed", time.Since(d.started))
}
