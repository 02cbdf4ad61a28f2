package migrate

import (
	"sort"
	"sync"

	"github.com/pingcap/errors"
)

// ErrTransfer describes a single failed file copy. It is recorded in the
// Report and never returned from Migrate.
var ErrTransfer = errors.Normalize(
	"failed to copy %s to %s: %s",
	errors.RFCCodeText("Datagen:Transfer"),
)

// Outcome is the result of copying one file. A nil Err means the file was
// moved.
type Outcome struct {
	Source string
	Dest   string
	Bytes  int64
	Err    error
}

// Moved reports whether the copy succeeded.
func (o Outcome) Moved() bool {
	return o.Err == nil
}

// Report aggregates outcomes. It is the only state written concurrently
// during a migration.
type Report struct {
	Total int

	mu        sync.Mutex
	outcomes  map[string]Outcome
	succeeded int
	failed    int
	bytes     int64
	cancelled bool
}

func newReport(total int) *Report {
	return &Report{Total: total, outcomes: make(map[string]Outcome, total)}
}

// record stores o and hands the number of completed attempts to notify while
// still holding the lock, so progress is observed in order.
func (r *Report) record(o Outcome, notify func(done int)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.outcomes[o.Source] = o
	if o.Moved() {
		r.succeeded++
		r.bytes += o.Bytes
	} else {
		r.failed++
	}
	if notify != nil {
		notify(r.succeeded + r.failed)
	}
}

func (r *Report) markCancelled() {
	r.mu.Lock()
	r.cancelled = true
	r.mu.Unlock()
}

// Attempted returns the number of copies that ran to completion or failure.
func (r *Report) Attempted() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.succeeded + r.failed
}

func (r *Report) Succeeded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.succeeded
}

func (r *Report) Failed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

// Bytes returns the number of bytes copied by successful transfers.
func (r *Report) Bytes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bytes
}

// Cancelled reports whether the migration stopped launching copies early.
func (r *Report) Cancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// Outcome returns the recorded outcome for a source path.
func (r *Report) Outcome(source string) (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.outcomes[source]
	return o, ok
}

// Failures returns the failed outcomes sorted by source path.
func (r *Report) Failures() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Outcome
	for _, o := range r.outcomes {
		if !o.Moved() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}
