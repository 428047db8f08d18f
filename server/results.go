package server

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/weiihann/wasmbench/harness"
)

// Results is the table of participant reports received during a run.
// Each name is recorded once; later reports under the same name are
// dropped. Only the expected names count toward completion.
type Results struct {
	mu       sync.Mutex
	payloads map[string]harness.Payload
	arrived  map[string]chan struct{}
	expected map[string]bool
	pending  int
	done     chan struct{}
}

// NewResults returns an empty table waiting for the given names.
func NewResults(expected ...string) *Results {
	r := &Results{
		payloads: make(map[string]harness.Payload),
		arrived:  make(map[string]chan struct{}),
		expected: make(map[string]bool, len(expected)),
		done:     make(chan struct{}),
	}

	for _, name := range expected {
		if r.expected[name] {
			continue
		}

		r.expected[name] = true
		r.pending++
	}

	if r.pending == 0 {
		close(r.done)
	}

	return r
}

// Put records p under its name. It reports whether p was stored and
// whether this report was the one that completed the expected set.
func (r *Results) Put(p harness.Payload) (stored, complete bool) {
	name := p.Name()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.payloads[name]; dup {
		return false, false
	}

	r.payloads[name] = p
	close(r.arrivalLocked(name))

	if !r.expected[name] {
		return true, false
	}

	r.pending--
	if r.pending == 0 {
		close(r.done)
		return true, true
	}

	return true, false
}

// Get returns the report stored under name.
func (r *Results) Get(name string) (harness.Payload, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payloads[name]

	return p, ok
}

// Len returns the number of stored reports, expected or not.
func (r *Results) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.payloads)
}

// Expected reports whether name is one of the awaited participants.
func (r *Results) Expected(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.expected[name]
}

// Snapshot returns a copy of the table.
func (r *Results) Snapshot() map[string]harness.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()

	return maps.Clone(r.payloads)
}

// Done is closed once every expected participant has reported.
func (r *Results) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until name has reported, timeout elapses or ctx is done.
// The boolean is false when no report arrived.
func (r *Results) Wait(
	ctx context.Context,
	name string,
	timeout time.Duration,
) (harness.Payload, bool) {
	r.mu.Lock()
	ch := r.arrivalLocked(name)
	r.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return r.Get(name)
	case <-timer.C:
	case <-ctx.Done():
	}

	// A report may have landed while the timer fired.
	return r.Get(name)
}

func (r *Results) arrivalLocked(name string) chan struct{} {
	ch, ok := r.arrived[name]
	if !ok {
		ch = make(chan struct{})
		r.arrived[name] = ch
	}

	return ch
}
