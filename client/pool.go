package client

import "sync/atomic"

// Pool is the ordered list of identity-server candidate base URIs. The list
// membership never changes; only the order does, with the most recently
// successful candidate moved to the front. Readers take an immutable
// snapshot, writers publish a new one, so concurrent promotions can at worst
// lose a reordering, never a candidate.
type Pool struct {
	candidates atomic.Pointer[[]string]
}

// NewPool creates a pool over the configured candidates.
func NewPool(candidates []string) *Pool {
	p := &Pool{}
	snapshot := make([]string, len(candidates))
	copy(snapshot, candidates)
	p.candidates.Store(&snapshot)
	return p
}

// Snapshot returns the current candidate order. Callers must not mutate it.
func (p *Pool) Snapshot() []string {
	return *p.candidates.Load()
}

// Promote moves uri to the front, preserving the relative order of the rest.
// Unknown URIs are ignored.
func (p *Pool) Promote(uri string) {
	cur := *p.candidates.Load()
	if len(cur) == 0 || cur[0] == uri {
		return
	}

	next := make([]string, 0, len(cur))
	found := false
	for _, c := range cur {
		if c == uri {
			found = true
			continue
		}
		next = append(next, c)
	}
	if !found {
		return
	}
	next = append([]string{uri}, next...)
	p.candidates.Store(&next)
}
