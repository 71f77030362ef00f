// Package cache holds the verification-result cache used to spare the
// identity server one round trip per request for recently validated sessions.
package cache

import (
	"context"
	"time"
)

// Entry is one cached verification result. Only valid-session responses are
// worth caching; everything else must be re-consulted because payment and
// profile state can change server-side at any moment.
type Entry struct {
	Status int    `json:"status"`
	Body   []byte `json:"body,omitempty"`
}

// ResultCache stores verification results keyed by token hash.
// Implementations must be safe for concurrent use.
type ResultCache interface {
	Get(ctx context.Context, key string) (Entry, bool)
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration)
}

// Nop is the disabled cache.
type Nop struct{}

func (Nop) Get(context.Context, string) (Entry, bool)               { return Entry{}, false }
func (Nop) Set(context.Context, string, Entry, time.Duration)       {}
