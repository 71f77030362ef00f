package client

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolSnapshotPreservesOrder(t *testing.T) {
	p := NewPool([]string{"a", "b", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, p.Snapshot())
}

func TestPoolPromoteMovesToFront(t *testing.T) {
	p := NewPool([]string{"a", "b", "c"})
	p.Promote("b")
	assert.Equal(t, []string{"b", "a", "c"}, p.Snapshot())

	// promoting the front is a no-op
	p.Promote("b")
	assert.Equal(t, []string{"b", "a", "c"}, p.Snapshot())
}

func TestPoolPromoteIgnoresUnknown(t *testing.T) {
	p := NewPool([]string{"a", "b"})
	p.Promote("z")
	assert.Equal(t, []string{"a", "b"}, p.Snapshot())
}

func TestPoolSnapshotIsImmutable(t *testing.T) {
	p := NewPool([]string{"a", "b"})
	snapshot := p.Snapshot()
	p.Promote("b")
	assert.Equal(t, []string{"a", "b"}, snapshot)
}

func TestPoolConcurrentPromotionsKeepMembership(t *testing.T) {
	candidates := []string{"a", "b", "c", "d"}
	p := NewPool(candidates)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		uri := candidates[i%len(candidates)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Promote(uri)
		}()
	}
	wg.Wait()

	got := append([]string(nil), p.Snapshot()...)
	sort.Strings(got)
	assert.Equal(t, candidates, got)
}
