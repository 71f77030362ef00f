package cache

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryCacheSetGet(t *testing.T) {
	mc := NewMemoryCache(time.Minute)
	defer mc.Stop()

	ctx := context.Background()
	_, ok := mc.Get(ctx, "missing")
	assert.False(t, ok)

	mc.Set(ctx, "k", Entry{Status: http.StatusNoContent, Body: []byte("ok")}, time.Minute)
	entry, ok := mc.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, http.StatusNoContent, entry.Status)
	assert.Equal(t, []byte("ok"), entry.Body)
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache(time.Minute)
	defer mc.Stop()

	ctx := context.Background()
	mc.Set(ctx, "k", Entry{Status: http.StatusNoContent}, 20*time.Millisecond)

	assert.Eventually(t, func() bool {
		_, ok := mc.Get(ctx, "k")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestNopCache(t *testing.T) {
	ctx := context.Background()
	var nop Nop
	nop.Set(ctx, "k", Entry{Status: http.StatusNoContent}, time.Minute)
	_, ok := nop.Get(ctx, "k")
	assert.False(t, ok)
}
