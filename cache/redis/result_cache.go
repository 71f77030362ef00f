package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"go.halcyon.sh/gatekeep/cache"
)

// ResultCache implements cache.ResultCache on Redis so replicas of the
// gatekeeper share recently validated sessions.
type ResultCache struct {
	client *goredis.Client
	prefix string
}

// NewResultCache creates a Redis-backed result cache. The prefix namespaces
// keys when the instance is shared.
func NewResultCache(client *goredis.Client, prefix string) *ResultCache {
	return &ResultCache{client: client, prefix: prefix}
}

func (r *ResultCache) key(hash string) string {
	return fmt.Sprintf("%s:verify:%s", r.prefix, hash)
}

// Get implements cache.ResultCache.Get. Redis failures degrade to a miss.
func (r *ResultCache) Get(ctx context.Context, hash string) (cache.Entry, bool) {
	raw, err := r.client.Get(ctx, r.key(hash)).Bytes()
	if err != nil {
		if err != goredis.Nil {
			log.Warn().Err(err).Msg("redis result cache read failed")
		}
		return cache.Entry{}, false
	}

	var entry cache.Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		log.Warn().Err(err).Msg("redis result cache entry not parseable")
		return cache.Entry{}, false
	}
	return entry, true
}

// Set implements cache.ResultCache.Set. Failures are logged and swallowed;
// the cache is an optimization, never a dependency.
func (r *ResultCache) Set(ctx context.Context, hash string, entry cache.Entry, ttl time.Duration) {
	raw, err := json.Marshal(entry)
	if err != nil {
		log.Warn().Err(err).Msg("failed to marshal result cache entry")
		return
	}
	if err := r.client.Set(ctx, r.key(hash), raw, ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("redis result cache write failed")
	}
}
