package redisstore

import (
	"context"
	"os"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/trezcool/swcache/core/cache"
	"github.com/trezcool/swcache/tests"
)

// Runs against the server at $REDIS_ADDR; every subtest uses its own key prefix.
func TestStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	testutil.RunStoreTests(t, func(t *testing.T) cache.Store {
		prefix := "swcache-test-" + uuid.New().String()
		t.Cleanup(func() {
			ctx := context.Background()
			keys, _ := client.Keys(ctx, prefix+":*").Result()
			if len(keys) > 0 {
				client.Del(ctx, keys...)
			}
		})
		return New(client, prefix)
	})
}
