package redisstore

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/trezcool/swcache/core/cache"
)

// putEntries writes field/value pairs into the generation hash, only while the generation is listed.
// KEYS: names set, generation hash. ARGV: name, field1, value1, ...
var putEntries = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 0 then
	return 0
end
for i = 2, #ARGV, 2 do
	redis.call('HSET', KEYS[2], ARGV[i], ARGV[i + 1])
end
return 1
`)

type (
	// Store keeps the generation names in a set and every generation in its own hash (field = request key).
	Store struct {
		client redis.UniversalClient
		prefix string
	}

	generation struct {
		store *Store
		name  string
	}
)

var _ cache.Store = (*Store)(nil)

func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "swcache"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) namesKey() string { return s.prefix + ":generations" }

func (s *Store) genKey(name string) string { return s.prefix + ":generation:" + name }

func (s *Store) Open(ctx context.Context, name string) (cache.Generation, error) {
	if err := s.client.SAdd(ctx, s.namesKey(), name).Err(); err != nil {
		return nil, errors.Wrap(err, "creating generation")
	}
	return &generation{store: s, name: name}, nil
}

func (s *Store) Lookup(ctx context.Context, name string) (cache.Generation, bool, error) {
	has, err := s.Has(ctx, name)
	if err != nil || !has {
		return nil, false, err
	}
	return &generation{store: s, name: name}, true, nil
}

func (s *Store) Has(ctx context.Context, name string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.namesKey(), name).Result()
	return ok, errors.Wrap(err, "checking generation")
}

func (s *Store) Names(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.namesKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "listing generations")
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) Delete(ctx context.Context, name string) (bool, error) {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.genKey(name))
		removed = pipe.SRem(ctx, s.namesKey(), name)
		return nil
	})
	if err != nil {
		return false, errors.Wrap(err, "deleting generation")
	}
	return removed.Val() > 0, nil
}

func (g *generation) Name() string { return g.name }

func (g *generation) Put(ctx context.Context, entry cache.Entry) error {
	return g.PutAll(ctx, []cache.Entry{entry})
}

// PutAll writes every entry atomically (one script run).
func (g *generation) PutAll(ctx context.Context, entries []cache.Entry) error {
	args := make([]interface{}, 0, 1+2*len(entries))
	args = append(args, g.name)
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return errors.Wrapf(err, "encoding %s", entry.Key)
		}
		args = append(args, entry.Key, data)
	}
	keys := []string{g.store.namesKey(), g.store.genKey(g.name)}
	ok, err := putEntries.Run(ctx, g.store.client, keys, args...).Int()
	if err != nil {
		return errors.Wrap(err, "storing entries")
	}
	if ok == 0 {
		return cache.ErrGenerationNotFound
	}
	return nil
}

func (g *generation) Match(ctx context.Context, key string) (cache.Entry, bool, error) {
	data, err := g.store.client.HGet(ctx, g.store.genKey(g.name), key).Bytes()
	if err == redis.Nil {
		return cache.Entry{}, false, nil
	} else if err != nil {
		return cache.Entry{}, false, errors.Wrap(err, "matching entry")
	}
	var entry cache.Entry
	if err = json.Unmarshal(data, &entry); err != nil {
		return cache.Entry{}, false, errors.Wrap(err, "decoding entry")
	}
	return entry, true, nil
}

func (g *generation) Keys(ctx context.Context) ([]string, error) {
	keys, err := g.store.client.HKeys(ctx, g.store.genKey(g.name)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "listing keys")
	}
	sort.Strings(keys)
	return keys, nil
}
