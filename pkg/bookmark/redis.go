package bookmark

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// advanceScript performs the compare-and-swap atomically server-side:
// given Redis can't run two clients' GET-then-SET as one step, a Lua
// script closes the race the way the teacher's limiter_redis.go closes
// its own check-then-decrement race. Bookmarks are decimal fact_id
// strings throughout this codebase's backends, so the script compares
// them numerically rather than lexicographically.
var advanceScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == false or tonumber(ARGV[1]) > tonumber(current) then
	redis.call("SET", KEYS[1], ARGV[1])
	return {ARGV[1], 1}
end
return {current, 0}
`)

// RedisManager is the multi-process variant of Manager: several server
// instances share one feed's bookmark state through Redis rather than
// each holding its own in-process map. Advance keeps the same "replace
// only if strictly greater" contract Manager does.
type RedisManager struct {
	client *redis.Client
	prefix string
}

// NewRedisManager returns a RedisManager storing bookmarks under
// prefix+feed keys.
func NewRedisManager(client *redis.Client, prefix string) *RedisManager {
	return &RedisManager{client: client, prefix: prefix}
}

func (m *RedisManager) key(feed string) string {
	return m.prefix + feed
}

// Load returns feed's current bookmark from Redis, or "", false if the
// key has never been set.
func (m *RedisManager) Load(ctx context.Context, feed string) (string, bool, error) {
	v, err := m.client.Get(ctx, m.key(feed)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Advance replaces feed's stored bookmark with candidate only if it is
// strictly greater than what's stored, reporting whichever value ends
// up current and whether candidate was the one that won.
func (m *RedisManager) Advance(ctx context.Context, feed, candidate string) (string, bool, error) {
	res, err := advanceScript.Run(ctx, m.client, []string{m.key(feed)}, candidate).Result()
	if err != nil {
		return "", false, err
	}
	pair, ok := res.([]interface{})
	if !ok || len(pair) != 2 {
		return "", false, errors.New("bookmark: unexpected advance script result")
	}
	value, _ := pair[0].(string)
	advanced, _ := pair[1].(int64)
	return value, advanced == 1, nil
}
