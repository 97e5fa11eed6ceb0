package bookmark

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// TestRedisManager_Integration requires a running Redis; it is skipped
// if one isn't reachable on the default local address.
func TestRedisManager_Integration(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		t.Skip("skipping Redis integration test: redis not available")
	}
	defer func() { _ = client.Close() }()

	m := NewRedisManager(client, "bookmark-test:")
	feed := "feed-1"
	defer func() { _ = client.Del(ctx, "bookmark-test:"+feed).Err() }()

	_, ok, err := m.Load(ctx, feed)
	require.NoError(t, err)
	require.False(t, ok)

	got, advanced, err := m.Advance(ctx, feed, "5")
	require.NoError(t, err)
	require.True(t, advanced)
	require.Equal(t, "5", got)

	got, advanced, err = m.Advance(ctx, feed, "3")
	require.NoError(t, err)
	require.False(t, advanced)
	require.Equal(t, "5", got)

	got, advanced, err = m.Advance(ctx, feed, "9")
	require.NoError(t, err)
	require.True(t, advanced)
	require.Equal(t, "9", got)

	stored, ok, err := m.Load(ctx, feed)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "9", stored)
}
