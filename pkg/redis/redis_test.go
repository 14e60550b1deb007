package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestClient_Blacklist(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewFromAddr(mr.Addr())
	ctx := context.Background()

	blacklisted, err := c.IsTokenBlacklisted(ctx, "token-a")
	require.NoError(t, err)
	require.False(t, blacklisted)

	require.NoError(t, c.BlacklistToken(ctx, "token-a", time.Minute))

	blacklisted, err = c.IsTokenBlacklisted(ctx, "token-a")
	require.NoError(t, err)
	require.True(t, blacklisted)

	mr.FastForward(2 * time.Minute)

	blacklisted, err = c.IsTokenBlacklisted(ctx, "token-a")
	require.NoError(t, err)
	require.False(t, blacklisted)
}

func TestClient_BlacklistExpiredToken(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewFromAddr(mr.Addr())

	require.NoError(t, c.BlacklistToken(context.Background(), "old", 0))
	require.False(t, mr.Exists("blacklist:old"))
}

func TestClient_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewFromAddr(mr.Addr())
	ctx := context.Background()

	ok, n, err := c.Allow(ctx, "rl:test", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)

	ok, n, _ = c.Allow(ctx, "rl:test", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	ok, n, _ = c.Allow(ctx, "rl:test", 2, time.Minute)
	require.False(t, ok)
	require.Equal(t, int64(3), n)

	mr.FastForward(2 * time.Minute)

	ok, n, _ = c.Allow(ctx, "rl:test", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(1), n)
}
