package services

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health-competition-system/models"
)

func newTestCache(t *testing.T) *LeaderboardCache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewLeaderboardCache(rdb)
}

func TestLeaderboardCache_SetScoreAndRank(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetScore(ctx, "comp-1", "alice", 12000))
	require.NoError(t, cache.SetScore(ctx, "comp-1", "bob", 8000))
	require.NoError(t, cache.SetScore(ctx, "comp-1", "carol", 15000))

	rank, err := cache.Rank(ctx, "comp-1", "carol")
	require.NoError(t, err)
	assert.Equal(t, 1, rank)

	rank, err = cache.Rank(ctx, "comp-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, rank)

	rank, err = cache.Rank(ctx, "comp-1", "bob")
	require.NoError(t, err)
	assert.Equal(t, 3, rank)
}

func TestLeaderboardCache_SetScoreOverwrites(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetScore(ctx, "comp-1", "alice", 100))
	require.NoError(t, cache.SetScore(ctx, "comp-1", "bob", 200))
	require.NoError(t, cache.SetScore(ctx, "comp-1", "alice", 300))

	rank, err := cache.Rank(ctx, "comp-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, rank)

	size, err := cache.Size(ctx, "comp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)
}

func TestLeaderboardCache_RankUnknownUser(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetScore(ctx, "comp-1", "alice", 100))

	_, err := cache.Rank(ctx, "comp-1", "nobody")
	assert.Error(t, err)
}

func TestLeaderboardCache_ScoreOf(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetScore(ctx, "comp-1", "alice", 12000))

	score, err := cache.ScoreOf(ctx, "comp-1", "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 12000, score)

	_, err = cache.ScoreOf(ctx, "comp-1", "nobody")
	assert.Error(t, err)
}

func TestLeaderboardCache_CountWithScore(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetScore(ctx, "comp-1", "alice", 1000))
	require.NoError(t, cache.SetScore(ctx, "comp-1", "zoe", 1000))
	require.NoError(t, cache.SetScore(ctx, "comp-1", "bob", 500))

	tied, err := cache.CountWithScore(ctx, "comp-1", 1000)
	require.NoError(t, err)
	assert.EqualValues(t, 2, tied)

	alone, err := cache.CountWithScore(ctx, "comp-1", 500)
	require.NoError(t, err)
	assert.EqualValues(t, 1, alone)

	none, err := cache.CountWithScore(ctx, "comp-1", 999)
	require.NoError(t, err)
	assert.EqualValues(t, 0, none)
}

func TestLeaderboardCache_TopN(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetScore(ctx, "comp-1", "alice", 300))
	require.NoError(t, cache.SetScore(ctx, "comp-1", "bob", 100))
	require.NoError(t, cache.SetScore(ctx, "comp-1", "carol", 200))

	top, err := cache.TopN(ctx, "comp-1", 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "alice", top[0].Member)
	assert.Equal(t, "carol", top[1].Member)
}

func TestLeaderboardCache_KeysAreIsolatedPerCompetition(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetScore(ctx, "comp-1", "alice", 100))
	require.NoError(t, cache.SetScore(ctx, "comp-2", "alice", 999))

	size, err := cache.Size(ctx, "comp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	rank, err := cache.Rank(ctx, "comp-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, rank)
}

func TestLeaderboardCache_Rebuild(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	// Stale members from a previous life of the cache.
	require.NoError(t, cache.SetScore(ctx, "comp-1", "ghost", 99999))

	entries := []models.LeaderboardEntry{
		{UserID: "alice", Score: 300},
		{UserID: "bob", Score: 100},
	}
	require.NoError(t, cache.Rebuild(ctx, "comp-1", entries))

	size, err := cache.Size(ctx, "comp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)

	_, err = cache.Rank(ctx, "comp-1", "ghost")
	assert.Error(t, err)

	rank, err := cache.Rank(ctx, "comp-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, rank)
}

func TestLeaderboardCache_Clear(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetScore(ctx, "comp-1", "alice", 100))
	require.NoError(t, cache.Clear(ctx, "comp-1"))

	size, err := cache.Size(ctx, "comp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
}
