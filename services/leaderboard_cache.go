package services

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"health-competition-system/models"
)

// NewRedisClient builds a client from a redis:// URL.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// LeaderboardCache mirrors each competition's scores in a redis sorted set
// so rank lookups and top-N reads stay O(log n). Postgres remains the
// source of truth; the cache is rebuilt from it whenever it goes cold.
type LeaderboardCache struct {
	rdb *redis.Client
}

func NewLeaderboardCache(rdb *redis.Client) *LeaderboardCache {
	return &LeaderboardCache{rdb: rdb}
}

func (c *LeaderboardCache) key(competitionID string) string {
	return "leaderboard:" + competitionID
}

// SetScore writes a user's current aggregate score into the sorted set.
func (c *LeaderboardCache) SetScore(ctx context.Context, competitionID, userID string, score int64) error {
	return c.rdb.ZAdd(ctx, c.key(competitionID), redis.Z{
		Score:  float64(score),
		Member: userID,
	}).Err()
}

// Rank returns the user's 1-based rank, highest score first.
func (c *LeaderboardCache) Rank(ctx context.Context, competitionID, userID string) (int, error) {
	rank, err := c.rdb.ZRevRank(ctx, c.key(competitionID), userID).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get rank for %s: %w", userID, err)
	}
	return int(rank) + 1, nil
}

// ScoreOf returns the user's cached score.
func (c *LeaderboardCache) ScoreOf(ctx context.Context, competitionID, userID string) (int64, error) {
	score, err := c.rdb.ZScore(ctx, c.key(competitionID), userID).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get score for %s: %w", userID, err)
	}
	return int64(score), nil
}

// CountWithScore returns how many members hold exactly the given score.
// Redis orders equal scores lexicographically, so a count above one means
// the cached rank cannot be trusted for tie-breaking.
func (c *LeaderboardCache) CountWithScore(ctx context.Context, competitionID string, score int64) (int64, error) {
	bound := strconv.FormatInt(score, 10)
	count, err := c.rdb.ZCount(ctx, c.key(competitionID), bound, bound).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count members at score %d: %w", score, err)
	}
	return count, nil
}

// TopN returns the highest-scoring members, best first.
func (c *LeaderboardCache) TopN(ctx context.Context, competitionID string, n int) ([]redis.Z, error) {
	members, err := c.rdb.ZRevRangeWithScores(ctx, c.key(competitionID), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read top %d: %w", n, err)
	}
	return members, nil
}

// Size returns the number of scored participants.
func (c *LeaderboardCache) Size(ctx context.Context, competitionID string) (int64, error) {
	count, err := c.rdb.ZCard(ctx, c.key(competitionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get leaderboard size: %w", err)
	}
	return count, nil
}

// Rebuild replaces the sorted set with the given entries atomically.
func (c *LeaderboardCache) Rebuild(ctx context.Context, competitionID string, entries []models.LeaderboardEntry) error {
	key := c.key(competitionID)
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, key)
	for _, e := range entries {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(e.Score), Member: e.UserID})
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to rebuild leaderboard cache: %w", err)
	}
	return nil
}

// Clear drops a competition's sorted set (used after settlement freezes
// the standings into Postgres).
func (c *LeaderboardCache) Clear(ctx context.Context, competitionID string) error {
	return c.rdb.Del(ctx, c.key(competitionID)).Err()
}
