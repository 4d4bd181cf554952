package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/activity-ticket-api/internal/dto"
	"github.com/noah-isme/activity-ticket-api/internal/observability"
	"github.com/noah-isme/activity-ticket-api/internal/repository"
)

const reviewCountKeyPrefix = "tickets:review-count:"

// ReviewCountCache keeps short lived reviewer queue counts.
type ReviewCountCache interface {
	Get(ctx context.Context, filter repository.ReviewerFilter) (int64, bool)
	Set(ctx context.Context, filter repository.ReviewerFilter, count int64)
	Invalidate(ctx context.Context, reviewers ...string)
}

type redisReviewCountCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewReviewCountCache returns a Redis backed cache. A nil client disables
// caching.
func NewReviewCountCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) ReviewCountCache {
	return &redisReviewCountCache{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "review_count_cache").Logger(),
	}
}

func reviewCountKey(filter repository.ReviewerFilter) string {
	typ, state := "*", "*"
	if filter.Type != nil {
		typ = fmt.Sprintf("%d", *filter.Type)
	}
	if filter.State != nil {
		state = fmt.Sprintf("%d", *filter.State)
	}
	return fmt.Sprintf("%s%s:%s:%s", reviewCountKeyPrefix, filter.Reviewer, typ, state)
}

func (c *redisReviewCountCache) Get(ctx context.Context, filter repository.ReviewerFilter) (int64, bool) {
	if c.client == nil {
		return 0, false
	}

	data, err := c.client.Get(ctx, reviewCountKey(filter)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Msg("failed to read review count cache")
		}
		observability.ReviewQueueCache().WithLabelValues("miss").Inc()
		return 0, false
	}

	var cached dto.ReviewCountResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		c.logger.Warn().Err(err).Msg("discarding corrupt review count cache entry")
		observability.ReviewQueueCache().WithLabelValues("miss").Inc()
		return 0, false
	}

	observability.ReviewQueueCache().WithLabelValues("hit").Inc()
	return cached.Count, true
}

func (c *redisReviewCountCache) Set(ctx context.Context, filter repository.ReviewerFilter, count int64) {
	if c.client == nil || c.ttl <= 0 {
		return
	}

	payload, err := json.Marshal(dto.ReviewCountResponse{Count: count})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, reviewCountKey(filter), payload, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to write review count cache")
	}
}

func (c *redisReviewCountCache) Invalidate(ctx context.Context, reviewers ...string) {
	if c.client == nil {
		return
	}

	for _, reviewer := range reviewers {
		if reviewer == "" {
			continue
		}
		var keys []string
		iter := c.client.Scan(ctx, 0, reviewCountKeyPrefix+reviewer+":*", 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			c.logger.Warn().Err(err).Str("reviewer", reviewer).Msg("failed to scan review count cache")
			continue
		}
		if len(keys) == 0 {
			continue
		}
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			c.logger.Warn().Err(err).Str("reviewer", reviewer).Msg("failed to invalidate review count cache")
		}
	}
}
