package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

const trustScoreKeyPrefix = "trust:score:"

// Connect initializes a Redis client from URL or host:port input.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, parseErr := redis.ParseURL(redisURL)
		if parseErr != nil {
			return nil, fmt.Errorf("parse redis url: %w", parseErr)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

type RedisTrustScoreCache struct {
	client *redis.Client
}

func NewRedisTrustScoreCache(client *redis.Client) *RedisTrustScoreCache {
	return &RedisTrustScoreCache{client: client}
}

func (c *RedisTrustScoreCache) Get(ctx context.Context, owner string) (domain.TrustScore, bool, error) {
	raw, err := c.client.Get(ctx, trustScoreKeyPrefix+owner).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.TrustScore{}, false, nil
		}
		return domain.TrustScore{}, false, err
	}
	var score domain.TrustScore
	if err := json.Unmarshal(raw, &score); err != nil {
		_ = c.client.Del(ctx, trustScoreKeyPrefix+owner).Err()
		return domain.TrustScore{}, false, nil
	}
	return score, true, nil
}

func (c *RedisTrustScoreCache) Set(ctx context.Context, score domain.TrustScore, ttl time.Duration) error {
	raw, err := json.Marshal(score)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, trustScoreKeyPrefix+score.Owner, raw, ttl).Err()
}

func (c *RedisTrustScoreCache) Invalidate(ctx context.Context, owner string) error {
	return c.client.Del(ctx, trustScoreKeyPrefix+owner).Err()
}
