package indicator

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// RedisSink mirrors the indicator into a Redis hash and announces every
// change on the channel of the same name, so a dashboard can render it.
type RedisSink struct {
	redis  *redis.Client
	key    string
	logger *log.Logger
	ctx    context.Context
}

// NewRedisSink creates a sink writing to the hash key
func NewRedisSink(ctx context.Context, redisClient *redis.Client, key string, logger *log.Logger) *RedisSink {
	return &RedisSink{
		redis:  redisClient,
		key:    key,
		logger: logger,
		ctx:    ctx,
	}
}

func (rs *RedisSink) Set(color Color, pattern Pattern) error {
	return rs.publish(color, pattern)
}

func (rs *RedisSink) Clear() error {
	return rs.publish(ColorNone, Pattern{})
}

func (rs *RedisSink) publish(color Color, pattern Pattern) error {
	pipe := rs.redis.Pipeline()
	pipe.HSet(rs.ctx, rs.key,
		"color", color.String(),
		"on-ms", pattern.On.Milliseconds(),
		"off-ms", pattern.Off.Milliseconds(),
	)
	pipe.Publish(rs.ctx, rs.key, "color")
	if _, err := pipe.Exec(rs.ctx); err != nil {
		return fmt.Errorf("failed to publish indicator %s to Redis: %w", color, err)
	}

	rs.logger.Printf("Published indicator %s to Redis", color)
	return nil
}
