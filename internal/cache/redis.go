package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Redis is a Cache shared by every instance of the service.
// Redis failures degrade to computing the value on every call.
type Redis struct {
	client    redis.Cmdable
	keyPrefix string
	log       logrus.FieldLogger
}

// NewRedis wraps a go-redis client. Keys are namespaced with keyPrefix.
func NewRedis(client redis.Cmdable, keyPrefix string, log logrus.FieldLogger) *Redis {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Redis{client: client, keyPrefix: keyPrefix, log: log}
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

func (c *Redis) GetOrCompute(ctx context.Context, key string, ttl time.Duration, fn ComputeFunc) ([]byte, error) {
	full := c.keyPrefix + key
	value, err := c.client.Get(ctx, full).Bytes()
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, redis.Nil) {
		c.log.WithError(err).WithField("key", full).Warn("cache read failed")
	}

	value, err = fn(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, full, value, ttl).Err(); err != nil {
		c.log.WithError(err).WithField("key", full).Warn("cache write failed")
	}
	return value, nil
}

func (c *Redis) DeletePrefix(ctx context.Context, prefix string) error {
	pattern := escapeGlob(c.keyPrefix+prefix) + "*"
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete cache keys: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
