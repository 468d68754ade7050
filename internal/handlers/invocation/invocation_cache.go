package invocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"claude-invocation/internal/metrics"
	"claude-invocation/internal/shared"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrCacheMiss = errors.New("cache miss")

type cacheHitKey struct{}

// FromCache reports whether out was served by a CachingClient instead of the
// model.
func FromCache(out *bedrockruntime.InvokeModelOutput) bool {
	hit, _ := out.ResultMetadata.Get(cacheHitKey{}).(bool)
	return hit
}

// ResultCache stores raw model response bodies.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return val, err
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, key, value, r.ttl).Err()
}

// CachingClient wraps a ModelClient with a result cache. Only responses that
// carry a readable first text block are stored. Cache failures are logged and
// otherwise ignored.
type CachingClient struct {
	next  ModelClient
	cache ResultCache
	log   *zap.SugaredLogger
}

func NewCachingClient(next ModelClient, cache ResultCache, log *zap.SugaredLogger) *CachingClient {
	return &CachingClient{next: next, cache: cache, log: log}
}

func (c *CachingClient) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	key := cacheKey(aws.ToString(params.ModelId), params.Body)

	getCtx, cancel := context.WithTimeout(ctx, shared.CacheOperationTimeout)
	cached, err := c.cache.Get(getCtx, key)
	cancel()
	switch {
	case err == nil:
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		c.log.Debugw("Cache hit for model result", "model", aws.ToString(params.ModelId))
		out := &bedrockruntime.InvokeModelOutput{
			Body:        cached,
			ContentType: aws.String(shared.ContentTypeJSON),
		}
		out.ResultMetadata.Set(cacheHitKey{}, true)
		return out, nil
	case errors.Is(err, ErrCacheMiss):
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	default:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		c.log.Warnw("Failed to read model result cache", "error", err, "cache_key", key)
	}

	out, err := c.next.InvokeModel(ctx, params, optFns...)
	if err != nil {
		return nil, err
	}

	if !cacheable(out.Body) {
		return out, nil
	}

	setCtx, cancel := context.WithTimeout(ctx, shared.CacheOperationTimeout)
	defer cancel()
	if err := c.cache.Set(setCtx, key, out.Body); err != nil {
		c.log.Warnw("Failed to cache model result", "error", err, "cache_key", key)
	}
	return out, nil
}

func cacheable(body []byte) bool {
	res, err := ParseResult(body)
	if err != nil {
		return false
	}
	_, err = res.FirstText()
	return err == nil
}

func cacheKey(model string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write(body)
	return shared.CacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}
