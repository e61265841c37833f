package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/boogy/health-journal/pkg/config"
	"github.com/boogy/health-journal/pkg/types"
)

// CacheDefaults holds the defaults shared by every fallback store backend.
type CacheDefaults struct {
	MaxRetries   int
	Timeout      time.Duration
	TTL          time.Duration
	MaxLocalSize int

	MaxItemSize         int64 // Largest serialized key set accepted on read
	DynamoDBMaxItemSize int64 // DynamoDB hard limit is 400KB
	S3MaxObjectSize     int64
}

var Defaults = CacheDefaults{
	MaxRetries:          3,
	Timeout:             5 * time.Second,
	TTL:                 24 * time.Hour,
	MaxLocalSize:        10,
	MaxItemSize:         512 * 1024,
	DynamoDBMaxItemSize: 400 * 1024,
	S3MaxObjectSize:     1024 * 1024,
}

// Cache keeps the last good key set so a cold process can verify tokens while
// the identity provider is unreachable.
type Cache interface {
	Get(ctx context.Context, key string) (*types.JWKS, bool)
	Set(ctx context.Context, key string, value *types.JWKS, ttl time.Duration)
}

func configuredTTL(cfg *config.Config) time.Duration {
	if cfg != nil && cfg.Cache != nil && cfg.Cache.TTL > 0 {
		return cfg.Cache.TTL
	}
	return Defaults.TTL
}

func configuredMaxLocalSize(cfg *config.Config) int {
	if cfg != nil && cfg.Cache != nil && cfg.Cache.MaxLocalSize > 0 {
		return cfg.Cache.MaxLocalSize
	}
	return Defaults.MaxLocalSize
}

// NewCache builds the backend selected by cache.type.
func NewCache(ctx context.Context, cfg *config.Config) (Cache, error) {
	if cfg == nil || cfg.Cache == nil {
		return NewMemoryCache(), nil
	}

	cacheType := cfg.Cache.Type
	if cacheType == "" {
		cacheType = "memory"
	}

	switch cacheType {
	case "memory":
		return NewMemoryCache(
			WithMaxLocalSize(configuredMaxLocalSize(cfg)),
			WithDefaultTTL(configuredTTL(cfg)),
		), nil

	case "dynamodb":
		if cfg.Cache.DynamoDBTable == "" {
			return nil, fmt.Errorf("DynamoDB table name is required for DynamoDB cache")
		}
		return NewDynamoDBCache(ctx, cfg.Cache.DynamoDBTable,
			WithDefaultTTL(configuredTTL(cfg)),
			WithMaxLocalSize(configuredMaxLocalSize(cfg)),
		)

	case "s3":
		if cfg.Cache.S3Bucket == "" {
			return nil, fmt.Errorf("S3 bucket name is required for S3 cache")
		}
		return NewS3Cache(ctx, cfg.Cache.S3Bucket, cfg.Cache.S3Prefix,
			WithDefaultTTL(configuredTTL(cfg)),
			WithMaxLocalSize(configuredMaxLocalSize(cfg)),
		)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cacheType)
	}
}
