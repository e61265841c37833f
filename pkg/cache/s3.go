package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/boogy/health-journal/pkg/types"
)

// s3API is the subset of *s3.Client used by the cache.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// WithS3Client injects an S3 client instead of building one from the AWS config.
func WithS3Client(client s3API) Option {
	return func(o *options) {
		o.s3Client = client
	}
}

type s3Cache struct {
	client     s3API
	bucketName string
	prefix     string
	local      *localTier
	defaultTTL time.Duration
	now        func() time.Time
}

// s3CacheItem is the JSON document stored per key.
type s3CacheItem struct {
	Value      *types.JWKS `json:"value"`
	Expiration time.Time   `json:"expiration"`
	CreatedAt  time.Time   `json:"created_at"`
}

// NewS3Cache stores key sets as JSON objects under prefix in the given bucket.
func NewS3Cache(ctx context.Context, bucketName, prefix string, opts ...Option) (Cache, error) {
	o := newOptions(opts)

	client := o.s3Client
	if client == nil {
		cfg, err := loadAWSConfig(ctx, o)
		if err != nil {
			slog.Error("Failed to load AWS config for S3 cache", "error", err.Error())
			return nil, err
		}
		client = s3.NewFromConfig(cfg)
	}

	return &s3Cache{
		client:     client,
		bucketName: bucketName,
		prefix:     prefix,
		local:      newLocalTier(o.maxLocalSize, o.now),
		defaultTTL: o.defaultTTL,
		now:        o.now,
	}, nil
}

// objectKey hashes the cache key, which is a URL and not a safe object name.
func (c *s3Cache) objectKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	name := hex.EncodeToString(sum[:]) + ".json"
	if c.prefix == "" {
		return name
	}
	return path.Join(c.prefix, name)
}

func (c *s3Cache) Get(ctx context.Context, key string) (*types.JWKS, bool) {
	if jwks, found := c.local.get(key); found {
		slog.Debug("Local memory cache hit", "key", key)
		return jwks, true
	}

	item, found := c.getFromS3(ctx, key)
	if !found {
		return nil, false
	}
	c.local.set(key, item.Value, item.Expiration)
	return item.Value, true
}

func (c *s3Cache) getFromS3(ctx context.Context, key string) (*s3CacheItem, bool) {
	objectKey := c.objectKey(key)

	ctx, cancel := context.WithTimeout(ctx, Defaults.Timeout)
	defer cancel()

	resp, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			slog.Debug("Cache miss in S3", "key", key)
			return nil, false
		}
		slog.Error("Failed to get object from S3", "key", key, "error", err)
		return nil, false
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("Error closing S3 response body", "error", err)
		}
	}()

	if resp.ContentLength != nil && *resp.ContentLength > Defaults.MaxItemSize {
		slog.Warn("S3 cache item exceeds maximum allowed size", "key", key, "size", *resp.ContentLength)
		return nil, false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, Defaults.MaxItemSize))
	if err != nil {
		slog.Error("Failed to read S3 object body", "key", key, "error", err)
		return nil, false
	}

	var item s3CacheItem
	if err := json.Unmarshal(body, &item); err != nil || item.Value == nil {
		slog.Error("Failed to decode S3 cache item", "key", key, "error", err)
		return nil, false
	}

	if c.now().After(item.Expiration) {
		slog.Debug("S3 cache entry expired", "key", key)
		c.deleteObject(ctx, objectKey)
		return nil, false
	}

	slog.Debug("S3 cache hit", "key", key)
	return &item, true
}

func (c *s3Cache) Set(ctx context.Context, key string, value *types.JWKS, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	item := s3CacheItem{
		Value:      value,
		Expiration: c.now().Add(ttl),
		CreatedAt:  c.now(),
	}
	c.local.set(key, value, item.Expiration)

	data, err := json.Marshal(item)
	if err != nil {
		slog.Error("Failed to marshal cache item", "key", key, "error", err)
		return
	}
	if int64(len(data)) > Defaults.S3MaxObjectSize {
		slog.Error("Cache item too large to store in S3", "key", key, "size", len(data))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, Defaults.Timeout)
	defer cancel()

	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketName),
		Key:         aws.String(c.objectKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"Expiration": item.Expiration.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		slog.Error("Failed to put object in S3", "key", key, "error", err)
		return
	}

	slog.Debug("Cached value in S3", "key", key, "ttl", ttl, "size", len(data))
}

func (c *s3Cache) deleteObject(ctx context.Context, objectKey string) {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		slog.Error("Failed to delete expired object from S3", "key", objectKey, "error", err)
	}
}
