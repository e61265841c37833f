package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/boogy/health-journal/pkg/types"
)

// dynamoDBAPI is the subset of *dynamodb.Client used by the cache.
type dynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// WithDynamoDBClient injects a DynamoDB client instead of building one from the AWS config.
func WithDynamoDBClient(client dynamoDBAPI) Option {
	return func(o *options) {
		o.dynamoClient = client
	}
}

type dynamoDBCache struct {
	client     dynamoDBAPI
	tableName  string
	local      *localTier
	defaultTTL time.Duration
	now        func() time.Time
}

// NewDynamoDBCache stores key sets as items of the given table. The table's
// partition key is the string attribute "Key"; "TTL" may be enabled as the
// native expiry attribute.
func NewDynamoDBCache(ctx context.Context, tableName string, opts ...Option) (Cache, error) {
	o := newOptions(opts)

	client := o.dynamoClient
	if client == nil {
		cfg, err := loadAWSConfig(ctx, o)
		if err != nil {
			slog.Error("Failed to load AWS config for DynamoDB cache", "error", err.Error())
			return nil, err
		}
		client = dynamodb.NewFromConfig(cfg)
	}

	return &dynamoDBCache{
		client:     client,
		tableName:  tableName,
		local:      newLocalTier(o.maxLocalSize, o.now),
		defaultTTL: o.defaultTTL,
		now:        o.now,
	}, nil
}

func loadAWSConfig(ctx context.Context, o *options) (aws.Config, error) {
	if o.awsConfig != nil {
		return *o.awsConfig, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRetryMaxAttempts(Defaults.MaxRetries))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

func (c *dynamoDBCache) Get(ctx context.Context, key string) (*types.JWKS, bool) {
	if jwks, found := c.local.get(key); found {
		slog.Debug("Local memory cache hit", "key", key)
		return jwks, true
	}

	jwks, expiration, found := c.getFromDynamoDB(ctx, key)
	if !found {
		return nil, false
	}
	c.local.set(key, jwks, expiration)
	return jwks, true
}

func (c *dynamoDBCache) getFromDynamoDB(ctx context.Context, key string) (*types.JWKS, time.Time, bool) {
	ctx, cancel := context.WithTimeout(ctx, Defaults.Timeout)
	defer cancel()

	result, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]ddbtypes.AttributeValue{
			"Key": &ddbtypes.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		slog.Error("Failed to get item from DynamoDB", "key", key, "error", err.Error(), "table", c.tableName)
		return nil, time.Time{}, false
	}
	if result.Item == nil {
		slog.Debug("Cache miss in DynamoDB", "key", key)
		return nil, time.Time{}, false
	}

	valueStr, ok := result.Item["Value"].(*ddbtypes.AttributeValueMemberS)
	if !ok {
		slog.Error("Invalid item format in DynamoDB", "key", key)
		return nil, time.Time{}, false
	}
	if len(valueStr.Value) > int(Defaults.MaxItemSize) {
		slog.Warn("DynamoDB cache item exceeds maximum allowed size", "key", key, "size", len(valueStr.Value))
		return nil, time.Time{}, false
	}

	// Native TTL deletion is lazy, so the expiration is checked here too.
	expiration := c.now().Add(c.defaultTTL)
	if expStr, ok := result.Item["Expiration"].(*ddbtypes.AttributeValueMemberS); ok {
		parsed, err := time.Parse(time.RFC3339, expStr.Value)
		if err == nil {
			if c.now().After(parsed) {
				slog.Debug("DynamoDB cache entry expired", "key", key)
				return nil, time.Time{}, false
			}
			expiration = parsed
		}
	}

	var jwks types.JWKS
	if err := json.Unmarshal([]byte(valueStr.Value), &jwks); err != nil {
		slog.Error("Failed to unmarshal JWKS from DynamoDB", "key", key, "error", err.Error())
		return nil, time.Time{}, false
	}

	slog.Debug("DynamoDB cache hit", "key", key)
	return &jwks, expiration, true
}

func (c *dynamoDBCache) Set(ctx context.Context, key string, value *types.JWKS, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	expiresAt := c.now().Add(ttl)
	c.local.set(key, value, expiresAt)

	valueJSON, err := json.Marshal(value)
	if err != nil {
		slog.Error("Failed to marshal JWKS", "key", key, "error", err.Error())
		return
	}
	if len(valueJSON) > int(Defaults.DynamoDBMaxItemSize) {
		slog.Error("Cache item too large to store in DynamoDB", "key", key, "size", len(valueJSON))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, Defaults.Timeout)
	defer cancel()

	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]ddbtypes.AttributeValue{
			"Key":        &ddbtypes.AttributeValueMemberS{Value: key},
			"Value":      &ddbtypes.AttributeValueMemberS{Value: string(valueJSON)},
			"Expiration": &ddbtypes.AttributeValueMemberS{Value: expiresAt.UTC().Format(time.RFC3339)},
			"TTL":        &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt.Unix(), 10)},
			"CreatedAt":  &ddbtypes.AttributeValueMemberS{Value: c.now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		slog.Error("Failed to set item in DynamoDB", "key", key, "error", err.Error(), "table", c.tableName)
		return
	}

	slog.Debug("Cached value in DynamoDB", "key", key, "ttl", ttl, "size", len(valueJSON))
}
