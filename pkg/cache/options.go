package cache

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
)

type options struct {
	maxLocalSize int
	defaultTTL   time.Duration
	awsConfig    *aws.Config
	now          func() time.Time
	dynamoClient dynamoDBAPI
	s3Client     s3API
}

// Option configures a fallback store backend.
type Option func(*options)

// WithMaxLocalSize bounds the number of entries kept in process memory.
func WithMaxLocalSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.maxLocalSize = size
		}
	}
}

// WithDefaultTTL sets the retention used when Set is called without one.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.defaultTTL = ttl
		}
	}
}

// WithAWSConfig overrides config.LoadDefaultConfig for the remote backends.
func WithAWSConfig(cfg aws.Config) Option {
	return func(o *options) {
		o.awsConfig = &cfg
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		maxLocalSize: Defaults.MaxLocalSize,
		defaultTTL:   Defaults.TTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
