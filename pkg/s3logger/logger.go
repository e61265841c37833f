// Package s3logger ships JSON log lines to S3 as gzip objects. It is used by
// the Lambda entrypoint, where stdout is the only other sink.
package s3logger

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/boogy/health-journal/pkg/config"
	"github.com/google/uuid"
)

const (
	// DefaultTimeout is the default timeout for S3 operations
	DefaultTimeout = 10 * time.Second

	// DefaultRetries is the default number of retries for S3 operations
	DefaultRetries = 3

	// RetryBackoff is how long Write holds off uploading after a failed
	// batch. Flush always tries.
	RetryBackoff = 30 * time.Second

	// maxBuffered caps unshipped log data after failed writes.
	maxBuffered = 4 << 20
)

type s3API interface {
	PutObject(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Logger is an io.Writer for a slog handler. Lines are buffered and written
// as one object per batch. A disabled logger discards everything.
type S3Logger struct {
	mu        sync.Mutex
	client    s3API
	bucket    string
	prefix    string
	batchSize int
	timeout   time.Duration
	now       func() time.Time

	buf     bytes.Buffer
	lines   int
	dropped int
	lastErr error
	retryAt time.Time
}

type Option func(*S3Logger)

// WithClient replaces the S3 client built from the default AWS config.
func WithClient(client s3API) Option {
	return func(l *S3Logger) {
		l.client = client
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *S3Logger) {
		l.now = now
	}
}

// New creates a logger for cfg. When cfg does not enable S3 shipping the
// returned logger is disabled.
func New(ctx context.Context, cfg *config.Logging, opts ...Option) (*S3Logger, error) {
	l := &S3Logger{
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if cfg == nil || !cfg.ToS3 {
		l.client = nil
		return l, nil
	}

	l.bucket = cfg.Bucket
	l.prefix = strings.Trim(cfg.Prefix, "/")
	l.batchSize = max(cfg.BatchSize, 1)

	if l.client == nil {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRetryMaxAttempts(DefaultRetries))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config for S3 logger: %w", err)
		}
		l.client = s3.NewFromConfig(awsCfg)
	}
	return l, nil
}

// Enabled reports whether lines are shipped at all.
func (l *S3Logger) Enabled() bool {
	return l != nil && l.client != nil
}

// Write buffers p and ships the batch once it is full. It never fails, so
// logging keeps working while S3 is unavailable; Flush reports the last error.
// After a failed upload, Write only buffers until RetryBackoff has passed.
func (l *S3Logger) Write(p []byte) (int, error) {
	if !l.Enabled() {
		return len(p), nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf.Write(p)
	if !bytes.HasSuffix(p, []byte("\n")) {
		l.buf.WriteByte('\n')
	}
	l.lines++

	if l.lines >= l.batchSize && !l.now().Before(l.retryAt) {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		l.lastErr = l.flushLocked(ctx)
		cancel()
	}
	if l.buf.Len() > maxBuffered {
		l.dropped += l.lines
		l.buf.Reset()
		l.lines = 0
	}
	return len(p), nil
}

// Flush ships any buffered lines. It returns the error of this write or, if
// there was nothing to write, of the last failed batch.
func (l *S3Logger) Flush(ctx context.Context) error {
	if !l.Enabled() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lines == 0 {
		err := l.lastErr
		l.lastErr = nil
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	err := l.flushLocked(ctx)
	l.lastErr = nil
	if l.dropped > 0 {
		err = errors.Join(err, fmt.Errorf("dropped %d log lines after failed writes", l.dropped))
		l.dropped = 0
	}
	return err
}

// flushLocked writes the buffer as one object. Caller must hold l.mu.
func (l *S3Logger) flushLocked(ctx context.Context) error {
	if l.lines == 0 {
		return nil
	}

	body, err := compressGzip(l.buf.Bytes())
	if err != nil {
		return fmt.Errorf("failed to compress log data: %w", err)
	}

	_, err = l.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:            aws.String(l.bucket),
		Key:               aws.String(l.objectKey()),
		Body:              bytes.NewReader(body),
		ContentType:       aws.String("application/x-ndjson"),
		ContentEncoding:   aws.String("gzip"),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
		Metadata: map[string]string{
			"source":     "health-journal",
			"created-at": l.now().UTC().Format(time.RFC3339),
			"lines":      fmt.Sprint(l.lines),
		},
	})
	if err != nil {
		l.retryAt = l.now().Add(RetryBackoff)
		return fmt.Errorf("failed to write logs to S3: %w", err)
	}

	l.buf.Reset()
	l.lines = 0
	l.retryAt = time.Time{}
	return nil
}

// objectKey builds <prefix>/YYYY/MM/DD/<uuid>-YYYYMMDD-HHMMSS.json.gz
func (l *S3Logger) objectKey() string {
	now := l.now().UTC()
	name := fmt.Sprintf("%s-%s.json.gz", uuid.New().String(), now.Format("20060102-150405"))
	parts := []string{now.Format("2006/01/02"), name}
	if l.prefix != "" {
		parts = append([]string{l.prefix}, parts...)
	}
	return strings.Join(parts, "/")
}

func compressGzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gzWriter := gzip.NewWriter(&buf)

	if _, err := gzWriter.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write to gzip writer: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}
