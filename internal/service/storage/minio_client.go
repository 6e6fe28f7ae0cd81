package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"medconnect-backend/pkg/logger"
)

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState int

const (
	CircuitBreakerClosed CircuitBreakerState = iota
	CircuitBreakerHalfOpen
	CircuitBreakerOpen
)

// ErrCircuitOpen is returned while the breaker is rejecting requests
var ErrCircuitOpen = errors.New("object storage circuit breaker is open")

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxFailures  int
	Timeout      time.Duration
	ResetTimeout time.Duration
}

// DefaultCircuitBreakerConfig returns default circuit breaker settings
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:  5,
		Timeout:      10 * time.Second,
		ResetTimeout: 30 * time.Second,
	}
}

// MinioClient wraps the MinIO client with a circuit breaker so attachment
// operations fail fast while object storage is unavailable. After
// ResetTimeout the breaker half-opens and lets one probe request through.
type MinioClient struct {
	client *minio.Client
	config *CircuitBreakerConfig

	mu          sync.Mutex
	state       CircuitBreakerState
	failures    int
	lastFailure time.Time
}

// NewMinioClient creates a new MinIO client with resilience features
func NewMinioClient(endpoint, accessKey, secretKey string, secure bool) (*MinioClient, error) {
	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinioClient{
		client: minioClient,
		config: DefaultCircuitBreakerConfig(),
		state:  CircuitBreakerClosed,
	}, nil
}

// EnsureBucket creates the bucket if it does not exist
func (c *MinioClient) EnsureBucket(ctx context.Context, bucketName string) error {
	exists, err := c.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := c.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

// UploadObject uploads an object with timeout and circuit breaker
func (c *MinioClient) UploadObject(ctx context.Context, bucketName, objectName string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if !c.allowRequest() {
		return minio.UploadInfo{}, ErrCircuitOpen
	}

	uploadCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	info, err := c.client.PutObject(uploadCtx, bucketName, objectName, reader, size, opts)
	c.record(err)
	if err != nil {
		return minio.UploadInfo{}, fmt.Errorf("upload failed: %w", err)
	}

	return info, nil
}

// GetObject fetches an object with timeout and circuit breaker
func (c *MinioClient) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error) {
	if !c.allowRequest() {
		return nil, ErrCircuitOpen
	}

	obj, err := c.client.GetObject(ctx, bucketName, objectName, opts)
	c.record(err)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}

	return obj, nil
}

// DeleteObject deletes an object with timeout and circuit breaker
func (c *MinioClient) DeleteObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	if !c.allowRequest() {
		return ErrCircuitOpen
	}

	deleteCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	err := c.client.RemoveObject(deleteCtx, bucketName, objectName, opts)
	c.record(err)
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}

	return nil
}

// PresignedPut generates a presigned upload URL for an object
func (c *MinioClient) PresignedPut(ctx context.Context, bucketName, objectName string, expiry time.Duration) (*url.URL, error) {
	if !c.allowRequest() {
		return nil, ErrCircuitOpen
	}

	u, err := c.client.PresignedPutObject(ctx, bucketName, objectName, expiry)
	c.record(err)
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned upload URL: %w", err)
	}

	return u, nil
}

// PresignedGet generates a presigned download URL for an object
func (c *MinioClient) PresignedGet(ctx context.Context, bucketName, objectName string, expiry time.Duration) (*url.URL, error) {
	if !c.allowRequest() {
		return nil, ErrCircuitOpen
	}

	u, err := c.client.PresignedGetObject(ctx, bucketName, objectName, expiry, nil)
	c.record(err)
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned download URL: %w", err)
	}

	return u, nil
}

// allowRequest reports whether the breaker admits a request, half-opening
// after the reset timeout has elapsed
func (c *MinioClient) allowRequest() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case CircuitBreakerClosed, CircuitBreakerHalfOpen:
		return true
	case CircuitBreakerOpen:
		if time.Since(c.lastFailure) >= c.config.ResetTimeout {
			c.state = CircuitBreakerHalfOpen
			logger.Info("Object storage circuit breaker half-open")
			return true
		}
		return false
	}
	return false
}

// record updates breaker state from an operation result
func (c *MinioClient) record(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		if c.state != CircuitBreakerClosed {
			logger.Info("Object storage circuit breaker closed")
		}
		c.failures = 0
		c.state = CircuitBreakerClosed
		c.lastFailure = time.Time{}
		return
	}

	c.failures++
	c.lastFailure = time.Now()

	if c.state == CircuitBreakerHalfOpen || c.failures >= c.config.MaxFailures {
		if c.state != CircuitBreakerOpen {
			logger.Warn("Object storage circuit breaker opened",
				zap.Int("failures", c.failures),
				zap.Error(err))
		}
		c.state = CircuitBreakerOpen
	}
}

// State returns the current circuit breaker state
func (c *MinioClient) State() CircuitBreakerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
