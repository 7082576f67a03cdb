package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/chrlesur/live-memory/pkg/config"
	"github.com/chrlesur/live-memory/pkg/log"
)

const (
	maxAttempts    = 3
	retryBaseDelay = 250 * time.Millisecond
)

// S3Store talks to a Dell ECS compatible object store. The vendor accepts
// SigV2 signatures on data operations (GET, PUT, DELETE, COPY) and SigV4 on
// metadata operations (HEAD, LIST), so two clients share one endpoint.
type S3Store struct {
	data   *minio.Client // SigV2: Get, Put, Delete, Copy
	meta   *minio.Client // SigV4: Stat, List, BucketExists
	bucket string
}

// NewS3Store builds the dual-signature client pair from settings.
func NewS3Store(cfg *config.Settings) (*S3Store, error) {
	u, err := url.Parse(cfg.S3EndpointURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse S3 endpoint: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("S3 endpoint %q has no host", cfg.S3EndpointURL)
	}
	secure := u.Scheme != "http"

	dataClient, err := minio.New(u.Host, &minio.Options{
		Creds:        credentials.NewStaticV2(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		Secure:       secure,
		Region:       cfg.S3Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 data client: %w", err)
	}

	metaClient, err := minio.New(u.Host, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		Secure:       secure,
		Region:       cfg.S3Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 meta client: %w", err)
	}

	return &S3Store{
		data:   dataClient,
		meta:   metaClient,
		bucket: cfg.S3Bucket,
	}, nil
}

// Get downloads an object. Missing keys return found=false.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	var data []byte
	err := s.withRetry(ctx, func() error {
		obj, err := s.data.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return err
		}
		defer obj.Close()
		b, err := io.ReadAll(obj)
		if err != nil {
			return err
		}
		data = b
		return nil
	})
	if isNotFound(err) {
		recordOp("get", start, nil)
		return nil, false, nil
	}
	recordOp("get", start, err)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, true, nil
}

// Put uploads an object. Empty contentType falls back to octet-stream.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	start := time.Now()
	err := s.withRetry(ctx, func() error {
		_, err := s.data.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: contentType})
		return err
	})
	recordOp("put", start, err)
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// Delete removes an object. Deleting a missing key is not an error.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.withRetry(ctx, func() error {
		return s.data.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	})
	if isNotFound(err) {
		err = nil
	}
	recordOp("delete", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// List returns every object under prefix in lexicographic order.
func (s *S3Store) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	start := time.Now()
	var infos []ObjectInfo
	err := s.withRetry(ctx, func() error {
		infos = infos[:0]
		opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: true}
		for obj := range s.meta.ListObjects(ctx, s.bucket, opts) {
			if obj.Err != nil {
				return obj.Err
			}
			infos = append(infos, ObjectInfo{Key: obj.Key, Size: obj.Size, Modified: obj.LastModified})
		}
		return nil
	})
	recordOp("list", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	return infos, nil
}

// ListPrefixes returns the next-level group names under prefix, without the
// trailing slash.
func (s *S3Store) ListPrefixes(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	var names []string
	err := s.withRetry(ctx, func() error {
		names = names[:0]
		opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: false}
		for obj := range s.meta.ListObjects(ctx, s.bucket, opts) {
			if obj.Err != nil {
				return obj.Err
			}
			if !strings.HasSuffix(obj.Key, "/") {
				continue
			}
			name := strings.TrimSuffix(strings.TrimPrefix(obj.Key, prefix), "/")
			if name != "" {
				names = append(names, name)
			}
		}
		return nil
	})
	recordOp("list", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list prefixes of %s: %w", prefix, err)
	}
	sort.Strings(names)
	return names, nil
}

// Exists checks an object with a HEAD request.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	var found bool
	err := s.withRetry(ctx, func() error {
		_, err := s.meta.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
		if isNotFound(err) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	recordOp("head", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return found, nil
}

// Copy duplicates an object server-side.
func (s *S3Store) Copy(ctx context.Context, src, dst string) error {
	start := time.Now()
	err := s.withRetry(ctx, func() error {
		_, err := s.data.CopyObject(ctx,
			minio.CopyDestOptions{Bucket: s.bucket, Object: dst},
			minio.CopySrcOptions{Bucket: s.bucket, Object: src})
		return err
	})
	recordOp("copy", start, err)
	if err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return nil
}

// Ping verifies the bucket is reachable and reports the round-trip latency.
func (s *S3Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	exists, err := s.meta.BucketExists(ctx, s.bucket)
	elapsed := time.Since(start)
	if err != nil {
		return elapsed, fmt.Errorf("failed to reach bucket %s: %w", s.bucket, err)
	}
	if !exists {
		return elapsed, fmt.Errorf("bucket %s not found", s.bucket)
	}
	return elapsed, nil
}

// Close is a no-op; the underlying HTTP clients need no teardown.
func (s *S3Store) Close() error {
	return nil
}

// withRetry runs fn up to maxAttempts times with exponential backoff on
// transient failures.
func (s *S3Store) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := retryBaseDelay << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			log.Logger.Warn().Int("attempt", attempt+1).Err(err).Msg("retrying S3 operation")
		}
		err = fn()
		if err == nil || !isTransient(err) {
			return err
		}
	}
	return err
}

// isNotFound matches the vendor's absent-key responses.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == 404
}

// isTransient decides whether an error is worth another attempt.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode >= 500 {
		return true
	}
	if resp.Code != "" {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
