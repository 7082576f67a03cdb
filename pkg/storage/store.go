package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chrlesur/live-memory/pkg/config"
	"github.com/chrlesur/live-memory/pkg/log"
	"github.com/chrlesur/live-memory/pkg/metrics"
)

// bulkParallelism bounds concurrent object operations for multi-key helpers.
const bulkParallelism = 8

// ObjectInfo describes a stored object without its content.
type ObjectInfo struct {
	Key      string
	Size     int64
	Modified time.Time
}

// Object carries a fetched object.
type Object struct {
	Key     string
	Content []byte
}

// Store is the object-store contract shared by the S3 and Bolt drivers.
// Missing keys are reported through the found flag, never as an error.
// List and ListPrefixes return entries in lexicographic key order.
type Store interface {
	Get(ctx context.Context, key string) (data []byte, found bool, err error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	ListPrefixes(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Copy(ctx context.Context, src, dst string) error
	Ping(ctx context.Context) (time.Duration, error)
	Close() error
}

// New builds the driver selected by STORAGE_DRIVER.
func New(cfg *config.Settings) (Store, error) {
	switch cfg.StorageDriver {
	case config.DriverS3:
		return NewS3Store(cfg)
	case config.DriverBolt:
		return NewBoltStore(cfg.DataDir)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.StorageDriver)
	}
}

// GetJSON fetches and decodes a JSON object.
func GetJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	data, found, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return true, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// PutJSON encodes v with two-space indentation and stores it.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Put(ctx, key, data, "application/json")
}

// DeleteMany removes keys individually, best effort. The vendor offers no
// batch delete. Failed deletions are logged and skipped; the returned count
// covers successful deletions only.
func DeleteMany(ctx context.Context, s Store, keys []string) (int, error) {
	var deleted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkParallelism)
	for _, key := range keys {
		g.Go(func() error {
			if err := s.Delete(gctx, key); err != nil {
				log.Logger.Warn().Err(err).Str("key", key).Msg("delete failed, skipping")
				return nil
			}
			deleted.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(deleted.Load()), err
	}
	return int(deleted.Load()), nil
}

// FetchAll lists a prefix and downloads every object under it in parallel,
// preserving key order. Marker files (.keep) are skipped unless includeKeep
// is set.
func FetchAll(ctx context.Context, s Store, prefix string, includeKeep bool) ([]Object, error) {
	infos, err := s.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		if !includeKeep && IsKeep(info.Key) {
			continue
		}
		keys = append(keys, info.Key)
	}

	results := make([]Object, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkParallelism)
	for i, key := range keys {
		g.Go(func() error {
			data, found, err := s.Get(gctx, key)
			if err != nil {
				return fmt.Errorf("failed to fetch %s: %w", key, err)
			}
			if !found {
				// Deleted between list and get; leave a hole.
				return nil
			}
			results[i] = Object{Key: key, Content: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := results[:0]
	for _, obj := range results {
		if obj.Key != "" {
			out = append(out, obj)
		}
	}
	return out, nil
}

// IsKeep reports whether key names a zero-byte directory marker.
func IsKeep(key string) bool {
	return key == ".keep" || strings.HasSuffix(key, "/.keep")
}

// recordOp feeds the storage metrics from both drivers.
func recordOp(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.StorageOperations.WithLabelValues(op, status).Inc()
	metrics.Since(metrics.StorageOperationDuration.WithLabelValues(op), start)
}
