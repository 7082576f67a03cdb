package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketObjects = []byte("objects")
	bucketObjMeta = []byte("objmeta")
)

// boltObjectMeta mirrors the attributes an object store serves from HEAD.
// Its presence is the source of truth for key existence, which keeps
// zero-byte objects (.keep markers) distinguishable from missing keys.
type boltObjectMeta struct {
	Size        int64     `json:"size"`
	Modified    time.Time `json:"modified"`
	ContentType string    `json:"content_type,omitempty"`
}

// BoltStore implements Store on a local bbolt database. It backs local
// development and tests where no S3 endpoint is available.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "livemem.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketObjects, bucketObjMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Get downloads an object. Missing keys return found=false.
func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var data []byte
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketObjMeta).Get([]byte(key)) == nil {
			return nil
		}
		found = true
		// Copy: BoltDB data is only valid during the transaction.
		raw := tx.Bucket(bucketObjects).Get([]byte(key))
		data = make([]byte, len(raw))
		copy(data, raw)
		return nil
	})
	recordOp("get", start, err)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if !found {
		return nil, false, nil
	}
	return data, true, nil
}

// Put stores an object and its metadata.
func (s *BoltStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		meta, err := json.Marshal(boltObjectMeta{
			Size:        int64(len(data)),
			Modified:    time.Now().UTC(),
			ContentType: contentType,
		})
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketObjects).Put([]byte(key), data); err != nil {
			return err
		}
		return tx.Bucket(bucketObjMeta).Put([]byte(key), meta)
	})
	recordOp("put", start, err)
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// Delete removes an object. Deleting a missing key is not an error.
func (s *BoltStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketObjects).Delete([]byte(key)); err != nil {
			return err
		}
		return tx.Bucket(bucketObjMeta).Delete([]byte(key))
	})
	recordOp("delete", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// List returns every object under prefix in lexicographic order.
func (s *BoltStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var infos []ObjectInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketObjMeta).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
			var meta boltObjectMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return fmt.Errorf("corrupt metadata for %s: %w", k, err)
			}
			infos = append(infos, ObjectInfo{Key: string(k), Size: meta.Size, Modified: meta.Modified})
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
func (s *BoltStore) ListPrefixes(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketObjMeta).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			rest := strings.TrimPrefix(string(k), prefix)
			if i := strings.Index(rest, "/"); i > 0 {
				seen[rest[:i]] = true
			}
		}
		return nil
	})
	recordOp("list", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list prefixes of %s: %w", prefix, err)
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Exists checks a key against the metadata bucket.
func (s *BoltStore) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketObjMeta).Get([]byte(key)) != nil
		return nil
	})
	recordOp("head", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return found, nil
}

// Copy duplicates an object inside one transaction.
func (s *BoltStore) Copy(ctx context.Context, src, dst string) error {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		objects := tx.Bucket(bucketObjects)
		metas := tx.Bucket(bucketObjMeta)

		rawMeta := metas.Get([]byte(src))
		if rawMeta == nil {
			return fmt.Errorf("source not found: %s", src)
		}
		var meta boltObjectMeta
		if err := json.Unmarshal(rawMeta, &meta); err != nil {
			return fmt.Errorf("corrupt metadata for %s: %w", src, err)
		}
		meta.Modified = time.Now().UTC()

		raw := objects.Get([]byte(src))
		data := make([]byte, len(raw))
		copy(data, raw)

		newMeta, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		if err := objects.Put([]byte(dst), data); err != nil {
			return err
		}
		return metas.Put([]byte(dst), newMeta)
	})
	recordOp("copy", start, err)
	if err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return nil
}

// Ping reports database reachability.
func (s *BoltStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	err := s.db.View(func(tx *bolt.Tx) error { return nil })
	return time.Since(start), err
}
