package storage

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"time"
)

// Targz packs objects into a gzip-compressed tar archive held in memory.
// The name hook maps object keys to archive paths; returning false skips
// the object. Archives stay small because spaces are bounded by
// consolidation, so no streaming is needed.
func Targz(objects []Object, name func(key string) (string, bool)) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	now := time.Now().UTC()
	for _, obj := range objects {
		path, ok := name(obj.Key)
		if !ok {
			continue
		}
		hdr := &tar.Header{
			Name:    path,
			Size:    int64(len(obj.Content)),
			Mode:    0o644,
			ModTime: now,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("failed to write tar header for %s: %w", path, err)
		}
		if _, err := tw.Write(obj.Content); err != nil {
			return nil, fmt.Errorf("failed to write tar entry for %s: %w", path, err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize gzip: %w", err)
	}
	return buf.Bytes(), nil
}
