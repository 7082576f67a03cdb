/*
Package storage provides the object persistence layer for Live Memory spaces.

The storage package defines the Store interface used by every other package
to read and write space objects (notes, bank files, synthesis, metadata,
tokens, backups) and ships two drivers: an S3-compatible driver for
production and a BoltDB driver for local development and tests. All callers
address objects by flat string keys; the layout of those keys is defined in
pkg/types.

# Architecture

	┌───────────────────── STORAGE LAYER ───────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐            │
	│  │              Store interface               │            │
	│  │  Get / Put / Delete / List / ListPrefixes  │            │
	│  │  Exists / Copy / Ping / Close              │            │
	│  └─────────┬───────────────────────┬──────────┘            │
	│            │                       │                       │
	│  ┌─────────▼──────────┐  ┌─────────▼──────────┐            │
	│  │      S3Store       │  │     BoltStore      │            │
	│  │  minio-go clients  │  │  <dataDir>/        │            │
	│  │  - data ops: SigV2 │  │    livemem.db      │            │
	│  │  - meta ops: SigV4 │  │  buckets:          │            │
	│  │  path-style URLs   │  │   objects, objmeta │            │
	│  └────────────────────┘  └────────────────────┘            │
	│            │                       │                       │
	│  ┌─────────▼───────────────────────▼──────────┐            │
	│  │               Shared helpers               │            │
	│  │  GetJSON / PutJSON   typed object access   │            │
	│  │  DeleteMany          parallel, best-effort │            │
	│  │  FetchAll            parallel bulk reads   │            │
	│  └────────────────────────────────────────────┘            │
	└────────────────────────────────────────────────────────────┘

# Core Components

Store:
  - Minimal object-store contract shared by both drivers
  - Get returns (data, found, error); a missing key is not an error
  - Delete is idempotent (deleting a missing key succeeds)
  - List returns keys in lexicographic order, which note key naming
    exploits for chronological scans

S3Store:
  - Backed by two minio-go clients against the same endpoint
  - Data operations (GET, PUT, DELETE, COPY) sign with Signature V2
  - Metadata operations (HEAD, LIST) sign with Signature V4
  - Required by ECS-style appliances that reject V4 on data paths
  - Path-style bucket addressing, never virtual-host style
  - Transient failures retried up to 3 times with backoff

BoltStore:
  - Single database file <dataDir>/livemem.db
  - objects bucket holds raw bytes, objmeta holds size/modified/type
  - The objmeta bucket is the source of truth for existence, so
    zero-byte .keep markers behave exactly as they do on S3
  - Read transactions via db.View(), writes via db.Update()

Helpers:
  - GetJSON / PutJSON: typed JSON object access with indented output
  - DeleteMany: bounded-parallel deletes, logs and skips failures
  - FetchAll: bounded-parallel bulk download preserving key order
  - IsKeep: filters .keep placeholder objects out of listings

# Usage

Creating a store from configuration:

	store, err := storage.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

Raw object access:

	data, found, err := store.Get(ctx, "myspace/_meta.json")
	if err != nil {
		return err
	}
	if !found {
		return types.ErrNotFound
	}

	err = store.Put(ctx, "myspace/_rules.md", rules, "text/markdown")

Typed JSON access:

	var meta types.SpaceMeta
	found, err := storage.GetJSON(ctx, store, types.MetaKey("myspace"), &meta)

	err = storage.PutJSON(ctx, store, types.TokensKey, tokensFile)

Listing and bulk reads:

	infos, err := store.List(ctx, types.LivePrefix("myspace"))

	objects, err := storage.FetchAll(ctx, store, types.LivePrefix("myspace"), false)

	deleted, err := storage.DeleteMany(ctx, store, keys)

# Integration Points

This package integrates with:

  - pkg/space: space lifecycle objects (_meta.json, _rules.md, .keep)
  - pkg/notes: live note objects under <space>/live/
  - pkg/consolidator: bank files and _synthesis.md commits
  - pkg/auth: the _system/tokens.json registry
  - pkg/backup: snapshot copies under _backups/
  - pkg/metrics: operation counters and latency histograms

# Design Patterns

Found Flag:
  - Get and GetJSON report absence via a bool, not an error
  - Callers translate absence into their own not_found status
  - Keeps sentinel-error plumbing out of the drivers

Idempotent Deletes:
  - Delete returns no error if the key doesn't exist
  - Safe to call multiple times
  - Simplifies snapshot cleanup after consolidation

Dual-Signature Dispatch:
  - Operation type, not configuration, picks the signing client
  - Matches vendor appliances that split V2/V4 support by verb
  - Both clients share endpoint, bucket, and credentials

Bounded Parallelism:
  - DeleteMany and FetchAll use errgroup with a fixed limit of 8
  - Keeps bulk operations fast without flooding the endpoint
  - Failures are logged per key and never abort the batch

Error Wrapping:
  - All errors wrapped with context: fmt.Errorf("failed to X: %w", err)
  - Preserves original error for inspection
  - Provides operation context in logs

# Performance Characteristics

S3 Operations:
  - Get/Put: one round trip, typically 10-50ms on a LAN endpoint
  - List: one round trip per 1000 keys (pagination by the SDK)
  - Copy: server-side, no data transits the service
  - Retries add up to ~750ms worst case before giving up

Bolt Operations:
  - Get by key: O(log n) via B+tree, typically < 1ms
  - List by prefix: cursor seek then sequential scan
  - Write: 1-5ms with fsync, single writer at a time
  - Concurrent reads supported via MVCC snapshots

Bulk Helpers:
  - FetchAll: 8 concurrent downloads, ~n/8 round trips of latency
  - DeleteMany: same bound, returns count of confirmed deletes

# Troubleshooting

Common Issues:

SignatureDoesNotMatch on Put or Get:
  - Symptom: 403 with SignatureDoesNotMatch on data operations
  - Cause: endpoint requires V2 signing on data paths
  - Check: S3_ENDPOINT_URL points at the right appliance
  - Solution: the data client already signs V2; verify credentials

Bucket Not Found on Startup:
  - Symptom: Ping returns "bucket not found"
  - Cause: bucket was never provisioned
  - Solution: create the bucket out of band; the service never does

Database Locked (Bolt):
  - Symptom: "timeout" or "database is locked" opening the file
  - Cause: another process holds the exclusive file lock
  - Solution: ensure only one service instance uses the data dir

Slow Bulk Reads:
  - Symptom: read_notes or consolidation slow on large spaces
  - Cause: hundreds of sequential-size objects
  - Check: storage_operation_duration_seconds histogram
  - Solution: consolidate more often so live/ stays small

# Monitoring

Key metrics to monitor:

  - livemem_storage_operations_total: count by operation and status
  - livemem_storage_operation_duration_seconds: latency by operation

# Security

Credentials:
  - S3 credentials come from the environment, never from objects
  - Bearer tokens are stored hashed in _system/tokens.json; this
    package treats that object as opaque bytes

File Permissions (Bolt):
  - Database file: 0600 (owner read/write only)
  - Data directory created 0755 if missing

# See Also

  - pkg/types for key layout helpers and object schemas
  - pkg/space for the space lifecycle built on this layer
  - pkg/backup for snapshot copies within the same bucket
  - MinIO Go client: https://github.com/minio/minio-go
  - BoltDB documentation: https://github.com/etcd-io/bbolt
*/
package storage
