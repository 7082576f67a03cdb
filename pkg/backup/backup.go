package backup

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/chrlesur/live-memory/pkg/config"
	"github.com/chrlesur/live-memory/pkg/events"
	"github.com/chrlesur/live-memory/pkg/log"
	"github.com/chrlesur/live-memory/pkg/metrics"
	"github.com/chrlesur/live-memory/pkg/storage"
	"github.com/chrlesur/live-memory/pkg/types"
)

// copyParallelism bounds concurrent object copies during create and
// restore. The vendor copies server-side, so these are cheap requests.
const copyParallelism = 8

// Service snapshots spaces into _backups/{space}/{stamp}/ and brings them
// back. Snapshots are plain object copies plus a _backup.json manifest;
// the stamp layout sorts lexicographically, so key order is age order.
type Service struct {
	store     storage.Store
	broker    *events.Broker
	retention int
	logger    zerolog.Logger
}

// NewService creates the backup service.
func NewService(store storage.Store, broker *events.Broker, cfg *config.Settings) *Service {
	return &Service{
		store:     store,
		broker:    broker,
		retention: cfg.BackupRetention,
		logger:    log.WithComponent("backup"),
	}
}

// Create snapshots every object of the space, writes the manifest, then
// prunes snapshots beyond the retention count.
func (s *Service) Create(ctx context.Context, spaceID, description, createdBy string) (*types.BackupCreateResult, error) {
	if err := types.ValidateSpaceID(spaceID); err != nil {
		return nil, err
	}
	if err := types.ValidateDescription(description); err != nil {
		return nil, err
	}

	exists, err := s.store.Exists(ctx, types.MetaKey(spaceID))
	if err != nil {
		return nil, err
	}
	if !exists {
		return &types.BackupCreateResult{
			Envelope: types.Fail(types.StatusNotFound, fmt.Sprintf("space %s does not exist", spaceID)),
			SpaceID:  spaceID,
		}, nil
	}

	now := time.Now().UTC()
	stamp := now.Format(types.BackupStampLayout)
	snapshot := types.BackupSnapshotPrefix(spaceID, stamp)
	backupID := spaceID + "/" + stamp

	infos, err := s.store.List(ctx, types.SpacePrefix(spaceID))
	if err != nil {
		return nil, err
	}

	var totalSize int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(copyParallelism)
	for _, info := range infos {
		relative := strings.TrimPrefix(info.Key, types.SpacePrefix(spaceID))
		g.Go(func() error {
			return s.store.Copy(gctx, info.Key, snapshot+relative)
		})
		totalSize += info.Size
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to snapshot %s: %w", spaceID, err)
	}

	manifest := types.BackupManifest{
		BackupID:    backupID,
		SpaceID:     spaceID,
		Timestamp:   now,
		Description: description,
		Files:       len(infos),
		TotalSize:   totalSize,
		CreatedBy:   createdBy,
	}
	if err := storage.PutJSON(ctx, s.store, snapshot+types.BackupManifestName, manifest); err != nil {
		return nil, err
	}

	pruned, err := s.prune(ctx, spaceID)
	if err != nil {
		// The snapshot itself is complete; stale snapshots are retried on
		// the next create.
		s.logger.Warn().Err(err).Str("space_id", spaceID).Msg("Backup retention prune failed")
	}

	metrics.BackupsCreated.Inc()
	s.broker.Publish(&events.Event{
		Type:    events.BackupCreated,
		SpaceID: spaceID,
		Message: fmt.Sprintf("backup %s created", backupID),
	})
	s.logger.Info().Str("space_id", spaceID).Str("backup_id", backupID).
		Int("files", len(infos)).Int64("size", totalSize).Int("pruned", pruned).
		Msg("Backup created")

	return &types.BackupCreateResult{
		Envelope:      types.Envelope{Status: types.StatusCreated},
		BackupID:      backupID,
		SpaceID:       spaceID,
		Timestamp:     now.Format(time.RFC3339),
		Description:   description,
		FilesBackedUp: len(infos),
		TotalSize:     totalSize,
		Pruned:        pruned,
	}, nil
}

// prune deletes the oldest snapshots of a space until only the retention
// count remains. Returns the number of snapshots removed.
func (s *Service) prune(ctx context.Context, spaceID string) (int, error) {
	stamps, err := s.store.ListPrefixes(ctx, types.BackupSpacePrefix(spaceID))
	if err != nil {
		return 0, err
	}
	if len(stamps) <= s.retention {
		return 0, nil
	}

	pruned := 0
	for _, stamp := range stamps[:len(stamps)-s.retention] {
		infos, err := s.store.List(ctx, types.BackupSnapshotPrefix(spaceID, stamp))
		if err != nil {
			return pruned, err
		}
		keys := make([]string, len(infos))
		for i, info := range infos {
			keys[i] = info.Key
		}
		if _, err := storage.DeleteMany(ctx, s.store, keys); err != nil {
			return pruned, err
		}
		pruned++
		s.logger.Debug().Str("space_id", spaceID).Str("stamp", stamp).Msg("Old backup pruned")
	}
	return pruned, nil
}

// List returns the snapshots of one space, or of all spaces when spaceID
// is empty. Entries carry manifest details when the manifest is readable,
// bare key-derived fields otherwise.
func (s *Service) List(ctx context.Context, spaceID string) (*types.BackupListResult, error) {
	if spaceID != "" {
		if err := types.ValidateSpaceID(spaceID); err != nil {
			return nil, err
		}
	}

	spaces := []string{spaceID}
	if spaceID == "" {
		roots, err := s.store.ListPrefixes(ctx, types.BackupsPrefix)
		if err != nil {
			return nil, err
		}
		spaces = roots
	}

	entries := []types.BackupEntry{}
	for _, sid := range spaces {
		stamps, err := s.store.ListPrefixes(ctx, types.BackupSpacePrefix(sid))
		if err != nil {
			return nil, err
		}
		for _, stamp := range stamps {
			entry := types.BackupEntry{
				BackupID:  sid + "/" + stamp,
				SpaceID:   sid,
				Timestamp: stamp,
			}
			var manifest types.BackupManifest
			key := types.BackupSnapshotPrefix(sid, stamp) + types.BackupManifestName
			found, err := storage.GetJSON(ctx, s.store, key, &manifest)
			if err != nil {
				s.logger.Warn().Err(err).Str("backup_id", entry.BackupID).Msg("Unreadable backup manifest")
			} else if found {
				entry.Description = manifest.Description
				entry.Files = manifest.Files
				entry.TotalSize = manifest.TotalSize
			}
			entries = append(entries, entry)
		}
	}

	// Newest first.
	sort.Slice(entries, func(i, j int) bool { return entries[i].BackupID > entries[j].BackupID })

	return &types.BackupListResult{
		Envelope: types.Envelope{Status: types.StatusOK},
		Backups:  entries,
		Count:    len(entries),
	}, nil
}

// Restore copies a snapshot back into place. The target space must not
// exist; restoring over live data is never allowed.
func (s *Service) Restore(ctx context.Context, backupID string, confirm bool) (*types.BackupRestoreResult, error) {
	if err := types.ValidateBackupID(backupID); err != nil {
		return nil, err
	}
	if !confirm {
		return &types.BackupRestoreResult{
			Envelope: types.Fail(types.StatusError, "confirm must be true to restore a backup"),
			BackupID: backupID,
		}, nil
	}

	spaceID, stamp, _ := strings.Cut(backupID, "/")
	snapshot := types.BackupSnapshotPrefix(spaceID, stamp)

	infos, err := s.store.List(ctx, snapshot)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return &types.BackupRestoreResult{
			Envelope: types.Fail(types.StatusNotFound, fmt.Sprintf("backup %s does not exist", backupID)),
			BackupID: backupID,
		}, nil
	}

	exists, err := s.store.Exists(ctx, types.MetaKey(spaceID))
	if err != nil {
		return nil, err
	}
	if exists {
		return &types.BackupRestoreResult{
			Envelope: types.Fail(types.StatusError, fmt.Sprintf("space %s already exists, delete it first", spaceID)),
			BackupID: backupID,
			SpaceID:  spaceID,
		}, nil
	}

	restored := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(copyParallelism)
	for _, info := range infos {
		relative := strings.TrimPrefix(info.Key, snapshot)
		if relative == types.BackupManifestName {
			continue
		}
		g.Go(func() error {
			return s.store.Copy(gctx, info.Key, types.SpacePrefix(spaceID)+relative)
		})
		restored++
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to restore %s: %w", backupID, err)
	}

	s.broker.Publish(&events.Event{
		Type:    events.BackupRestored,
		SpaceID: spaceID,
		Message: fmt.Sprintf("backup %s restored", backupID),
	})
	s.logger.Info().Str("backup_id", backupID).Int("files", restored).Msg("Backup restored")

	return &types.BackupRestoreResult{
		Envelope:      types.Envelope{Status: types.StatusOK},
		BackupID:      backupID,
		SpaceID:       spaceID,
		FilesRestored: restored,
	}, nil
}

// Download packs a snapshot into a tar.gz archive returned as base64. The
// manifest stays out; the archive holds exactly what Restore would write.
func (s *Service) Download(ctx context.Context, backupID string) (*types.BackupDownloadResult, error) {
	if err := types.ValidateBackupID(backupID); err != nil {
		return nil, err
	}
	spaceID, stamp, _ := strings.Cut(backupID, "/")
	snapshot := types.BackupSnapshotPrefix(spaceID, stamp)

	objects, err := storage.FetchAll(ctx, s.store, snapshot, true)
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		return &types.BackupDownloadResult{
			Envelope: types.Fail(types.StatusNotFound, fmt.Sprintf("backup %s does not exist", backupID)),
			BackupID: backupID,
		}, nil
	}

	files := make([]storage.Object, 0, len(objects))
	for _, obj := range objects {
		if strings.TrimPrefix(obj.Key, snapshot) == types.BackupManifestName {
			continue
		}
		files = append(files, obj)
	}

	archive, err := storage.Targz(files, func(key string) (string, bool) {
		return strings.TrimPrefix(key, snapshot), true
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("backup_id", backupID).Int("files", len(files)).
		Int("archive_size", len(archive)).Msg("Backup downloaded")

	return &types.BackupDownloadResult{
		Envelope:      types.Envelope{Status: types.StatusOK},
		BackupID:      backupID,
		ArchiveBase64: base64.StdEncoding.EncodeToString(archive),
		ArchiveSize:   len(archive),
		FilesCount:    len(files),
	}, nil
}

// Delete removes one snapshot entirely, manifest included.
func (s *Service) Delete(ctx context.Context, backupID string, confirm bool) (*types.BackupDeleteResult, error) {
	if err := types.ValidateBackupID(backupID); err != nil {
		return nil, err
	}
	if !confirm {
		return &types.BackupDeleteResult{
			Envelope: types.Fail(types.StatusError, "confirm must be true to delete a backup"),
			BackupID: backupID,
		}, nil
	}

	spaceID, stamp, _ := strings.Cut(backupID, "/")
	snapshot := types.BackupSnapshotPrefix(spaceID, stamp)

	infos, err := s.store.List(ctx, snapshot)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return &types.BackupDeleteResult{
			Envelope: types.Fail(types.StatusNotFound, fmt.Sprintf("backup %s does not exist", backupID)),
			BackupID: backupID,
		}, nil
	}

	keys := make([]string, len(infos))
	for i, info := range infos {
		keys[i] = info.Key
	}
	deleted, err := storage.DeleteMany(ctx, s.store, keys)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("backup_id", backupID).Int("files", deleted).Msg("Backup deleted")

	return &types.BackupDeleteResult{
		Envelope:     types.Envelope{Status: types.StatusDeleted},
		BackupID:     backupID,
		FilesDeleted: deleted,
	}, nil
}
