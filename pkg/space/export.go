package space

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/chrlesur/live-memory/pkg/storage"
	"github.com/chrlesur/live-memory/pkg/types"
)

// Export packs every object of the space into a tar.gz archive returned as
// base64. Entry names are relative to the space root; keep markers are
// left out.
func (s *Service) Export(ctx context.Context, spaceID string) (*types.SpaceExportResult, error) {
	if err := types.ValidateSpaceID(spaceID); err != nil {
		return nil, err
	}

	exists, err := s.store.Exists(ctx, types.MetaKey(spaceID))
	if err != nil {
		return nil, err
	}
	if !exists {
		return &types.SpaceExportResult{
			Envelope: types.Fail(types.StatusNotFound, fmt.Sprintf("space %s does not exist", spaceID)),
			SpaceID:  spaceID,
		}, nil
	}

	objects, err := storage.FetchAll(ctx, s.store, types.SpacePrefix(spaceID), false)
	if err != nil {
		return nil, err
	}

	archive, err := storage.Targz(objects, func(key string) (string, bool) {
		return strings.TrimPrefix(key, types.SpacePrefix(spaceID)), true
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("space_id", spaceID).Int("files", len(objects)).
		Int("archive_size", len(archive)).Msg("Space exported")

	return &types.SpaceExportResult{
		Envelope:      types.Envelope{Status: types.StatusOK},
		SpaceID:       spaceID,
		ArchiveBase64: base64.StdEncoding.EncodeToString(archive),
		ArchiveSize:   len(archive),
		FilesCount:    len(objects),
	}, nil
}
