package api

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chrlesur/live-memory/pkg/log"
	"github.com/chrlesur/live-memory/pkg/metrics"
	"github.com/chrlesur/live-memory/pkg/storage"
	"github.com/chrlesur/live-memory/pkg/types"
)

// collectInterval paces the inventory sweep feeding the prometheus gauges.
const collectInterval = 60 * time.Second

// collector samples the object store and keeps the inventory gauges
// (spaces, live notes, bank files) current.
type collector struct {
	store  storage.Store
	logger zerolog.Logger
}

func newCollector(store storage.Store) *collector {
	return &collector{store: store, logger: log.WithComponent("collector")}
}

// run samples immediately, then on every tick until the context ends.
func (c *collector) run(ctx context.Context) {
	c.sample(ctx)
	ticker := time.NewTicker(collectInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sample(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (c *collector) sample(ctx context.Context) {
	roots, err := c.store.ListPrefixes(ctx, "")
	if err != nil {
		c.logger.Debug().Err(err).Msg("Inventory sweep failed")
		return
	}

	var spaces, noteCount, bankCount int
	for _, root := range roots {
		if strings.HasPrefix(root, "_") {
			continue
		}
		spaces++
		if infos, err := c.store.List(ctx, types.LivePrefix(root)); err == nil {
			noteCount += countObjects(infos)
		}
		if infos, err := c.store.List(ctx, types.BankPrefix(root)); err == nil {
			bankCount += countObjects(infos)
		}
	}

	metrics.SpacesTotal.Set(float64(spaces))
	metrics.LiveNotesTotal.Set(float64(noteCount))
	metrics.BankFilesTotal.Set(float64(bankCount))
}

// countObjects counts real entries, keep markers excluded.
func countObjects(infos []storage.ObjectInfo) int {
	n := 0
	for _, info := range infos {
		if strings.HasSuffix(info.Key, "/"+types.KeepFile) {
			continue
		}
		n++
	}
	return n
}
