package api

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/chrlesur/live-memory/pkg/config"
	"github.com/chrlesur/live-memory/pkg/log"
	"github.com/chrlesur/live-memory/pkg/metrics"
	"github.com/chrlesur/live-memory/pkg/storage"
	"github.com/chrlesur/live-memory/pkg/version"
)

const (
	// monitorInterval paces the storage probe behind /health and /ready.
	monitorInterval = 30 * time.Second

	// probeTimeout bounds one storage ping.
	probeTimeout = 10 * time.Second
)

// healthMonitor keeps the component registry in pkg/metrics current so
// /health and /ready reflect the live state of the backends.
type healthMonitor struct {
	store  storage.Store
	cfg    *config.Settings
	logger zerolog.Logger
}

func newHealthMonitor(store storage.Store, cfg *config.Settings) *healthMonitor {
	return &healthMonitor{store: store, cfg: cfg, logger: log.WithComponent("health")}
}

// run registers the initial component states, then probes storage on every
// tick until the context ends.
func (m *healthMonitor) run(ctx context.Context) {
	m.register()
	m.probe(ctx)

	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// register seeds the component registry. The LLM entry reflects its
// configuration only; live probes stay with the system_health tool so
// routine health checks never consume tokens.
func (m *healthMonitor) register() {
	metrics.SetVersion(version.Version)
	metrics.SetComponent("api", true, "")
	if m.cfg.LLMConfigured() {
		metrics.SetComponent("llm", true, "")
	} else {
		metrics.SetComponent("llm", false, "llm endpoint not configured")
	}
}

func (m *healthMonitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if _, err := m.store.Ping(probeCtx); err != nil {
		m.logger.Warn().Err(err).Msg("Storage probe failed")
		metrics.SetComponent("storage", false, err.Error())
		return
	}
	metrics.SetComponent("storage", true, "")
}
