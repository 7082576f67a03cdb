package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/chrlesur/live-memory/pkg/api"
	"github.com/chrlesur/live-memory/pkg/auth"
	"github.com/chrlesur/live-memory/pkg/backup"
	"github.com/chrlesur/live-memory/pkg/config"
	"github.com/chrlesur/live-memory/pkg/consolidator"
	"github.com/chrlesur/live-memory/pkg/events"
	"github.com/chrlesur/live-memory/pkg/gc"
	"github.com/chrlesur/live-memory/pkg/graph"
	"github.com/chrlesur/live-memory/pkg/llm"
	"github.com/chrlesur/live-memory/pkg/locks"
	"github.com/chrlesur/live-memory/pkg/notes"
	"github.com/chrlesur/live-memory/pkg/space"
	"github.com/chrlesur/live-memory/pkg/storage"
	"github.com/chrlesur/live-memory/pkg/tools"
)

// Manager assembles and owns the full component graph of a Live Memory
// server: storage, the event broker, the domain services, the tool
// registry and the HTTP server. The serve command and the test harness
// both build their server through it, so the assembly only exists in
// one place.
type Manager struct {
	Config   *config.Settings
	Store    storage.Store
	Broker   *events.Broker
	Services *tools.Services
	Registry *tools.Registry
	Server   *api.Server
}

// New wires every component from the settings. The event broker is
// already running when New returns; the HTTP server is built but does
// not listen until Start.
func New(cfg *config.Settings) (*Manager, error) {
	store, err := storage.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	broker := events.NewBroker()
	broker.Start()

	lockRegistry := locks.NewRegistry()
	client := llm.NewClient(cfg)
	noteSvc := notes.NewService(store, broker)
	cons := consolidator.NewService(store, client, lockRegistry, broker, cfg)

	svcs := &tools.Services{
		Config:       cfg,
		Store:        store,
		LLM:          client,
		Tokens:       auth.NewService(store, lockRegistry, broker, cfg.AdminBootstrapKey),
		Spaces:       space.NewService(store, broker),
		Notes:        noteSvc,
		Consolidator: cons,
		GC:           gc.NewService(store, noteSvc, cons, lockRegistry, broker),
		Backups:      backup.NewService(store, broker, cfg),
		Graph:        graph.NewService(store, broker),
		StartedAt:    time.Now(),
	}

	registry := tools.NewRegistry(svcs)

	return &Manager{
		Config:   cfg,
		Store:    store,
		Broker:   broker,
		Services: svcs,
		Registry: registry,
		Server:   api.NewServer(svcs, registry, broker),
	}, nil
}

// Start serves the API on addr and blocks until Shutdown. A clean
// shutdown returns nil.
func (m *Manager) Start(addr string) error {
	return m.Server.Start(addr)
}

// Shutdown drains the HTTP server, stops the event broker and closes
// storage. The first error is returned; later teardown steps still run.
func (m *Manager) Shutdown(ctx context.Context) error {
	err := m.Server.Shutdown(ctx)
	m.Broker.Stop()
	if cerr := m.Store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
