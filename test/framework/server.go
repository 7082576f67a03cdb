package framework

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/chrlesur/live-memory/pkg/client"
	"github.com/chrlesur/live-memory/pkg/config"
	"github.com/chrlesur/live-memory/pkg/manager"
)

const (
	defaultBootstrapKey = "framework-bootstrap-key"
	readyTimeout        = 10 * time.Second
	shutdownTimeout     = 10 * time.Second
)

// Server is a Live Memory server embedded in the test process, bolt
// backed, listening on a free localhost port.
type Server struct {
	Addr         string
	BaseURL      string
	BootstrapKey string

	t   TestingT
	mgr *manager.Manager
}

// StartServer boots a server and blocks until /ready reports it
// serving. Tests defer Stop.
func StartServer(t TestingT, cfg ServerConfig) *Server {
	t.Helper()

	if cfg.BootstrapKey == "" {
		cfg.BootstrapKey = defaultBootstrapKey
	}
	if cfg.BackupRetention == 0 {
		cfg.BackupRetention = 5
	}
	if cfg.GCMaxAgeDays == 0 {
		cfg.GCMaxAgeDays = 7
	}

	port, err := freePort()
	if err != nil {
		t.Fatalf("failed to find a free port: %v", err)
	}

	settings := &config.Settings{
		ServerName:            "live-memory-test",
		Host:                  "127.0.0.1",
		Port:                  port,
		AdminBootstrapKey:     cfg.BootstrapKey,
		StorageDriver:         config.DriverBolt,
		DataDir:               t.TempDir(),
		ConsolidationTimeout:  time.Minute,
		ConsolidationMaxNotes: 500,
		GCMaxAgeDays:          cfg.GCMaxAgeDays,
		BackupRetention:       cfg.BackupRetention,
		LogLevel:              "error",
	}

	mgr, err := manager.New(settings)
	if err != nil {
		t.Fatalf("failed to build server: %v", err)
	}

	srv := &Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", port),
		BaseURL:      fmt.Sprintf("http://127.0.0.1:%d", port),
		BootstrapKey: cfg.BootstrapKey,
		t:            t,
		mgr:          mgr,
	}

	go func() {
		if err := mgr.Start(srv.Addr); err != nil {
			t.Errorf("server exited: %v", err)
		}
	}()

	if err := srv.waitReady(readyTimeout); err != nil {
		_ = srv.shutdown()
		t.Fatalf("server never became ready: %v", err)
	}

	return srv
}

// Stop shuts the server down, failing the test on teardown errors.
func (s *Server) Stop() {
	s.t.Helper()
	if err := s.shutdown(); err != nil {
		s.t.Errorf("failed to stop server: %v", err)
	}
}

// Manager exposes the wired components for tests that reach below the
// protocol, such as seeding storage directly.
func (s *Server) Manager() *manager.Manager {
	return s.mgr
}

// AdminClient connects a session authenticated with the bootstrap key.
func (s *Server) AdminClient(ctx context.Context) *Client {
	s.t.Helper()
	return s.ClientWithToken(ctx, s.BootstrapKey)
}

// ClientWithToken connects an MCP session with the given bearer token.
// The session is closed when the test server stops the listener, but
// tests should still defer Close to release the stream early.
func (s *Server) ClientWithToken(ctx context.Context, token string) *Client {
	s.t.Helper()
	c, err := client.New(ctx, s.BaseURL, token)
	if err != nil {
		s.t.Fatalf("failed to connect client: %v", err)
	}
	return &Client{Client: c, t: s.t}
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.mgr.Shutdown(ctx)
}

// waitReady polls /ready until the server answers 200.
func (s *Server) waitReady(timeout time.Duration) error {
	httpClient := &http.Client{Timeout: time.Second}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := httpClient.Get(s.BaseURL + "/ready")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("no ready response within %v", timeout)
}

// freePort asks the kernel for an unused localhost port.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
