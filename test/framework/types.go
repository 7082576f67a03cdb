// Package framework provides the end-to-end test harness: an embedded
// Live Memory server on a free port, connected typed clients, waiters
// and assertion helpers.
package framework

// TestingT is the subset of *testing.T the framework needs. Helpers
// accept the interface so they also serve benchmarks.
type TestingT interface {
	Logf(format string, args ...any)
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
	FailNow()
	Failed() bool
	Name() string
	Helper()
	TempDir() string
}

// ServerConfig controls the embedded test server. The zero value gives
// a bolt-backed server with a generated bootstrap key and default
// maintenance settings.
type ServerConfig struct {
	// BootstrapKey is the admin bootstrap credential. Empty selects the
	// framework default.
	BootstrapKey string

	// BackupRetention caps backups per space. Zero keeps the default
	// of 5.
	BackupRetention int

	// GCMaxAgeDays is the default note age threshold for GC. Zero
	// keeps 7.
	GCMaxAgeDays int
}
