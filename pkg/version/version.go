// Package version exposes build-time version information shared by the CLI
// and the health/about tools.
package version

var (
	// Version is set via ldflags during build
	Version = "0.3.0"
	// Commit is the git commit hash (set via ldflags)
	Commit = "unknown"
	// BuildTime is the build timestamp (set via ldflags)
	BuildTime = "unknown"
)
