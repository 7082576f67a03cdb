package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/chrlesur/live-memory/pkg/config"
	"github.com/chrlesur/live-memory/pkg/log"
	"github.com/chrlesur/live-memory/pkg/manager"
	"github.com/chrlesur/live-memory/pkg/tools"
	"github.com/chrlesur/live-memory/pkg/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Live Memory MCP server",
	Long: `Start the MCP server: tools over SSE on /sse and /messages, plus
/health, /ready and /metrics on the same listener.

Configuration comes from environment variables; flags override
individual settings for the current run.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("host", "0.0.0.0", "Listen address")
	serveCmd.Flags().Int("port", 8002, "Listen port")
	serveCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	serveCmd.Flags().Bool("log-json", false, "Log JSON instead of console output")
	serveCmd.Flags().String("storage-driver", "s3", "Storage driver (s3 or bolt)")
	serveCmd.Flags().String("data-dir", "./livemem-data", "Data directory for the bolt driver")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applyFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}

	log.Init(log.Config{
		Level:  cfg.LogLevel,
		JSON:   cfg.LogJSON,
		Output: os.Stderr,
	})

	if cfg.AdminBootstrapKey == "" {
		log.Warn("ADMIN_BOOTSTRAP_KEY is not set; only existing tokens can authenticate")
	}
	if !cfg.LLMConfigured() {
		log.Warn("LLM endpoint not configured; consolidation tools will report errors")
	}

	fmt.Println("Starting Live Memory server...")
	fmt.Printf("  Address: %s:%d\n", cfg.Host, cfg.Port)
	fmt.Printf("  Storage: %s\n", storageDesc(cfg))
	fmt.Printf("  LLM: %s\n", llmDesc(cfg))
	fmt.Println()

	mgr, err := manager.New(cfg)
	if err != nil {
		return err
	}
	fmt.Println("✓ Storage ready")
	fmt.Println("✓ Event broker started")

	printBanner(cfg, mgr.Registry)

	// Start API server in background
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	errCh := make(chan error, 1)
	go func() {
		if err := mgr.Start(addr); err != nil {
			errCh <- fmt.Errorf("server error: %v", err)
		}
	}()

	fmt.Println("Server is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case runErr = <-errCh:
	}

	// Shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := mgr.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown: %v", err)
	}

	if runErr != nil {
		return runErr
	}
	fmt.Println("✓ Shutdown complete")
	return nil
}

// applyFlags copies explicitly set flags over the environment settings.
func applyFlags(cmd *cobra.Command, cfg *config.Settings) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-json") {
		cfg.LogJSON, _ = flags.GetBool("log-json")
	}
	if flags.Changed("storage-driver") {
		cfg.StorageDriver, _ = flags.GetString("storage-driver")
	}
	if flags.Changed("data-dir") {
		cfg.DataDir, _ = flags.GetString("data-dir")
	}
}

func storageDesc(cfg *config.Settings) string {
	if cfg.StorageDriver == config.DriverBolt {
		return fmt.Sprintf("bolt (%s)", cfg.DataDir)
	}
	return fmt.Sprintf("s3 (%s, bucket %s)", cfg.S3EndpointURL, cfg.S3Bucket)
}

func llmDesc(cfg *config.Settings) string {
	if !cfg.LLMConfigured() {
		return "not configured"
	}
	return cfg.LLMModel
}

// printBanner writes the startup box to stderr, tools grouped by prefix.
func printBanner(cfg *config.Settings, registry *tools.Registry) {
	base := fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)

	lines := []string{
		fmt.Sprintf("Live Memory MCP Server v%s", version.Version),
		"",
		fmt.Sprintf("🔧 %d outils MCP :", registry.Len()),
	}
	for _, group := range toolGroups(registry) {
		lines = append(lines, "  "+group)
	}
	lines = append(lines,
		"",
		"🌐 "+base,
		"📡 "+base+"/sse",
	)

	width := 0
	for _, l := range lines {
		if n := utf8.RuneCountInString(l); n > width {
			width = n
		}
	}

	var b strings.Builder
	b.WriteString("╔" + strings.Repeat("═", width+4) + "╗\n")
	for _, l := range lines {
		pad := width - utf8.RuneCountInString(l)
		b.WriteString("║  " + l + strings.Repeat(" ", pad) + "  ║\n")
	}
	b.WriteString("╚" + strings.Repeat("═", width+4) + "╝\n")
	fmt.Fprint(os.Stderr, "\n"+b.String()+"\n")
}

// toolGroups formats one line per tool category, in catalogue order.
func toolGroups(registry *tools.Registry) []string {
	groups := []struct {
		label  string
		prefix string
	}{
		{"System", "system_"},
		{"Space", "space_"},
		{"Live", "live_"},
		{"Bank", "bank_"},
		{"Graph", "graph_"},
		{"Backup", "backup_"},
		{"Admin", "admin_"},
	}

	var out []string
	for _, g := range groups {
		var names []string
		for _, t := range registry.Tools() {
			if strings.HasPrefix(t.Name, g.prefix) {
				names = append(names, t.Name)
			}
		}
		if len(names) > 0 {
			out = append(out, fmt.Sprintf("%-8s: %s", g.label, strings.Join(names, ", ")))
		}
	}
	return out
}
