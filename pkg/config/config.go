package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Storage driver names
const (
	DriverS3   = "s3"
	DriverBolt = "bolt"
)

// Settings holds the full runtime configuration, loaded from environment
// variables with sensible defaults. Flags may override individual fields
// after Load.
type Settings struct {
	// Server
	ServerName string // MCP server name advertised during initialize
	Host       string
	Port       int

	// Auth
	AdminBootstrapKey string // empty disables the bootstrap credential

	// Storage
	StorageDriver string // "s3" or "bolt"
	DataDir       string // bolt driver database directory

	// S3 (Dell ECS compatible)
	S3EndpointURL     string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Bucket          string
	S3Region          string

	// LLM endpoint (OpenAI-compatible, URL includes /v1)
	LLMAPIURL      string
	LLMAPIKey      string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64

	// Consolidation
	ConsolidationTimeout  time.Duration
	ConsolidationMaxNotes int

	// Maintenance
	GCMaxAgeDays    int
	BackupRetention int

	// Logging
	LogLevel string
	LogJSON  bool
}

// Load reads settings from the environment.
func Load() *Settings {
	return &Settings{
		ServerName: getEnv("MCP_SERVER_NAME", "live-memory"),
		Host:       getEnv("MCP_SERVER_HOST", "0.0.0.0"),
		Port:       getEnvInt("MCP_SERVER_PORT", 8002),

		AdminBootstrapKey: getEnv("ADMIN_BOOTSTRAP_KEY", ""),

		StorageDriver: getEnv("STORAGE_DRIVER", DriverS3),
		DataDir:       getEnv("DATA_DIR", "./livemem-data"),

		S3EndpointURL:     getEnv("S3_ENDPOINT_URL", ""),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3Bucket:          getEnv("S3_BUCKET", "live-mem"),
		S3Region:          getEnv("S3_REGION", "fr1"),

		LLMAPIURL:      getEnv("LLMAAS_API_URL", ""),
		LLMAPIKey:      getEnv("LLMAAS_API_KEY", ""),
		LLMModel:       getEnv("LLMAAS_MODEL", "qwen3-2507:235b"),
		LLMMaxTokens:   getEnvInt("LLMAAS_MAX_TOKENS", 100000),
		LLMTemperature: getEnvFloat("LLMAAS_TEMPERATURE", 0.3),

		ConsolidationTimeout:  time.Duration(getEnvInt("CONSOLIDATION_TIMEOUT", 600)) * time.Second,
		ConsolidationMaxNotes: getEnvInt("CONSOLIDATION_MAX_NOTES", 500),

		GCMaxAgeDays:    getEnvInt("GC_MAX_AGE_DAYS", 7),
		BackupRetention: getEnvInt("BACKUP_RETENTION", 5),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogJSON:  getEnvBool("LOG_JSON", false),
	}
}

// Validate checks for configuration the server cannot start without.
func (s *Settings) Validate() error {
	switch s.StorageDriver {
	case DriverS3:
		if s.S3EndpointURL == "" {
			return fmt.Errorf("S3_ENDPOINT_URL is required with the s3 storage driver")
		}
		if s.S3AccessKeyID == "" || s.S3SecretAccessKey == "" {
			return fmt.Errorf("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY are required with the s3 storage driver")
		}
	case DriverBolt:
		if s.DataDir == "" {
			return fmt.Errorf("DATA_DIR is required with the bolt storage driver")
		}
	default:
		return fmt.Errorf("unknown storage driver: %s", s.StorageDriver)
	}

	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("invalid port: %d", s.Port)
	}
	if s.ConsolidationMaxNotes <= 0 {
		return fmt.Errorf("CONSOLIDATION_MAX_NOTES must be positive")
	}
	if s.BackupRetention < 1 {
		return fmt.Errorf("BACKUP_RETENTION must be at least 1")
	}
	return nil
}

// LLMConfigured reports whether an LLM endpoint is usable.
func (s *Settings) LLMConfigured() bool {
	return s.LLMAPIURL != "" && s.LLMAPIKey != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
