package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.ServerName != "live-memory" {
		t.Errorf("ServerName = %q, want live-memory", cfg.ServerName)
	}
	if cfg.Port != 8002 {
		t.Errorf("Port = %d, want 8002", cfg.Port)
	}
	if cfg.S3Bucket != "live-mem" {
		t.Errorf("S3Bucket = %q, want live-mem", cfg.S3Bucket)
	}
	if cfg.S3Region != "fr1" {
		t.Errorf("S3Region = %q, want fr1", cfg.S3Region)
	}
	if cfg.LLMModel != "qwen3-2507:235b" {
		t.Errorf("LLMModel = %q, want qwen3-2507:235b", cfg.LLMModel)
	}
	if cfg.LLMMaxTokens != 100000 {
		t.Errorf("LLMMaxTokens = %d, want 100000", cfg.LLMMaxTokens)
	}
	if cfg.ConsolidationTimeout != 600*time.Second {
		t.Errorf("ConsolidationTimeout = %v, want 600s", cfg.ConsolidationTimeout)
	}
	if cfg.ConsolidationMaxNotes != 500 {
		t.Errorf("ConsolidationMaxNotes = %d, want 500", cfg.ConsolidationMaxNotes)
	}
	if cfg.GCMaxAgeDays != 7 {
		t.Errorf("GCMaxAgeDays = %d, want 7", cfg.GCMaxAgeDays)
	}
	if cfg.BackupRetention != 5 {
		t.Errorf("BackupRetention = %d, want 5", cfg.BackupRetention)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MCP_SERVER_PORT", "9100")
	t.Setenv("STORAGE_DRIVER", "bolt")
	t.Setenv("LLMAAS_TEMPERATURE", "0.7")
	t.Setenv("LOG_JSON", "true")
	t.Setenv("CONSOLIDATION_TIMEOUT", "30")

	cfg := Load()

	if cfg.Port != 9100 {
		t.Errorf("Port = %d, want 9100", cfg.Port)
	}
	if cfg.StorageDriver != DriverBolt {
		t.Errorf("StorageDriver = %q, want bolt", cfg.StorageDriver)
	}
	if cfg.LLMTemperature != 0.7 {
		t.Errorf("LLMTemperature = %v, want 0.7", cfg.LLMTemperature)
	}
	if !cfg.LogJSON {
		t.Error("LogJSON = false, want true")
	}
	if cfg.ConsolidationTimeout != 30*time.Second {
		t.Errorf("ConsolidationTimeout = %v, want 30s", cfg.ConsolidationTimeout)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("MCP_SERVER_PORT", "not-a-number")
	t.Setenv("LLMAAS_TEMPERATURE", "warm")

	cfg := Load()

	if cfg.Port != 8002 {
		t.Errorf("Port = %d, want default 8002 on malformed env", cfg.Port)
	}
	if cfg.LLMTemperature != 0.3 {
		t.Errorf("LLMTemperature = %v, want default 0.3 on malformed env", cfg.LLMTemperature)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{
			name:    "bolt driver with data dir",
			mutate:  func(s *Settings) { s.StorageDriver = DriverBolt },
			wantErr: false,
		},
		{
			name: "s3 driver without endpoint",
			mutate: func(s *Settings) {
				s.StorageDriver = DriverS3
				s.S3EndpointURL = ""
			},
			wantErr: true,
		},
		{
			name: "s3 driver without credentials",
			mutate: func(s *Settings) {
				s.StorageDriver = DriverS3
				s.S3EndpointURL = "https://s3.example.com"
			},
			wantErr: true,
		},
		{
			name: "s3 driver fully configured",
			mutate: func(s *Settings) {
				s.StorageDriver = DriverS3
				s.S3EndpointURL = "https://s3.example.com"
				s.S3AccessKeyID = "ak"
				s.S3SecretAccessKey = "sk"
			},
			wantErr: false,
		},
		{
			name:    "unknown driver",
			mutate:  func(s *Settings) { s.StorageDriver = "postgres" },
			wantErr: true,
		},
		{
			name: "invalid port",
			mutate: func(s *Settings) {
				s.StorageDriver = DriverBolt
				s.Port = 0
			},
			wantErr: true,
		},
		{
			name: "zero retention",
			mutate: func(s *Settings) {
				s.StorageDriver = DriverBolt
				s.BackupRetention = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLLMConfigured(t *testing.T) {
	cfg := Load()
	if cfg.LLMConfigured() {
		t.Error("LLMConfigured() = true with empty URL and key")
	}

	cfg.LLMAPIURL = "https://api.ai.example.com/v1"
	cfg.LLMAPIKey = "key"
	if !cfg.LLMConfigured() {
		t.Error("LLMConfigured() = false with URL and key set")
	}
}
