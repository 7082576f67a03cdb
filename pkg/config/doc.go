/*
Package config loads Live Memory settings from environment variables.

All configuration is environment-driven. The defaults target the hosted
deployment (s3 driver, console logging); local development usually sets
STORAGE_DRIVER=bolt and skips the S3 block entirely. Validate() catches
fatal misconfiguration before the server binds.

# Usage

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}

# Environment Variables

	MCP_SERVER_NAME         server name advertised to MCP clients (live-memory)
	MCP_SERVER_HOST         bind host (0.0.0.0)
	MCP_SERVER_PORT         bind port (8002)
	ADMIN_BOOTSTRAP_KEY     master credential; empty disables bootstrap auth
	STORAGE_DRIVER          s3 | bolt (s3)
	DATA_DIR                bolt database directory (./livemem-data)
	S3_ENDPOINT_URL         object store endpoint, required for s3 driver
	S3_ACCESS_KEY_ID        access key, required for s3 driver
	S3_SECRET_ACCESS_KEY    secret key, required for s3 driver
	S3_BUCKET               bucket name (live-mem)
	S3_REGION               region (fr1)
	LLMAAS_API_URL          OpenAI-compatible endpoint including /v1
	LLMAAS_API_KEY          bearer key for the LLM endpoint
	LLMAAS_MODEL            model name (qwen3-2507:235b)
	LLMAAS_MAX_TOKENS       completion budget (100000)
	LLMAAS_TEMPERATURE      sampling temperature (0.3)
	CONSOLIDATION_TIMEOUT   seconds allowed per consolidation run (600)
	CONSOLIDATION_MAX_NOTES cap per consolidation run (500)
	GC_MAX_AGE_DAYS         default note age threshold (7)
	BACKUP_RETENTION        snapshots kept per space (5)
	LOG_LEVEL               debug | info | warn | error (info)
	LOG_JSON                JSON log output (false)
*/
package config
