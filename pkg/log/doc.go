/*
Package log owns the process-wide structured logger for Live Memory,
built on zerolog.

Init runs once in the serve command; every package then derives a child
logger through WithComponent, so each event carries the subsystem it
came from. The zero-value Logger discards events, which keeps package
tests silent without any setup.

# Configuration

	log.Init(log.Config{
		Level:  "info",          // debug, info, warn, error
		JSON:   true,            // one JSON object per line
		Output: os.Stderr,       // stdout stays free for the wire
	})

Console output (JSON false) is the development form, with RFC3339
timestamps. Level names are parsed by zerolog; unknown names fall back
to info rather than failing startup.

# Usage

Component loggers carry structured fields:

	logger := log.WithComponent("consolidator")
	logger.Info().
		Str("space_id", spaceID).
		Int("notes_processed", 42).
		Msg("Consolidation committed")

The global helpers cover the serve command's startup warnings:

	log.Warn("LLM endpoint not configured")
	log.Errorf("failed to load token registry", err)

# Log Content

  - Bearer tokens never appear in clear; token hashes are truncated
    to the display form before logging.
  - Note content and bank file bodies are never logged at info level,
    only sizes and counts.
  - Graph bridge credentials are redacted from connection events.

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
*/
package log
