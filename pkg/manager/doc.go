/*
Package manager wires a complete Live Memory server from configuration.

# Architecture

	┌─────────────────────────────────────────────┐
	│                   Manager                   │
	│                                             │
	│  ┌─────────┐  ┌──────────┐  ┌────────────┐  │
	│  │ Storage │  │  Broker  │  │  Services  │  │
	│  │ (s3 or  │  │ (events) │  │ (domain)   │  │
	│  │  bolt)  │  └──────────┘  └─────┬──────┘  │
	│  └─────────┘                      │         │
	│                    ┌──────────────┴───────┐ │
	│                    │ Registry → api.Server│ │
	│                    └──────────────────────┘ │
	└─────────────────────────────────────────────┘

New builds the graph in dependency order: the storage backend first,
then the event broker, then the domain services that publish through
it, and finally the tool registry and HTTP server that expose them.

# Usage

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	mgr, err := manager.New(cfg)
	if err != nil {
		return err
	}

	go mgr.Start("0.0.0.0:8002")

	// ... wait for a signal ...

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	mgr.Shutdown(ctx)

The exported fields expose the wired components for callers that need
direct access, such as the serve command printing the tool banner from
Registry, or tests reaching into Services.

# Lifecycle

Start blocks serving HTTP until Shutdown is called. Shutdown tears the
graph down in reverse order: HTTP server, event broker, storage.
*/
package manager
