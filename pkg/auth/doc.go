/*
Package auth implements bearer-token authentication and the scope checks
guarding every tool invocation.

Tokens are opaque strings of the form "lm_" followed by 43 characters of
URL-safe base64 (256 bits of entropy). Only the SHA-256 digest of a token
is ever persisted; the clear value is returned exactly once at creation.

# Core Components

Identity:
  - Resolved from the bearer token by the API middleware
  - Carries name, permissions, and space scopes
  - Travels on the request context via WithIdentity / FromContext

Service:
  - Authenticates tokens against the _system/tokens.json registry
  - Mints, lists, revokes, and updates token records
  - Serializes registry mutations on the shared tokens lock

Permission model:
  - read: read-only tools (list, read, search, status)
  - write: mutating tools (notes, consolidation, graph push, backups)
  - admin: destructive and registry tools (delete, restore, tokens, GC)
  - Space scopes: an empty space_ids list grants access to every space;
    a non-empty list restricts the token to exactly those spaces

Bootstrap:
  - ADMIN_BOOTSTRAP_KEY, when set, authenticates as a synthetic admin
    with universal scope so the first real tokens can be minted
  - The bootstrap identity never appears in the registry

# Usage

	svc := auth.NewService(store, lockRegistry, broker, cfg.AdminBootstrapKey)

	id, err := svc.Authenticate(ctx, bearer)
	if err != nil {
		// HTTP 401
	}

	ctx = auth.WithIdentity(ctx, id)

	if err := auth.CheckWrite(id); err != nil {
		// tool envelope status "forbidden"
	}
	if err := auth.CheckAccess(id, spaceID); err != nil {
		// tool envelope status "forbidden"
	}

# Security

  - Clear tokens are never stored and never logged
  - Hashes appear in logs and listings truncated to 20 characters
  - Revocation and expiry are checked on every authentication
  - last_used_at updates run out of band and never delay a request

# See Also

  - pkg/tools for the per-tool permission bindings
  - pkg/api for bearer extraction and the 401 path
*/
package auth
