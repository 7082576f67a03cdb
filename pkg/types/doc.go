/*
Package types defines the shared domain model of Live Memory.

Everything that crosses a package boundary or is persisted on the object
store lives here: space metadata, notes, the token registry, backup
manifests, the result envelopes returned by tools, validation rules and the
object-store key layout. JSON tags are the wire format; files written by
one release must stay readable by the next.

# Core Components

Entities:
  - SpaceMeta: _meta.json content, including the optional graph binding and
    consolidation history
  - Note: a parsed live note (front matter plus body)
  - TokenRecord / TokensFile: the hashed token registry (_system/tokens.json)
  - BackupManifest: snapshot bookkeeping stored inside each backup

Envelopes:
  - Every tool result embeds Envelope{Status, Message}
  - Status codes: ok, created, deleted, not_found, forbidden, conflict,
    already_exists, error
  - Sentinel errors (ErrNotFound, ErrForbidden, ErrConflict,
    ErrAlreadyExists, ErrInvalid) are translated to codes at the tool
    boundary

Validation:
  - space_id and agent: ^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$
  - note content up to 100000 characters, rules up to 50000,
    description up to 500
  - bank filenames reject traversal ('..', leading '/')
  - backup ids match space/2006-01-02T15-04-05

Key layout:

	{space_id}/_meta.json
	{space_id}/_rules.md
	{space_id}/_synthesis.md
	{space_id}/live/{stamp}_{agent}_{category}_{rand}.md
	{space_id}/bank/{filename}
	_system/tokens.json
	_backups/{space_id}/{stamp}/...

Space roots never begin with an underscore, which keeps _system and
_backups out of every space listing.

# Integration Points

  - pkg/space, pkg/notes, pkg/consolidator, pkg/gc, pkg/backup, pkg/graph:
    entities and key helpers
  - pkg/auth: TokenRecord, permissions
  - pkg/tools: result envelopes and validation
*/
package types
