// Package space manages the lifecycle of memory spaces on the object
// store.
//
// A space is a prefix on the store with a fixed layout:
//
//	{space_id}/
//	├── _meta.json        metadata (owner, counters, graph binding)
//	├── _rules.md         consolidation rules, written once at creation
//	├── _synthesis.md     rolling synthesis (absent until consolidated)
//	├── live/             append-only notes
//	└── bank/             consolidated Markdown files
//
// The presence of _meta.json is what makes a prefix a space: List skips
// prefixes without one, and Create refuses an id whose _meta.json already
// exists so that concurrent creators cannot trample each other's rules.
// Prefixes starting with an underscore (_system, _backups) are reserved
// for infrastructure and never listed as spaces.
//
// # Lifecycle
//
// Create writes _meta.json, _rules.md and a .keep marker in each of
// live/ and bank/. Rules are immutable after that point; changing them
// means creating a new space. Delete removes every object under the
// space prefix but leaves _backups/{space_id}/ untouched, so a deleted
// space remains restorable.
//
// Summary is the cheap orientation call for agents joining a session:
// the current synthesis, a preview of the most recent notes and the
// bank file listing in one round trip. Export packs the whole prefix
// into a base64 tar.gz for offline use.
//
// # See Also
//
//   - pkg/notes for the live/ note format
//   - pkg/consolidator for the pipeline that fills bank/ and _synthesis.md
//   - pkg/backup for snapshot and restore
package space
