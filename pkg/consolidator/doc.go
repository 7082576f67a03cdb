// Package consolidator implements the LLM pipeline that folds live notes
// into the Markdown bank of a space.
//
// Agents never write under bank/ themselves. They append notes to live/,
// and consolidation is the only path from there into the curated files:
// one LLM call reads the rules, the previous synthesis, the new notes and
// the current bank, and returns a plan of full replacement files plus a
// residual synthesis.
//
// # Pipeline
//
//	TryConsolidate(space) ──busy──▶ conflict envelope, no LLM call
//	        │
//	        ▼
//	collect: _rules.md (required)
//	         _synthesis.md (optional)
//	         live/ notes, ascending, agent-filtered, capped
//	         bank/ files verbatim
//	        │
//	        ▼
//	one completion (French prompts, strict JSON demanded)
//	        │ unparseable ──▶ one retry with the reply + a correction
//	        ▼
//	validate plan (filenames, actions)
//	        │
//	        ▼
//	commit: bank files ▶ _synthesis.md ▶ _meta.json ▶ delete notes LAST
//
// # Atomicity
//
// The commit order is the whole integrity story. Bank files land first,
// then the synthesis, then the metadata counters; the snapshot notes are
// deleted only after every write succeeded. A failure anywhere earlier
// leaves live/ exactly as it was, so the worst case is a rerun over the
// same notes, never a lost note. The delete itself is best effort: if it
// fails the notes are consolidated again next run, which the prompt
// tolerates (full-file replacement, not appends).
//
// The snapshot is the list of keys selected at collect time. Notes
// written while the LLM call is in flight are not in that list and
// survive untouched.
//
// # Agent Filtering
//
// A run can be scoped to one agent's notes, leaving other agents' notes
// in live/ for their own runs. The permission rule (non-admin callers may
// only consolidate their own notes) is enforced in the tool layer, not
// here.
//
// # Plan Contract
//
// The model must answer with a single JSON object:
//
//	{
//	  "bank_files": [{"filename": "journal.md", "content": "...", "action": "updated"}],
//	  "synthesis": "résumé des notes traitées"
//	}
//
// Replies wrapped in <think> blocks or Markdown fences are unwrapped by
// extractJSON. Filenames are validated against traversal before anything
// is written; an unknown action rejects the whole plan.
//
// # Monitoring
//
// livemem_consolidations_total{status} counts runs by outcome (ok, empty,
// conflict, error). livemem_consolidation_notes_processed_total and
// livemem_llm_tokens_total{kind} track volume, and
// livemem_consolidation_duration_seconds the end-to-end latency. Events
// consolidation.completed / consolidation.failed fan out on the broker.
//
// # See Also
//
//   - pkg/llm for the completion client and its retry policy
//   - pkg/locks for the per-space mutual exclusion
//   - pkg/gc for the maintenance path that feeds old notes through here
package consolidator
