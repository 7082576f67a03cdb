/*
Package gc reclaims orphaned live notes.

Agents normally consolidate their own notes, which drains live/. An agent
that disappears mid-session leaves its notes behind forever; this package
finds them by age and gets them into the bank anyway.

A note is orphaned when the timestamp in its key is older than a cutoff
(default 7 days). Scan builds the dry-run report. Run, the confirmed form,
has two modes:

  - Consolidate (default): for every (space, agent) group, write a notice
    note explaining the forced consolidation, then run the regular
    consolidation pipeline for that agent. Spaces holding a consolidation
    lock are skipped and reported, never blocked on.
  - Delete only: remove the orphaned keys directly. No LLM call, no bank
    update. The note content is lost.

The notice note carries the orphaned agent's own name so it lands in the
same consolidation batch, leaving a trace in the bank of why the notes
arrived without their author.
*/
package gc
