/*
Package notes implements the append-only live note operations: write, read,
and search.

Notes are immutable Markdown objects under <space>/live/. Their keys embed
a UTC timestamp, the sanitized agent name, the category, and a random
suffix:

	20240115T103000_claude_decision_a1b2c3d4.md

The timestamp prefix makes lexicographic key order chronological, which
every consumer (read, consolidation, GC) relies on. The body carries a YAML
front-matter block (timestamp, agent, category, tags, space_id) followed by
the free content; the front matter is authoritative when present, the key
a fallback when it is not.

Writes take no locks. Two agents writing in the same second produce
distinct keys thanks to the random suffix, so concurrent appends never
conflict. Reads and searches fetch in bulk and filter in memory; live/ is
kept small by consolidation, not by the reader.

# See Also

  - pkg/consolidator for the pipeline that drains live/ into the bank
  - pkg/gc for age-based cleanup of stale notes
*/
package notes
