package notes

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/chrlesur/live-memory/pkg/types"
)

// keyPattern captures the timestamp and the agent_category_suffix tail of
// a note key.
var keyPattern = regexp.MustCompile(`^(\d{8}T\d{6})_(.+)\.md$`)

// ComposeFilename builds a note key from its parts. The random suffix keeps
// keys unique when two agents write the same category within one second.
func ComposeFilename(ts time.Time, agent string, category types.Category) string {
	id := uuid.New()
	suffix := hex.EncodeToString(id[:4])
	return fmt.Sprintf("%s_%s_%s_%s.md", ts.UTC().Format(types.NoteStampLayout), agent, category, suffix)
}

// ComposeBody renders the stored form of a note: a YAML front-matter block
// followed by the free Markdown content.
func ComposeBody(note *types.Note) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "timestamp: %s\n", note.Timestamp)
	fmt.Fprintf(&b, "agent: %s\n", note.Agent)
	fmt.Fprintf(&b, "category: %s\n", note.Category)
	if len(note.Tags) > 0 {
		tags, _ := json.Marshal(note.Tags)
		fmt.Fprintf(&b, "tags: %s\n", tags)
	}
	fmt.Fprintf(&b, "space_id: %s\n", note.SpaceID)
	b.WriteString("---\n\n")
	b.WriteString(note.Content)
	return b.String()
}

type frontMatter struct {
	Timestamp string   `yaml:"timestamp"`
	Agent     string   `yaml:"agent"`
	Category  string   `yaml:"category"`
	Tags      []string `yaml:"tags"`
	SpaceID   string   `yaml:"space_id"`
}

// Parse reconstructs a note from its stored form. Notes without a parsable
// front-matter block fall back to whatever the key encodes; Parse never
// fails outright because a single malformed note must not break listings
// or consolidation.
func Parse(filename string, data []byte) *types.Note {
	note := &types.Note{
		Filename: filename,
		Content:  string(data),
		Size:     len(data),
	}
	stamp, agent := parseKey(filename)
	note.Agent = agent
	if ts, err := time.Parse(types.NoteStampLayout, stamp); err == nil {
		note.Timestamp = ts.Format(time.RFC3339)
	}

	rest, ok := bytes.CutPrefix(data, []byte("---\n"))
	if !ok {
		return note
	}
	head, body, ok := bytes.Cut(rest, []byte("\n---\n"))
	if !ok {
		return note
	}

	var fm frontMatter
	if err := yaml.Unmarshal(head, &fm); err != nil {
		return note
	}

	if fm.Timestamp != "" {
		note.Timestamp = fm.Timestamp
	}
	if fm.Agent != "" {
		note.Agent = fm.Agent
	}
	note.Category = types.Category(fm.Category)
	note.Tags = fm.Tags
	note.SpaceID = fm.SpaceID
	note.Content = strings.TrimPrefix(string(body), "\n")
	return note
}

// parseKey extracts the timestamp and agent segments of a note key. The
// random suffix and the category never contain underscores, so stripping
// the last two segments leaves the full agent name, underscores included.
func parseKey(filename string) (timestamp, agent string) {
	m := keyPattern.FindStringSubmatch(filename)
	if m == nil {
		return "", "unknown"
	}
	timestamp = m[1]
	parts := strings.Split(m[2], "_")
	if len(parts) < 3 {
		return timestamp, "unknown"
	}
	return timestamp, strings.Join(parts[:len(parts)-2], "_")
}

// KeyTimestamp returns the leading timestamp of a note key, or an empty
// string when the key is not a note key. Used for age cutoffs.
func KeyTimestamp(filename string) string {
	m := keyPattern.FindStringSubmatch(filename)
	if m == nil {
		return ""
	}
	return m[1]
}

// KeyAgent returns the agent segment of a note key, or "unknown" when the
// key does not parse. It lets scans group notes without fetching bodies.
func KeyAgent(filename string) string {
	_, agent := parseKey(filename)
	return agent
}
