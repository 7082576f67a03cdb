package consolidator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/chrlesur/live-memory/pkg/types"
)

// Plan is the structured output the LLM must return: the bank files to
// write and the residual synthesis of the processed notes.
type Plan struct {
	BankFiles []PlanFile
	Synthesis string
}

// PlanFile is one bank file in the plan.
type PlanFile struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Action   string `json:"action"`
}

// Actions a plan entry may carry. An empty action counts as updated.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
)

var (
	thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)
	jsonFence  = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	bareFence  = regexp.MustCompile("(?s)```\\s*(.*?)\\s*```")
)

// extractJSON pulls the JSON object out of a raw model reply. Thinking
// models wrap their output in <think> blocks and most models fence the
// JSON in Markdown; both are stripped. As a last resort the slice from
// the first { to the last } is taken.
func extractJSON(text string) string {
	text = thinkBlock.ReplaceAllString(text, "")

	if m := jsonFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := bareFence.FindStringSubmatch(text); m != nil {
		candidate := strings.TrimSpace(m[1])
		if strings.HasPrefix(candidate, "{") {
			return candidate
		}
	}

	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first != -1 && last > first {
		return text[first : last+1]
	}
	return strings.TrimSpace(text)
}

// planWire distinguishes absent keys from empty ones.
type planWire struct {
	BankFiles *[]PlanFile `json:"bank_files"`
	Synthesis *string     `json:"synthesis"`
}

// parsePlan extracts and decodes the plan from a raw model reply. Both
// top-level keys must be present, an empty bank_files list is fine.
func parsePlan(raw string) (*Plan, error) {
	var wire planWire
	if err := json.Unmarshal([]byte(extractJSON(raw)), &wire); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if wire.BankFiles == nil || wire.Synthesis == nil {
		return nil, fmt.Errorf("missing bank_files or synthesis")
	}
	return &Plan{BankFiles: *wire.BankFiles, Synthesis: *wire.Synthesis}, nil
}

// validatePlan rejects plans that would write outside bank/ or carry an
// unknown action.
func validatePlan(plan *Plan) error {
	for i, file := range plan.BankFiles {
		if err := types.ValidateBankFilename(file.Filename); err != nil {
			return fmt.Errorf("bank_files[%d]: %w", i, err)
		}
		switch file.Action {
		case ActionCreated, ActionUpdated, "":
		default:
			return fmt.Errorf("bank_files[%d]: unknown action %q", i, file.Action)
		}
	}
	return nil
}
