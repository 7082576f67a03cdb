package consolidator

import (
	"strings"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bare object",
			in:   `{"a": 1}`,
			want: `{"a": 1}`,
		},
		{
			name: "json fence",
			in:   "Voici le résultat :\n```json\n{\"a\": 1}\n```\nFin.",
			want: `{"a": 1}`,
		},
		{
			name: "bare fence",
			in:   "```\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "bare fence without object falls through",
			in:   "```\nplain text\n```",
			want: "```\nplain text\n```",
		},
		{
			name: "think block stripped",
			in:   "<think>je réfléchis {pas du json}</think>\n{\"a\": 1}",
			want: `{"a": 1}`,
		},
		{
			name: "surrounding prose",
			in:   "Voici : {\"a\": {\"b\": 2}} et voilà.",
			want: `{"a": {"b": 2}}`,
		},
		{
			name: "no json at all",
			in:   "  rien du tout  ",
			want: "rien du tout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.in); got != tt.want {
				t.Errorf("extractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParsePlan(t *testing.T) {
	plan, err := parsePlan("```json\n{\"bank_files\": [{\"filename\": \"journal.md\", \"content\": \"# J\", \"action\": \"updated\"}], \"synthesis\": \"tout va bien\"}\n```")
	if err != nil {
		t.Fatalf("parsePlan() error = %v", err)
	}
	if len(plan.BankFiles) != 1 || plan.BankFiles[0].Filename != "journal.md" {
		t.Errorf("bank_files = %+v", plan.BankFiles)
	}
	if plan.Synthesis != "tout va bien" {
		t.Errorf("synthesis = %q", plan.Synthesis)
	}
}

func TestParsePlan_EmptyBankFiles(t *testing.T) {
	plan, err := parsePlan(`{"bank_files": [], "synthesis": "rien à écrire"}`)
	if err != nil {
		t.Fatalf("parsePlan() error = %v", err)
	}
	if len(plan.BankFiles) != 0 {
		t.Errorf("bank_files = %+v, want empty", plan.BankFiles)
	}
}

func TestParsePlan_Invalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"not json", "désolé, je ne peux pas"},
		{"missing synthesis", `{"bank_files": []}`},
		{"missing bank_files", `{"synthesis": "s"}`},
		{"wrong types", `{"bank_files": "nope", "synthesis": "s"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parsePlan(tt.in); err == nil {
				t.Error("parsePlan() accepted invalid input")
			}
		})
	}
}

func TestValidatePlan(t *testing.T) {
	valid := &Plan{BankFiles: []PlanFile{
		{Filename: "journal.md", Content: "x", Action: ActionUpdated},
		{Filename: "decisions.md", Content: "y", Action: ActionCreated},
		{Filename: "notes.md", Content: "z"},
	}}
	if err := validatePlan(valid); err != nil {
		t.Errorf("validatePlan() error = %v on a valid plan", err)
	}

	tests := []struct {
		name string
		file PlanFile
	}{
		{"empty filename", PlanFile{Filename: "", Content: "x"}},
		{"path traversal", PlanFile{Filename: "../../etc/passwd", Content: "x"}},
		{"absolute path", PlanFile{Filename: "/etc/passwd", Content: "x"}},
		{"unknown action", PlanFile{Filename: "a.md", Content: "x", Action: "deleted"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := &Plan{BankFiles: []PlanFile{tt.file}}
			err := validatePlan(plan)
			if err == nil {
				t.Error("validatePlan() accepted a bad entry")
			} else if !strings.Contains(err.Error(), "bank_files[0]") {
				t.Errorf("error = %v, want entry index", err)
			}
		})
	}
}
