package types

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateSpaceID(t *testing.T) {
	tests := []struct {
		name    string
		spaceID string
		wantErr bool
	}{
		{"simple", "demo", false},
		{"with dash and underscore", "project-x_2", false},
		{"single char", "a", false},
		{"max length", "a" + strings.Repeat("b", 63), false},
		{"empty", "", true},
		{"leading underscore", "_system", true},
		{"leading dash", "-demo", true},
		{"slash", "a/b", true},
		{"dot", "a.b", true},
		{"space", "a b", true},
		{"too long", "a" + strings.Repeat("b", 64), true},
		{"unicode", "équipe", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSpaceID(tt.spaceID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSpaceID(%q) error = %v, wantErr %v", tt.spaceID, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("ValidateSpaceID(%q) error should wrap ErrInvalid", tt.spaceID)
			}
		})
	}
}

func TestSanitizeAgent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"claude", "claude"},
		{"gpt-4o", "gpt-4o"},
		{"agent smith", "agentsmith"},
		{"éclair!", "clair"},
		{"a/b\\c", "abc"},
		{"under_score", "under_score"},
	}

	for _, tt := range tests {
		if got := SanitizeAgent(tt.in); got != tt.want {
			t.Errorf("SanitizeAgent(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateCategory(t *testing.T) {
	for _, c := range Categories() {
		if err := ValidateCategory(c); err != nil {
			t.Errorf("ValidateCategory(%q) = %v, want nil", c, err)
		}
	}
	if err := ValidateCategory("rant"); err == nil {
		t.Error("ValidateCategory(rant) = nil, want error")
	}
}

func TestValidateContent(t *testing.T) {
	if err := ValidateContent(""); err == nil {
		t.Error("empty content accepted")
	}
	if err := ValidateContent("  \n\t"); err == nil {
		t.Error("whitespace-only content accepted")
	}
	if err := ValidateContent("hello"); err != nil {
		t.Errorf("short content rejected: %v", err)
	}
	if err := ValidateContent(strings.Repeat("x", MaxContentSize)); err != nil {
		t.Errorf("content at limit rejected: %v", err)
	}
	if err := ValidateContent(strings.Repeat("x", MaxContentSize+1)); err == nil {
		t.Error("content over limit accepted")
	}
}

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{"s3", "infra!", "", "a b", strings.Repeat("x", 60)})
	want := []string{"s3", "infra", "ab", strings.Repeat("x", MaxTagLength)}
	if len(got) != len(want) {
		t.Fatalf("NormalizeTags returned %d tags, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tag[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	many := make([]string, 15)
	for i := range many {
		many[i] = "tag"
	}
	if got := NormalizeTags(many); len(got) != MaxTagCount {
		t.Errorf("NormalizeTags kept %d tags, want %d", len(got), MaxTagCount)
	}
}

func TestValidateBankFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		wantErr  bool
	}{
		{"plain", "architecture.md", false},
		{"nested", "decisions/2026.md", false},
		{"empty", "", true},
		{"traversal", "../secrets.md", true},
		{"inner traversal", "a/../../b.md", true},
		{"absolute", "/etc/passwd", true},
		{"too long", strings.Repeat("a", MaxBankFilename+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBankFilename(tt.filename)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBankFilename(%q) error = %v, wantErr %v", tt.filename, err, tt.wantErr)
			}
		})
	}
}

func TestValidateBackupID(t *testing.T) {
	if err := ValidateBackupID("demo/2026-08-25T10-30-00"); err != nil {
		t.Errorf("valid backup id rejected: %v", err)
	}
	for _, bad := range []string{
		"demo",
		"demo/2026-08-25",
		"demo/2026-08-25T10:30:00",
		"../x/2026-08-25T10-30-00",
		"demo/2026-08-25T10-30-00/extra",
	} {
		if err := ValidateBackupID(bad); err == nil {
			t.Errorf("ValidateBackupID(%q) = nil, want error", bad)
		}
	}
}

func TestTokenRecordExpired(t *testing.T) {
	now := time.Now()

	rec := TokenRecord{}
	if rec.Expired(now) {
		t.Error("record without expiry reported expired")
	}

	past := now.Add(-time.Hour)
	rec.ExpiresAt = &past
	if !rec.Expired(now) {
		t.Error("record with past expiry reported valid")
	}

	future := now.Add(time.Hour)
	rec.ExpiresAt = &future
	if rec.Expired(now) {
		t.Error("record with future expiry reported expired")
	}
}

func TestKeyHelpers(t *testing.T) {
	if got := MetaKey("demo"); got != "demo/_meta.json" {
		t.Errorf("MetaKey = %q", got)
	}
	if got := BankKey("demo", "arch.md"); got != "demo/bank/arch.md" {
		t.Errorf("BankKey = %q", got)
	}
	if got := BackupSnapshotPrefix("demo", "2026-08-25T10-30-00"); got != "_backups/demo/2026-08-25T10-30-00/" {
		t.Errorf("BackupSnapshotPrefix = %q", got)
	}
}
