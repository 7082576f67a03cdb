package types

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Size limits enforced at the tool boundary.
const (
	MaxContentSize     = 100000
	MaxRulesSize       = 50000
	MaxDescriptionSize = 500
	MaxTagCount        = 10
	MaxTagLength       = 50
	MaxBankFilename    = 128
)

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)
	agentSanitizer    = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	backupIDPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]+/\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}$`)
)

// ValidateSpaceID checks the space identifier format.
func ValidateSpaceID(spaceID string) error {
	if !identifierPattern.MatchString(spaceID) {
		return fmt.Errorf("%w: space_id must match [A-Za-z0-9][A-Za-z0-9_-]{0,63}", ErrInvalid)
	}
	return nil
}

// ValidateAgent checks the agent name format.
func ValidateAgent(agent string) error {
	if !identifierPattern.MatchString(agent) {
		return fmt.Errorf("%w: agent must match [A-Za-z0-9][A-Za-z0-9_-]{0,63}", ErrInvalid)
	}
	return nil
}

// SanitizeAgent strips every character not allowed in note keys.
func SanitizeAgent(agent string) string {
	return agentSanitizer.ReplaceAllString(agent, "")
}

// ValidateCategory checks category membership.
func ValidateCategory(category Category) error {
	for _, c := range Categories() {
		if c == category {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown category %q", ErrInvalid, category)
}

// ValidateContent enforces the note content size limit.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content cannot be empty", ErrInvalid)
	}
	if utf8.RuneCountInString(content) > MaxContentSize {
		return fmt.Errorf("%w: content exceeds %d characters", ErrInvalid, MaxContentSize)
	}
	return nil
}

// ValidateRules enforces the rules size limit.
func ValidateRules(rules string) error {
	if rules == "" {
		return fmt.Errorf("%w: rules cannot be empty", ErrInvalid)
	}
	if utf8.RuneCountInString(rules) > MaxRulesSize {
		return fmt.Errorf("%w: rules exceed %d characters", ErrInvalid, MaxRulesSize)
	}
	return nil
}

// ValidateDescription enforces the description size limit.
func ValidateDescription(description string) error {
	if utf8.RuneCountInString(description) > MaxDescriptionSize {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalid, MaxDescriptionSize)
	}
	return nil
}

// NormalizeTags keeps at most MaxTagCount tags, sanitized like agent names
// and truncated to MaxTagLength. Empty results are dropped.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if len(out) >= MaxTagCount {
			break
		}
		t = agentSanitizer.ReplaceAllString(t, "")
		if len(t) > MaxTagLength {
			t = t[:MaxTagLength]
		}
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ValidateBankFilename rejects traversal attempts and oversized names.
func ValidateBankFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("%w: filename cannot be empty", ErrInvalid)
	}
	if len(filename) > MaxBankFilename {
		return fmt.Errorf("%w: filename exceeds %d characters", ErrInvalid, MaxBankFilename)
	}
	if strings.Contains(filename, "..") {
		return fmt.Errorf("%w: filename must not contain '..'", ErrInvalid)
	}
	if strings.HasPrefix(filename, "/") {
		return fmt.Errorf("%w: filename must not start with '/'", ErrInvalid)
	}
	return nil
}

// ValidateBackupID checks the {space_id}/{timestamp} backup reference.
func ValidateBackupID(backupID string) error {
	if !backupIDPattern.MatchString(backupID) {
		return fmt.Errorf("%w: backup_id must look like space/2006-01-02T15-04-05", ErrInvalid)
	}
	return nil
}
