package types

// Reserved object-store locations. Space roots never start with an
// underscore, so system and backup prefixes cannot collide with spaces.
const (
	TokensKey          = "_system/tokens.json"
	BackupsPrefix      = "_backups/"
	KeepFile           = ".keep"
	BackupManifestName = "_backup.json"
)

// Timestamp layouts used inside object keys.
const (
	// NoteStampLayout prefixes note keys and sorts lexicographically.
	NoteStampLayout = "20060102T150405"
	// BackupStampLayout names snapshot directories and sorts lexicographically.
	BackupStampLayout = "2006-01-02T15-04-05"
)

// MetaKey returns the _meta.json key of a space.
func MetaKey(spaceID string) string { return spaceID + "/_meta.json" }

// RulesKey returns the _rules.md key of a space.
func RulesKey(spaceID string) string { return spaceID + "/_rules.md" }

// SynthesisKey returns the _synthesis.md key of a space.
func SynthesisKey(spaceID string) string { return spaceID + "/_synthesis.md" }

// LivePrefix returns the live notes prefix of a space.
func LivePrefix(spaceID string) string { return spaceID + "/live/" }

// BankPrefix returns the bank prefix of a space.
func BankPrefix(spaceID string) string { return spaceID + "/bank/" }

// BankKey returns the key of one bank file.
func BankKey(spaceID, filename string) string { return spaceID + "/bank/" + filename }

// SpacePrefix returns the whole-space prefix used by export, delete and
// backup.
func SpacePrefix(spaceID string) string { return spaceID + "/" }

// BackupSpacePrefix returns the prefix holding every snapshot of a space.
func BackupSpacePrefix(spaceID string) string { return BackupsPrefix + spaceID + "/" }

// BackupSnapshotPrefix returns the prefix of one snapshot.
func BackupSnapshotPrefix(spaceID, stamp string) string {
	return BackupsPrefix + spaceID + "/" + stamp + "/"
}
