// Package backup snapshots whole spaces under _backups/ and restores
// them. A snapshot is a server-side copy of every object the space holds
// at that moment, keeps and meta included, plus a _backup.json manifest.
//
// Restore refuses to overwrite an existing space. Download packs a
// snapshot into a base64 tar.gz without the manifest, so the archive
// matches what Restore would write. Create prunes the oldest snapshots
// of the space beyond the configured retention count.
package backup
