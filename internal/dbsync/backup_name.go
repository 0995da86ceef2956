package dbsync

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const backupTimeLayout = "20060102T150405"

// BackupNameContext carries everything that goes into a pre-overwrite
// backup file name.
type BackupNameContext struct {
	Reason      string
	FromVersion string // remote version id being replaced; empty when created locally
	ToVersion   string // remote version id being adopted
	LocalSHA256 string // digest of the file being backed up
	AppliedAt   time.Time
	Now         time.Time
}

var (
	backupUnsafeRunes = regexp.MustCompile(`[^a-zA-Z0-9._\-]`)
	backupWhitespace  = regexp.MustCompile(`\s+`)
	backupRepeatedSep = regexp.MustCompile(`-{2,}`)
)

// BackupName builds a deterministic, human-diagnosable file name for
// the copy taken before pull overwrites the live database. The same
// context always yields the same name, so a second overwrite in the
// same second is detected instead of clobbering backup history.
func BackupName(ctx BackupNameContext) string {
	from := sanitizeBackupToken(ctx.FromVersion)
	if from == "" {
		from = "local"
	}
	to := sanitizeBackupToken(ctx.ToVersion)
	if to == "" {
		to = "none"
	}

	digest := ctx.LocalSHA256
	if len(digest) > 8 {
		digest = digest[:8]
	}
	if digest == "" {
		digest = "nohash"
	}

	appliedAt := "never"
	if !ctx.AppliedAt.IsZero() {
		appliedAt = ctx.AppliedAt.UTC().Format(backupTimeLayout)
	}
	now := ctx.Now.UTC().Format(backupTimeLayout)

	return fmt.Sprintf("backup.%s.%s__to__%s.%s.%s__%s.db",
		sanitizeBackupToken(ctx.Reason), from, to, digest, appliedAt, now)
}

func sanitizeBackupToken(s string) string {
	s = strings.TrimSpace(s)
	s = backupWhitespace.ReplaceAllString(s, "_")
	s = backupUnsafeRunes.ReplaceAllString(s, "-")
	s = backupRepeatedSep.ReplaceAllString(s, "-")
	return s
}
