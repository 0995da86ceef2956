package dbsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackupName_Deterministic(t *testing.T) {
	ctx := BackupNameContext{
		Reason:      "pull-overwrite",
		FromVersion: "v1",
		ToVersion:   "v2",
		LocalSHA256: "abcdef0123456789",
		AppliedAt:   time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC),
		Now:         time.Date(2025, 3, 2, 8, 0, 5, 0, time.UTC),
	}

	name := BackupName(ctx)
	assert.Equal(t, "backup.pull-overwrite.v1__to__v2.abcdef01.20250301T103000__20250302T080005.db", name)
	assert.Equal(t, name, BackupName(ctx))
}

func TestBackupName_SanitizesTokens(t *testing.T) {
	tests := []struct {
		name string
		ctx  BackupNameContext
		want string
	}{
		{
			name: "slashes and colons become dashes",
			ctx: BackupNameContext{
				Reason:      "pull-overwrite",
				FromVersion: "ver/with:chars",
				ToVersion:   "v2",
				LocalSHA256: "00112233",
				AppliedAt:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
				Now:         time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
			},
			want: "backup.pull-overwrite.ver-with-chars__to__v2.00112233.20250101T000000__20250102T000000.db",
		},
		{
			name: "whitespace becomes underscore, repeats collapse",
			ctx: BackupNameContext{
				Reason:      "pull-overwrite",
				FromVersion: "a  b///c",
				ToVersion:   "v2",
				LocalSHA256: "00112233",
				AppliedAt:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
				Now:         time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
			},
			want: "backup.pull-overwrite.a_b-c__to__v2.00112233.20250101T000000__20250102T000000.db",
		},
		{
			name: "empty versions fall back to placeholders",
			ctx: BackupNameContext{
				Reason:    "pull-overwrite",
				Now:       time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
				ToVersion: "",
			},
			want: "backup.pull-overwrite.local__to__none.nohash.never__20250102T000000.db",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, BackupName(tc.ctx))
		})
	}
}

func TestBackupName_TimesNormalizedToUTC(t *testing.T) {
	loc := time.FixedZone("plus2", 2*3600)
	ctx := BackupNameContext{
		Reason:    "pull-overwrite",
		ToVersion: "v2",
		AppliedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, loc), // 10:00 UTC
		Now:       time.Date(2025, 3, 1, 14, 0, 0, 0, loc), // 12:00 UTC
	}
	name := BackupName(ctx)
	assert.Contains(t, name, "20250301T100000__20250301T120000")
}
