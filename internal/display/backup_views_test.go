package display

import (
	"testing"
	"time"

	"mysql-data-vault/internal/backup"

	"github.com/stretchr/testify/assert"
)

func TestBackupListView(t *testing.T) {
	headers, rows := BackupListView([]backup.BackupEntry{
		{
			Name:      "backup_2026-01-02_03-04-05.json.gz",
			Format:    backup.BackupFormatSealed,
			Size:      2048,
			CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			Metadata: &backup.Metadata{Tables: map[string]backup.TableMeta{
				"sites":     {RowCount: 2},
				"locations": {RowCount: 3},
			}},
		},
		{
			Name:      "backup_2026-01-01_00-00-00.sql.enc",
			Format:    backup.BackupFormatSQL,
			Size:      10,
			CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			Encrypted: true,
		},
	})

	assert.Equal(t, []string{"Name", "Created", "Format", "Size", "Records", "Encrypted"}, headers)
	assert.Equal(t, []string{"backup_2026-01-02_03-04-05.json.gz", "2026-01-02T03:04:05Z", "SEALED", "2.0 KiB", "5", "no"}, rows[0])
	assert.Equal(t, []string{"backup_2026-01-01_00-00-00.sql.enc", "2026-01-01T00:00:00Z", "SQL", "10 B", "-", "yes"}, rows[1])
}

func TestValidationView(t *testing.T) {
	_, rows := ValidationView(&backup.ValidationReport{
		TotalRecords: 5,
		Tables: map[string]backup.TableReport{
			"sites":     {RowCount: 2, ChecksumValid: false},
			"locations": {RowCount: 3, ChecksumValid: true},
		},
		TotalChecksumValid: false,
		SignatureValid:     true,
	})

	assert.Equal(t, [][]string{
		{"locations", "3", "valid"},
		{"sites", "2", "INVALID"},
		{"(total checksum)", "5", "INVALID"},
		{"(signature)", "", "valid"},
	}, rows)
}

func TestRestoreViews(t *testing.T) {
	_, rows := RestoreView(&backup.RestoreResult{Tables: map[string]*backup.TableRestoreStats{
		"sites": {Inserted: 1, Replaced: 1},
	}})
	assert.Equal(t, [][]string{{"sites", "1", "1", "0"}}, rows)

	_, rows = RestoreIssuesView([]backup.RestoreIssue{{Type: backup.BackupErrorTypeRowRestore, Table: "locations", Row: "id=10", Message: "unknown column(s) extra"}})
	assert.Equal(t, [][]string{{"ROW_RESTORE_ERROR", "locations", "id=10", "unknown column(s) extra"}}, rows)
}

func TestTableMetaView(t *testing.T) {
	_, rows := TableMetaView(&backup.Metadata{Tables: map[string]backup.TableMeta{
		"sites": {RowCount: 2, Checksum: "0123456789abcdef0123"},
	}})
	assert.Equal(t, [][]string{{"sites", "2", "0123456789abcdef..."}}, rows)

	_, rows = TableMetaView(nil)
	assert.Empty(t, rows)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KiB", FormatBytes(1536))
	assert.Equal(t, "3.0 MiB", FormatBytes(3<<20))
}
