package display

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"mysql-data-vault/internal/backup"
)

// BackupListView renders stored backups newest first
func BackupListView(entries []backup.BackupEntry) ([]string, [][]string) {
	headers := []string{"Name", "Created", "Format", "Size", "Records", "Encrypted"}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		records := "-"
		if e.Metadata != nil {
			total := 0
			for _, meta := range e.Metadata.Tables {
				total += meta.RowCount
			}
			records = strconv.Itoa(total)
		}
		rows = append(rows, []string{
			e.Name,
			e.CreatedAt.UTC().Format(time.RFC3339),
			string(e.Format),
			FormatBytes(e.Size),
			records,
			yesNo(e.Encrypted),
		})
	}
	return headers, rows
}

// TableMetaView lists the per-table counts and checksums of a sealed backup
func TableMetaView(meta *backup.Metadata) ([]string, [][]string) {
	headers := []string{"Table", "Rows", "Checksum"}
	if meta == nil {
		return headers, nil
	}
	rows := make([][]string, 0, len(meta.Tables))
	for _, name := range sortedKeys(meta.Tables) {
		t := meta.Tables[name]
		rows = append(rows, []string{name, strconv.Itoa(t.RowCount), shortChecksum(t.Checksum)})
	}
	return headers, rows
}

// ValidationView lists the per-table outcome of a validation
func ValidationView(report *backup.ValidationReport) ([]string, [][]string) {
	headers := []string{"Table", "Rows", "Checksum"}
	rows := make([][]string, 0, len(report.Tables)+2)
	for _, name := range sortedKeys(report.Tables) {
		t := report.Tables[name]
		rows = append(rows, []string{name, strconv.Itoa(t.RowCount), validInvalid(t.ChecksumValid)})
	}
	rows = append(rows,
		[]string{"(total checksum)", strconv.Itoa(report.TotalRecords), validInvalid(report.TotalChecksumValid)},
		[]string{"(signature)", "", validInvalid(report.SignatureValid)},
	)
	return headers, rows
}

// RestoreView lists what a restore did to each table
func RestoreView(result *backup.RestoreResult) ([]string, [][]string) {
	headers := []string{"Table", "Inserted", "Replaced", "Skipped"}
	rows := make([][]string, 0, len(result.Tables))
	for _, name := range sortedKeys(result.Tables) {
		t := result.Tables[name]
		rows = append(rows, []string{name, strconv.Itoa(t.Inserted), strconv.Itoa(t.Replaced), strconv.Itoa(t.Skipped)})
	}
	return headers, rows
}

// RestoreIssuesView lists row-level errors recorded by a best-effort restore
func RestoreIssuesView(issues []backup.RestoreIssue) ([]string, [][]string) {
	headers := []string{"Type", "Table", "Row", "Message"}
	rows := make([][]string, 0, len(issues))
	for _, issue := range issues {
		rows = append(rows, []string{string(issue.Type), issue.Table, issue.Row, issue.Message})
	}
	return headers, rows
}

// FormatBytes renders a byte count with a binary unit
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func shortChecksum(sum string) string {
	if len(sum) > 16 {
		return sum[:16] + "..."
	}
	return sum
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func validInvalid(b bool) string {
	if b {
		return "valid"
	}
	return "INVALID"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// JoinLines indents each message on its own line
func JoinLines(messages []string) string {
	if len(messages) == 0 {
		return ""
	}
	return "  - " + strings.Join(messages, "\n  - ")
}
