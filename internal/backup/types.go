package backup

import (
	"fmt"
	"time"
)

const (
	// DocumentFormat tags every sealed document
	DocumentFormat = "mysql-data-vault"
	// DocumentVersion is the sealed document schema version
	DocumentVersion = "2.0"
)

// Row is one captured record keyed by column name
type Row map[string]interface{}

// Document is a backup payload. Metadata is always serialized before Tables.
type Document struct {
	Format   string           `json:"format"`
	Version  string           `json:"version"`
	Metadata *Metadata        `json:"metadata"`
	Tables   map[string][]Row `json:"tables"`
}

// Metadata describes a sealed document
type Metadata struct {
	CreatedAt     time.Time            `json:"created_at"`
	CreatedBy     string               `json:"created_by"`
	Database      string               `json:"database"`
	AppVersion    string               `json:"app_version"`
	Tables        map[string]TableMeta `json:"tables"`
	TotalChecksum string               `json:"total_checksum"`
	Signature     string               `json:"signature,omitempty"`
}

// TableMeta records the row count and content hash of one table
type TableMeta struct {
	RowCount int    `json:"row_count"`
	Checksum string `json:"checksum"`
}

// TotalRecords sums the rows of every table in the document
func (d *Document) TotalRecords() int {
	total := 0
	for _, rows := range d.Tables {
		total += len(rows)
	}
	return total
}

// BackupFormat distinguishes sealed containers from legacy SQL text
type BackupFormat string

const (
	BackupFormatSealed BackupFormat = "SEALED"
	BackupFormatSQL    BackupFormat = "SQL"
)

// BackupEntry describes one stored backup
type BackupEntry struct {
	Name        string          `json:"name"`
	Format      BackupFormat    `json:"format"`
	Size        int64           `json:"size"`
	CreatedAt   time.Time       `json:"created_at"`
	Compression CompressionType `json:"compression,omitempty"`
	Encrypted   bool            `json:"encrypted"`
	Metadata    *Metadata       `json:"metadata,omitempty"`
}

// CreateResult is returned by a successful backup
type CreateResult struct {
	Name             string         `json:"name"`
	Format           BackupFormat   `json:"format"`
	CompressedSize   int64          `json:"compressed_size"`
	UncompressedSize int64          `json:"uncompressed_size"`
	CompressionRatio float64        `json:"compression_ratio"`
	TotalRecords     int            `json:"total_records"`
	Tables           map[string]int `json:"tables"`
	Rotated          string         `json:"rotated,omitempty"`
	Duration         time.Duration  `json:"duration"`
}

// TableReport is the per-table part of a validation report
type TableReport struct {
	RowCount      int  `json:"row_count"`
	ChecksumValid bool `json:"checksum_valid"`
}

// ValidationReport is the outcome of validating a sealed document.
// Integrity failures are collected here rather than returned as errors.
type ValidationReport struct {
	Name               string                 `json:"name,omitempty"`
	Valid              bool                   `json:"valid"`
	TotalRecords       int                    `json:"total_records"`
	Tables             map[string]TableReport `json:"tables"`
	TotalChecksumValid bool                   `json:"total_checksum_valid"`
	SignatureValid     bool                   `json:"signature_valid"`
	Warnings           []string               `json:"warnings"`
	Errors             []string               `json:"errors"`
	CheckedAt          time.Time              `json:"checked_at"`
}

func (r *ValidationReport) addError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Valid = false
}

func (r *ValidationReport) addWarning(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// RestorePolicy selects how row-level failures affect a restore
type RestorePolicy string

const (
	// RestorePolicyBestEffort records failing rows or statements and commits the rest
	RestorePolicyBestEffort RestorePolicy = "best-effort"
	// RestorePolicyStrict rolls the whole restore back on the first failure
	RestorePolicyStrict RestorePolicy = "strict"
)

// RestoreIssue is one non-fatal problem recorded during a restore
type RestoreIssue struct {
	Type    BackupErrorType `json:"type"`
	Table   string          `json:"table,omitempty"`
	Row     string          `json:"row,omitempty"`
	Message string          `json:"message"`
}

// TableRestoreStats counts what happened to one table
type TableRestoreStats struct {
	Inserted int `json:"inserted"`
	Replaced int `json:"replaced"`
	Skipped  int `json:"skipped"`
}

// RestoreResult is returned by a restore that committed. Statements counts
// executed statements of a SQL script restore.
type RestoreResult struct {
	Name       string                        `json:"name,omitempty"`
	Format     BackupFormat                  `json:"format"`
	Policy     RestorePolicy                 `json:"policy"`
	Cleared    []string                      `json:"cleared"`
	Tables     map[string]*TableRestoreStats `json:"tables"`
	Inserted   int                           `json:"inserted"`
	Replaced   int                           `json:"replaced"`
	Skipped    int                           `json:"skipped"`
	Statements int                           `json:"statements,omitempty"`
	Errors     []RestoreIssue                `json:"errors"`
	Duration   time.Duration                 `json:"duration"`
}

func newRestoreResult(format BackupFormat, policy RestorePolicy) *RestoreResult {
	return &RestoreResult{
		Format: format,
		Policy: policy,
		Tables: make(map[string]*TableRestoreStats),
		Errors: []RestoreIssue{},
	}
}

func (r *RestoreResult) table(name string) *TableRestoreStats {
	stats, ok := r.Tables[name]
	if !ok {
		stats = &TableRestoreStats{}
		r.Tables[name] = stats
	}
	return stats
}

func (r *RestoreResult) recordApplied(table string, rowsAffected int64) {
	stats := r.table(table)
	// REPLACE reports 1 for a fresh insert and 2 or more when it displaced rows.
	if rowsAffected > 1 {
		stats.Replaced++
		r.Replaced++
		return
	}
	stats.Inserted++
	r.Inserted++
}

func (r *RestoreResult) recordSkipped(table string, n int) {
	r.table(table).Skipped += n
	r.Skipped += n
}

func (r *RestoreResult) addIssue(errorType BackupErrorType, table, row, message string) {
	r.Errors = append(r.Errors, RestoreIssue{Type: errorType, Table: table, Row: row, Message: message})
}
