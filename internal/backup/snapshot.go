package backup

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"mysql-data-vault/internal/catalog"
	"mysql-data-vault/internal/logging"

	"github.com/go-sql-driver/mysql"
)

const mysqlErrNoSuchTable = 1146

// Queryer is the read side of *sql.DB, *sql.Conn and *sql.Tx
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// SnapshotBuilder reads every included table into memory. Reads are not
// wrapped in a shared snapshot transaction.
type SnapshotBuilder struct {
	db      Queryer
	catalog *catalog.Catalog
	logger  *logging.Logger
}

// NewSnapshotBuilder creates a snapshot builder
func NewSnapshotBuilder(db Queryer, cat *catalog.Catalog, logger *logging.Logger) *SnapshotBuilder {
	return &SnapshotBuilder{db: db, catalog: cat, logger: logger}
}

// Snapshot is the captured content of every included table
type Snapshot struct {
	Tables map[string][]Row
	// ColumnTypes maps table and column to the driver's type name
	ColumnTypes map[string]map[string]string
	// Generated holds the VIRTUAL and STORED generated columns per table.
	// It is filled by MarkGenerated and stays nil for sealed backups.
	Generated map[string]map[string]bool
}

// IsGenerated reports whether column of table is computed by the server
func (s *Snapshot) IsGenerated(table, column string) bool {
	return s.Generated[table][column]
}

// TotalRecords sums the captured rows
func (s *Snapshot) TotalRecords() int {
	total := 0
	for _, rows := range s.Tables {
		total += len(rows)
	}
	return total
}

// Build captures all included tables. A table missing from the live schema is
// skipped with a warning; any other read failure aborts the snapshot.
func (b *SnapshotBuilder) Build(ctx context.Context) (*Snapshot, error) {
	snapshot := &Snapshot{
		Tables:      make(map[string][]Row, b.catalog.Len()),
		ColumnTypes: make(map[string]map[string]string, b.catalog.Len()),
	}

	for _, name := range b.catalog.RestoreOrder() {
		if b.catalog.IsExcluded(name) {
			continue
		}

		rows, types, err := b.readTable(ctx, name)
		if err != nil {
			var mysqlErr *mysql.MySQLError
			if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrNoSuchTable {
				b.logger.WithField("table", name).Warn("Table missing from live schema, skipping")
				continue
			}
			return nil, NewDatabaseError(fmt.Sprintf("failed to read table %s", name), err).
				WithContext("table", name)
		}

		snapshot.Tables[name] = rows
		snapshot.ColumnTypes[name] = types
		b.logger.LogTableProgress("snapshot", name, int64(len(rows)))
	}

	return snapshot, nil
}

// MarkGenerated records the generated columns of every captured table.
// Those columns cannot be written back, so SQL scripts leave them out.
func (b *SnapshotBuilder) MarkGenerated(ctx context.Context, snapshot *Snapshot) error {
	snapshot.Generated = make(map[string]map[string]bool, len(snapshot.Tables))
	for _, name := range b.catalog.RestoreOrder() {
		if _, ok := snapshot.Tables[name]; !ok {
			continue
		}
		generated, err := b.generatedColumns(ctx, name)
		if err != nil {
			return NewDatabaseError(fmt.Sprintf("failed to inspect columns of %s", name), err).
				WithContext("table", name)
		}
		if len(generated) > 0 {
			snapshot.Generated[name] = generated
		}
	}
	return nil
}

func (b *SnapshotBuilder) generatedColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := b.db.QueryContext(ctx, introspectColumnsSQL, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	generated := make(map[string]bool)
	for rows.Next() {
		var name, dataType string
		var extra sql.NullString
		if err := rows.Scan(&name, &dataType, &extra); err != nil {
			return nil, err
		}
		if isGeneratedColumn(extra.String) {
			generated[name] = true
		}
	}
	return generated, rows.Err()
}

func (b *SnapshotBuilder) readTable(ctx context.Context, table string) ([]Row, map[string]string, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(table))
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, nil, err
	}

	types := make(map[string]string, len(columnTypes))
	for _, ct := range columnTypes {
		types[ct.Name()] = strings.ToUpper(ct.DatabaseTypeName())
	}

	result := []Row{}
	values := make([]interface{}, len(columnTypes))
	pointers := make([]interface{}, len(columnTypes))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return nil, nil, err
		}

		row := make(Row, len(columnTypes))
		for i, ct := range columnTypes {
			row[ct.Name()] = captureValue(values[i], ct.DatabaseTypeName())
		}
		result = append(result, row)
	}

	return result, types, rows.Err()
}

// captureValue converts a driver value into its JSON-safe captured form
func captureValue(v interface{}, dbType string) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		if isBinaryType(dbType) {
			return base64.StdEncoding.EncodeToString(val)
		}
		return string(val)
	case time.Time:
		if strings.EqualFold(dbType, "DATE") {
			return val.Format("2006-01-02")
		}
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return val
	}
}

func isBinaryType(dbType string) bool {
	switch strings.ToUpper(dbType) {
	case "BINARY", "VARBINARY", "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BIT", "GEOMETRY":
		return true
	}
	return false
}

// quoteIdent backtick-quotes a MySQL identifier
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
