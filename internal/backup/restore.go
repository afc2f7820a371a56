package backup

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"mysql-data-vault/internal/catalog"
	"mysql-data-vault/internal/logging"

	"github.com/go-sql-driver/mysql"
)

const (
	suspendChecksSQL = "SET FOREIGN_KEY_CHECKS = 0, UNIQUE_CHECKS = 0"
	restoreChecksSQL = "SET FOREIGN_KEY_CHECKS = 1, UNIQUE_CHECKS = 1"

	introspectColumnsSQL = "SELECT COLUMN_NAME, DATA_TYPE, EXTRA FROM INFORMATION_SCHEMA.COLUMNS " +
		"WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION"

	maxRowDescription = 80
)

var statementTarget = regexp.MustCompile("(?i)^(?:REPLACE|INSERT)\\s+(?:IGNORE\\s+)?INTO\\s+`?([^`\\s(]+)`?")

// TxStarter opens the transaction a restore runs in
type TxStarter interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// liveColumn is one column of the live table
type liveColumn struct {
	DataType  string
	Generated bool
}

// RestoreEngine clears and re-populates catalog tables inside one transaction
type RestoreEngine struct {
	db      TxStarter
	catalog *catalog.Catalog
	logger  *logging.Logger
}

// NewRestoreEngine creates a restore engine
func NewRestoreEngine(db TxStarter, cat *catalog.Catalog, logger *logging.Logger) *RestoreEngine {
	return &RestoreEngine{db: db, catalog: cat, logger: logger}
}

// RestoreDocument restores a sealed document. Rows are applied with REPLACE
// so the same document can be replayed. Under the best-effort policy failing
// rows are recorded and the transaction still commits; under strict the
// first failing row rolls everything back.
func (e *RestoreEngine) RestoreDocument(ctx context.Context, doc *Document, policy RestorePolicy) (*RestoreResult, error) {
	if err := checkShape(doc); err != nil {
		return nil, err
	}

	return e.run(ctx, BackupFormatSealed, policy, func(tx *sql.Tx, result *RestoreResult) error {
		for _, table := range e.catalog.RestoreOrder() {
			rows := doc.Tables[table]
			if len(rows) == 0 {
				continue
			}
			if err := e.populateTable(ctx, tx, table, rows, policy, result); err != nil {
				return err
			}
		}
		return nil
	})
}

// RestoreSQL replays a legacy SQL script with INSERT rewritten to REPLACE.
// Best-effort executes statements one by one and records failures; strict
// runs the script as one multi-statement batch.
func (e *RestoreEngine) RestoreSQL(ctx context.Context, script string, policy RestorePolicy) (*RestoreResult, error) {
	statements := ReplaceStatements(script)

	return e.run(ctx, BackupFormatSQL, policy, func(tx *sql.Tx, result *RestoreResult) error {
		if policy == RestorePolicyStrict {
			if len(statements) == 0 {
				return nil
			}
			batch := joinStatements(statements)
			start := time.Now()
			res, err := tx.ExecContext(ctx, batch)
			e.logger.LogSQLExecution(batch, time.Since(start), rowsAffected(res), err)
			if err != nil {
				return NewBackupError(BackupErrorTypeRowRestore, "SQL script failed, restore rolled back", err)
			}
			result.Statements = len(statements)
			return nil
		}

		for i, stmt := range statements {
			start := time.Now()
			res, err := tx.ExecContext(ctx, stmt)
			e.logger.LogSQLExecution(stmt, time.Since(start), rowsAffected(res), err)
			if err != nil {
				result.addIssue(BackupErrorTypeRowRestore, statementTable(stmt),
					fmt.Sprintf("statement %d", i+1), err.Error())
				continue
			}
			result.Statements++
		}
		return nil
	})
}

// run brackets populate with constraint suspension and the clear phase.
// Constraint checks are re-enabled before commit or rollback because the
// session variables outlive the transaction on a pooled connection.
func (e *RestoreEngine) run(ctx context.Context, format BackupFormat, policy RestorePolicy, populate func(*sql.Tx, *RestoreResult) error) (*RestoreResult, error) {
	if policy == "" {
		policy = RestorePolicyBestEffort
	}
	start := time.Now()
	result := newRestoreResult(format, policy)

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, NewDatabaseError("failed to begin restore transaction", err)
	}

	abort := func(cause error) (*RestoreResult, error) {
		if _, err := tx.ExecContext(ctx, restoreChecksSQL); err != nil {
			e.logger.WithField("error", err).Warn("Failed to re-enable constraint checks")
		}
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			e.logger.WithField("error", err).Warn("Failed to roll back restore")
		}
		return nil, cause
	}

	if _, err := tx.ExecContext(ctx, suspendChecksSQL); err != nil {
		return abort(NewDatabaseError("failed to suspend constraint checks", err))
	}

	if err := e.clear(ctx, tx, result); err != nil {
		return abort(err)
	}

	if err := populate(tx, result); err != nil {
		return abort(err)
	}

	if _, err := tx.ExecContext(ctx, restoreChecksSQL); err != nil {
		return abort(NewDatabaseError("failed to re-enable constraint checks", err))
	}
	if err := tx.Commit(); err != nil {
		return nil, NewDatabaseError("failed to commit restore", err)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// clear empties every included table in dependency-safe order and verifies
// each reaches zero rows. Tables missing from the live schema are skipped.
func (e *RestoreEngine) clear(ctx context.Context, tx *sql.Tx, result *RestoreResult) error {
	for _, table := range e.catalog.ClearOrder() {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+quoteIdent(table)); err != nil {
			var mysqlErr *mysql.MySQLError
			if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrNoSuchTable {
				e.logger.WithField("table", table).Warn("Table missing from live schema, not cleared")
				continue
			}
			return NewTableClearError(table, 0, err)
		}

		var remaining int64
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(table)).Scan(&remaining); err != nil {
			return NewTableClearError(table, 0, err)
		}
		if remaining != 0 {
			return NewTableClearError(table, remaining, nil)
		}

		result.Cleared = append(result.Cleared, table)
		e.logger.LogTableProgress("clear", table, 0)
	}
	return nil
}

func (e *RestoreEngine) populateTable(ctx context.Context, tx *sql.Tx, table string, rows []Row, policy RestorePolicy, result *RestoreResult) error {
	columns, err := e.introspect(ctx, tx, table)
	if err != nil {
		return NewDatabaseError(fmt.Sprintf("failed to introspect table %s", table), err).WithContext("table", table)
	}

	if !hasRestorableColumn(columns, rows) {
		result.addIssue(BackupErrorTypeRowRestore, table, "",
			"no document column matches a writable column of the live table")
		result.recordSkipped(table, len(rows))
		if policy == RestorePolicyStrict {
			return NewBackupError(BackupErrorTypeRowRestore, fmt.Sprintf("table %s has no restorable columns", table), nil).
				WithContext("table", table)
		}
		return nil
	}

	for _, row := range rows {
		desc := describeRow(row)
		if err := e.applyRow(ctx, tx, table, row, columns, result); err != nil {
			result.addIssue(BackupErrorTypeRowRestore, table, desc, err.Error())
			result.recordSkipped(table, 1)
			if policy == RestorePolicyStrict {
				return NewRowRestoreError(table, desc, err)
			}
		}
	}

	stats := result.table(table)
	e.logger.LogTableProgress("restore", table, int64(stats.Inserted+stats.Replaced))
	return nil
}

func (e *RestoreEngine) applyRow(ctx context.Context, tx *sql.Tx, table string, row Row, columns map[string]liveColumn, result *RestoreResult) error {
	var (
		names   []string
		args    []interface{}
		unknown []string
	)

	for _, key := range sortedKeys(row) {
		col, ok := columns[key]
		switch {
		case !ok:
			unknown = append(unknown, key)
			continue
		case col.Generated:
			continue
		}

		value, err := toStoreValue(row[key], col.DataType)
		if err != nil {
			return fmt.Errorf("column %s: %w", key, err)
		}
		if value, err = flattenNested(value); err != nil {
			return fmt.Errorf("column %s: %w", key, err)
		}
		names = append(names, quoteIdent(key))
		args = append(args, value)
	}

	if len(unknown) > 0 {
		return fmt.Errorf("unknown column(s) %s", strings.Join(unknown, ", "))
	}
	if len(names) == 0 {
		return errors.New("row has no writable columns")
	}

	query := fmt.Sprintf("REPLACE INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(names, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", "))

	start := time.Now()
	res, err := tx.ExecContext(ctx, query, args...)
	affected := rowsAffected(res)
	e.logger.LogSQLExecution(query, time.Since(start), affected, err)
	if err != nil {
		return err
	}

	result.recordApplied(table, affected)
	return nil
}

// introspect returns the live columns of table keyed by name. Generated
// columns are flagged so they are never written.
func (e *RestoreEngine) introspect(ctx context.Context, tx *sql.Tx, table string) (map[string]liveColumn, error) {
	rows, err := tx.QueryContext(ctx, introspectColumnsSQL, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]liveColumn)
	for rows.Next() {
		var name, dataType string
		var extra sql.NullString
		if err := rows.Scan(&name, &dataType, &extra); err != nil {
			return nil, err
		}
		columns[name] = liveColumn{DataType: strings.ToUpper(dataType), Generated: isGeneratedColumn(extra.String)}
	}
	return columns, rows.Err()
}

// isGeneratedColumn matches VIRTUAL and STORED generated columns but not
// DEFAULT_GENERATED, which marks ordinary columns with expression defaults.
func isGeneratedColumn(extra string) bool {
	extra = strings.ToUpper(extra)
	return strings.Contains(extra, "VIRTUAL GENERATED") || strings.Contains(extra, "STORED GENERATED")
}

func hasRestorableColumn(columns map[string]liveColumn, rows []Row) bool {
	for _, row := range rows {
		for key := range row {
			if col, ok := columns[key]; ok && !col.Generated {
				return true
			}
		}
	}
	return false
}

// flattenNested stores objects and arrays as JSON text
func flattenNested(v interface{}) (interface{}, error) {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
	return v, nil
}

// describeRow identifies a row in error reports, preferring its id
func describeRow(row Row) string {
	if id, ok := row["id"]; ok {
		return fmt.Sprintf("id=%v", id)
	}

	keys := sortedKeys(row)
	if len(keys) > 3 {
		keys = keys[:3]
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, row[k])
	}

	desc := strings.Join(parts, ", ")
	if len(desc) > maxRowDescription {
		desc = desc[:maxRowDescription] + "..."
	}
	return desc
}

func statementTable(stmt string) string {
	if m := statementTarget.FindStringSubmatch(stmt); m != nil {
		return m[1]
	}
	return ""
}

func rowsAffected(res sql.Result) int64 {
	if res == nil {
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
