package backup

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"mysql-data-vault/internal/logging"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func newTestRestoreEngine(db *sql.DB) *RestoreEngine {
	return NewRestoreEngine(db, testCatalog(), logging.NewNopLogger())
}

func expectClearTable(mock sqlmock.Sqlmock, table string, deleted int64) {
	mock.ExpectExec("DELETE FROM `" + table + "`").WillReturnResult(sqlmock.NewResult(0, deleted))
	mock.ExpectQuery("SELECT COUNT(*) FROM `" + table + "`").
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(0))
}

func expectStart(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec(suspendChecksSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	expectClearTable(mock, "locations", 3)
	expectClearTable(mock, "sites", 2)
}

func expectFinish(mock sqlmock.Sqlmock) {
	mock.ExpectExec(restoreChecksSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
}

func expectAbort(mock sqlmock.Sqlmock) {
	mock.ExpectExec(restoreChecksSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
}

func columnRows(columns ...[3]string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "EXTRA"})
	for _, c := range columns {
		rows.AddRow(c[0], c[1], c[2])
	}
	return rows
}

func expectColumns(mock sqlmock.Sqlmock, table string, columns ...[3]string) {
	mock.ExpectQuery(introspectColumnsSQL).WithArgs(table).WillReturnRows(columnRows(columns...))
}

func siteColumns() [][3]string {
	return [][3]string{{"id", "int", ""}, {"name", "varchar", ""}}
}

func TestRestoreDocument_ReplacesAllRows(t *testing.T) {
	db, mock := newMockDB(t)
	doc := &Document{Format: DocumentFormat, Metadata: &Metadata{}, Tables: sampleTables()}
	doc.Tables["scratch"] = []Row{{"id": 99}}

	expectStart(mock)
	expectColumns(mock, "sites", siteColumns()...)
	mock.ExpectExec("REPLACE INTO `sites` (`id`, `name`) VALUES (?, ?)").
		WithArgs(1, "North Yard").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("REPLACE INTO `sites` (`id`, `name`) VALUES (?, ?)").
		WithArgs(2, "South Depot").WillReturnResult(sqlmock.NewResult(2, 2))
	expectColumns(mock, "locations", [3]string{"id", "int", ""}, [3]string{"site_id", "int", ""}, [3]string{"label", "varchar", ""})
	for _, row := range doc.Tables["locations"] {
		mock.ExpectExec("REPLACE INTO `locations` (`id`, `label`, `site_id`) VALUES (?, ?, ?)").
			WithArgs(row["id"], row["label"], row["site_id"]).WillReturnResult(sqlmock.NewResult(0, 1))
	}
	expectFinish(mock)

	result, err := newTestRestoreEngine(db).RestoreDocument(context.Background(), doc, RestorePolicyBestEffort)
	require.NoError(t, err)

	assert.Equal(t, BackupFormatSealed, result.Format)
	assert.Equal(t, []string{"locations", "sites"}, result.Cleared)
	assert.Equal(t, 4, result.Inserted)
	assert.Equal(t, 1, result.Replaced)
	assert.Equal(t, 0, result.Skipped)
	assert.Empty(t, result.Errors)
	assert.Equal(t, &TableRestoreStats{Inserted: 1, Replaced: 1}, result.Tables["sites"])
	assert.Equal(t, &TableRestoreStats{Inserted: 3}, result.Tables["locations"])
	assert.NotContains(t, result.Tables, "scratch")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreDocument_ReplayGivesSameRows(t *testing.T) {
	db, mock := newMockDB(t)
	doc := &Document{Format: DocumentFormat, Metadata: &Metadata{}, Tables: sampleTables()}
	engine := newTestRestoreEngine(db)

	expectReplay := func() {
		expectStart(mock)
		expectColumns(mock, "sites", siteColumns()...)
		for _, row := range doc.Tables["sites"] {
			mock.ExpectExec("REPLACE INTO `sites` (`id`, `name`) VALUES (?, ?)").
				WithArgs(row["id"], row["name"]).WillReturnResult(sqlmock.NewResult(0, 1))
		}
		expectColumns(mock, "locations", [3]string{"id", "int", ""}, [3]string{"site_id", "int", ""}, [3]string{"label", "varchar", ""})
		for _, row := range doc.Tables["locations"] {
			mock.ExpectExec("REPLACE INTO `locations` (`id`, `label`, `site_id`) VALUES (?, ?, ?)").
				WithArgs(row["id"], row["label"], row["site_id"]).WillReturnResult(sqlmock.NewResult(0, 1))
		}
		expectFinish(mock)
	}

	var results []*RestoreResult
	for i := 0; i < 2; i++ {
		expectReplay()
		result, err := engine.RestoreDocument(context.Background(), doc, RestorePolicyStrict)
		require.NoError(t, err)
		result.Duration = 0
		results = append(results, result)
	}

	assert.Equal(t, results[0], results[1])
	assert.Equal(t, 5, results[1].Inserted)
	assert.Equal(t, 0, results[1].Replaced)
	assert.Empty(t, results[1].Errors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreDocument_DefaultsToBestEffort(t *testing.T) {
	db, mock := newMockDB(t)
	doc := &Document{Format: DocumentFormat, Metadata: &Metadata{}, Tables: map[string][]Row{}}

	expectStart(mock)
	expectFinish(mock)

	result, err := newTestRestoreEngine(db).RestoreDocument(context.Background(), doc, "")
	require.NoError(t, err)
	assert.Equal(t, RestorePolicyBestEffort, result.Policy)
	assert.Equal(t, 0, result.Inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreDocument_ClearLeavesRows(t *testing.T) {
	db, mock := newMockDB(t)
	doc := &Document{Format: DocumentFormat, Metadata: &Metadata{}, Tables: sampleTables()}

	mock.ExpectBegin()
	mock.ExpectExec(suspendChecksSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM `locations`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT COUNT(*) FROM `locations`").
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(2))
	expectAbort(mock)

	result, err := newTestRestoreEngine(db).RestoreDocument(context.Background(), doc, RestorePolicyBestEffort)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, IsType(err, BackupErrorTypeTableClear))
	assert.Contains(t, err.Error(), "locations still holds 2 rows")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreDocument_ClearFailsOnLockedTable(t *testing.T) {
	db, mock := newMockDB(t)
	doc := &Document{Format: DocumentFormat, Metadata: &Metadata{}, Tables: sampleTables()}

	mock.ExpectBegin()
	mock.ExpectExec(suspendChecksSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM `locations`").
		WillReturnError(&mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"})
	expectAbort(mock)

	_, err := newTestRestoreEngine(db).RestoreDocument(context.Background(), doc, RestorePolicyBestEffort)
	require.Error(t, err)
	assert.True(t, IsType(err, BackupErrorTypeTableClear))
	assert.Contains(t, err.Error(), "failed to clear table locations")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreDocument_MissingTableIsNotCleared(t *testing.T) {
	db, mock := newMockDB(t)
	doc := &Document{Format: DocumentFormat, Metadata: &Metadata{}, Tables: map[string][]Row{}}

	mock.ExpectBegin()
	mock.ExpectExec(suspendChecksSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM `locations`").
		WillReturnError(&mysql.MySQLError{Number: 1146, Message: "Table 'app.locations' doesn't exist"})
	expectClearTable(mock, "sites", 0)
	expectFinish(mock)

	result, err := newTestRestoreEngine(db).RestoreDocument(context.Background(), doc, RestorePolicyBestEffort)
	require.NoError(t, err)
	assert.Equal(t, []string{"sites"}, result.Cleared)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreDocument_BestEffortSkipsBadRows(t *testing.T) {
	db, mock := newMockDB(t)
	doc := &Document{Format: DocumentFormat, Metadata: &Metadata{}, Tables: map[string][]Row{
		"sites": {
			{"id": 1, "name": "A"},
			{"id": 2, "name": "B", "legacy_code": "x"},
			{"id": 3, "name": "C"},
			{"id": 4, "name": "D"},
		},
	}}

	expectStart(mock)
	expectColumns(mock, "sites", siteColumns()...)
	mock.ExpectExec("REPLACE INTO `sites` (`id`, `name`) VALUES (?, ?)").
		WithArgs(1, "A").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("REPLACE INTO `sites` (`id`, `name`) VALUES (?, ?)").
		WithArgs(3, "C").WillReturnError(errors.New("Data too long for column 'name'"))
	mock.ExpectExec("REPLACE INTO `sites` (`id`, `name`) VALUES (?, ?)").
		WithArgs(4, "D").WillReturnResult(sqlmock.NewResult(0, 1))
	expectFinish(mock)

	result, err := newTestRestoreEngine(db).RestoreDocument(context.Background(), doc, RestorePolicyBestEffort)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 2, result.Skipped)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, RestoreIssue{
		Type:    BackupErrorTypeRowRestore,
		Table:   "sites",
		Row:     "id=2",
		Message: "unknown column(s) legacy_code",
	}, result.Errors[0])
	assert.Equal(t, "id=3", result.Errors[1].Row)
	assert.Contains(t, result.Errors[1].Message, "Data too long")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreDocument_StrictRollsBackOnBadRow(t *testing.T) {
	db, mock := newMockDB(t)
	doc := &Document{Format: DocumentFormat, Metadata: &Metadata{}, Tables: map[string][]Row{
		"sites": {{"id": 1, "name": "A"}, {"id": 2, "name": "B", "legacy_code": "x"}},
	}}

	expectStart(mock)
	expectColumns(mock, "sites", siteColumns()...)
	mock.ExpectExec("REPLACE INTO `sites` (`id`, `name`) VALUES (?, ?)").
		WithArgs(1, "A").WillReturnResult(sqlmock.NewResult(0, 1))
	expectAbort(mock)

	result, err := newTestRestoreEngine(db).RestoreDocument(context.Background(), doc, RestorePolicyStrict)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, IsType(err, BackupErrorTypeRowRestore))
	assert.Contains(t, err.Error(), "sites row id=2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreDocument_DropsGeneratedColumns(t *testing.T) {
	db, mock := newMockDB(t)
	doc := &Document{Format: DocumentFormat, Metadata: &Metadata{}, Tables: map[string][]Row{
		"sites": {{
			"id":         1,
			"name":       "A",
			"name_upper": "A",
			"created_at": "2026-03-04T05:06:07Z",
			"settings":   map[string]interface{}{"zone": "eu"},
		}},
	}}

	expectStart(mock)
	expectColumns(mock, "sites",
		[3]string{"id", "int", "auto_increment"},
		[3]string{"name", "varchar", ""},
		[3]string{"name_upper", "varchar", "VIRTUAL GENERATED"},
		[3]string{"created_at", "datetime", "DEFAULT_GENERATED"},
		[3]string{"settings", "json", ""},
	)
	mock.ExpectExec("REPLACE INTO `sites` (`created_at`, `id`, `name`, `settings`) VALUES (?, ?, ?, ?)").
		WithArgs("2026-03-04 05:06:07", 1, "A", `{"zone":"eu"}`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	expectFinish(mock)

	result, err := newTestRestoreEngine(db).RestoreDocument(context.Background(), doc, RestorePolicyStrict)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Empty(t, result.Errors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreDocument_NoMatchingColumns(t *testing.T) {
	doc := func() *Document {
		return &Document{Format: DocumentFormat, Metadata: &Metadata{}, Tables: map[string][]Row{
			"sites": {{"id": 1, "name": "A"}, {"id": 2, "name": "B"}},
		}}
	}

	t.Run("best effort skips the table", func(t *testing.T) {
		db, mock := newMockDB(t)
		expectStart(mock)
		expectColumns(mock, "sites", [3]string{"site_id", "int", ""})
		expectFinish(mock)

		result, err := newTestRestoreEngine(db).RestoreDocument(context.Background(), doc(), RestorePolicyBestEffort)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Skipped)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "sites", result.Errors[0].Table)
		assert.Empty(t, result.Errors[0].Row)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("strict rolls back", func(t *testing.T) {
		db, mock := newMockDB(t)
		expectStart(mock)
		expectColumns(mock, "sites", [3]string{"site_id", "int", ""})
		expectAbort(mock)

		_, err := newTestRestoreEngine(db).RestoreDocument(context.Background(), doc(), RestorePolicyStrict)
		require.Error(t, err)
		assert.True(t, IsType(err, BackupErrorTypeRowRestore))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRestoreDocument_Malformed(t *testing.T) {
	db, mock := newMockDB(t)

	_, err := newTestRestoreEngine(db).RestoreDocument(context.Background(), &Document{Format: "other"}, RestorePolicyBestEffort)
	require.Error(t, err)
	assert.True(t, IsType(err, BackupErrorTypeMalformedDocument))
	assert.NoError(t, mock.ExpectationsWereMet())
}

const sqlScript = "-- mysql-data-vault SQL backup\n" +
	"INSERT INTO `sites` (`id`, `name`) VALUES (1, 'A; B');\n" +
	"INSERT INTO `locations` (`id`, `site_id`) VALUES (10, 7);\n"

func TestRestoreSQL_BestEffort(t *testing.T) {
	db, mock := newMockDB(t)

	expectStart(mock)
	mock.ExpectExec("REPLACE INTO `sites` (`id`, `name`) VALUES (1, 'A; B')").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("REPLACE INTO `locations` (`id`, `site_id`) VALUES (10, 7)").
		WillReturnError(&mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row"})
	expectFinish(mock)

	result, err := newTestRestoreEngine(db).RestoreSQL(context.Background(), sqlScript, RestorePolicyBestEffort)
	require.NoError(t, err)

	assert.Equal(t, BackupFormatSQL, result.Format)
	assert.Equal(t, 1, result.Statements)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "locations", result.Errors[0].Table)
	assert.Equal(t, "statement 2", result.Errors[0].Row)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreSQL_Strict(t *testing.T) {
	batch := "REPLACE INTO `sites` (`id`, `name`) VALUES (1, 'A; B');\n" +
		"REPLACE INTO `locations` (`id`, `site_id`) VALUES (10, 7);"

	t.Run("commits as one batch", func(t *testing.T) {
		db, mock := newMockDB(t)
		expectStart(mock)
		mock.ExpectExec(batch).WillReturnResult(sqlmock.NewResult(0, 2))
		expectFinish(mock)

		result, err := newTestRestoreEngine(db).RestoreSQL(context.Background(), sqlScript, RestorePolicyStrict)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Statements)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		db, mock := newMockDB(t)
		expectStart(mock)
		mock.ExpectExec(batch).WillReturnError(errors.New("syntax error"))
		expectAbort(mock)

		_, err := newTestRestoreEngine(db).RestoreSQL(context.Background(), sqlScript, RestorePolicyStrict)
		require.Error(t, err)
		assert.True(t, IsType(err, BackupErrorTypeRowRestore))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDescribeRow(t *testing.T) {
	assert.Equal(t, "id=7", describeRow(Row{"id": 7, "name": "x"}))
	assert.Equal(t, "a=1, b=2, c=3", describeRow(Row{"d": 4, "c": 3, "b": 2, "a": 1}))

	long := describeRow(Row{"note": string(make([]byte, 200))})
	assert.Len(t, long, maxRowDescription+3)
}

func TestIsGeneratedColumn(t *testing.T) {
	assert.True(t, isGeneratedColumn("VIRTUAL GENERATED"))
	assert.True(t, isGeneratedColumn("stored generated"))
	assert.False(t, isGeneratedColumn("DEFAULT_GENERATED"))
	assert.False(t, isGeneratedColumn("DEFAULT_GENERATED on update CURRENT_TIMESTAMP"))
	assert.False(t, isGeneratedColumn(""))
}

func TestStatementTable(t *testing.T) {
	assert.Equal(t, "sites", statementTable("REPLACE INTO `sites` (`id`) VALUES (1)"))
	assert.Equal(t, "locations", statementTable("insert ignore into locations VALUES (1)"))
	assert.Equal(t, "", statementTable("SET NAMES utf8mb4"))
}
