package backup

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"mysql-data-vault/internal/catalog"
)

var insertPrefix = regexp.MustCompile(`(?i)^INSERT\s+INTO\b`)

var sqlStringEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\x00", `\0`,
	"\n", `\n`,
	"\r", `\r`,
	"\x1a", `\Z`,
)

// SQLScriptWriter renders a snapshot as a plain SQL script of INSERT statements
type SQLScriptWriter struct {
	catalog *catalog.Catalog
}

// NewSQLScriptWriter creates a writer that emits tables in restore order
func NewSQLScriptWriter(cat *catalog.Catalog) *SQLScriptWriter {
	return &SQLScriptWriter{catalog: cat}
}

// Write renders snapshot. The script is unsigned and carries no checksums.
// Generated columns recorded in the snapshot are left out of every INSERT.
func (w *SQLScriptWriter) Write(snapshot *Snapshot, database string, createdAt time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "-- mysql-data-vault SQL backup\n")
	fmt.Fprintf(&b, "-- Database: %s\n", database)
	fmt.Fprintf(&b, "-- Created: %s\n", createdAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "-- Tables: %d, Rows: %d\n", len(snapshot.Tables), snapshot.TotalRecords())

	for _, table := range w.catalog.RestoreOrder() {
		rows, ok := snapshot.Tables[table]
		if !ok {
			continue
		}
		types := snapshot.ColumnTypes[table]

		fmt.Fprintf(&b, "\n-- Table: %s (%d rows)\n", table, len(rows))
		for _, row := range rows {
			var quoted, literals []string
			for _, col := range sortedKeys(row) {
				if snapshot.IsGenerated(table, col) {
					continue
				}
				quoted = append(quoted, quoteIdent(col))
				literals = append(literals, sqlLiteral(row[col], types[col]))
			}
			fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s);\n",
				quoteIdent(table), strings.Join(quoted, ", "), strings.Join(literals, ", "))
		}
	}
	return b.String()
}

func sortedKeys(row Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sqlLiteral renders one captured value as a MySQL literal
func sqlLiteral(v interface{}, dataType string) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "1"
		}
		return "0"
	case json.Number:
		return val.String()
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case []byte:
		return quoteString(string(val))
	case string:
		switch {
		case isBinaryType(dataType):
			return "FROM_BASE64(" + quoteString(val) + ")"
		case isDateType(dataType):
			return quoteString(toStoreDate(val, dataType))
		}
		return quoteString(val)
	default:
		return quoteString(fmt.Sprint(val))
	}
}

func quoteString(s string) string {
	return "'" + sqlStringEscaper.Replace(s) + "'"
}

// ReplaceStatements splits script into statements and turns each one that
// starts with INSERT INTO into REPLACE INTO, so the script can be replayed
// over existing rows. String literals and comments are never rewritten.
func ReplaceStatements(script string) []string {
	statements := SplitStatements(script)
	for i, stmt := range statements {
		statements[i] = insertPrefix.ReplaceAllString(stmt, "REPLACE INTO")
	}
	return statements
}

// joinStatements renders statements as one multi-statement batch
func joinStatements(statements []string) string {
	return strings.Join(statements, ";\n") + ";"
}

// SplitStatements splits a script on semicolons that are outside quotes,
// backticks and comments. Comments are dropped except MySQL's executable
// /*! ... */ form. Empty statements are omitted.
func SplitStatements(script string) []string {
	var (
		statements []string
		current    strings.Builder
	)

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch {
		case r == '\'' || r == '"' || r == '`':
			end := scanQuoted(runes, i)
			current.WriteString(string(runes[i:end]))
			i = end - 1

		case r == '#' || (r == '-' && next == '-' && (i+2 >= len(runes) || isSQLSpace(runes[i+2]))):
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			current.WriteRune('\n')

		case r == '/' && next == '*':
			executable := i+2 < len(runes) && runes[i+2] == '!'
			start := i
			i += 2
			for i < len(runes) && !(runes[i] == '*' && i+1 < len(runes) && runes[i+1] == '/') {
				i++
			}
			end := i + 2
			if end > len(runes) {
				end = len(runes)
			}
			if executable {
				current.WriteString(string(runes[start:end]))
			} else {
				current.WriteRune(' ')
			}
			i = end - 1

		case r == ';':
			flush()

		default:
			current.WriteRune(r)
		}
	}
	flush()

	return statements
}

// scanQuoted returns the index just past the quoted section starting at start
func scanQuoted(runes []rune, start int) int {
	quote := runes[start]
	for i := start + 1; i < len(runes); i++ {
		switch {
		case runes[i] == '\\' && quote != '`':
			i++
		case runes[i] == quote:
			if i+1 < len(runes) && runes[i+1] == quote {
				i++
				continue
			}
			return i + 1
		}
	}
	return len(runes)
}

func isSQLSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
