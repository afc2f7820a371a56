package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"mysql-data-vault/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLogLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestOperationLogger_Start(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewLogger(logging.Config{Level: logging.LogLevelVerbose, Output: &buf, Format: "json"})
	require.NoError(t, err)

	oplog := NewOperationLogger(logger, "corr-1")
	assert.Equal(t, "corr-1", oplog.CorrelationID())

	done := oplog.Start("backup_create", "backup_2026-01-02_03-04-05.json.gz", map[string]interface{}{"format": "SEALED"})
	done(nil, map[string]interface{}{"records": 5})

	entries := decodeLogLines(t, &buf)
	require.Len(t, entries, 2)

	assert.Equal(t, "started", entries[0]["status"])
	assert.Equal(t, "corr-1", entries[0]["correlation_id"])
	assert.Equal(t, "SEALED", entries[0]["format"])
	assert.NotContains(t, entries[0], "records")

	assert.Equal(t, "completed", entries[1]["status"])
	assert.Equal(t, "info", entries[1]["level"])
	assert.Equal(t, "backup_2026-01-02_03-04-05.json.gz", entries[1]["backup"])
	assert.Equal(t, float64(5), entries[1]["records"])
	assert.Equal(t, true, entries[1]["success"])
}

func TestOperationLogger_Failure(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewLogger(logging.Config{Level: logging.LogLevelQuiet, Output: &buf, Format: "json"})
	require.NoError(t, err)

	done := NewOperationLogger(logger, "").Start("backup_restore", "b", nil)
	done(errors.New("clear failed"), nil)

	entries := decodeLogLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "failed", entries[0]["status"])
	assert.Equal(t, "error", entries[0]["level"])
	assert.Equal(t, "clear failed", entries[0]["error"])
	assert.Len(t, entries[0]["correlation_id"], 36)
}
