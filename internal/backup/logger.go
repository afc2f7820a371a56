package backup

import (
	"time"

	"mysql-data-vault/internal/logging"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// OperationLogger writes structured entries for one backup operation. All
// entries it produces carry the same correlation ID.
type OperationLogger struct {
	logger        *logging.Logger
	correlationID string
}

// LogEntry is one structured entry of an operation
type LogEntry struct {
	Timestamp     time.Time
	CorrelationID string
	Operation     string
	Backup        string
	Status        string
	Duration      time.Duration
	Success       bool
	Error         string
	Metadata      map[string]interface{}
}

// NewOperationLogger creates an operation logger. An empty correlationID is
// replaced with a random UUID.
func NewOperationLogger(logger *logging.Logger, correlationID string) *OperationLogger {
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	return &OperationLogger{logger: logger, correlationID: correlationID}
}

// CorrelationID returns the ID shared by every entry of this operation
func (ol *OperationLogger) CorrelationID() string {
	return ol.correlationID
}

// Start logs the start of operation on backup and returns a function that
// logs its completion together with any result metadata.
func (ol *OperationLogger) Start(operation, backup string, metadata map[string]interface{}) func(error, map[string]interface{}) {
	startTime := time.Now()

	entry := LogEntry{
		Timestamp:     startTime,
		CorrelationID: ol.correlationID,
		Operation:     operation,
		Backup:        backup,
		Status:        "started",
		Success:       true,
		Metadata:      make(map[string]interface{}, len(metadata)),
	}
	for k, v := range metadata {
		entry.Metadata[k] = v
	}
	ol.logStructured(entry)

	return func(err error, result map[string]interface{}) {
		entry.Timestamp = time.Now()
		entry.Duration = time.Since(startTime)
		entry.Status = "completed"
		entry.Success = err == nil
		if err != nil {
			entry.Status = "failed"
			entry.Error = err.Error()
		}
		for k, v := range result {
			entry.Metadata[k] = v
		}
		ol.logStructured(entry)
	}
}

// WithBackup returns a logrus entry tagged with the correlation ID and backup name
func (ol *OperationLogger) WithBackup(backup string) *logrus.Entry {
	return ol.logger.WithFields(map[string]interface{}{
		"correlation_id": ol.correlationID,
		"backup":         backup,
	})
}

func (ol *OperationLogger) logStructured(entry LogEntry) {
	fields := logrus.Fields{
		"correlation_id": entry.CorrelationID,
		"operation":      entry.Operation,
		"status":         entry.Status,
		"success":        entry.Success,
	}
	if entry.Backup != "" {
		fields["backup"] = entry.Backup
	}
	if entry.Duration > 0 {
		fields["duration"] = entry.Duration.String()
	}
	if entry.Error != "" {
		fields["error"] = entry.Error
	}
	for k, v := range entry.Metadata {
		fields[k] = v
	}

	logEntry := ol.logger.WithFields(fields)
	switch {
	case !entry.Success:
		logEntry.Error("Backup operation failed")
	case entry.Status == "started":
		logEntry.Debug("Backup operation started")
	default:
		logEntry.Info("Backup operation completed")
	}
}
