package backup

import (
	"sync"
	"time"

	"mysql-data-vault/internal/logging"
)

// OperationKind names a tracked manager operation
type OperationKind string

const (
	OperationCreate   OperationKind = "create"
	OperationValidate OperationKind = "validate"
	OperationRestore  OperationKind = "restore"
	OperationDelete   OperationKind = "delete"
	OperationImport   OperationKind = "import"
)

// OperationMetrics tracks success/failure rates for operations
type OperationMetrics struct {
	Total       int64   `json:"total"`
	Success     int64   `json:"success"`
	Failed      int64   `json:"failed"`
	SuccessRate float64 `json:"success_rate"`

	AverageDuration time.Duration `json:"average_duration"`
	MinDuration     time.Duration `json:"min_duration"`
	MaxDuration     time.Duration `json:"max_duration"`
}

func (om *OperationMetrics) record(success bool, duration time.Duration) {
	om.Total++
	if success {
		om.Success++
	} else {
		om.Failed++
	}
	om.SuccessRate = float64(om.Success) / float64(om.Total)

	if om.MinDuration == 0 || duration < om.MinDuration {
		om.MinDuration = duration
	}
	if duration > om.MaxDuration {
		om.MaxDuration = duration
	}
	totalDuration := time.Duration(int64(om.AverageDuration)*(om.Total-1)) + duration
	om.AverageDuration = totalDuration / time.Duration(om.Total)
}

// BackupMetrics is a point-in-time copy of the collected metrics
type BackupMetrics struct {
	Operations map[OperationKind]OperationMetrics `json:"operations"`

	BytesWritten            int64   `json:"bytes_written"`
	AverageCompressionRatio float64 `json:"average_compression_ratio"`
	RowsCaptured            int64   `json:"rows_captured"`
	RowsRestored            int64   `json:"rows_restored"`
	RowErrors               int64   `json:"row_errors"`
	BackupsRotated          int64   `json:"backups_rotated"`
	InvalidBackups          int64   `json:"invalid_backups"`

	StartTime  time.Time `json:"start_time"`
	LastUpdate time.Time `json:"last_update"`
}

// MetricsCollector accumulates in-process counters for manager operations
type MetricsCollector struct {
	logger  *logging.Logger
	mu      sync.Mutex
	ops     map[OperationKind]*OperationMetrics
	metrics BackupMetrics
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(logger *logging.Logger) *MetricsCollector {
	return &MetricsCollector{
		logger:  logger,
		ops:     make(map[OperationKind]*OperationMetrics),
		metrics: BackupMetrics{StartTime: time.Now()},
	}
}

// RecordOperation counts one finished operation
func (mc *MetricsCollector) RecordOperation(kind OperationKind, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.recordLocked(kind, success, duration)
}

// RecordCreate counts a backup together with its size and compression ratio
func (mc *MetricsCollector) RecordCreate(success bool, duration time.Duration, result *CreateResult) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.recordLocked(OperationCreate, success, duration)
	if !success || result == nil {
		return
	}

	mc.metrics.BytesWritten += result.CompressedSize
	mc.metrics.RowsCaptured += int64(result.TotalRecords)
	if result.Rotated != "" {
		mc.metrics.BackupsRotated++
	}
	if result.CompressionRatio > 0 {
		if mc.metrics.AverageCompressionRatio == 0 {
			mc.metrics.AverageCompressionRatio = result.CompressionRatio
		} else {
			mc.metrics.AverageCompressionRatio = (mc.metrics.AverageCompressionRatio + result.CompressionRatio) / 2
		}
	}
}

// RecordValidation counts a validation. A report that is not valid still
// counts as a successful operation.
func (mc *MetricsCollector) RecordValidation(success bool, duration time.Duration, report *ValidationReport) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.recordLocked(OperationValidate, success, duration)
	if report != nil && !report.Valid {
		mc.metrics.InvalidBackups++
	}
}

// RecordRestore counts a restore and the rows it applied
func (mc *MetricsCollector) RecordRestore(success bool, duration time.Duration, result *RestoreResult) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.recordLocked(OperationRestore, success, duration)
	if result != nil {
		mc.metrics.RowsRestored += int64(result.Inserted + result.Replaced)
		mc.metrics.RowErrors += int64(len(result.Errors))
	}
}

func (mc *MetricsCollector) recordLocked(kind OperationKind, success bool, duration time.Duration) {
	om, ok := mc.ops[kind]
	if !ok {
		om = &OperationMetrics{}
		mc.ops[kind] = om
	}
	om.record(success, duration)
	mc.metrics.LastUpdate = time.Now()

	mc.logger.WithFields(map[string]interface{}{
		"operation":    string(kind),
		"success":      success,
		"duration":     duration.String(),
		"total":        om.Total,
		"success_rate": om.SuccessRate,
	}).Debug("Recorded operation metrics")
}

// GetMetrics returns a copy of the current metrics
func (mc *MetricsCollector) GetMetrics() BackupMetrics {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	snapshot := mc.metrics
	snapshot.Operations = make(map[OperationKind]OperationMetrics, len(mc.ops))
	for kind, om := range mc.ops {
		snapshot.Operations[kind] = *om
	}
	return snapshot
}
