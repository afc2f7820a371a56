package backup

import (
	"context"
	"fmt"
	"io"
	"time"

	"mysql-data-vault/internal/catalog"
	"mysql-data-vault/internal/logging"
)

// Database is what the manager needs from *sql.DB
type Database interface {
	Queryer
	TxStarter
}

// ManagerOptions carries optional collaborators for NewManager
type ManagerOptions struct {
	// Database is recorded in document metadata
	Database string
	// Storage overrides the provider built from configuration
	Storage StorageProvider
	Logger  *logging.Logger
	// Clock overrides time.Now for backup timestamps
	Clock func() time.Time
}

// CreateOptions selects the output of CreateBackup
type CreateOptions struct {
	Format    BackupFormat
	CreatedBy string
}

// RestoreOptions controls RestoreBackup. An empty Policy uses the configured one.
type RestoreOptions struct {
	Policy         RestorePolicy
	SkipValidation bool
}

// Manager is the entry point for creating, listing, validating, restoring,
// deleting and importing backups. It holds no lock: callers must not run a
// restore concurrently with another restore or backup of the same database.
type Manager struct {
	db        Database
	database  string
	config    *BackupSystemConfig
	catalog   *catalog.Catalog
	storage   StorageProvider
	codec     *ContainerCodec
	sealer    *Sealer
	validator *Validator
	snapshot  *SnapshotBuilder
	sqlWriter *SQLScriptWriter
	restorer  *RestoreEngine
	retention *RetentionManager
	metrics   *MetricsCollector
	logger    *logging.Logger
	now       func() time.Time
}

// NewManager wires a manager from configuration. The configuration must
// carry a signing secret.
func NewManager(ctx context.Context, db Database, config *BackupSystemConfig, opts ManagerOptions) (*Manager, error) {
	if config == nil {
		return nil, NewConfigurationError("backup system configuration is required", nil)
	}
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, NewConfigurationError("invalid backup configuration", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	sealer, err := NewSealer([]byte(config.Signing.Secret))
	if err != nil {
		return nil, err
	}

	cat, err := config.BuildCatalog()
	if err != nil {
		return nil, err
	}

	var encryptor *Encryptor
	if config.Encryption.Enabled {
		if encryptor, err = NewEncryptor(config.Encryption.Passphrase); err != nil {
			return nil, err
		}
	}

	codec, err := NewContainerCodec(config.Compression.Algorithm, config.Compression.Level, encryptor)
	if err != nil {
		return nil, err
	}

	storage := opts.Storage
	if storage == nil {
		if storage, err = NewStorageProviderFactory().CreateStorageProvider(ctx, config.Storage); err != nil {
			return nil, err
		}
	}

	return &Manager{
		db:        db,
		database:  opts.Database,
		config:    config,
		catalog:   cat,
		storage:   storage,
		codec:     codec,
		sealer:    sealer,
		validator: NewValidator(sealer, cat),
		snapshot:  NewSnapshotBuilder(db, cat, logger),
		sqlWriter: NewSQLScriptWriter(cat),
		restorer:  NewRestoreEngine(db, cat, logger),
		retention: NewRetentionManager(storage, codec, config.Retention.MaxBackups, logger),
		metrics:   NewMetricsCollector(logger),
		logger:    logger,
		now:       clock,
	}, nil
}

// Catalog returns the table catalog in use
func (m *Manager) Catalog() *catalog.Catalog {
	return m.catalog
}

// Metrics returns a copy of the collected metrics
func (m *Manager) Metrics() BackupMetrics {
	return m.metrics.GetMetrics()
}

// HealthCheck verifies that the storage backend is reachable
func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.storage.HealthCheck(ctx)
}

// StorageLocation describes where backups are kept
func (m *Manager) StorageLocation() string {
	return m.storage.Location()
}

// CreateBackup captures every included table and stores it as a new backup.
// When the store already holds the maximum number of backups, the oldest is
// deleted before the new one is written.
func (m *Manager) CreateBackup(ctx context.Context, opts CreateOptions) (result *CreateResult, err error) {
	start := time.Now()
	if opts.Format == "" {
		opts.Format = BackupFormatSealed
	}
	if opts.CreatedBy == "" {
		opts.CreatedBy = m.config.CreatedBy
	}

	oplog := NewOperationLogger(m.logger, "")
	done := oplog.Start("backup_create", "", map[string]interface{}{
		"format":   string(opts.Format),
		"database": m.database,
	})
	defer func() {
		m.metrics.RecordCreate(err == nil, time.Since(start), result)
		if result != nil {
			done(nil, map[string]interface{}{"backup": result.Name, "records": result.TotalRecords})
		} else {
			done(err, nil)
		}
	}()

	snapshot, err := m.snapshot.Build(ctx)
	if err != nil {
		return nil, err
	}

	createdAt := m.now().UTC().Truncate(time.Second)
	name, err := m.uniqueName(ctx, opts.Format, createdAt)
	if err != nil {
		return nil, err
	}

	var (
		data  []byte
		stats *CompressionStats
	)
	switch opts.Format {
	case BackupFormatSealed:
		doc, err := m.sealer.Seal(snapshot.Tables, SealOptions{
			CreatedAt:  createdAt,
			CreatedBy:  opts.CreatedBy,
			Database:   m.database,
			AppVersion: m.config.AppVersion,
		})
		if err != nil {
			return nil, err
		}
		if data, stats, err = m.codec.Encode(doc); err != nil {
			return nil, err
		}
	case BackupFormatSQL:
		if err := m.snapshot.MarkGenerated(ctx, snapshot); err != nil {
			return nil, err
		}
		script := m.sqlWriter.Write(snapshot, m.database, createdAt)
		if data, err = m.codec.EncodeSQL(script); err != nil {
			return nil, err
		}
		stats = &CompressionStats{
			OriginalSize:     int64(len(script)),
			CompressedSize:   int64(len(data)),
			CompressionRatio: CalculateCompressionRatio(int64(len(script)), int64(len(data))),
		}
	default:
		return nil, NewValidationError(fmt.Sprintf("unsupported backup format: %s", opts.Format), nil)
	}

	rotated, err := m.retention.MakeRoom(ctx)
	if err != nil {
		return nil, err
	}

	if err := m.storage.Put(ctx, name, data); err != nil {
		return nil, err
	}

	tables := make(map[string]int, len(snapshot.Tables))
	for table, rows := range snapshot.Tables {
		tables[table] = len(rows)
	}

	return &CreateResult{
		Name:             name,
		Format:           opts.Format,
		CompressedSize:   stats.CompressedSize,
		UncompressedSize: stats.OriginalSize,
		CompressionRatio: stats.CompressionRatio,
		TotalRecords:     snapshot.TotalRecords(),
		Tables:           tables,
		Rotated:          rotated,
		Duration:         time.Since(start),
	}, nil
}

// uniqueName returns the first free name for createdAt, adding a sequence
// suffix when backups were already taken within the same second.
func (m *Manager) uniqueName(ctx context.Context, format BackupFormat, createdAt time.Time) (string, error) {
	objects, err := m.storage.List(ctx)
	if err != nil {
		return "", err
	}
	existing := make(map[string]bool, len(objects))
	for _, obj := range objects {
		existing[obj.Name] = true
	}

	for seq := 0; ; seq++ {
		name := m.codec.Name(format, createdAt, seq)
		if !existing[name] {
			return name, nil
		}
	}
}

// ListBackups returns stored backups newest first. Sealed entries carry
// their metadata, read without decoding any rows.
func (m *Manager) ListBackups(ctx context.Context) ([]BackupEntry, error) {
	entries, err := m.retention.Backups(ctx)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	for i := range entries {
		if entries[i].Format != BackupFormatSealed {
			continue
		}
		meta, err := m.readMetadata(ctx, entries[i].Name)
		if err != nil {
			m.logger.WithFields(map[string]interface{}{
				"backup": entries[i].Name,
				"error":  err.Error(),
			}).Warn("Failed to read backup metadata")
			continue
		}
		entries[i].Metadata = meta
	}
	return entries, nil
}

// GetBackupMetadata describes one backup. For sealed backups only the
// metadata object is decoded.
func (m *Manager) GetBackupMetadata(ctx context.Context, name string) (*BackupEntry, error) {
	entry, err := m.find(ctx, name)
	if err != nil {
		return nil, err
	}

	if entry.Format == BackupFormatSealed {
		if entry.Metadata, err = m.readMetadata(ctx, name); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

func (m *Manager) find(ctx context.Context, name string) (*BackupEntry, error) {
	if _, ok := m.codec.ParseName(name); !ok {
		return nil, NewNotFoundError(name, nil)
	}

	entries, err := m.retention.Backups(ctx)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].Name == name {
			return &entries[i], nil
		}
	}
	return nil, NewNotFoundError(name, nil)
}

func (m *Manager) readMetadata(ctx context.Context, name string) (*Metadata, error) {
	reader, err := m.storage.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return m.codec.DecodeMetadata(name, reader)
}

// ValidateBackup loads a sealed backup and checks its checksums and signature.
// Integrity failures are reported, not returned as errors.
func (m *Manager) ValidateBackup(ctx context.Context, name string) (report *ValidationReport, err error) {
	start := time.Now()
	done := NewOperationLogger(m.logger, "").Start("backup_validate", name, nil)
	defer func() {
		m.metrics.RecordValidation(err == nil, time.Since(start), report)
		if report != nil {
			done(nil, map[string]interface{}{
				"valid":    report.Valid,
				"errors":   len(report.Errors),
				"warnings": len(report.Warnings),
			})
		} else {
			done(err, nil)
		}
	}()

	doc, err := m.loadDocument(ctx, name)
	if err != nil {
		return nil, err
	}

	report, err = m.validator.Validate(doc)
	if err != nil {
		return nil, err
	}
	report.Name = name
	return report, nil
}

func (m *Manager) loadDocument(ctx context.Context, name string) (*Document, error) {
	parsed, ok := m.codec.ParseName(name)
	if !ok {
		return nil, NewNotFoundError(name, nil)
	}
	if parsed.Format != BackupFormatSealed {
		return nil, NewInvalidEncodingError(fmt.Sprintf("%s is a SQL backup and carries no integrity metadata", name), nil)
	}

	data, err := readObject(ctx, m.storage, name)
	if err != nil {
		return nil, err
	}
	return m.codec.Decode(name, data)
}

// RestoreBackup clears the catalog tables and re-populates them from a
// stored backup. Sealed backups are validated first unless disabled, and an
// invalid one is refused before anything is deleted.
func (m *Manager) RestoreBackup(ctx context.Context, name string, opts RestoreOptions) (result *RestoreResult, err error) {
	start := time.Now()
	policy := opts.Policy
	if policy == "" {
		policy = m.config.Restore.Policy
	}

	oplog := NewOperationLogger(m.logger, "")
	done := oplog.Start("backup_restore", name, map[string]interface{}{
		"policy": string(policy),
	})
	defer func() {
		m.metrics.RecordRestore(err == nil, time.Since(start), result)
		if result != nil {
			done(nil, map[string]interface{}{
				"inserted": result.Inserted,
				"replaced": result.Replaced,
				"skipped":  result.Skipped,
				"errors":   len(result.Errors),
			})
		} else {
			done(err, nil)
		}
	}()

	parsed, ok := m.codec.ParseName(name)
	if !ok {
		return nil, NewNotFoundError(name, nil)
	}

	if parsed.Format == BackupFormatSQL {
		data, err := readObject(ctx, m.storage, name)
		if err != nil {
			return nil, err
		}
		script, err := m.codec.DecodeSQL(name, data)
		if err != nil {
			return nil, err
		}
		if result, err = m.restorer.RestoreSQL(ctx, script, policy); err != nil {
			return nil, err
		}
		result.Name = name
		return result, nil
	}

	doc, err := m.loadDocument(ctx, name)
	if err != nil {
		return nil, err
	}

	if m.config.Restore.ShouldValidateFirst() && !opts.SkipValidation {
		report, err := m.validator.Validate(doc)
		if err != nil {
			return nil, err
		}
		if !report.Valid {
			oplog.WithBackup(name).WithField("errors", len(report.Errors)).Warn("Backup failed validation, nothing was deleted")
			return nil, refusal(name, report)
		}
	}

	if result, err = m.restorer.RestoreDocument(ctx, doc, policy); err != nil {
		return nil, err
	}
	result.Name = name
	return result, nil
}

// refusal converts a failed validation report into the error that stops a restore
func refusal(name string, report *ValidationReport) *BackupError {
	errorType := BackupErrorTypeValidation
	switch {
	case !report.TotalChecksumValid:
		errorType = BackupErrorTypeChecksumMismatch
	case !report.SignatureValid:
		errorType = BackupErrorTypeSignatureInvalid
	}
	return NewBackupError(errorType, fmt.Sprintf("backup %s failed validation, restore refused", name), nil).
		WithContext("backup", name).
		WithContext("errors", report.Errors)
}

// DeleteBackup removes a stored backup
func (m *Manager) DeleteBackup(ctx context.Context, name string) (err error) {
	start := time.Now()
	done := NewOperationLogger(m.logger, "").Start("backup_delete", name, nil)
	defer func() {
		m.metrics.RecordOperation(OperationDelete, err == nil, time.Since(start))
		done(err, nil)
	}()

	if _, ok := m.codec.ParseName(name); !ok {
		return NewNotFoundError(name, nil)
	}
	return m.storage.Delete(ctx, name)
}

// ImportBackup stores an uploaded backup under name after checking its size
// and encoding. Retention applies as for a newly created backup.
func (m *Manager) ImportBackup(ctx context.Context, name string, r io.Reader) (entry *BackupEntry, err error) {
	start := time.Now()
	done := NewOperationLogger(m.logger, "").Start("backup_import", name, nil)
	defer func() {
		m.metrics.RecordOperation(OperationImport, err == nil, time.Since(start))
		done(err, nil)
	}()

	if err := validateObjectName(name); err != nil {
		return nil, err
	}
	parsed, ok := m.codec.ParseName(name)
	if !ok {
		return nil, NewInvalidEncodingError(fmt.Sprintf("%s is not a backup file name", name), nil)
	}

	limit := m.config.Upload.MaxSizeBytes
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, NewStorageError("failed to read uploaded backup", err)
	}
	if int64(len(data)) > limit {
		return nil, NewPayloadTooLargeError(limit)
	}

	if parsed.Format == BackupFormatSealed {
		if _, err := m.codec.Decode(name, data); err != nil {
			if IsType(err, BackupErrorTypeConfiguration) {
				return nil, err
			}
			return nil, NewInvalidEncodingError("uploaded backup is not a readable sealed document", err)
		}
	} else if _, err := m.codec.DecodeSQL(name, data); err != nil {
		return nil, err
	}

	if _, err := m.find(ctx, name); err == nil {
		return nil, NewValidationError(fmt.Sprintf("backup %s already exists", name), nil)
	} else if !IsType(err, BackupErrorTypeNotFound) {
		return nil, err
	}

	if _, err := m.retention.MakeRoom(ctx); err != nil {
		return nil, err
	}
	if err := m.storage.Put(ctx, name, data); err != nil {
		return nil, err
	}

	return &BackupEntry{
		Name:        name,
		Format:      parsed.Format,
		Size:        int64(len(data)),
		CreatedAt:   parsed.CreatedAt,
		Compression: parsed.Compression,
		Encrypted:   parsed.Encrypted,
	}, nil
}
