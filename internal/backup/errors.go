package backup

import (
	"errors"
	"fmt"
)

// BackupError represents errors that occur during backup operations
type BackupError struct {
	Type    BackupErrorType        `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *BackupError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause error
func (e *BackupError) Unwrap() error {
	return e.Cause
}

// BackupErrorType represents different types of backup errors
type BackupErrorType string

const (
	// Thrown: the operation did not run or was rolled back.
	BackupErrorTypeMalformedDocument BackupErrorType = "MALFORMED_DOCUMENT"
	BackupErrorTypeTableClear        BackupErrorType = "TABLE_CLEAR_FAILURE"
	BackupErrorTypeNotFound          BackupErrorType = "FILE_NOT_FOUND"
	BackupErrorTypePayloadTooLarge   BackupErrorType = "PAYLOAD_TOO_LARGE"
	BackupErrorTypeInvalidEncoding   BackupErrorType = "INVALID_ENCODING"

	// Collected into reports. Thrown only when a caller asks for strict behaviour.
	BackupErrorTypeChecksumMismatch BackupErrorType = "CHECKSUM_MISMATCH"
	BackupErrorTypeSignatureInvalid BackupErrorType = "SIGNATURE_INVALID"
	BackupErrorTypeRowRestore       BackupErrorType = "ROW_RESTORE_ERROR"

	BackupErrorTypeConfiguration BackupErrorType = "CONFIGURATION_ERROR"
	BackupErrorTypeStorage       BackupErrorType = "STORAGE_ERROR"
	BackupErrorTypeCompression   BackupErrorType = "COMPRESSION_ERROR"
	BackupErrorTypeEncryption    BackupErrorType = "ENCRYPTION_ERROR"
	BackupErrorTypeDatabase      BackupErrorType = "DATABASE_ERROR"
	BackupErrorTypeValidation    BackupErrorType = "VALIDATION_ERROR"
)

// NewBackupError creates a new BackupError
func NewBackupError(errorType BackupErrorType, message string, cause error) *BackupError {
	return &BackupError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *BackupError) WithContext(key string, value interface{}) *BackupError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func NewMalformedDocumentError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeMalformedDocument, message, cause)
}

// NewTableClearError reports a table that could not be emptied. remaining is
// ignored when cause is set.
func NewTableClearError(table string, remaining int64, cause error) *BackupError {
	if cause != nil {
		return NewBackupError(BackupErrorTypeTableClear, fmt.Sprintf("failed to clear table %s", table), cause).
			WithContext("table", table)
	}
	return NewBackupError(BackupErrorTypeTableClear,
		fmt.Sprintf("table %s still holds %d rows after clear", table, remaining), nil).
		WithContext("table", table).
		WithContext("remaining_rows", remaining)
}

func NewNotFoundError(name string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeNotFound, fmt.Sprintf("backup %s not found", name), cause).
		WithContext("backup", name)
}

func NewPayloadTooLargeError(limit int64) *BackupError {
	return NewBackupError(BackupErrorTypePayloadTooLarge,
		fmt.Sprintf("payload exceeds the %d byte limit", limit), nil).
		WithContext("limit_bytes", limit)
}

func NewInvalidEncodingError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeInvalidEncoding, message, cause)
}

func NewRowRestoreError(table, row string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeRowRestore, fmt.Sprintf("failed to restore %s row %s", table, row), cause).
		WithContext("table", table).
		WithContext("row", row)
}

func NewConfigurationError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeConfiguration, message, cause)
}

func NewStorageError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeStorage, message, cause)
}

func NewCompressionError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeCompression, message, cause)
}

func NewEncryptionError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeEncryption, message, cause)
}

func NewDatabaseError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeDatabase, message, cause)
}

func NewValidationError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeValidation, message, cause)
}

// IsType reports whether err or any error it wraps is a BackupError of the given type
func IsType(err error, errorType BackupErrorType) bool {
	var backupErr *BackupError
	for err != nil {
		if !errors.As(err, &backupErr) {
			return false
		}
		if backupErr.Type == errorType {
			return true
		}
		err = backupErr.Cause
	}
	return false
}

// IsRetryable reports whether retrying the operation may succeed
func IsRetryable(err error) bool {
	var backupErr *BackupError
	if errors.As(err, &backupErr) {
		return backupErr.Type == BackupErrorTypeStorage
	}
	return false
}

// ValidationError describes one invalid configuration field
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidationErrors represents a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%d validation errors: %s (and %d more)", len(e), e[0].Error(), len(e)-1)
}

// Add adds a validation error to the collection
func (e *ValidationErrors) Add(field, message string, value interface{}) {
	*e = append(*e, ValidationError{Field: field, Message: message, Value: value})
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}
