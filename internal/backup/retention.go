package backup

import (
	"context"
	"sort"

	"mysql-data-vault/internal/logging"
)

// RetentionManager keeps the number of stored backups under a ceiling
type RetentionManager struct {
	storage    StorageProvider
	codec      *ContainerCodec
	maxBackups int
	logger     *logging.Logger
}

// NewRetentionManager creates a retention manager
func NewRetentionManager(storage StorageProvider, codec *ContainerCodec, maxBackups int, logger *logging.Logger) *RetentionManager {
	if maxBackups < 1 {
		maxBackups = DefaultMaxBackups
	}
	return &RetentionManager{storage: storage, codec: codec, maxBackups: maxBackups, logger: logger}
}

// Backups lists stored backups oldest first. Files that do not carry a
// backup name are ignored.
func (rm *RetentionManager) Backups(ctx context.Context) ([]BackupEntry, error) {
	objects, err := rm.storage.List(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]BackupEntry, 0, len(objects))
	for _, obj := range objects {
		parsed, ok := rm.codec.ParseName(obj.Name)
		if !ok {
			continue
		}
		createdAt := parsed.CreatedAt
		if createdAt.IsZero() {
			createdAt = obj.ModTime
		}
		entries = append(entries, BackupEntry{
			Name:        obj.Name,
			Format:      parsed.Format,
			Size:        obj.Size,
			CreatedAt:   createdAt,
			Compression: parsed.Compression,
			Encrypted:   parsed.Encrypted,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// MakeRoom deletes the single oldest backup when the store is at or above
// the ceiling. It returns the deleted name, or "" when nothing was removed.
func (rm *RetentionManager) MakeRoom(ctx context.Context) (string, error) {
	entries, err := rm.Backups(ctx)
	if err != nil {
		return "", err
	}
	if len(entries) < rm.maxBackups {
		return "", nil
	}

	oldest := entries[0].Name
	if err := rm.storage.Delete(ctx, oldest); err != nil && !IsType(err, BackupErrorTypeNotFound) {
		return "", err
	}

	rm.logger.WithFields(map[string]interface{}{
		"backup":      oldest,
		"count":       len(entries),
		"max_backups": rm.maxBackups,
	}).Info("Rotated oldest backup")
	return oldest, nil
}

// MaxBackups returns the configured ceiling
func (rm *RetentionManager) MaxBackups() int {
	return rm.maxBackups
}
