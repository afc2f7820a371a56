// Package backup captures the tables of a MySQL database into signed,
// compressed backup documents and restores them again.
//
// A backup is taken in three steps. SnapshotBuilder reads every table of the
// catalog, Sealer attaches per-table checksums, a total checksum and an
// HMAC-SHA256 signature, and ContainerCodec serializes, compresses and
// optionally encrypts the result. Validator recomputes all of it on the way
// back. RestoreEngine empties the catalog tables in reverse dependency order
// and re-populates them with REPLACE inside a single transaction.
//
// Manager ties these together with a StorageProvider (local directory, S3,
// Azure Blob Storage or Google Cloud Storage) and a retention ceiling:
//
//	manager, err := backup.NewManager(ctx, db, config, backup.ManagerOptions{Database: "app"})
//	if err != nil {
//		return err
//	}
//	created, err := manager.CreateBackup(ctx, backup.CreateOptions{})
//	if err != nil {
//		return err
//	}
//	report, err := manager.ValidateBackup(ctx, created.Name)
//	...
//	result, err := manager.RestoreBackup(ctx, created.Name, backup.RestoreOptions{})
//
// A legacy plain SQL format is also written and restored. It carries no
// checksums or signature.
package backup
