package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mysql-data-vault/internal/backup"
	"mysql-data-vault/internal/display"

	"github.com/spf13/cobra"
)

// backupCmd represents the backup command group
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, inspect, verify and restore data backups",
	Long: `Manage data backups of the configured table catalog.

Sealed backups carry per-table checksums and an HMAC signature and are
validated before every restore. SQL backups are portable REPLACE scripts
without integrity metadata.`,
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Capture the catalog tables into a new backup",
	Long: `Capture every included table into a new backup.

Examples:
  mysql-data-vault backup create
  mysql-data-vault backup create --type sql --created-by nightly-job`,
	Args: cobra.NoArgs,
	RunE: runBackupCreate,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored backups, newest first",
	Args:  cobra.NoArgs,
	RunE:  runBackupList,
}

var backupShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show the metadata of a stored backup",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupShow,
}

var backupValidateCmd = &cobra.Command{
	Use:   "validate <name>",
	Short: "Verify the checksums and signature of a sealed backup",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupValidate,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <name>",
	Short: "Replace the catalog tables with the contents of a backup",
	Long: `Clear every catalog table and re-populate it from a backup inside one
transaction. Sealed backups that fail validation are refused before any row
is deleted.

Examples:
  mysql-data-vault backup restore backup_2026-01-02_03-04-05.json.gz
  mysql-data-vault backup restore backup_2026-01-02_03-04-05.sql --policy strict --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runBackupRestore,
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a stored backup",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupDelete,
}

var backupImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Upload a backup file into the backup store",
	Long: `Store a backup file produced elsewhere. The file is checked for size and
decodability; its name must follow the backup naming scheme.

Examples:
  mysql-data-vault backup import ./backup_2026-01-02_03-04-05.json.gz
  mysql-data-vault backup import ./download.bin --name backup_2026-01-02_03-04-05.sql`,
	Args: cobra.ExactArgs(1),
	RunE: runBackupImport,
}

var (
	createFormat   string
	createdBy      string
	listLimit      int
	restorePolicy  string
	skipValidation bool
	importName     string
)

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupCreateCmd, backupListCmd, backupShowCmd, backupValidateCmd,
		backupRestoreCmd, backupDeleteCmd, backupImportCmd)

	backupCreateCmd.Flags().StringVar(&createFormat, "type", "sealed", "backup format (sealed, sql)")
	backupCreateCmd.Flags().StringVar(&createdBy, "created-by", "", "creator recorded in the backup metadata")

	backupListCmd.Flags().IntVar(&listLimit, "limit", 0, "show at most this many backups (0 for all)")

	backupRestoreCmd.Flags().StringVar(&restorePolicy, "policy", "", "row failure policy (best-effort, strict); defaults to the configured policy")
	backupRestoreCmd.Flags().BoolVar(&skipValidation, "skip-validation", false, "restore a sealed backup without verifying it first")

	backupImportCmd.Flags().StringVar(&importName, "name", "", "store the file under this backup name (defaults to the file's base name)")
}

func parseBackupFormat(value string) (backup.BackupFormat, error) {
	switch strings.ToLower(value) {
	case "", "sealed", "json":
		return backup.BackupFormatSealed, nil
	case "sql":
		return backup.BackupFormatSQL, nil
	default:
		return "", fmt.Errorf("unknown backup format %q (expected sealed or sql)", value)
	}
}

func parseRestorePolicy(value string) (backup.RestorePolicy, error) {
	switch backup.RestorePolicy(strings.ToLower(value)) {
	case "":
		return "", nil
	case backup.RestorePolicyBestEffort:
		return backup.RestorePolicyBestEffort, nil
	case backup.RestorePolicyStrict:
		return backup.RestorePolicyStrict, nil
	default:
		return "", fmt.Errorf("unknown restore policy %q (expected best-effort or strict)", value)
	}
}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	format, err := parseBackupFormat(createFormat)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	s, err := newSession(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer s.Close()

	s.display.Info(fmt.Sprintf("Backing up %d tables of %s to %s", s.manager.Catalog().Len(), s.target.Database, s.manager.StorageLocation()))

	result, err := s.manager.CreateBackup(ctx, backup.CreateOptions{Format: format, CreatedBy: createdBy})
	if err != nil {
		return err
	}

	if s.display.GetConfig().IsStructured() {
		s.display.PrintObject("", result)
		return nil
	}

	s.display.Success(fmt.Sprintf("Created %s", result.Name))
	s.display.PrintObject("Backup", map[string]interface{}{
		"records":           result.TotalRecords,
		"size":              display.FormatBytes(result.CompressedSize),
		"uncompressed size": display.FormatBytes(result.UncompressedSize),
		"compression ratio": fmt.Sprintf("%.2f", result.CompressionRatio),
		"duration":          result.Duration.Round(time.Millisecond).String(),
	})
	if result.Rotated != "" {
		s.display.Info(fmt.Sprintf("Retention removed %s", result.Rotated))
	}
	return nil
}

func runBackupList(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	s, err := newSession(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.manager.ListBackups(ctx)
	if err != nil {
		return err
	}
	if listLimit > 0 && len(entries) > listLimit {
		entries = entries[:listLimit]
	}

	if s.display.GetConfig().IsStructured() {
		s.display.PrintObject("", entries)
		return nil
	}
	if len(entries) == 0 {
		s.display.Info(fmt.Sprintf("No backups in %s", s.manager.StorageLocation()))
		return nil
	}

	s.display.PrintHeader(fmt.Sprintf("Backups in %s", s.manager.StorageLocation()))
	s.display.PrintTable(display.BackupListView(entries))
	return nil
}

func runBackupShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	s, err := newSession(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	entry, err := s.manager.GetBackupMetadata(ctx, args[0])
	if err != nil {
		return err
	}

	if s.display.GetConfig().IsStructured() {
		s.display.PrintObject("", entry)
		return nil
	}

	fields := map[string]interface{}{
		"format":    string(entry.Format),
		"size":      display.FormatBytes(entry.Size),
		"encrypted": entry.Encrypted,
		"created":   entry.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if entry.Compression != "" {
		fields["compression"] = string(entry.Compression)
	}
	if entry.Metadata != nil {
		fields["database"] = entry.Metadata.Database
		fields["created by"] = entry.Metadata.CreatedBy
		fields["app version"] = entry.Metadata.AppVersion
	}
	s.display.PrintObject(entry.Name, fields)

	if entry.Metadata == nil {
		s.display.Info("SQL backups carry no table metadata")
		return nil
	}
	s.display.PrintTable(display.TableMetaView(entry.Metadata))
	return nil
}

func runBackupValidate(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	s, err := newSession(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.manager.ValidateBackup(ctx, args[0])
	if err != nil {
		return err
	}

	if s.display.GetConfig().IsStructured() {
		s.display.PrintObject("", report)
	} else {
		s.display.PrintHeader(fmt.Sprintf("Validation of %s", args[0]))
		s.display.PrintTable(display.ValidationView(report))
		for _, warning := range report.Warnings {
			s.display.Warning(warning)
		}
	}

	if !report.Valid {
		return fmt.Errorf("backup %s is invalid:\n%s", args[0], display.JoinLines(report.Errors))
	}
	s.display.Success(fmt.Sprintf("%s is valid (%d records)", args[0], report.TotalRecords))
	return nil
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	policy, err := parseRestorePolicy(restorePolicy)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	s, err := newSession(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.manager.GetBackupMetadata(ctx, args[0]); err != nil {
		return err
	}

	question := fmt.Sprintf("Replace all rows of %d tables in %s with %s?", s.manager.Catalog().Len(), s.target.Database, args[0])
	ok, err := s.display.Confirm(question)
	if err != nil {
		return err
	}
	if !ok {
		s.display.Warning("Restore canceled")
		return nil
	}
	if skipValidation {
		s.display.Warning("Skipping backup validation")
	}

	result, err := s.manager.RestoreBackup(ctx, args[0], backup.RestoreOptions{
		Policy:         policy,
		SkipValidation: skipValidation,
	})
	if err != nil {
		return err
	}

	if s.display.GetConfig().IsStructured() {
		s.display.PrintObject("", result)
		return nil
	}

	s.display.PrintHeader(fmt.Sprintf("Restored %s", args[0]))
	s.display.PrintTable(display.RestoreView(result))
	if len(result.Errors) > 0 {
		s.display.Warning(fmt.Sprintf("%d rows or statements were skipped", len(result.Errors)))
		s.display.PrintTable(display.RestoreIssuesView(result.Errors))
	}
	s.display.Success(fmt.Sprintf("Restore committed: %d inserted, %d replaced, %d skipped", result.Inserted, result.Replaced, result.Skipped))
	return nil
}

func runBackupDelete(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	s, err := newSession(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.manager.GetBackupMetadata(ctx, args[0]); err != nil {
		return err
	}

	ok, err := s.display.Confirm(fmt.Sprintf("Delete backup %s?", args[0]))
	if err != nil {
		return err
	}
	if !ok {
		s.display.Warning("Delete canceled")
		return nil
	}

	if err := s.manager.DeleteBackup(ctx, args[0]); err != nil {
		return err
	}
	s.display.Success(fmt.Sprintf("Deleted %s", args[0]))
	return nil
}

func runBackupImport(cmd *cobra.Command, args []string) error {
	name := importName
	if name == "" {
		name = filepath.Base(args[0])
	}

	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer file.Close()

	ctx, cancel := commandContext()
	defer cancel()

	s, err := newSession(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	entry, err := s.manager.ImportBackup(ctx, name, file)
	if err != nil {
		return err
	}

	if s.display.GetConfig().IsStructured() {
		s.display.PrintObject("", entry)
		return nil
	}
	s.display.Success(fmt.Sprintf("Imported %s (%s)", entry.Name, display.FormatBytes(entry.Size)))
	return nil
}
