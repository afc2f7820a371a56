package backup

import (
	"testing"

	"mysql-data-vault/internal/catalog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *BackupSystemConfig {
	config := &BackupSystemConfig{Signing: SigningConfig{Secret: testSecret}}
	config.SetDefaults()
	return config
}

func TestBackupSystemConfig_SetDefaults(t *testing.T) {
	config := validConfig()

	assert.Equal(t, StorageProviderLocal, config.Storage.Provider)
	require.NotNil(t, config.Storage.Local)
	assert.Equal(t, "./backups", config.Storage.Local.BasePath)
	assert.Equal(t, DefaultMaxBackups, config.Retention.MaxBackups)
	assert.Equal(t, CompressionTypeGzip, config.Compression.Algorithm)
	assert.Equal(t, -1, config.Compression.Level)
	assert.Equal(t, RestorePolicyBestEffort, config.Restore.Policy)
	assert.True(t, config.Restore.ShouldValidateFirst())
	assert.Equal(t, DefaultMaxUploadSize, config.Upload.MaxSizeBytes)
	assert.Equal(t, "mysql-data-vault", config.CreatedBy)
	assert.NoError(t, config.Validate())
}

func TestCompressionConfig_DefaultLevelPerAlgorithm(t *testing.T) {
	zstd := CompressionConfig{Algorithm: CompressionTypeZstd}
	zstd.SetDefaults()
	assert.Equal(t, 3, zstd.Level)

	lz4 := CompressionConfig{Algorithm: CompressionTypeLZ4, Level: 9}
	lz4.SetDefaults()
	assert.Equal(t, 9, lz4.Level)
}

func TestBackupSystemConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BackupSystemConfig)
		field  string
	}{
		{"missing secret", func(c *BackupSystemConfig) { c.Signing.Secret = "" }, "signing.secret"},
		{"short secret", func(c *BackupSystemConfig) { c.Signing.Secret = "tiny" }, "signing.secret"},
		{"retention", func(c *BackupSystemConfig) { c.Retention.MaxBackups = -1 }, "retention.max_backups"},
		{"algorithm", func(c *BackupSystemConfig) { c.Compression.Algorithm = "BROTLI" }, "compression.algorithm"},
		{"level", func(c *BackupSystemConfig) { c.Compression.Level = 42 }, "compression.level"},
		{"passphrase", func(c *BackupSystemConfig) { c.Encryption.Enabled = true }, "encryption.passphrase"},
		{"policy", func(c *BackupSystemConfig) { c.Restore.Policy = "yolo" }, "restore.policy"},
		{"upload", func(c *BackupSystemConfig) { c.Upload.MaxSizeBytes = -5 }, "upload.max_size_bytes"},
		{"storage provider", func(c *BackupSystemConfig) { c.Storage.Provider = "FTP" }, "storage.provider"},
		{"catalog cycle", func(c *BackupSystemConfig) {
			c.Catalog.Tables = []catalog.TableSpec{
				{Name: "a", DependsOn: []string{"b"}},
				{Name: "b", DependsOn: []string{"a"}},
			}
		}, "catalog.tables"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(config)

			err := config.Validate()
			require.Error(t, err)

			var validationErrs ValidationErrors
			require.ErrorAs(t, err, &validationErrs)
			fields := make([]string, 0, len(validationErrs))
			for _, e := range validationErrs {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestBackupSystemConfig_LoadFromEnvironment(t *testing.T) {
	t.Setenv("BACKUP_HMAC_SECRET", "env-secret-0123456789")
	t.Setenv("BACKUP_STORAGE_PROVIDER", "s3")
	t.Setenv("BACKUP_S3_BUCKET", "vault")
	t.Setenv("BACKUP_S3_REGION", "eu-central-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	t.Setenv("BACKUP_MAX_BACKUPS", "5")
	t.Setenv("BACKUP_COMPRESSION_ALGORITHM", "zstd")
	t.Setenv("BACKUP_ENCRYPTION_ENABLED", "true")
	t.Setenv("BACKUP_ENCRYPTION_PASSPHRASE", "hunter2")
	t.Setenv("BACKUP_RESTORE_POLICY", "STRICT")
	t.Setenv("BACKUP_RESTORE_VALIDATE_FIRST", "false")
	t.Setenv("BACKUP_UPLOAD_MAX_SIZE", "1024")

	config := &BackupSystemConfig{}
	config.LoadFromEnvironment()
	config.SetDefaults()
	require.NoError(t, config.Validate())

	assert.Equal(t, "env-secret-0123456789", config.Signing.Secret)
	assert.Equal(t, StorageProviderS3, config.Storage.Provider)
	assert.Equal(t, "vault", config.Storage.S3.Bucket)
	assert.Equal(t, "eu-central-1", config.Storage.S3.Region)
	assert.Nil(t, config.Storage.Local)
	assert.Equal(t, 5, config.Retention.MaxBackups)
	assert.Equal(t, CompressionTypeZstd, config.Compression.Algorithm)
	assert.Equal(t, 3, config.Compression.Level)
	assert.True(t, config.Encryption.Enabled)
	assert.Equal(t, RestorePolicyStrict, config.Restore.Policy)
	assert.False(t, config.Restore.ShouldValidateFirst())
	assert.Equal(t, int64(1024), config.Upload.MaxSizeBytes)
}

func TestBackupSystemConfig_BuildCatalog(t *testing.T) {
	config := validConfig()

	cat, err := config.BuildCatalog()
	require.NoError(t, err)
	assert.Equal(t, catalog.Default().RestoreOrder(), cat.RestoreOrder())

	config.Catalog.Tables = []catalog.TableSpec{
		{Name: "locations", DependsOn: []string{"sites"}},
		{Name: "sites"},
	}
	cat, err = config.BuildCatalog()
	require.NoError(t, err)
	assert.Equal(t, []string{"sites", "locations"}, cat.RestoreOrder())
	assert.True(t, cat.IsExcluded("users"))

	config.Catalog.Excluded = []string{"scratch"}
	cat, err = config.BuildCatalog()
	require.NoError(t, err)
	assert.False(t, cat.IsExcluded("users"))
	assert.True(t, cat.IsExcluded("scratch"))

	config.Catalog.Tables = []catalog.TableSpec{{Name: "a", DependsOn: []string{"missing"}}}
	_, err = config.BuildCatalog()
	assert.True(t, IsType(err, BackupErrorTypeConfiguration))
}
