package backup

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"mysql-data-vault/internal/catalog"
)

const (
	// DefaultMaxBackups is the retention ceiling when none is configured
	DefaultMaxBackups = 20
	// DefaultMaxUploadSize bounds imported backups
	DefaultMaxUploadSize int64 = 256 << 20
)

// BackupSystemConfig represents the complete backup system configuration
type BackupSystemConfig struct {
	Signing     SigningConfig     `yaml:"signing"`
	Storage     StorageConfig     `yaml:"storage"`
	Retention   RetentionConfig   `yaml:"retention"`
	Compression CompressionConfig `yaml:"compression"`
	Encryption  EncryptionConfig  `yaml:"encryption"`
	Restore     RestoreConfig     `yaml:"restore"`
	Upload      UploadConfig      `yaml:"upload"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	AppVersion  string            `yaml:"app_version"`
	CreatedBy   string            `yaml:"created_by"`
}

// SigningConfig holds the HMAC secret. There is no default secret.
type SigningConfig struct {
	Secret string `yaml:"secret"`
}

// StorageProviderType represents different storage provider types
type StorageProviderType string

const (
	StorageProviderLocal StorageProviderType = "LOCAL"
	StorageProviderS3    StorageProviderType = "S3"
	StorageProviderAzure StorageProviderType = "AZURE"
	StorageProviderGCS   StorageProviderType = "GCS"
)

// StorageConfig defines storage provider configuration
type StorageConfig struct {
	Provider StorageProviderType `yaml:"provider"`
	Local    *LocalConfig        `yaml:"local,omitempty"`
	S3       *S3Config           `yaml:"s3,omitempty"`
	Azure    *AzureConfig        `yaml:"azure,omitempty"`
	GCS      *GCSConfig          `yaml:"gcs,omitempty"`
}

// LocalConfig for local file system storage
type LocalConfig struct {
	BasePath    string      `yaml:"base_path"`
	Permissions os.FileMode `yaml:"permissions"`
}

// S3Config for Amazon S3 and S3-compatible storage
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// AzureConfig for Azure Blob Storage
type AzureConfig struct {
	AccountName   string `yaml:"account_name"`
	AccountKey    string `yaml:"account_key"`
	ContainerName string `yaml:"container_name"`
	Prefix        string `yaml:"prefix"`
}

// GCSConfig for Google Cloud Storage
type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	CredentialsPath string `yaml:"credentials_path"`
}

// RetentionConfig bounds how many backups are kept
type RetentionConfig struct {
	MaxBackups int `yaml:"max_backups"`
}

// CompressionConfig selects the sealed container codec
type CompressionConfig struct {
	Algorithm CompressionType `yaml:"algorithm"`
	Level     int             `yaml:"level"`
}

// EncryptionConfig enables at-rest container encryption
type EncryptionConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Passphrase string `yaml:"passphrase"`
}

// RestoreConfig holds restore defaults
type RestoreConfig struct {
	Policy        RestorePolicy `yaml:"policy"`
	ValidateFirst *bool         `yaml:"validate_first"`
}

// UploadConfig bounds imported backups
type UploadConfig struct {
	MaxSizeBytes int64 `yaml:"max_size_bytes"`
}

// CatalogConfig optionally replaces the built-in table catalog
type CatalogConfig struct {
	Tables   []catalog.TableSpec `yaml:"tables"`
	Excluded []string            `yaml:"excluded"`
}

// Validate validates the BackupSystemConfig
func (bsc *BackupSystemConfig) Validate() error {
	var errors ValidationErrors

	if bsc.Signing.Secret == "" {
		errors.Add("signing.secret", "signing secret is required", nil)
	} else if len(bsc.Signing.Secret) < MinSecretLength {
		errors.Add("signing.secret", fmt.Sprintf("signing secret must be at least %d bytes", MinSecretLength), nil)
	}

	for _, sub := range []struct {
		name     string
		validate func() error
	}{
		{"storage", bsc.Storage.Validate},
		{"retention", bsc.Retention.Validate},
		{"compression", bsc.Compression.Validate},
		{"encryption", bsc.Encryption.Validate},
		{"restore", bsc.Restore.Validate},
		{"upload", bsc.Upload.Validate},
		{"catalog", bsc.Catalog.Validate},
	} {
		if err := sub.validate(); err != nil {
			if validationErrs, ok := err.(ValidationErrors); ok {
				errors = append(errors, validationErrs...)
			} else {
				errors.Add(sub.name, err.Error(), nil)
			}
		}
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// SetDefaults sets default values for the backup system configuration
func (bsc *BackupSystemConfig) SetDefaults() {
	bsc.Storage.SetDefaults()
	bsc.Retention.SetDefaults()
	bsc.Compression.SetDefaults()
	bsc.Restore.SetDefaults()
	bsc.Upload.SetDefaults()

	if bsc.CreatedBy == "" {
		bsc.CreatedBy = "mysql-data-vault"
	}
}

// LoadFromEnvironment loads configuration values from environment variables
func (bsc *BackupSystemConfig) LoadFromEnvironment() {
	if val := os.Getenv("BACKUP_HMAC_SECRET"); val != "" {
		bsc.Signing.Secret = val
	}
	if val := os.Getenv("BACKUP_CREATED_BY"); val != "" {
		bsc.CreatedBy = val
	}

	bsc.Storage.LoadFromEnvironment()
	bsc.Retention.LoadFromEnvironment()
	bsc.Compression.LoadFromEnvironment()
	bsc.Encryption.LoadFromEnvironment()
	bsc.Restore.LoadFromEnvironment()
	bsc.Upload.LoadFromEnvironment()
}

// BuildCatalog returns the configured catalog, or the built-in one
func (bsc *BackupSystemConfig) BuildCatalog() (*catalog.Catalog, error) {
	if len(bsc.Catalog.Tables) == 0 {
		return catalog.Default(), nil
	}

	excluded := bsc.Catalog.Excluded
	if excluded == nil {
		excluded = catalog.DefaultExcluded
	}
	cat, err := catalog.New(bsc.Catalog.Tables, excluded)
	if err != nil {
		return nil, NewConfigurationError("invalid table catalog", err)
	}
	return cat, nil
}

// Validate validates the storage configuration
func (sc *StorageConfig) Validate() error {
	var errors ValidationErrors

	switch sc.Provider {
	case StorageProviderLocal:
		if sc.Local == nil {
			errors.Add("storage.local", "local storage configuration is required", nil)
		} else if err := sc.Local.Validate(); err != nil {
			return err
		}
	case StorageProviderS3:
		if sc.S3 == nil {
			errors.Add("storage.s3", "S3 storage configuration is required", nil)
		} else if err := sc.S3.Validate(); err != nil {
			return err
		}
	case StorageProviderAzure:
		if sc.Azure == nil {
			errors.Add("storage.azure", "Azure storage configuration is required", nil)
		} else if err := sc.Azure.Validate(); err != nil {
			return err
		}
	case StorageProviderGCS:
		if sc.GCS == nil {
			errors.Add("storage.gcs", "GCS storage configuration is required", nil)
		} else if err := sc.GCS.Validate(); err != nil {
			return err
		}
	default:
		errors.Add("storage.provider", "invalid storage provider", sc.Provider)
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// SetDefaults sets default values for storage configuration
func (sc *StorageConfig) SetDefaults() {
	if sc.Provider == "" {
		sc.Provider = StorageProviderLocal
	}
	if sc.Provider == StorageProviderLocal {
		if sc.Local == nil {
			sc.Local = &LocalConfig{}
		}
		sc.Local.SetDefaults()
	}
}

// LoadFromEnvironment loads storage configuration from environment variables
func (sc *StorageConfig) LoadFromEnvironment() {
	if val := os.Getenv("BACKUP_STORAGE_PROVIDER"); val != "" {
		sc.Provider = StorageProviderType(strings.ToUpper(val))
	}

	switch sc.Provider {
	case StorageProviderLocal, "":
		if sc.Local == nil {
			sc.Local = &LocalConfig{}
			sc.Local.SetDefaults()
		}
		if val := os.Getenv("BACKUP_LOCAL_BASE_PATH"); val != "" {
			sc.Local.BasePath = val
		}
	case StorageProviderS3:
		if sc.S3 == nil {
			sc.S3 = &S3Config{}
		}
		setFromEnv(&sc.S3.Bucket, "BACKUP_S3_BUCKET")
		setFromEnv(&sc.S3.Region, "BACKUP_S3_REGION")
		setFromEnv(&sc.S3.Prefix, "BACKUP_S3_PREFIX")
		setFromEnv(&sc.S3.Endpoint, "BACKUP_S3_ENDPOINT")
		setFromEnv(&sc.S3.AccessKey, "AWS_ACCESS_KEY_ID")
		setFromEnv(&sc.S3.SecretKey, "AWS_SECRET_ACCESS_KEY")
	case StorageProviderAzure:
		if sc.Azure == nil {
			sc.Azure = &AzureConfig{}
		}
		setFromEnv(&sc.Azure.AccountName, "AZURE_STORAGE_ACCOUNT")
		setFromEnv(&sc.Azure.AccountKey, "AZURE_STORAGE_KEY")
		setFromEnv(&sc.Azure.ContainerName, "BACKUP_AZURE_CONTAINER")
		setFromEnv(&sc.Azure.Prefix, "BACKUP_AZURE_PREFIX")
	case StorageProviderGCS:
		if sc.GCS == nil {
			sc.GCS = &GCSConfig{}
		}
		setFromEnv(&sc.GCS.Bucket, "BACKUP_GCS_BUCKET")
		setFromEnv(&sc.GCS.Prefix, "BACKUP_GCS_PREFIX")
		setFromEnv(&sc.GCS.CredentialsPath, "GOOGLE_APPLICATION_CREDENTIALS")
	}
}

// Validate validates the local storage configuration
func (lc *LocalConfig) Validate() error {
	var errors ValidationErrors
	if lc.BasePath == "" {
		errors.Add("storage.local.base_path", "base path is required", nil)
	}
	if lc.Permissions == 0 {
		errors.Add("storage.local.permissions", "permissions must be set", lc.Permissions)
	}
	if errors.HasErrors() {
		return errors
	}
	return nil
}

// SetDefaults sets default values for local storage configuration
func (lc *LocalConfig) SetDefaults() {
	if lc.BasePath == "" {
		lc.BasePath = "./backups"
	}
	if lc.Permissions == 0 {
		lc.Permissions = 0750
	}
}

// Validate validates the S3 configuration
func (s3c *S3Config) Validate() error {
	var errors ValidationErrors
	if s3c.Bucket == "" {
		errors.Add("storage.s3.bucket", "bucket is required", nil)
	}
	if s3c.Region == "" {
		errors.Add("storage.s3.region", "region is required", nil)
	}
	if (s3c.AccessKey == "") != (s3c.SecretKey == "") {
		errors.Add("storage.s3.access_key", "access key and secret key must be set together", nil)
	}
	if errors.HasErrors() {
		return errors
	}
	return nil
}

// Validate validates the Azure configuration
func (ac *AzureConfig) Validate() error {
	var errors ValidationErrors
	if ac.AccountName == "" {
		errors.Add("storage.azure.account_name", "account name is required", nil)
	}
	if ac.AccountKey == "" {
		errors.Add("storage.azure.account_key", "account key is required", nil)
	}
	if ac.ContainerName == "" {
		errors.Add("storage.azure.container_name", "container name is required", nil)
	}
	if errors.HasErrors() {
		return errors
	}
	return nil
}

// Validate validates the GCS configuration
func (gc *GCSConfig) Validate() error {
	var errors ValidationErrors
	if gc.Bucket == "" {
		errors.Add("storage.gcs.bucket", "bucket is required", nil)
	}
	if errors.HasErrors() {
		return errors
	}
	return nil
}

// Validate validates the RetentionConfig
func (rc *RetentionConfig) Validate() error {
	var errors ValidationErrors
	if rc.MaxBackups < 1 {
		errors.Add("retention.max_backups", "max backups must be at least 1", rc.MaxBackups)
	}
	if errors.HasErrors() {
		return errors
	}
	return nil
}

// SetDefaults sets default values for retention configuration
func (rc *RetentionConfig) SetDefaults() {
	if rc.MaxBackups == 0 {
		rc.MaxBackups = DefaultMaxBackups
	}
}

// LoadFromEnvironment loads retention configuration from environment variables
func (rc *RetentionConfig) LoadFromEnvironment() {
	if val := os.Getenv("BACKUP_MAX_BACKUPS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			rc.MaxBackups = parsed
		}
	}
}

// Validate validates the CompressionConfig
func (cc *CompressionConfig) Validate() error {
	var errors ValidationErrors

	compressor, err := NewCompressionManager().Get(cc.Algorithm)
	if err != nil {
		errors.Add("compression.algorithm", "invalid compression algorithm", cc.Algorithm)
	} else if min, max := compressor.LevelRange(); cc.Level < min || cc.Level > max {
		errors.Add("compression.level",
			fmt.Sprintf("%s compression level must be between %d and %d", strings.ToLower(string(cc.Algorithm)), min, max),
			cc.Level)
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// SetDefaults sets default values for compression configuration
func (cc *CompressionConfig) SetDefaults() {
	if cc.Algorithm == "" {
		cc.Algorithm = CompressionTypeGzip
	}
	if cc.Level == 0 {
		if compressor, err := NewCompressionManager().Get(cc.Algorithm); err == nil {
			cc.Level = compressor.DefaultLevel()
		}
	}
}

// LoadFromEnvironment loads compression configuration from environment variables
func (cc *CompressionConfig) LoadFromEnvironment() {
	if val := os.Getenv("BACKUP_COMPRESSION_ALGORITHM"); val != "" {
		cc.Algorithm = CompressionType(strings.ToUpper(val))
	}
	if val := os.Getenv("BACKUP_COMPRESSION_LEVEL"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			cc.Level = parsed
		}
	}
}

// Validate validates the EncryptionConfig
func (ec *EncryptionConfig) Validate() error {
	var errors ValidationErrors
	if ec.Enabled && ec.Passphrase == "" {
		errors.Add("encryption.passphrase", "passphrase is required when encryption is enabled", nil)
	}
	if errors.HasErrors() {
		return errors
	}
	return nil
}

// LoadFromEnvironment loads encryption configuration from environment variables
func (ec *EncryptionConfig) LoadFromEnvironment() {
	if val := os.Getenv("BACKUP_ENCRYPTION_ENABLED"); val != "" {
		ec.Enabled = strings.ToLower(val) == "true"
	}
	setFromEnv(&ec.Passphrase, "BACKUP_ENCRYPTION_PASSPHRASE")
}

// Validate validates the RestoreConfig
func (rc *RestoreConfig) Validate() error {
	var errors ValidationErrors
	switch rc.Policy {
	case RestorePolicyBestEffort, RestorePolicyStrict:
	default:
		errors.Add("restore.policy", "policy must be 'best-effort' or 'strict'", rc.Policy)
	}
	if errors.HasErrors() {
		return errors
	}
	return nil
}

// SetDefaults sets default values for restore configuration
func (rc *RestoreConfig) SetDefaults() {
	if rc.Policy == "" {
		rc.Policy = RestorePolicyBestEffort
	}
	if rc.ValidateFirst == nil {
		validate := true
		rc.ValidateFirst = &validate
	}
}

// LoadFromEnvironment loads restore configuration from environment variables
func (rc *RestoreConfig) LoadFromEnvironment() {
	if val := os.Getenv("BACKUP_RESTORE_POLICY"); val != "" {
		rc.Policy = RestorePolicy(strings.ToLower(val))
	}
	if val := os.Getenv("BACKUP_RESTORE_VALIDATE_FIRST"); val != "" {
		validate := strings.ToLower(val) == "true"
		rc.ValidateFirst = &validate
	}
}

// ShouldValidateFirst reports whether sealed backups are validated before restore
func (rc *RestoreConfig) ShouldValidateFirst() bool {
	return rc.ValidateFirst == nil || *rc.ValidateFirst
}

// Validate validates the UploadConfig
func (uc *UploadConfig) Validate() error {
	var errors ValidationErrors
	if uc.MaxSizeBytes <= 0 {
		errors.Add("upload.max_size_bytes", "max upload size must be positive", uc.MaxSizeBytes)
	}
	if errors.HasErrors() {
		return errors
	}
	return nil
}

// SetDefaults sets default values for upload configuration
func (uc *UploadConfig) SetDefaults() {
	if uc.MaxSizeBytes == 0 {
		uc.MaxSizeBytes = DefaultMaxUploadSize
	}
}

// LoadFromEnvironment loads upload configuration from environment variables
func (uc *UploadConfig) LoadFromEnvironment() {
	if val := os.Getenv("BACKUP_UPLOAD_MAX_SIZE"); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			uc.MaxSizeBytes = parsed
		}
	}
}

// Validate checks that the catalog override forms a valid graph
func (cc *CatalogConfig) Validate() error {
	if len(cc.Tables) == 0 {
		return nil
	}
	excluded := cc.Excluded
	if excluded == nil {
		excluded = catalog.DefaultExcluded
	}
	if _, err := catalog.New(cc.Tables, excluded); err != nil {
		var errors ValidationErrors
		errors.Add("catalog.tables", err.Error(), nil)
		return errors
	}
	return nil
}

func setFromEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}
