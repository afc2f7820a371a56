package backup

import (
	"fmt"
	"os"
	"path/filepath"

	"mysql-data-vault/internal/catalog"

	"gopkg.in/yaml.v3"
)

// ConfigLoader handles loading and parsing backup configuration
type ConfigLoader struct {
	configPath string
}

// NewConfigLoader creates a new configuration loader
func NewConfigLoader(configPath string) *ConfigLoader {
	return &ConfigLoader{
		configPath: configPath,
	}
}

// LoadConfig reads the file (if any), applies environment overrides, fills
// defaults for whatever is still unset and validates the result.
func (cl *ConfigLoader) LoadConfig() (*BackupSystemConfig, error) {
	config := &BackupSystemConfig{}

	if cl.configPath != "" {
		if err := cl.loadFromFile(config); err != nil {
			return nil, NewConfigurationError("failed to load config from file", err)
		}
	}

	return finishConfig(config)
}

// LoadCatalog reads only the table catalog. Unlike LoadConfig it does not
// require a signing secret.
func (cl *ConfigLoader) LoadCatalog() (*catalog.Catalog, error) {
	config := &BackupSystemConfig{}
	if cl.configPath != "" {
		if err := cl.loadFromFile(config); err != nil {
			return nil, NewConfigurationError("failed to load config from file", err)
		}
	}
	return config.BuildCatalog()
}

func (cl *ConfigLoader) loadFromFile(config *BackupSystemConfig) error {
	if _, err := os.Stat(cl.configPath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(cl.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cl.configPath, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// SaveConfig writes config as YAML. The signing secret and the encryption
// passphrase are never written.
func (cl *ConfigLoader) SaveConfig(config *BackupSystemConfig) error {
	if err := config.Validate(); err != nil {
		return NewConfigurationError("cannot save invalid configuration", err)
	}

	redacted := *config
	redacted.Signing.Secret = ""
	redacted.Encryption.Passphrase = ""

	if err := os.MkdirAll(filepath.Dir(cl.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(&redacted)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(cl.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadConfigFromBytes loads configuration from YAML bytes
func LoadConfigFromBytes(data []byte) (*BackupSystemConfig, error) {
	config := &BackupSystemConfig{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, NewConfigurationError("failed to parse YAML config", err)
	}
	return finishConfig(config)
}

func finishConfig(config *BackupSystemConfig) (*BackupSystemConfig, error) {
	config.LoadFromEnvironment()
	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, NewConfigurationError("configuration validation failed", err)
	}
	return config, nil
}

// GenerateDefaultConfigYAML returns a commented starter configuration
func GenerateDefaultConfigYAML() []byte {
	return []byte(`# mysql-data-vault backup configuration

signing:
  # HMAC-SHA256 key used to sign and verify backups (at least 16 bytes).
  # Prefer the BACKUP_HMAC_SECRET environment variable.
  secret: ""

# Storage provider: LOCAL, S3, AZURE, GCS
storage:
  provider: LOCAL
  local:
    base_path: "./backups"
    permissions: 0750
  # s3:
  #   bucket: "my-backup-bucket"
  #   region: "us-east-1"
  #   prefix: "backups/"
  # azure:
  #   account_name: "account"
  #   account_key: "key"
  #   container_name: "backups"
  # gcs:
  #   bucket: "my-backup-bucket"
  #   credentials_path: "/path/to/credentials.json"

retention:
  # The oldest backup is deleted before a new one is written at this count
  max_backups: 20

compression:
  # GZIP, ZSTD or LZ4
  algorithm: GZIP

encryption:
  enabled: false
  # passphrase: set BACKUP_ENCRYPTION_PASSPHRASE instead

restore:
  # best-effort records failing rows and commits the rest; strict rolls back
  policy: best-effort
  validate_first: true

upload:
  max_size_bytes: 268435456

# Optional catalog override. Tables must form a dependency graph without cycles.
# catalog:
#   tables:
#     - name: sites
#     - name: locations
#       depends_on: [sites]
#   excluded: [users, sessions]
`)
}
