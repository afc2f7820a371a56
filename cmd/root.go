package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"mysql-data-vault/internal/backup"
	"mysql-data-vault/internal/database"
	"mysql-data-vault/internal/display"
	"mysql-data-vault/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "MYSQL_VAULT"

var cfgFile string

// CLI flag variables
var (
	dbHost     string
	dbPort     int
	dbUsername string
	dbPassword string
	dbName     string
	timeout    time.Duration

	verbose   bool
	debug     bool
	quiet     bool
	logFile   string
	logFormat string

	noColor      bool
	noIcons      bool
	theme        string
	outputFormat string
	assumeYes    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mysql-data-vault",
	Short: "Signed, verifiable data backups for a MySQL application database",
	Long: `mysql-data-vault captures the rows of a fixed set of application tables into
a signed, checksummed backup document and restores them in dependency order
inside a single transaction.

Backups are refused on restore when any table checksum or the HMAC signature
does not match. Plain SQL backups are also supported for portability; they
carry no integrity metadata.

Examples:
  # Write a starter configuration
  mysql-data-vault config > vault.yaml

  # Take a backup
  BACKUP_HMAC_SECRET=... mysql-data-vault --config vault.yaml backup create

  # Verify and restore it
  mysql-data-vault --config vault.yaml backup validate backup_2026-01-02_03-04-05.json.gz
  mysql-data-vault --config vault.yaml backup restore backup_2026-01-02_03-04-05.json.gz

Environment Variables:
  Connection and display flags can be set with the prefix MYSQL_VAULT_, for
  example MYSQL_VAULT_DATABASE_HOST or MYSQL_VAULT_DATABASE_PASSWORD. Backup
  settings use BACKUP_HMAC_SECRET, BACKUP_ENCRYPTION_PASSPHRASE and the other
  BACKUP_* variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./mysql-data-vault.yaml or $HOME/.mysql-data-vault.yaml)")

	flags.StringVar(&dbHost, "host", "localhost", "database host")
	flags.IntVar(&dbPort, "port", 3306, "database port")
	flags.StringVar(&dbUsername, "user", "", "database username")
	flags.StringVar(&dbPassword, "password", "", "database password")
	flags.StringVar(&dbName, "database", "", "database name")
	flags.DurationVar(&timeout, "timeout", 30*time.Second, "database connection timeout")

	flags.BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	flags.BoolVar(&debug, "debug", false, "log every SQL statement")
	flags.BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	flags.StringVar(&logFile, "log-file", "", "also write logs to this file")
	flags.StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	flags.BoolVar(&noColor, "no-color", false, "disable color output")
	flags.BoolVar(&noIcons, "no-icons", false, "disable Unicode icons")
	flags.StringVar(&theme, "theme", "dark", "color theme (dark, light, plain)")
	flags.StringVar(&outputFormat, "format", "table", "output format (table, json, yaml)")
	flags.BoolVarP(&assumeYes, "yes", "y", false, "answer yes to confirmation prompts")

	bindConfigKeys()

	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
	rootCmd.MarkFlagsMutuallyExclusive("debug", "quiet")

	rootCmd.AddCommand(createVersionCommand())
	rootCmd.AddCommand(createConfigCommand())
}

// bindConfigKeys maps persistent flags onto the keys read from the config file
func bindConfigKeys() {
	viper.BindPFlag("database.host", rootCmd.PersistentFlags().Lookup("host"))
	viper.BindPFlag("database.port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("database.username", rootCmd.PersistentFlags().Lookup("user"))
	viper.BindPFlag("database.password", rootCmd.PersistentFlags().Lookup("password"))
	viper.BindPFlag("database.database", rootCmd.PersistentFlags().Lookup("database"))
	viper.BindPFlag("database.timeout", rootCmd.PersistentFlags().Lookup("timeout"))

	viper.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	viper.BindPFlag("display.theme", rootCmd.PersistentFlags().Lookup("theme"))
	viper.BindPFlag("display.output_format", rootCmd.PersistentFlags().Lookup("format"))
	viper.BindPFlag("display.no_color", rootCmd.PersistentFlags().Lookup("no-color"))
	viper.BindPFlag("display.no_icons", rootCmd.PersistentFlags().Lookup("no-icons"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName("mysql-data-vault")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if cfgFile == "" {
			cfgFile = viper.ConfigFileUsed()
		}
		if verbose || debug {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// buildDatabaseConfig assembles connection settings from flags, environment and config file
func buildDatabaseConfig() database.DatabaseConfig {
	return database.DatabaseConfig{
		Host:     viper.GetString("database.host"),
		Port:     viper.GetInt("database.port"),
		Username: viper.GetString("database.username"),
		Password: viper.GetString("database.password"),
		Database: viper.GetString("database.database"),
		Timeout:  viper.GetDuration("database.timeout"),
		// SQL backups are restored as one batch under the strict policy
		MultiStatements: true,
	}
}

func buildDisplayConfig() (*display.DisplayConfig, error) {
	config := display.DefaultDisplayConfig()
	config.Theme = viper.GetString("display.theme")
	config.OutputFormat = viper.GetString("display.output_format")
	config.ColorEnabled = !viper.GetBool("display.no_color")
	config.UseIcons = !viper.GetBool("display.no_icons")
	config.QuietMode = quiet
	config.AssumeYes = assumeYes
	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func buildLogger() (*logging.Logger, error) {
	level := logging.ParseLevel(viper.GetString("log.level"))
	switch {
	case debug:
		level = logging.LogLevelDebug
	case verbose:
		level = logging.LogLevelVerbose
	case quiet:
		level = logging.LogLevelQuiet
	}

	return logging.NewLogger(logging.Config{
		Level:      level,
		Format:     viper.GetString("log.format"),
		LogFile:    viper.GetString("log.file"),
		ShowCaller: debug,
	})
}

// session carries everything a backup subcommand needs
type session struct {
	manager   *backup.Manager
	display   display.DisplayService
	logger    *logging.Logger
	target    database.DatabaseConfig
	dbService *database.Service
	closeDB   func()
}

// newSession loads the backup configuration and wires a manager. The
// database is connected only when connect is true; commands that read the
// backup store alone work without credentials.
func newSession(ctx context.Context, cmd *cobra.Command, connect bool) (*session, error) {
	displayConfig, err := buildDisplayConfig()
	if err != nil {
		return nil, err
	}
	displayConfig.Writer = cmd.OutOrStdout()
	logger, err := buildLogger()
	if err != nil {
		return nil, err
	}

	config, err := backup.NewConfigLoader(cfgFile).LoadConfig()
	if err != nil {
		return nil, err
	}
	if config.AppVersion == "" {
		config.AppVersion = version
	}

	s := &session{
		display:   display.NewDisplayService(displayConfig),
		logger:    logger,
		target:    buildDatabaseConfig(),
		dbService: database.NewServiceWithLogger(logger),
		closeDB:   func() {},
	}

	var db backup.Database
	if connect {
		conn, err := s.dbService.Connect(ctx, s.target)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", s.target.String(), err)
		}
		db = conn
		s.closeDB = func() { s.dbService.Close(conn) }
	}

	s.manager, err = backup.NewManager(ctx, db, config, backup.ManagerOptions{
		Database: s.target.Database,
		Logger:   logger,
	})
	if err != nil {
		s.closeDB()
		return nil, err
	}
	return s, nil
}

func (s *session) Close() {
	s.closeDB()
}

// commandContext is canceled on SIGINT or SIGTERM so an interrupted restore rolls back
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc string) {
	version = v
	buildTime = bt
	gitCommit = gc
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mysql-data-vault version %s\n", version)
			fmt.Fprintf(out, "Built: %s\n", buildTime)
			fmt.Fprintf(out, "Commit: %s\n", gitCommit)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
		},
	}
}

const sampleConnectionConfig = `
# Database connection (flags and MYSQL_VAULT_DATABASE_* variables override these)
database:
  host: localhost
  port: 3306
  username: vault
  password: ""            # prefer MYSQL_VAULT_DATABASE_PASSWORD
  database: app
  timeout: 30s

display:
  theme: dark             # dark, light, plain
  output_format: table    # table, json, yaml
  no_color: false
  no_icons: false

log:
  level: normal           # quiet, normal, verbose, debug
  format: text            # text, json
  file: ""
`

func createConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Generate a sample configuration file",
		Long: `Generate a sample configuration file that can be used with the --config flag.

Examples:
  mysql-data-vault config > vault.yaml
  chmod 600 vault.yaml`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			out.Write(backup.GenerateDefaultConfigYAML())
			fmt.Fprint(out, sampleConnectionConfig)
		},
	}
}
