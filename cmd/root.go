package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/reviewgate/internal/invoke"
	"github.com/joescharf/reviewgate/internal/logging"
	"github.com/joescharf/reviewgate/internal/models"
	"github.com/joescharf/reviewgate/internal/output"
	"github.com/joescharf/reviewgate/internal/store"
)

// Exit codes reported to the CI host.
const (
	ExitPass           = 0
	ExitFail           = 1
	ExitUsage          = 2
	ExitIndeterminate  = 3
	ExitInfrastructure = 4
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "gate",
	Short: "Review gate - block or allow a build on automated review findings",
	Long: `gate resolves which change-set to review (a pull request, the most
recently updated open one, or a local diff), runs the external review agents
in an isolated environment, and turns their findings into a PASS, FAIL or
INDETERMINATE verdict for the CI host.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// exitError carries a process exit code. A nil err means the command already
// reported the outcome and nothing more should be printed.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func usageErrorf(format string, a ...any) error {
	return &exitError{code: ExitUsage, err: fmt.Errorf(format, a...)}
}

// exitCode maps a command error to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return ExitPass
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// Anything that is not a verdict or a usage problem means the review
	// system itself broke.
	return ExitInfrastructure
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	closeStore()
	logging.Sync()
	if err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(exitCode(err))
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &exitError{code: ExitUsage, err: err}
	})

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/gate/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(ExitInfrastructure)
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("GATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	dir, _ := configDirFunc()
	setDefaults(dir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every configuration default. dir is the gate config
// directory.
func setDefaults(dir string) {
	viper.SetDefault("agents", "security,bug,quality")
	viper.SetDefault("blocking_severities", models.JoinSeverities(models.DefaultBlockingSeverities))
	viper.SetDefault("run.timeout", "30m")
	viper.SetDefault("github.token", "")
	viper.SetDefault("github.api_url", "")
	viper.SetDefault("github.web_url", "https://github.com")
	viper.SetDefault("github.owner", "")
	viper.SetDefault("github.repo", "")
	viper.SetDefault("reviewer.module", invoke.DefaultModule)
	viper.SetDefault("reviewer.requirements", "")
	viper.SetDefault("reviewer.python", "python3")
	viper.SetDefault("env.dir", "")
	viper.SetDefault("artifacts.path", "review-results.json")
	viper.SetDefault("store.driver", "sqlite")
	viper.SetDefault("store.dsn", "")
	viper.SetDefault("db_path", filepath.Join(dir, "gate.db"))
	viper.SetDefault("log.level", "warn")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("anthropic.base_url", "")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	level := viper.GetString("log.level")
	if verbose {
		level = "debug"
	}
	if err := logging.Init(level, viper.GetString("log.format")); err != nil {
		ui.Warning("Logging disabled: %v", err)
	}

	// Store is opened lazily, only when commands actually need it.
	// This allows config/version/decide to run without a db.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	driver := viper.GetString("store.driver")
	dsn := viper.GetString("store.dsn")
	if driver == "" || driver == string(store.DialectSQLite) {
		dsn = viper.GetString("db_path")
	}

	s, err := store.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

func closeStore() {
	if dataStore != nil {
		_ = dataStore.Close()
		dataStore = nil
	}
}
