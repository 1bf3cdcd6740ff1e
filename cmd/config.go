package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "gate"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage gate configuration.

Every key can also be set through a GATE_ environment variable, e.g.
GATE_BLOCKING_SEVERITIES=critical or GATE_GITHUB_TOKEN.

Running bare 'gate config' is the same as 'gate config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# gate configuration
# See: gate config show (for effective values and sources)

# Review agents passed to the reviewer (comma-separated)
agents: "{{ .Agents }}"

# Severities that fail the gate (comma-separated: critical, error, warning, info)
blocking_severities: "{{ .BlockingSeverities }}"

run:
  # Ceiling for the whole run; exceeding it makes the verdict INDETERMINATE
  timeout: "{{ .RunTimeout }}"

# GitHub (the token falls back to $GITHUB_TOKEN)
github:
  # api_url: https://github.example.com/api/v3
  web_url: "{{ .GitHubWebURL }}"
  owner: "{{ .GitHubOwner }}"
  repo: "{{ .GitHubRepo }}"

# External reviewer
reviewer:
  module: "{{ .ReviewerModule }}"
  requirements: "{{ .ReviewerRequirements }}"
  python: "{{ .ReviewerPython }}"

# Findings artifact, archived after every run
artifacts:
  path: "{{ .ArtifactsPath }}"

# Reviewer environment directory (default: a per-run temp dir)
# env:
#   dir: /tmp/gate-env

# Run history: sqlite (db_path) or postgres (store.dsn)
store:
  driver: "{{ .StoreDriver }}"
  # dsn: postgres://gate:secret@db:5432/gate

# SQLite database path (default: ~/.config/gate/gate.db)
# db_path: {{ .DBPath }}

log:
  level: "{{ .LogLevel }}"
  format: "{{ .LogFormat }}"
`

type configTemplateData struct {
	Agents               string
	BlockingSeverities   string
	RunTimeout           string
	GitHubWebURL         string
	GitHubOwner          string
	GitHubRepo           string
	ReviewerModule       string
	ReviewerRequirements string
	ReviewerPython       string
	ArtifactsPath        string
	StoreDriver          string
	DBPath               string
	LogLevel             string
	LogFormat            string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		Agents:               viper.GetString("agents"),
		BlockingSeverities:   viper.GetString("blocking_severities"),
		RunTimeout:           viper.GetString("run.timeout"),
		GitHubWebURL:         viper.GetString("github.web_url"),
		GitHubOwner:          viper.GetString("github.owner"),
		GitHubRepo:           viper.GetString("github.repo"),
		ReviewerModule:       viper.GetString("reviewer.module"),
		ReviewerRequirements: viper.GetString("reviewer.requirements"),
		ReviewerPython:       viper.GetString("reviewer.python"),
		ArtifactsPath:        viper.GetString("artifacts.path"),
		StoreDriver:          viper.GetString("store.driver"),
		DBPath:               viper.GetString("db_path"),
		LogLevel:             viper.GetString("log.level"),
		LogFormat:            viper.GetString("log.format"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "agents", EnvVar: "GATE_AGENTS"},
	{Key: "blocking_severities", EnvVar: "GATE_BLOCKING_SEVERITIES"},
	{Key: "run.timeout", EnvVar: "GATE_RUN_TIMEOUT"},
	{Key: "github.token", EnvVar: "GATE_GITHUB_TOKEN"},
	{Key: "github.api_url", EnvVar: "GATE_GITHUB_API_URL"},
	{Key: "github.web_url", EnvVar: "GATE_GITHUB_WEB_URL"},
	{Key: "github.owner", EnvVar: "GATE_GITHUB_OWNER"},
	{Key: "github.repo", EnvVar: "GATE_GITHUB_REPO"},
	{Key: "reviewer.module", EnvVar: "GATE_REVIEWER_MODULE"},
	{Key: "reviewer.requirements", EnvVar: "GATE_REVIEWER_REQUIREMENTS"},
	{Key: "reviewer.python", EnvVar: "GATE_REVIEWER_PYTHON"},
	{Key: "env.dir", EnvVar: "GATE_ENV_DIR"},
	{Key: "artifacts.path", EnvVar: "GATE_ARTIFACTS_PATH"},
	{Key: "store.driver", EnvVar: "GATE_STORE_DRIVER"},
	{Key: "store.dsn", EnvVar: "GATE_STORE_DSN"},
	{Key: "db_path", EnvVar: "GATE_DB_PATH"},
	{Key: "log.level", EnvVar: "GATE_LOG_LEVEL"},
	{Key: "log.format", EnvVar: "GATE_LOG_FORMAT"},
	{Key: "anthropic.api_key", EnvVar: "GATE_ANTHROPIC_API_KEY"},
	{Key: "anthropic.model", EnvVar: "GATE_ANTHROPIC_MODEL"},
	{Key: "anthropic.base_url", EnvVar: "GATE_ANTHROPIC_BASE_URL"},
}

// secretKeys are masked in config show.
var secretKeys = map[string]bool{
	"github.token":      true,
	"store.dsn":         true,
	"anthropic.api_key": true,
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if secretKeys[k.Key] {
			val = maskSecret(viper.GetString(k.Key))
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-22s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// maskSecret hides all but the last four characters of a credential.
func maskSecret(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'gate config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
