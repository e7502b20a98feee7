package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for linebridge. Secrets are never written
// into source: they come from the config file (usually via ${VAR} expansion)
// or directly from the environment.
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	OpenAI  OpenAIConfig  `json:"openai" yaml:"openai"`
	Line    LineConfig    `json:"line" yaml:"line"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

type ServerConfig struct {
	Host        string `json:"host" yaml:"host" env:"LINEBRIDGE_HOST"`
	Port        int    `json:"port" yaml:"port" env:"LINEBRIDGE_PORT"`
	WebhookPath string `json:"webhookPath" yaml:"webhookPath" env:"LINEBRIDGE_WEBHOOK_PATH"`
}

type OpenAIConfig struct {
	APIBase        string `json:"apiBase" yaml:"apiBase" env:"OPENAI_API_BASE"`
	APIKey         string `json:"apiKey,omitempty" yaml:"apiKey,omitempty" env:"OPENAI_API_KEY"`
	Model          string `json:"model" yaml:"model" env:"LINEBRIDGE_MODEL"`
	TimeoutSeconds int    `json:"timeoutSeconds" yaml:"timeoutSeconds" env:"LINEBRIDGE_OPENAI_TIMEOUT"`
}

type LineConfig struct {
	ChannelAccessToken string `json:"channelAccessToken,omitempty" yaml:"channelAccessToken,omitempty" env:"LINE_CHANNEL_ACCESS_TOKEN"`
	ChannelSecret      string `json:"channelSecret,omitempty" yaml:"channelSecret,omitempty" env:"LINE_CHANNEL_SECRET"`
}

// JournalConfig configures the optional SQLite delivery journal. The journal
// records outcomes, never message text.
type JournalConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"LINEBRIDGE_JOURNAL_ENABLED"`
	DBPath  string `json:"dbPath" yaml:"dbPath" env:"LINEBRIDGE_JOURNAL_DB"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled" env:"LINEBRIDGE_METRICS_ENABLED"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level" env:"LINEBRIDGE_LOG_LEVEL"`
}

// DefaultConfigDir returns the default config directory (~/.linebridge).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".linebridge"
	}
	return filepath.Join(home, ".linebridge")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a config file (JSON, or YAML for .yaml/.yml paths), expands
// ${VAR} references, applies environment-variable overrides, and validates.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	// Environment overrides win over file values.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	cfg.Journal.DBPath = ExpandPath(cfg.Journal.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values. Secrets are not required
// here; serve and doctor report missing credentials with their own messages.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if !strings.HasPrefix(cfg.Server.WebhookPath, "/") {
		errs = append(errs, "server.webhookPath must start with /")
	}
	if cfg.OpenAI.Model == "" {
		errs = append(errs, "openai.model must be set")
	}
	if cfg.OpenAI.TimeoutSeconds < 0 {
		errs = append(errs, "openai.timeoutSeconds must be >= 0")
	}
	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "log.level must be one of: debug, info, warn, error")
	}
	if cfg.Journal.Enabled && cfg.Journal.DBPath == "" {
		errs = append(errs, "journal.dbPath must be set when the journal is enabled")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Sanitize returns a copy of the config with credentials redacted, for display.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	if out.OpenAI.APIKey != "" {
		out.OpenAI.APIKey = "***"
	}
	if out.Line.ChannelAccessToken != "" {
		out.Line.ChannelAccessToken = "***"
	}
	if out.Line.ChannelSecret != "" {
		out.Line.ChannelSecret = "***"
	}
	return &out
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
