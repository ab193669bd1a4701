// Package config provides YAML configuration loading with validation and
// environment variable substitution for the marathon runner and the key
// generator. Both tools run without a file: Default returns the built-in
// development setup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Built-in values for the local marathon setup.
const (
	DefaultEnginePath  = "/Applications/Godot_mono.app/Contents/MacOS/Godot"
	DefaultKillPattern = "Godot"
	DefaultLogDir      = "logs"
	DefaultSecret      = "okey-rummy-jwt-secret-that-is-at-least-32-chars-long-2025"
	DefaultIssuer      = "supabase"

	// DefaultLifetime is ten 365-day years.
	DefaultLifetime = 10 * 365 * 24 * time.Hour

	// MinSecretLength is the length the backend documents for its JWT
	// secret. Shorter secrets only produce a warning.
	MinSecretLength = 32
)

// Config is the top-level configuration shared by both tools.
type Config struct {
	Runner  RunnerConfig  `yaml:"runner" json:"runner"`
	Keygen  KeygenConfig  `yaml:"keygen" json:"keygen"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Warnings holds non-fatal config issues detected during loading.
	Warnings []string `yaml:"-" json:"-"`
}

// RunnerConfig describes the engine instances launched by the marathon runner.
type RunnerConfig struct {
	EnginePath  string           `yaml:"engine_path" json:"engine_path"`
	LogDir      string           `yaml:"log_dir" json:"log_dir"`
	KillPattern string           `yaml:"kill_pattern" json:"kill_pattern"`
	ReapTimeout time.Duration    `yaml:"reap_timeout" json:"reap_timeout"` // wait for killed children to exit; 0 or unset means 3s
	Instances   []InstanceConfig `yaml:"instances" json:"instances"`
}

// InstanceConfig is one engine process and the pause that follows its launch.
type InstanceConfig struct {
	Name    string        `yaml:"name" json:"name"`
	Args    []string      `yaml:"args" json:"args"`
	LogFile string        `yaml:"log_file" json:"log_file"` // relative to log_dir unless absolute
	Delay   time.Duration `yaml:"delay" json:"delay"`
}

// KeygenConfig holds the token signing settings.
type KeygenConfig struct {
	Secret   string        `yaml:"secret" json:"-"`
	Issuer   string        `yaml:"issuer" json:"issuer"`
	Lifetime time.Duration `yaml:"lifetime" json:"lifetime"`
	Keys     []KeyConfig   `yaml:"keys" json:"keys"`
}

// KeyConfig maps an environment variable name to the role its token carries.
type KeyConfig struct {
	Name string `yaml:"name" json:"name"`
	Role string `yaml:"role" json:"role"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Output     string `yaml:"output" json:"output"`             // "stdout", "stderr", or file path; default: "stdout"
	Level      string `yaml:"level" json:"level"`               // "debug", "info", "warn", "error"; default: "info"
	Format     string `yaml:"format" json:"format"`             // "text" or "json"; default: "text"
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`   // default: 100
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`   // default: 3
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"` // default: 30
}

// MetricsConfig controls the Prometheus textfile written at exit.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" json:"textfile"` // disabled when empty
}

// ValidLogLevels are the accepted logging.level strings.
var ValidLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// DefaultInstances returns the server, host and joiner launch setup.
func DefaultInstances() []InstanceConfig {
	return []InstanceConfig{
		{
			Name:    "server",
			Args:    []string{"--headless", "--path", "godot", "--", "--server", "--test-marathon-host"},
			LogFile: "server_auto.log",
			Delay:   2 * time.Second,
		},
		{
			Name:    "host",
			Args:    []string{"--path", "godot", "--", "--test-marathon-host"},
			LogFile: "client1_auto.log",
			Delay:   2 * time.Second,
		},
		{
			// Long enough for marathon mode to start a game and play some turns.
			Name:    "joiner",
			Args:    []string{"--path", "godot", "--", "--test-marathon-join"},
			LogFile: "client2_auto.log",
			Delay:   10 * time.Second,
		},
	}
}

// DefaultKeys returns the anon and service role keys.
func DefaultKeys() []KeyConfig {
	return []KeyConfig{
		{Name: "ANON_KEY", Role: "anon"},
		{Name: "SERVICE_ROLE_KEY", Role: "service_role"},
	}
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	cfg.Warnings = collectWarnings(&cfg)
	return &cfg
}

var envVarRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns in s with the corresponding
// environment variable value.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		key := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return match
	})
}

// Load reads and parses a YAML configuration file, applies environment
// variable substitution, sets defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	cfg.Warnings = collectWarnings(cfg)

	return cfg, nil
}

// LoadOrDefault loads path, or returns Default when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// LoadFromBytes parses configuration from raw YAML bytes. Useful for testing.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	cfg.Warnings = collectWarnings(cfg)

	return cfg, nil
}

func parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	r := &cfg.Runner
	if r.EnginePath == "" {
		r.EnginePath = DefaultEnginePath
	}
	if r.LogDir == "" {
		r.LogDir = DefaultLogDir
	}
	if r.KillPattern == "" {
		r.KillPattern = DefaultKillPattern
	}
	if r.ReapTimeout == 0 {
		r.ReapTimeout = 3 * time.Second
	}
	if len(r.Instances) == 0 {
		r.Instances = DefaultInstances()
	}

	k := &cfg.Keygen
	if k.Secret == "" {
		k.Secret = DefaultSecret
	}
	if k.Issuer == "" {
		k.Issuer = DefaultIssuer
	}
	if k.Lifetime == 0 {
		k.Lifetime = DefaultLifetime
	}
	if len(k.Keys) == 0 {
		k.Keys = DefaultKeys()
	}

	l := &cfg.Logging
	if l.Output == "" {
		l.Output = "stdout"
	}
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "text"
	}
	if l.MaxSizeMB == 0 {
		l.MaxSizeMB = 100
	}
	if l.MaxBackups == 0 {
		l.MaxBackups = 3
	}
	if l.MaxAgeDays == 0 {
		l.MaxAgeDays = 30
	}
}

// LogPath returns the file inst logs to: LogFile itself when absolute,
// otherwise LogFile under LogDir.
func (r RunnerConfig) LogPath(inst InstanceConfig) string {
	if filepath.IsAbs(inst.LogFile) {
		return filepath.Clean(inst.LogFile)
	}
	return filepath.Join(r.LogDir, inst.LogFile)
}

var envNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validate(cfg *Config) error {
	r := cfg.Runner
	if strings.TrimSpace(r.EnginePath) == "" {
		return fmt.Errorf("runner.engine_path is required")
	}
	if strings.TrimSpace(r.KillPattern) == "" {
		return fmt.Errorf("runner.kill_pattern is required")
	}
	if r.ReapTimeout < 0 {
		return fmt.Errorf("runner.reap_timeout must be non-negative")
	}

	names := make(map[string]bool)
	logFiles := make(map[string]bool)
	for i, inst := range r.Instances {
		if inst.Name == "" {
			return fmt.Errorf("runner.instances[%d].name is required", i)
		}
		if names[inst.Name] {
			return fmt.Errorf("duplicate runner instance name: %s", inst.Name)
		}
		names[inst.Name] = true

		if inst.LogFile == "" {
			return fmt.Errorf("runner.instances[%d].log_file is required", i)
		}
		path := r.LogPath(inst)
		if logFiles[path] {
			return fmt.Errorf("runner.instances[%d].log_file %q is shared with another instance", i, inst.LogFile)
		}
		logFiles[path] = true

		if inst.Delay < 0 {
			return fmt.Errorf("runner.instances[%d].delay must be non-negative", i)
		}
	}

	k := cfg.Keygen
	if k.Lifetime <= 0 {
		return fmt.Errorf("keygen.lifetime must be positive")
	}
	keyNames := make(map[string]bool)
	for i, key := range k.Keys {
		if !envNameRe.MatchString(key.Name) {
			return fmt.Errorf("keygen.keys[%d].name must be a valid environment variable name, got %q", i, key.Name)
		}
		if keyNames[key.Name] {
			return fmt.Errorf("duplicate keygen key name: %s", key.Name)
		}
		keyNames[key.Name] = true

		if key.Role == "" {
			return fmt.Errorf("keygen.keys[%d].role is required", i)
		}
	}

	l := cfg.Logging
	if !ValidLogLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", l.Level)
	}
	if l.Format != "text" && l.Format != "json" {
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", l.Format)
	}
	if l.Output != "stdout" && l.Output != "stderr" {
		if l.MaxSizeMB < 1 {
			return fmt.Errorf("logging.max_size_mb must be positive when output is a file path")
		}
	}

	return nil
}

func collectWarnings(cfg *Config) []string {
	var warnings []string
	if strings.Contains(cfg.Keygen.Secret, "${") {
		warnings = append(warnings, "keygen.secret contains unresolved environment variable")
	}
	if len(cfg.Keygen.Secret) < MinSecretLength {
		warnings = append(warnings, fmt.Sprintf("keygen.secret is shorter than %d characters", MinSecretLength))
	}
	return warnings
}
