// Package config provides configuration loading for modbus-sim.
// It supports YAML, JSON and CUE files, a .env file and environment
// variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/seikosantana/modbus-sim/internal/registers"
	"github.com/seikosantana/modbus-sim/internal/rules"
)

// DefaultEnvFile is the dotenv file read by Load when present.
const DefaultEnvFile = ".env"

// Config contains all modbus-sim settings.
//
// Keys are PascalCase so existing appsettings-style files load unchanged.
type Config struct {
	// ModbusSettings configures the TCP slave.
	ModbusSettings ModbusSettings `json:"ModbusSettings" yaml:"ModbusSettings"`

	// Rules holds the ordered rule list.
	Rules RulesConfig `json:"Rules" yaml:"Rules"`

	Logging LoggingConfig `json:"Logging" yaml:"Logging"`
	Journal JournalConfig `json:"Journal" yaml:"Journal"`
	Monitor MonitorConfig `json:"Monitor" yaml:"Monitor"`
}

// ModbusSettings configures the Modbus TCP listener.
type ModbusSettings struct {
	Port                     int    `json:"Port" yaml:"Port"`
	ConnectionTimeoutSeconds int    `json:"ConnectionTimeoutSeconds" yaml:"ConnectionTimeoutSeconds"`
	BindAddress              string `json:"BindAddress" yaml:"BindAddress"`
	MaxClients               int    `json:"MaxClients" yaml:"MaxClients"`

	// RegisterCount is the number of holding registers served.
	RegisterCount int `json:"RegisterCount" yaml:"RegisterCount"`
}

// ConnectionTimeout returns the client idle timeout.
func (m ModbusSettings) ConnectionTimeout() time.Duration {
	return time.Duration(m.ConnectionTimeoutSeconds) * time.Second
}

// RulesConfig holds the rules section.
type RulesConfig struct {
	SimpleIncrementRules rules.RuleSet `json:"SimpleIncrementRules" yaml:"SimpleIncrementRules"`
}

// LoggingConfig configures log verbosity: "info" (default), "debug" or
// "trace". "debug" logs every register change.
type LoggingConfig struct {
	Level string `json:"Level" yaml:"Level"`
}

// JournalConfig configures the SQLite mutation journal. Empty Path
// disables it.
type JournalConfig struct {
	Path string `json:"Path" yaml:"Path"`
}

// MonitorConfig configures the HTTP monitor. Port 0 disables it.
type MonitorConfig struct {
	Port int `json:"Port" yaml:"Port"`
}

// Default returns a Config with the stock settings and no rules.
func Default() *Config {
	return &Config{
		ModbusSettings: ModbusSettings{
			Port:                     502,
			ConnectionTimeoutSeconds: 60,
			BindAddress:              "0.0.0.0",
			MaxClients:               10,
			RegisterCount:            registers.MaxRegisters,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the effective configuration.
// Order: defaults -> config file (if path is set) -> .env -> environment.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		config = fileConfig
	}

	if err := LoadEnvFile(DefaultEnvFile); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment. Variables already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// LoadFromFile loads configuration from a file, picking the decoder by
// extension: .yaml and .yml use YAML, .cue uses CUE. .json is read as
// CUE first, which accepts the // comments and trailing commas that
// appsettings.json files carry, then decoded like YAML. Unset keys keep
// their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml", ".json":
		if ext == ".json" {
			if data, err = relaxedJSON(path, data); err != nil {
				return nil, err
			}
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case ".cue":
		if err := decodeCUE(path, data, config); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q (valid: .yaml, .yml, .json, .cue)", ext)
	}

	return config, nil
}

// relaxedJSON compiles commented JSON with CUE and exports plain JSON.
func relaxedJSON(path string, data []byte) ([]byte, error) {
	v := cuecontext.New().CompileBytes(data, cue.Filename(filepath.Base(path)))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	out, err := v.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return out, nil
}

func decodeCUE(path string, data []byte, config *Config) error {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data)
	if err := v.Err(); err != nil {
		return fmt.Errorf("compiling %s: %w", filepath.Base(path), err)
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("validating %s: %w", filepath.Base(path), err)
	}
	if err := v.Decode(config); err != nil {
		return fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Validate checks the settings. Rules are not checked here; the scheduler
// validates them at startup.
func (c *Config) Validate() error {
	var errs []error
	m := c.ModbusSettings

	if m.Port < 1 || m.Port > 65535 {
		errs = append(errs, fmt.Errorf("ModbusSettings.Port must be between 1 and 65535, got %d", m.Port))
	}
	if m.ConnectionTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("ModbusSettings.ConnectionTimeoutSeconds must be greater than 0, got %d", m.ConnectionTimeoutSeconds))
	}
	if strings.TrimSpace(m.BindAddress) == "" {
		errs = append(errs, errors.New("ModbusSettings.BindAddress must not be empty"))
	}
	if m.MaxClients < 1 {
		errs = append(errs, fmt.Errorf("ModbusSettings.MaxClients must be at least 1, got %d", m.MaxClients))
	}
	if m.RegisterCount < 1 || m.RegisterCount > registers.MaxRegisters {
		errs = append(errs, fmt.Errorf("ModbusSettings.RegisterCount must be between 1 and %d, got %d", registers.MaxRegisters, m.RegisterCount))
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level))
	}

	if c.Monitor.Port < 0 || c.Monitor.Port > 65535 {
		errs = append(errs, fmt.Errorf("Monitor.Port must be between 0 and 65535, got %d", c.Monitor.Port))
	} else if c.Monitor.Port != 0 && c.Monitor.Port == m.Port {
		errs = append(errs, fmt.Errorf("Monitor.Port must differ from ModbusSettings.Port (%d)", m.Port))
	}

	return errors.Join(errs...)
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) error {
	var errs []error

	envInt := func(key string, dst *int) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, v))
			return
		}
		*dst = n
	}

	envInt("MODBUSSIM_PORT", &config.ModbusSettings.Port)
	envInt("MODBUSSIM_CONNECTION_TIMEOUT_SECONDS", &config.ModbusSettings.ConnectionTimeoutSeconds)
	envInt("MODBUSSIM_MONITOR_PORT", &config.Monitor.Port)

	if v := os.Getenv("MODBUSSIM_BIND_ADDRESS"); v != "" {
		config.ModbusSettings.BindAddress = v
	}
	if v := os.Getenv("MODBUSSIM_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("MODBUSSIM_JOURNAL_PATH"); v != "" {
		config.Journal.Path = v
	}

	return errors.Join(errs...)
}
