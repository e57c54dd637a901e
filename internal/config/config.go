// Package config loads credcheck settings from flags, environment, an
// optional YAML file and an optional .env file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/tastythames/credcheck/internal/inventory"
	"github.com/tastythames/credcheck/internal/validator"
)

const EnvPrefix = "CREDCHECK"

const (
	KeyListen          = "listen"
	KeyDatabase        = "database"
	KeyInventory       = "inventory"
	KeyProtocol        = "protocol"
	KeyTimeout         = "timeout"
	KeyMaxWorkers      = "max_workers"
	KeyGlobalLimit     = "global_limit"
	KeyNtfyURL         = "ntfy_url"
	KeyNtfyTopicPrefix = "ntfy_topic_prefix"
	KeySMTPAllowPlain  = "smtp_allow_plain"
	KeyKnownHosts      = "known_hosts"
	KeyAPIKey          = "api_key"
	KeyVerbose         = "verbose"
	KeyLogFormat       = "log_format"
	KeyScheduleEvery   = "schedule_interval"
	KeyScheduleJitter  = "schedule_jitter"
	KeyScheduleOwner   = "schedule_owner"
)

type Config struct {
	Listen    string
	Database  string
	Inventory string

	Protocol    string
	Timeout     time.Duration
	MaxWorkers  int
	GlobalLimit int

	NtfyURL         string
	NtfyTopicPrefix string

	SMTPAllowPlain bool
	KnownHosts     string

	APIKey string

	// ScheduleInterval starts a batch for ScheduleOwner periodically; 0 disables.
	ScheduleInterval time.Duration
	ScheduleJitter   time.Duration
	ScheduleOwner    string

	Verbose   bool
	LogFormat string
}

// New returns a viper instance with defaults set and CREDCHECK_* environment
// variables bound.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyListen, ":9222")
	v.SetDefault(KeyDatabase, "credcheck.db")
	v.SetDefault(KeyProtocol, "smtp")
	v.SetDefault(KeyTimeout, validator.DefaultTimeout)
	v.SetDefault(KeyMaxWorkers, 10)
	v.SetDefault(KeyGlobalLimit, 0)
	v.SetDefault(KeyNtfyTopicPrefix, "credcheck-")
	v.SetDefault(KeyLogFormat, "json")
	v.SetDefault(KeyScheduleOwner, "scheduler")

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v
}

// ReadFile merges a YAML config file into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// Load reads the settings out of v and validates them.
func Load(v *viper.Viper) (Config, error) {
	c := Config{
		Listen:           v.GetString(KeyListen),
		Database:         v.GetString(KeyDatabase),
		Inventory:        v.GetString(KeyInventory),
		Protocol:         v.GetString(KeyProtocol),
		Timeout:          v.GetDuration(KeyTimeout),
		MaxWorkers:       v.GetInt(KeyMaxWorkers),
		GlobalLimit:      v.GetInt(KeyGlobalLimit),
		NtfyURL:          v.GetString(KeyNtfyURL),
		NtfyTopicPrefix:  v.GetString(KeyNtfyTopicPrefix),
		SMTPAllowPlain:   v.GetBool(KeySMTPAllowPlain),
		KnownHosts:       v.GetString(KeyKnownHosts),
		APIKey:           v.GetString(KeyAPIKey),
		ScheduleInterval: v.GetDuration(KeyScheduleEvery),
		ScheduleJitter:   v.GetDuration(KeyScheduleJitter),
		ScheduleOwner:    v.GetString(KeyScheduleOwner),
		Verbose:          v.GetBool(KeyVerbose),
		LogFormat:        v.GetString(KeyLogFormat),
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if inventory.DefaultPort(c.Protocol) == 0 {
		errs = append(errs, fmt.Errorf("%s: %w: %q", KeyProtocol, validator.ErrUnsupportedProtocol, c.Protocol))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %s", KeyTimeout, c.Timeout))
	}
	if c.MaxWorkers < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", KeyMaxWorkers, c.MaxWorkers))
	}
	if c.GlobalLimit < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative, got %d", KeyGlobalLimit, c.GlobalLimit))
	}
	if c.ScheduleInterval < 0 || c.ScheduleJitter < 0 {
		errs = append(errs, fmt.Errorf("%s and %s must not be negative", KeyScheduleEvery, KeyScheduleJitter))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("%s must be json or text, got %q", KeyLogFormat, c.LogFormat))
	}
	return errors.Join(errs...)
}

// ValidatorConfig returns the settings shared by every protocol validator.
func (c Config) ValidatorConfig() validator.Config {
	return validator.Config{
		Timeout:    c.Timeout,
		AllowPlain: c.SMTPAllowPlain,
		KnownHosts: c.KnownHosts,
	}
}

// LoadEnvFile loads variables from a .env file without overriding ones
// already set. An empty path means ".env" in the working directory.
// It reports whether a file was loaded.
func LoadEnvFile(logger *slog.Logger, path string) bool {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Debug("no .env file found", "path", path)
		return false
	}
	if err := godotenv.Load(path); err != nil {
		logger.Warn("failed to load .env file", "path", path, "err", err)
		return false
	}
	logger.Debug("loaded .env file", "path", path)
	return true
}
