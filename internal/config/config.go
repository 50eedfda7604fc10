package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnvWithDefaults expands environment variables written as ${VAR} or
// ${VAR:-default}.
func expandEnvWithDefaults(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		matches := envPattern.FindStringSubmatch(match)
		if len(matches) < 2 {
			return match
		}

		varName := matches[1]
		defaultValue := ""
		if len(matches) > 2 {
			defaultValue = matches[2]
		}

		value := os.Getenv(varName)
		if value == "" {
			return defaultValue
		}
		return value
	})
}

// InitConfig reads configFile (any format viper understands, chosen by
// extension) on top of defaults and unmarshals it into a new C. An empty
// configFile yields the defaults alone.
func InitConfig[C any](configFile string, defaults map[string]any) (*C, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if configFile != "" {
		ext := strings.TrimLeft(filepath.Ext(configFile), ".")
		v.SetConfigFile(configFile)
		v.SetConfigType(ext)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("v.ReadInConfig: %w", err)
		}
	}

	for _, k := range v.AllKeys() {
		value := v.GetString(k)
		if value == "" || !strings.Contains(value, "${") {
			continue
		}
		expanded := expandEnvWithDefaults(value)

		if expanded == "true" || expanded == "false" {
			boolValue, _ := strconv.ParseBool(expanded)
			v.Set(k, boolValue)
		} else if intValue, err := strconv.Atoi(expanded); err == nil {
			v.Set(k, intValue)
		} else {
			v.Set(k, expanded)
		}
	}

	cfg := new(C)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("v.Unmarshal: %w", err)
	}

	return cfg, nil
}

// Defaults are applied under every configuration file.
func Defaults() map[string]any {
	return map[string]any{
		"logger.level":                    "info",
		"gate.timeout_ms":                 5000,
		"availability.base_url":           "",
		"availability.debounce_ms":        300,
		"availability.request_timeout_ms": 10000,
		"availability.rate_limit_rps":     0,
		"availability.rate_limit_burst":   1,
		"availability.report_failures":    false,
		"availability.authorization":      "",
		"server.addr":                     ":8080",
		"server.max_body_bytes":           1 << 20,
		"server.allow_origins":            []string{"*"},
	}
}

// Load reads the CLI configuration and validates it.
func Load(configFile string) (*Config, error) {
	cfg, err := InitConfig[Config](configFile, Defaults())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the gate and the client cannot work with.
func (c *Config) Validate() error {
	var errs []error
	if c.Logger == nil || c.Gate == nil || c.Availability == nil || c.Server == nil {
		return errors.New("config: missing section")
	}
	if c.Gate.TimeoutMS <= 0 {
		errs = append(errs, fmt.Errorf("config: gate.timeout_ms must be positive, got %d", c.Gate.TimeoutMS))
	}
	if c.Availability.DebounceMS < 0 {
		errs = append(errs, fmt.Errorf("config: availability.debounce_ms must not be negative, got %d", c.Availability.DebounceMS))
	}
	if c.Availability.RequestTimeoutMS <= 0 {
		errs = append(errs, fmt.Errorf("config: availability.request_timeout_ms must be positive, got %d", c.Availability.RequestTimeoutMS))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("config: server.addr must not be empty"))
	}
	return errors.Join(errs...)
}
