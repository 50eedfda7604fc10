package config

import "time"

// ConfigLogger holds logging settings.
type ConfigLogger struct {
	Level string `mapstructure:"level"`
}

// ConfigGate holds submission gate settings.
type ConfigGate struct {
	TimeoutMS int `mapstructure:"timeout_ms"`
}

// ConfigAvailability holds settings of the remote availability checks.
type ConfigAvailability struct {
	BaseURL          string  `mapstructure:"base_url"`
	DebounceMS       int     `mapstructure:"debounce_ms"`
	RequestTimeoutMS int     `mapstructure:"request_timeout_ms"`
	RateLimitRPS     float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst   int     `mapstructure:"rate_limit_burst"`
	ReportFailures   bool    `mapstructure:"report_failures"`
	AuthorizationHdr string  `mapstructure:"authorization"`
}

// ConfigServer holds settings of the submission server.
type ConfigServer struct {
	Addr         string   `mapstructure:"addr"`
	MaxBodyBytes int64    `mapstructure:"max_body_bytes"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// Config is the root configuration of the formguard CLI.
type Config struct {
	Logger       *ConfigLogger       `mapstructure:"logger"`
	Gate         *ConfigGate         `mapstructure:"gate"`
	Availability *ConfigAvailability `mapstructure:"availability"`
	Server       *ConfigServer       `mapstructure:"server"`
}

// Timeout returns the gate wait bound.
func (c *ConfigGate) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Debounce returns the availability debounce interval.
func (c *ConfigAvailability) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// RequestTimeout returns the HTTP timeout of one availability request.
func (c *ConfigAvailability) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}
