// Package config loads and validates the hashguard configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	WinRM    WinRMConfig    `yaml:"winrm"`
	Probe    ProbeConfig    `yaml:"probe"`
	Detect   DetectConfig   `yaml:"detect"`
	Rotate   RotateConfig   `yaml:"rotate"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// WinRMConfig carries the administrative credentials used for every
// remote operation: detection queries, account rotation, and fleet
// enumeration against the domain controller.
type WinRMConfig struct {
	Port      int    `yaml:"port"`
	UseHTTPS  bool   `yaml:"use_https"`
	TimeoutMS int    `yaml:"timeout_ms"`
	Domain    string `yaml:"domain"`
	Username  string `yaml:"username" validate:"required"`
	Password  string `yaml:"password" validate:"required"`
}

type ProbeConfig struct {
	TimeoutMS     int    `yaml:"timeout_ms"`
	FastTimeoutMS int    `yaml:"fast_timeout_ms"`
	SSHPort       int    `yaml:"ssh_port"`
	SNMPPort      int    `yaml:"snmp_port"`
	SNMPCommunity string `yaml:"snmp_community"`
}

type DetectConfig struct {
	Channel        string `yaml:"channel"`
	WindowDays     int    `yaml:"window_days" validate:"omitempty,min=1"`
	Workers        int    `yaml:"workers" validate:"omitempty,min=1"`
	SuccessEventID int    `yaml:"success_event_id"`
	FailureEventID int    `yaml:"failure_event_id"`
	LocalDomain    string `yaml:"local_domain" validate:"required"`
}

type RotateConfig struct {
	Workers   int    `yaml:"workers" validate:"omitempty,min=1"`
	Account   string `yaml:"account"`
	MinLength int    `yaml:"min_length" validate:"omitempty,min=1"`
	MaxLength int    `yaml:"max_length"`
	OutputDir string `yaml:"output_dir"`
}

type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"ssl_mode"`
}

type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
}

type AuthConfig struct {
	AdminUsername  string `yaml:"admin_username"`
	AdminPassword  string `yaml:"admin_password"`
	JWTSecret      string `yaml:"jwt_secret"`
	JWTExpiryHours int    `yaml:"jwt_expiry_hours"`
}

// Load reads configuration from file, applies environment variable
// overrides and defaults, and validates the result.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// ApplyDefaults fills unset fields with working defaults.
func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.WinRM.Port == 0 {
		c.WinRM.Port = 5985
	}
	if c.WinRM.TimeoutMS == 0 {
		c.WinRM.TimeoutMS = 60000
	}
	if c.Probe.TimeoutMS == 0 {
		c.Probe.TimeoutMS = 5000
	}
	if c.Probe.FastTimeoutMS == 0 {
		c.Probe.FastTimeoutMS = 1000
	}
	if c.Probe.SSHPort == 0 {
		c.Probe.SSHPort = 22
	}
	if c.Probe.SNMPPort == 0 {
		c.Probe.SNMPPort = 161
	}
	if c.Probe.SNMPCommunity == "" {
		c.Probe.SNMPCommunity = "public"
	}
	if c.Detect.Channel == "" {
		c.Detect.Channel = "Security"
	}
	if c.Detect.WindowDays == 0 {
		c.Detect.WindowDays = 7
	}
	if c.Detect.Workers == 0 {
		c.Detect.Workers = 8
	}
	if c.Detect.SuccessEventID == 0 {
		c.Detect.SuccessEventID = 4624
	}
	if c.Detect.FailureEventID == 0 {
		c.Detect.FailureEventID = 4625
	}
	if c.Rotate.Workers == 0 {
		c.Rotate.Workers = 8
	}
	if c.Rotate.Account == "" {
		c.Rotate.Account = "Administrator"
	}
	if c.Rotate.MinLength == 0 {
		c.Rotate.MinLength = 14
	}
	if c.Rotate.MaxLength == 0 {
		c.Rotate.MaxLength = 25
	}
	if c.Rotate.OutputDir == "" {
		c.Rotate.OutputDir = "."
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeoutMS == 0 {
		c.Server.ReadTimeoutMS = 15000
	}
	if c.Server.WriteTimeoutMS == 0 {
		c.Server.WriteTimeoutMS = 15000
	}
	if c.Auth.JWTExpiryHours == 0 {
		c.Auth.JWTExpiryHours = 12
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
}

// Validate ensures all required configuration values are set.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Rotate.MaxLength < c.Rotate.MinLength {
		return fmt.Errorf("rotate.max_length (%d) must be >= rotate.min_length (%d)",
			c.Rotate.MaxLength, c.Rotate.MinLength)
	}

	if c.Database.Enabled {
		if c.Database.Host == "" || c.Database.DBName == "" {
			return fmt.Errorf("database host and dbname are required when database is enabled")
		}
	}

	return nil
}

// applyEnvOverrides checks for environment variables with HG_ prefix.
// Only secrets are overridable; everything else belongs in the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HG_WINRM_USERNAME"); v != "" {
		cfg.WinRM.Username = v
	}
	if v := os.Getenv("HG_WINRM_PASSWORD"); v != "" {
		cfg.WinRM.Password = v
	}
	if v := os.Getenv("HG_DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("HG_AUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("HG_AUTH_ADMIN_PASSWORD"); v != "" {
		cfg.Auth.AdminPassword = v
	}
}

// GetWinRMTimeout returns the remote call timeout as a duration.
func (w *WinRMConfig) GetWinRMTimeout() time.Duration {
	return time.Duration(w.TimeoutMS) * time.Millisecond
}

// GetProbeTimeout returns the standard probe timeout as a duration.
func (p *ProbeConfig) GetProbeTimeout() time.Duration {
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// GetFastProbeTimeout returns the shortened probe timeout used when a
// quick liveness answer matters more than accuracy.
func (p *ProbeConfig) GetFastProbeTimeout() time.Duration {
	return time.Duration(p.FastTimeoutMS) * time.Millisecond
}

// GetReadTimeout returns the HTTP read timeout as a duration.
func (s *ServerConfig) GetReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

// GetWriteTimeout returns the HTTP write timeout as a duration.
func (s *ServerConfig) GetWriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

// GetJWTExpiry returns JWT expiry as duration.
func (a *AuthConfig) GetJWTExpiry() time.Duration {
	return time.Duration(a.JWTExpiryHours) * time.Hour
}

// GetDSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}
