package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/claude/planfit/internal/fitgen"
	"github.com/robfig/cron"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Generator GeneratorConfig `yaml:"generator"`
	Intervals IntervalsConfig `yaml:"intervals"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// GeneratorConfig controls FIT file generation.
type GeneratorConfig struct {
	OutputDir    string `yaml:"output_dir"`
	Workers      int    `yaml:"workers"`
	SerialNumber uint32 `yaml:"serial_number"`
	Product      uint16 `yaml:"product"`
}

// IntervalsConfig controls uploads to intervals.icu. Uploads are disabled
// unless both APIKey and AthleteID are set. Schedule is a cron spec for the
// server's pending-upload sync.
type IntervalsConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	AthleteID string `yaml:"athlete_id"`
	StartTime string `yaml:"start_time"`
	BatchSize int    `yaml:"batch_size"`
	StateDir  string `yaml:"state_dir"`
	Schedule  string `yaml:"schedule"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Assembler returns the fitgen settings for this section.
func (g GeneratorConfig) Assembler() fitgen.Config {
	id := fitgen.DefaultIdentity()
	if g.SerialNumber != 0 {
		id.SerialNumber = g.SerialNumber
	}
	id.Product = g.Product
	return fitgen.Config{
		OutputDir: g.OutputDir,
		Workers:   g.Workers,
		Identity:  id,
	}
}

// Enabled reports whether uploads are configured.
func (i IntervalsConfig) Enabled() bool {
	return i.APIKey != "" && i.AthleteID != ""
}

// Defaults returns a Config with the optional fields filled in.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Generator: GeneratorConfig{
			OutputDir:    "fit_files",
			Workers:      4,
			SerialNumber: 0x12345678,
		},
		Intervals: IntervalsConfig{
			BaseURL:   "https://intervals.icu",
			StartTime: "09:00",
			BatchSize: 20,
			StateDir:  ".",
			Schedule:  "@every 30m",
		},
		Log: LogConfig{Level: "info", MaxSizeMB: 50, MaxBackups: 3},
	}
}

// Load reads config from a YAML file over Defaults, then applies environment
// variable overrides. Env vars use the prefix PLANFIT_ and underscore-separated paths:
//
//	PLANFIT_SERVER_HOST, PLANFIT_SERVER_PORT,
//	PLANFIT_DB_HOST, PLANFIT_DB_PORT, PLANFIT_DB_NAME,
//	PLANFIT_DB_USER, PLANFIT_DB_PASSWORD, PLANFIT_DB_SSLMODE,
//	PLANFIT_AUTH_API_KEY, PLANFIT_TAILSCALE_ENABLED,
//	PLANFIT_OUTPUT_DIR, PLANFIT_WORKERS,
//	PLANFIT_INTERVALS_API_KEY, PLANFIT_INTERVALS_ATHLETE_ID,
//	PLANFIT_LOG_LEVEL, PLANFIT_LOG_FILE
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadGenerator is Load for the batch CLI: the file is optional and only the
// generator, intervals and log sections are validated.
func LoadGenerator(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validateGenerator(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PLANFIT_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("PLANFIT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PLANFIT_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("PLANFIT_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("PLANFIT_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("PLANFIT_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("PLANFIT_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("PLANFIT_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("PLANFIT_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("PLANFIT_TAILSCALE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = b
		}
	}
	if v := os.Getenv("PLANFIT_OUTPUT_DIR"); v != "" {
		cfg.Generator.OutputDir = v
	}
	if v := os.Getenv("PLANFIT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Generator.Workers = n
		}
	}
	if v := os.Getenv("PLANFIT_INTERVALS_API_KEY"); v != "" {
		cfg.Intervals.APIKey = v
	}
	if v := os.Getenv("PLANFIT_INTERVALS_ATHLETE_ID"); v != "" {
		cfg.Intervals.AthleteID = v
	}
	if v := os.Getenv("PLANFIT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PLANFIT_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	if c.Intervals.Enabled() {
		if _, err := cron.Parse(c.Intervals.Schedule); err != nil {
			return fmt.Errorf("intervals.schedule: %w", err)
		}
	}
	return c.validateGenerator()
}

func (c *Config) validateGenerator() error {
	if c.Generator.OutputDir == "" {
		return fmt.Errorf("generator.output_dir is required")
	}
	if c.Generator.Workers < 1 {
		return fmt.Errorf("generator.workers must be at least 1")
	}
	if _, err := time.Parse("15:04", c.Intervals.StartTime); err != nil {
		return fmt.Errorf("intervals.start_time must be HH:MM: %w", err)
	}
	if c.Intervals.BatchSize < 1 {
		return fmt.Errorf("intervals.batch_size must be at least 1")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error")
	}
	return nil
}
