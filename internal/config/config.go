package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the archiving daemon.
type Config struct {
	DCS      DCSConfig      `mapstructure:"dcs"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// DCSConfig describes the metering server and client tuning.
type DCSConfig struct {
	URL            string  `mapstructure:"url"`
	Username       string  `mapstructure:"username"`
	Password       string  `mapstructure:"password"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	CacheSize      int     `mapstructure:"cache_size"`
}

// ArchiveConfig describes which channels to archive and how.
type ArchiveConfig struct {
	Channels      []string `mapstructure:"channels"`
	Period        string   `mapstructure:"period"`
	MaxWindowDays int      `mapstructure:"max_window_days"`
	BackfillDays  int      `mapstructure:"backfill_days"`
	BatchSize     int      `mapstructure:"batch_size"`
	Schedule      string   `mapstructure:"schedule"`
}

type DatabaseConfig struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	Name              string `mapstructure:"name"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	SSLMode           string `mapstructure:"ssl_mode"`
	MaxConnections    int    `mapstructure:"max_connections"`
	ConnectionTimeout int    `mapstructure:"connection_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads configuration from file, expanding $VAR environment
// references before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal into a map first so a syntax error is reported against
	// the raw file, before env expansion shifts line numbers.
	var rawConfig map[string]interface{}
	if err := yaml.Unmarshal(data, &rawConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal raw config: %w", err)
	}

	data, err = yaml.Marshal(rawConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal raw config: %w", err)
	}

	expandedData := os.ExpandEnv(string(data))

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	if err := v.ReadConfig(strings.NewReader(expandedData)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dcs.rate_limit", 2.0)
	v.SetDefault("dcs.rate_limit_burst", 1)
	v.SetDefault("dcs.cache_size", 256)

	v.SetDefault("archive.period", "halfHour")
	v.SetDefault("archive.max_window_days", 14)
	v.SetDefault("archive.backfill_days", 365)
	v.SetDefault("archive.batch_size", 5000)
	v.SetDefault("archive.schedule", "*/30 * * * *")

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.connection_timeout", 5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.addr", ":9090")
}

// ConnString builds a lib/pq connection string from the database section.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s connect_timeout=%d",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode, d.ConnectionTimeout,
	)
}
