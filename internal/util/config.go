// Package util provides common utilities for portage.
package util

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	// Probe settings
	ProbeDialTimeout  time.Duration `mapstructure:"probe_dial_timeout"`
	ProbeLoginTimeout time.Duration `mapstructure:"probe_login_timeout"`

	// Scan limits
	ScanMaxDepth int `mapstructure:"scan_max_depth"`
	ScanMaxFiles int `mapstructure:"scan_max_files"`

	// Job table housekeeping
	JobRetention    time.Duration `mapstructure:"job_retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`

	// API server
	APIPort int `mapstructure:"api_port"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".portage")

	return &Config{
		DataDir:  dataDir,
		LogLevel: "info",
		LogFile:  filepath.Join(dataDir, "portage.log"),

		ProbeDialTimeout:  5 * time.Second,
		ProbeLoginTimeout: 10 * time.Second,

		ScanMaxDepth: 20,
		ScanMaxFiles: 100_000,

		JobRetention:    24 * time.Hour,
		CleanupInterval: time.Hour,

		APIPort: 8080,
	}
}

// LoadConfig loads configuration from file and environment.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	// Ensure config directory exists
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(cfg.DataDir)
	viper.AddConfigPath(".")

	viper.SetDefault("data_dir", cfg.DataDir)
	viper.SetDefault("log_level", cfg.LogLevel)
	viper.SetDefault("log_file", cfg.LogFile)
	viper.SetDefault("probe_dial_timeout", cfg.ProbeDialTimeout)
	viper.SetDefault("probe_login_timeout", cfg.ProbeLoginTimeout)
	viper.SetDefault("scan_max_depth", cfg.ScanMaxDepth)
	viper.SetDefault("scan_max_files", cfg.ScanMaxFiles)
	viper.SetDefault("job_retention", cfg.JobRetention)
	viper.SetDefault("cleanup_interval", cfg.CleanupInterval)
	viper.SetDefault("api_port", cfg.APIPort)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// EnsureDir ensures a directory exists.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
