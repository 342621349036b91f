package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults -> config file -> environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir string
}

// NewLoader creates a new configuration loader for the given root directory.
func NewLoader(rootDir string) Loader {
	return &loader{rootDir: rootDir}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (CORTEXIDX_*)
// 2. Config file (.cortexidx/config.yml or .cortexidx/config.yaml)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	configDir := filepath.Join(l.rootDir, ".cortexidx")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	v.SetEnvPrefix("CORTEXIDX")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("toolchain.swiftc")
	v.BindEnv("toolchain.clang")
	v.BindEnv("scheduler.background_concurrency")
	v.BindEnv("scheduler.low_concurrency")
	v.BindEnv("scheduler.medium_concurrency")
	v.BindEnv("scheduler.high_concurrency")
	v.BindEnv("storage.index_store_dir")
	v.BindEnv("storage.database_path")
	v.BindEnv("storage.update_index_store_timeout_seconds")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshalling: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	if !filepath.IsAbs(cfg.Storage.IndexStoreDir) {
		cfg.Storage.IndexStoreDir = filepath.Join(l.rootDir, cfg.Storage.IndexStoreDir)
	}
	if !filepath.IsAbs(cfg.Storage.DatabasePath) {
		cfg.Storage.DatabasePath = filepath.Join(l.rootDir, cfg.Storage.DatabasePath)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("paths.swift", d.Paths.Swift)
	v.SetDefault("paths.clang", d.Paths.Clang)
	v.SetDefault("paths.ignore", d.Paths.Ignore)

	v.SetDefault("toolchain.swiftc", d.Toolchain.SwiftC)
	v.SetDefault("toolchain.clang", d.Toolchain.Clang)

	v.SetDefault("scheduler.background_concurrency", d.Scheduler.BackgroundConcurrency)
	v.SetDefault("scheduler.low_concurrency", d.Scheduler.LowConcurrency)
	v.SetDefault("scheduler.medium_concurrency", d.Scheduler.MediumConcurrency)
	v.SetDefault("scheduler.high_concurrency", d.Scheduler.HighConcurrency)

	v.SetDefault("storage.index_store_dir", d.Storage.IndexStoreDir)
	v.SetDefault("storage.database_path", d.Storage.DatabasePath)
	v.SetDefault("storage.update_index_store_timeout_seconds", d.Storage.UpdateIndexStoreTimeoutSeconds)
}

// LoadConfig is a convenience function that creates a loader and loads
// config using the current working directory as the root.
func LoadConfig() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: getting working directory: %w", err)
	}
	return NewLoader(wd).Load()
}

// LoadConfigFromDir loads configuration from a specific directory.
func LoadConfigFromDir(rootDir string) (*Config, error) {
	return NewLoader(rootDir).Load()
}
