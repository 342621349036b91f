// Package config loads cortexidx's on-disk configuration: which files to
// discover and how to classify their language, where the index store and
// daemon lock live, and the scheduler's concurrency bands.
package config

// Config represents the complete cortexidx configuration. It can be loaded
// from .cortexidx/config.yml with environment variable overrides.
type Config struct {
	Paths     PathsConfig     `yaml:"paths" mapstructure:"paths"`
	Toolchain ToolchainConfig `yaml:"toolchain" mapstructure:"toolchain"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
}

// PathsConfig defines which files to index, by language, and which to
// ignore.
type PathsConfig struct {
	Swift  []string `yaml:"swift" mapstructure:"swift"`
	Clang  []string `yaml:"clang" mapstructure:"clang"`   // .c/.cpp/.cc/.m/.mm
	Ignore []string `yaml:"ignore" mapstructure:"ignore"` // glob patterns to ignore
}

// ToolchainConfig locates the compilers used to index discovered files.
type ToolchainConfig struct {
	SwiftC string `yaml:"swiftc" mapstructure:"swiftc"`
	Clang  string `yaml:"clang" mapstructure:"clang"`
}

// SchedulerConfig configures the priority-banded task scheduler's
// concurrency budget per band.
type SchedulerConfig struct {
	BackgroundConcurrency int `yaml:"background_concurrency" mapstructure:"background_concurrency"`
	LowConcurrency        int `yaml:"low_concurrency" mapstructure:"low_concurrency"`
	MediumConcurrency     int `yaml:"medium_concurrency" mapstructure:"medium_concurrency"`
	HighConcurrency       int `yaml:"high_concurrency" mapstructure:"high_concurrency"`
}

// StorageConfig locates the on-disk index store and its process lock.
type StorageConfig struct {
	IndexStoreDir            string `yaml:"index_store_dir" mapstructure:"index_store_dir"`
	DatabasePath             string `yaml:"database_path" mapstructure:"database_path"`
	UpdateIndexStoreTimeoutSeconds int `yaml:"update_index_store_timeout_seconds" mapstructure:"update_index_store_timeout_seconds"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Swift: []string{"**/*.swift"},
			Clang: []string{"**/*.c", "**/*.cpp", "**/*.cc", "**/*.m", "**/*.mm", "**/*.h", "**/*.hpp"},
			Ignore: []string{
				".build/**",
				"build/**",
				".git/**",
				"DerivedData/**",
				"Pods/**",
			},
		},
		Toolchain: ToolchainConfig{
			SwiftC: "swiftc",
			Clang:  "clang",
		},
		Scheduler: SchedulerConfig{
			HighConcurrency:       4,
			MediumConcurrency:     4,
			LowConcurrency:        2,
			BackgroundConcurrency: 1,
		},
		Storage: StorageConfig{
			IndexStoreDir:                  ".cortexidx/index-store",
			DatabasePath:                   ".cortexidx/index.db",
			UpdateIndexStoreTimeoutSeconds: 120,
		},
	}
}
