package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyPatterns indicates no source patterns were configured for
	// either language.
	ErrEmptyPatterns = errors.New("no source file patterns configured")

	// ErrEmptyToolchainPath indicates a required compiler path is blank.
	ErrEmptyToolchainPath = errors.New("empty toolchain path")

	// ErrInvalidConcurrency indicates a non-positive scheduler concurrency.
	ErrInvalidConcurrency = errors.New("invalid scheduler concurrency")

	// ErrConcurrencyNotMonotone indicates the per-band concurrency budget
	// increases as priority falls, which the scheduler rejects.
	ErrConcurrencyNotMonotone = errors.New("scheduler concurrency must be monotone non-increasing as priority falls")

	// ErrEmptyStoragePath indicates a required storage location is blank.
	ErrEmptyStoragePath = errors.New("empty storage path")

	// ErrInvalidTimeout indicates a non-positive update-index-store
	// timeout.
	ErrInvalidTimeout = errors.New("invalid update-index-store timeout")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if err := validatePaths(&cfg.Paths); err != nil {
		errs = append(errs, err)
	}
	if err := validateToolchain(&cfg.Toolchain); err != nil {
		errs = append(errs, err)
	}
	if err := validateScheduler(&cfg.Scheduler); err != nil {
		errs = append(errs, err)
	}
	if err := validateStorage(&cfg.Storage); err != nil {
		errs = append(errs, err)
	}

	return joinErrors(errs)
}

func validatePaths(cfg *PathsConfig) error {
	if len(cfg.Swift) == 0 && len(cfg.Clang) == 0 {
		return fmt.Errorf("%w: at least one of paths.swift or paths.clang is required", ErrEmptyPatterns)
	}
	return nil
}

func validateToolchain(cfg *ToolchainConfig) error {
	var errs []error
	if strings.TrimSpace(cfg.SwiftC) == "" {
		errs = append(errs, fmt.Errorf("%w: toolchain.swiftc is required", ErrEmptyToolchainPath))
	}
	if strings.TrimSpace(cfg.Clang) == "" {
		errs = append(errs, fmt.Errorf("%w: toolchain.clang is required", ErrEmptyToolchainPath))
	}
	return joinErrors(errs)
}

func validateScheduler(cfg *SchedulerConfig) error {
	var errs []error
	bands := []struct {
		name  string
		value int
	}{
		{"high_concurrency", cfg.HighConcurrency},
		{"medium_concurrency", cfg.MediumConcurrency},
		{"low_concurrency", cfg.LowConcurrency},
		{"background_concurrency", cfg.BackgroundConcurrency},
	}
	for _, b := range bands {
		if b.value <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConcurrency, b.name, b.value))
		}
	}
	if len(errs) == 0 {
		for i := 1; i < len(bands); i++ {
			if bands[i].value > bands[i-1].value {
				errs = append(errs, fmt.Errorf("%w: %s (%d) exceeds %s (%d)",
					ErrConcurrencyNotMonotone, bands[i].name, bands[i].value, bands[i-1].name, bands[i-1].value))
			}
		}
	}
	return joinErrors(errs)
}

func validateStorage(cfg *StorageConfig) error {
	var errs []error
	if strings.TrimSpace(cfg.IndexStoreDir) == "" {
		errs = append(errs, fmt.Errorf("%w: storage.index_store_dir is required", ErrEmptyStoragePath))
	}
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		errs = append(errs, fmt.Errorf("%w: storage.database_path is required", ErrEmptyStoragePath))
	}
	if cfg.UpdateIndexStoreTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidTimeout, cfg.UpdateIndexStoreTimeoutSeconds))
	}
	return joinErrors(errs)
}

// joinErrors combines multiple errors into a single error with clear
// formatting.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return fmt.Errorf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}
