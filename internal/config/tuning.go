package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds the runtime parameters of the dosimeter pipeline.
// The schema matches the /api/params endpoint so the same JSON can be used
// for both startup configuration and runtime updates. All fields are
// pointers so a partial config leaves the rest at their defaults.
type TuningConfig struct {
	// Detector params
	MaxPixCount *int `json:"max_pix_count,omitempty"`

	// Persistence params
	FlushInterval   *string `json:"flush_interval,omitempty"` // duration string like "60s"
	MinClusterSize  *int    `json:"min_cluster_size,omitempty"`
	RetainDays      *int    `json:"retain_days,omitempty"`
	PersistClusters *bool   `json:"persist_clusters,omitempty"`

	// Serial link params
	BaudRate    *int    `json:"baud_rate,omitempty"`
	ReadTimeout *string `json:"read_timeout,omitempty"` // duration string like "5s"
}

// Helper functions to create pointers
func ptrInt(v int) *int          { return &v }
func ptrBool(v bool) *bool       { return &v }
func ptrString(v string) *string { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.MaxPixCount != nil {
		if *c.MaxPixCount <= 0 || *c.MaxPixCount > 65536 {
			return fmt.Errorf("max_pix_count must be between 1 and 65536, got %d", *c.MaxPixCount)
		}
	}

	if c.FlushInterval != nil && *c.FlushInterval != "" {
		if _, err := time.ParseDuration(*c.FlushInterval); err != nil {
			return fmt.Errorf("invalid flush_interval '%s': %w", *c.FlushInterval, err)
		}
	}

	if c.ReadTimeout != nil && *c.ReadTimeout != "" {
		if _, err := time.ParseDuration(*c.ReadTimeout); err != nil {
			return fmt.Errorf("invalid read_timeout '%s': %w", *c.ReadTimeout, err)
		}
	}

	if c.MinClusterSize != nil {
		if *c.MinClusterSize < 1 {
			return fmt.Errorf("min_cluster_size must be at least 1, got %d", *c.MinClusterSize)
		}
	}

	if c.RetainDays != nil {
		if *c.RetainDays < 0 {
			return fmt.Errorf("retain_days must be non-negative, got %d", *c.RetainDays)
		}
	}

	if c.BaudRate != nil {
		if *c.BaudRate <= 0 {
			return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
		}
	}

	return nil
}

// GetMaxPixCount returns the max_pix_count value or the default. This is
// the detector's acquisition abort threshold: a readout stops once this
// many pixels have fired.
func (c *TuningConfig) GetMaxPixCount() int {
	if c.MaxPixCount == nil {
		return 65536 // default: full matrix
	}
	return *c.MaxPixCount
}

// GetFlushInterval parses and returns the FlushInterval as a time.Duration.
func (c *TuningConfig) GetFlushInterval() time.Duration {
	if c.FlushInterval == nil || *c.FlushInterval == "" {
		return 60 * time.Second // default
	}
	d, err := time.ParseDuration(*c.FlushInterval)
	if err != nil {
		return 60 * time.Second // default on parse error
	}
	return d
}

// GetMinClusterSize returns the min_cluster_size value or the default.
// Clusters smaller than this are still decoded but not persisted.
func (c *TuningConfig) GetMinClusterSize() int {
	if c.MinClusterSize == nil {
		return 1 // default: keep everything
	}
	return *c.MinClusterSize
}

// GetRetainDays returns the retain_days value or the default.
func (c *TuningConfig) GetRetainDays() int {
	if c.RetainDays == nil {
		return 30 // default
	}
	return *c.RetainDays
}

// GetPersistClusters returns the persist_clusters value or the default.
func (c *TuningConfig) GetPersistClusters() bool {
	if c.PersistClusters == nil {
		return true // default
	}
	return *c.PersistClusters
}

// GetBaudRate returns the baud_rate value or the default.
func (c *TuningConfig) GetBaudRate() int {
	if c.BaudRate == nil {
		return 921600 // default
	}
	return *c.BaudRate
}

// GetReadTimeout parses and returns the ReadTimeout as a time.Duration.
func (c *TuningConfig) GetReadTimeout() time.Duration {
	if c.ReadTimeout == nil || *c.ReadTimeout == "" {
		return 5 * time.Second // default
	}
	d, err := time.ParseDuration(*c.ReadTimeout)
	if err != nil {
		return 5 * time.Second // default on parse error
	}
	return d
}
