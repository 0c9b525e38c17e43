package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical export defaults file.
// This is the single source of truth for all default export settings.
const DefaultConfigPath = "config/export.defaults.json"

// ExportConfig holds tunable settings for a conversion run. All fields are
// pointers so a partial JSON file only overrides what it names; the Get*
// methods supply fallback defaults for everything else. Flags on the CLI
// take precedence over the file.
type ExportConfig struct {
	// Fetch params
	ParallelFetch *int    `json:"parallel_fetch,omitempty"`
	FetchTimeout  *string `json:"fetch_timeout,omitempty"` // duration string like "30s"

	// Run-ledger params
	LedgerPath *string `json:"ledger_path,omitempty"`

	// COS fetcher settings. Empty credentials fall back to the
	// COS_SECRET_ID / COS_SECRET_KEY environment variables.
	COSRegion    *string `json:"cos_region,omitempty"`
	COSSecretID  *string `json:"cos_secret_id,omitempty"`
	COSSecretKey *string `json:"cos_secret_key,omitempty"`
}

// Helper functions to create pointers
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// EmptyExportConfig returns an ExportConfig with all fields set to nil.
// Use LoadExportConfig to load actual values from a file.
func EmptyExportConfig() *ExportConfig {
	return &ExportConfig{}
}

// LoadExportConfig loads an ExportConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON retain their default values,
// so partial configs are safe.
func LoadExportConfig(path string) (*ExportConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyExportConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical export defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *ExportConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadExportConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *ExportConfig) Validate() error {
	if c.ParallelFetch != nil {
		if *c.ParallelFetch < 1 {
			return fmt.Errorf("parallel_fetch must be at least 1, got %d", *c.ParallelFetch)
		}
	}

	if c.FetchTimeout != nil && *c.FetchTimeout != "" {
		if _, err := time.ParseDuration(*c.FetchTimeout); err != nil {
			return fmt.Errorf("invalid fetch_timeout '%s': %w", *c.FetchTimeout, err)
		}
	}

	return nil
}

// GetParallelFetch returns the parallel_fetch value or the default.
func (c *ExportConfig) GetParallelFetch() int {
	if c.ParallelFetch == nil {
		return 4 // default
	}
	return *c.ParallelFetch
}

// GetFetchTimeout parses and returns the FetchTimeout as a time.Duration.
func (c *ExportConfig) GetFetchTimeout() time.Duration {
	if c.FetchTimeout == nil || *c.FetchTimeout == "" {
		return 30 * time.Second // default
	}
	d, err := time.ParseDuration(*c.FetchTimeout)
	if err != nil {
		return 30 * time.Second // default on parse error
	}
	return d
}

// GetLedgerPath returns the ledger_path value or the default.
func (c *ExportConfig) GetLedgerPath() string {
	if c.LedgerPath == nil {
		return "export_runs.db" // default
	}
	return *c.LedgerPath
}

// GetCOSRegion returns the cos_region value or the default.
func (c *ExportConfig) GetCOSRegion() string {
	if c.COSRegion == nil || *c.COSRegion == "" {
		return "ap-guangzhou" // default
	}
	return *c.COSRegion
}

// GetCOSSecretID returns the cos_secret_id value, falling back to the
// COS_SECRET_ID environment variable.
func (c *ExportConfig) GetCOSSecretID() string {
	if c.COSSecretID != nil && *c.COSSecretID != "" {
		return *c.COSSecretID
	}
	return os.Getenv("COS_SECRET_ID")
}

// GetCOSSecretKey returns the cos_secret_key value, falling back to the
// COS_SECRET_KEY environment variable.
func (c *ExportConfig) GetCOSSecretKey() string {
	if c.COSSecretKey != nil && *c.COSSecretKey != "" {
		return *c.COSSecretKey
	}
	return os.Getenv("COS_SECRET_KEY")
}
