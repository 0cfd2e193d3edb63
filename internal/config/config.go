package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"ncvault/internal/domain"
)

// Names of the built-in destination directory formats. A project may
// define additional named formats; --dir-format selects one at runtime.
const (
	FormatCopy    = "directory_format_for_copy"
	FormatReplica = "directory_format_for_replica"
)

// DefaultFilter matches the base names the tool archives when no
// --filter override is given.
const DefaultFilter = `\.nc$`

// Config is the complete ncvault configuration
type Config struct {
	// Filter is the default base-name filter regex
	Filter string `mapstructure:"filter"`

	// Projects define classification and placement per project name
	Projects map[string]Project `mapstructure:"projects"`

	// Rewrites canonicalize destination roots before placement
	Rewrites []Rewrite `mapstructure:"rewrites"`

	// TrackDB configures the tracking store used by --sync-db
	TrackDB TrackDBConfig `mapstructure:"trackdb"`

	// Log configures logging
	Log LogConfig `mapstructure:"log"`
}

// Project describes how files of one project are classified and where
// they are placed
type Project struct {
	// ScanFormat is a %(facet)s template matched against source paths
	// to extract facet values (optional)
	ScanFormat string `mapstructure:"scan_format"`

	// DatasetID is the %(facet)s template rendering a dataset identifier
	DatasetID string `mapstructure:"dataset_id"`

	// DirectoryFormats are named destination-root templates; the
	// directory_format_for_copy entry is required
	DirectoryFormats map[string]string `mapstructure:"directory_formats"`

	// Defaults seed facet values before extraction
	Defaults map[string]string `mapstructure:"defaults"`

	// ReadAttributes reads global attributes from file headers during
	// classification (default true)
	ReadAttributes bool `mapstructure:"read_attributes"`
}

// Rewrite maps a legacy destination-root prefix to its canonical mirror
// name. Applied once per destination root, independent of file content.
type Rewrite struct {
	// Prefix is the legacy path prefix to recognize
	Prefix string `mapstructure:"prefix"`

	// Replacement substitutes the prefix
	Replacement string `mapstructure:"replacement"`
}

// TrackDBConfig selects and addresses the tracking store
type TrackDBConfig struct {
	// Driver is "sqlite3" or "postgres"
	Driver string `mapstructure:"driver"`

	// DSN is the driver-specific data source name. Empty selects a
	// per-user sqlite database under the user config directory.
	DSN string `mapstructure:"dsn"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string        `mapstructure:"level"`
	Format string        `mapstructure:"format"`
	File   LogFileConfig `mapstructure:"file"`
}

// LogFileConfig enables rotated file logging
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// Validate checks that the configuration is complete and consistent
func (c *Config) Validate() error {
	if c.Filter != "" {
		if _, err := regexp.Compile(c.Filter); err != nil {
			return fmt.Errorf("%w: filter %q: %v", domain.ErrConfigInvalid, c.Filter, err)
		}
	}

	for name, p := range c.Projects {
		if name == "" {
			return fmt.Errorf("%w: project name cannot be empty", domain.ErrConfigInvalid)
		}
		if p.DatasetID == "" {
			return fmt.Errorf("%w: project %s has no dataset_id template", domain.ErrConfigInvalid, name)
		}
		if _, ok := p.DirectoryFormats[FormatCopy]; !ok {
			return fmt.Errorf("%w: project %s has no %s", domain.ErrConfigInvalid, name, FormatCopy)
		}
	}

	for i, r := range c.Rewrites {
		if r.Prefix == "" {
			return fmt.Errorf("%w: rewrite %d has an empty prefix", domain.ErrConfigInvalid, i)
		}
	}

	switch c.TrackDB.Driver {
	case "", "sqlite3", "postgres":
	default:
		return fmt.Errorf("%w: unknown trackdb driver: %s", domain.ErrConfigInvalid, c.TrackDB.Driver)
	}

	return nil
}

// GetProject returns the configuration for a named project
func (c *Config) GetProject(name string) (*Project, error) {
	p, ok := c.Projects[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProjectNotFound, name)
	}
	return &p, nil
}

// DirectoryFormat returns a project's named destination template
func (p *Project) DirectoryFormat(name string) (string, error) {
	f, ok := p.DirectoryFormats[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrFormatNotFound, name)
	}
	return f, nil
}

// DataDir returns the per-user data directory for ncvault, creating it
// if necessary
func DataDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config dir: %w", err)
	}
	dir := filepath.Join(configDir, "ncvault")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data dir: %w", err)
	}
	return dir, nil
}
