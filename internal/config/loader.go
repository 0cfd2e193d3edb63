package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"ncvault/internal/domain"
)

// DefaultConfigPaths returns the paths searched for a config file when
// none is given explicitly
func DefaultConfigPaths() []string {
	paths := []string{
		".",
		"./configs",
	}

	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "ncvault"))
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "ncvault"))
		paths = append(paths, filepath.Join(homeDir, ".ncvault"))
	}

	return paths
}

// Load reads and parses a configuration file. If path is empty the
// default locations are searched for ncvault.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ncvault")
		v.SetConfigType("yaml")
		for _, p := range DefaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, domain.ErrConfigNotFound
		}
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	return unmarshal(v)
}

// LoadFromString parses configuration from a YAML string
func LoadFromString(yamlContent string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")

	if err := v.ReadConfig(strings.NewReader(yamlContent)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	return unmarshal(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("filter", DefaultFilter)
	v.SetDefault("trackdb.driver", "sqlite3")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	// read_attributes defaults to true; viper cannot distinguish a
	// false zero value from an unset key without IsSet
	for name := range cfg.Projects {
		if !v.IsSet(fmt.Sprintf("projects.%s.read_attributes", name)) {
			p := cfg.Projects[name]
			p.ReadAttributes = true
			cfg.Projects[name] = p
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
