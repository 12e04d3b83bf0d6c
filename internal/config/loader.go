package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/go-viper/mapstructure/v2"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// DefaultConfigPath returns the platform config file location,
// e.g. ~/.config/readaloud/readaloud.yml on Linux.
func DefaultConfigPath() (string, error) {
	scope := gap.NewScope(gap.User, "readaloud")
	path, err := scope.ConfigPath("readaloud.yml")
	if err != nil {
		return "", fmt.Errorf("locating config path: %w", err)
	}
	return path, nil
}

// Load reads the configuration, layering the config file (if present) and
// environment variables over the defaults. An empty path uses the default
// location; a missing file at the default location is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, err
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || (!errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist)) {
			return cfg, fmt.Errorf("reading config file %s: %w", path, err)
		}
	} else if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	// Environment variables win over the file.
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
