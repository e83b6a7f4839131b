package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/recipebox/recipebox/errors"
)

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Defaults always unmarshal.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Marshal renders cfg as TOML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode config")
	}
	return data, nil
}

// WriteFile writes cfg to path as TOML. An existing file is kept as
// path.bak unless overwrite is false, in which case the call fails.
func WriteFile(path string, cfg *Config, overwrite bool) error {
	if _, err := os.Stat(path); err == nil {
		if !overwrite {
			return errors.WithHint(
				errors.Newf("config file %s already exists", path),
				"pass --force to replace it",
			)
		}
		if err := backup(path); err != nil {
			return err
		}
	}

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create %s", filepath.Dir(path))
	}
	if err := os.WriteFile(path, data, DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

func backup(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}
	if err := os.WriteFile(path+".bak", content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}
	return nil
}
