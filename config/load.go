package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/recipebox/recipebox/errors"
)

// ProjectConfigName is the file searched for upward from the working directory.
const ProjectConfigName = "recipebox.toml"

var globalConfig *Config
var viperInstance *viper.Viper

// Load reads configuration from all sources. The result is cached; call Reset
// to force a reload.
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	cfg, err := LoadWithViper(initViper())
	if err != nil {
		return nil, err
	}
	globalConfig = cfg
	return globalConfig, nil
}

// LoadWithViper unmarshals and validates configuration from v.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromFile loads defaults plus a single TOML file, ignoring the
// environment and the usual search path.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}
	return LoadWithViper(v)
}

// Reset clears the cached configuration (useful for testing).
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()
	v.SetEnvPrefix("RECIPEBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindSensitiveEnvVars(v)
	SetDefaults(v)
	mergeConfigFiles(v, configPaths())

	viperInstance = v
	return v
}

// UserConfigDir returns ~/.recipebox.
func UserConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".recipebox"
	}
	return filepath.Join(home, ".recipebox")
}

// configPaths lists candidate files, lowest precedence first.
func configPaths() []string {
	paths := []string{
		"/etc/recipebox/config.toml",
		filepath.Join(UserConfigDir(), "config.toml"),
	}
	if project := findProjectConfig(); project != "" {
		paths = append(paths, project)
	}
	return paths
}

// findProjectConfig walks up from the working directory looking for
// recipebox.toml. Returns "" if none is found.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ProjectConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// mergeConfigFiles applies each existing file in order so later files win.
// Unreadable files are skipped.
func mergeConfigFiles(v *viper.Viper, paths []string) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		tmp := viper.New()
		tmp.SetConfigFile(path)
		tmp.SetConfigType("toml")
		if err := tmp.ReadInConfig(); err != nil {
			continue
		}
		if err := v.MergeConfigMap(tmp.AllSettings()); err != nil {
			continue
		}
	}
}
