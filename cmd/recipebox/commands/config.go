package commands

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/recipebox/recipebox/config"
	"github.com/recipebox/recipebox/errors"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create configuration",
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigInitCmd(), newConfigValidateCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return errors.Wrap(err, "failed to load config")
			}
			out, err := renderConfig(cfg, format)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "toml", "Output format: toml, json or yaml")
	return cmd
}

func renderConfig(cfg *config.Config, format string) ([]byte, error) {
	switch format {
	case "toml":
		return config.Marshal(cfg)
	case "json":
		out, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config as JSON")
		}
		return append(out, '\n'), nil
	case "yaml":
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config as YAML")
		}
		return out, nil
	default:
		return nil, errors.Newf("unknown format %q (want toml, json or yaml)", format)
	}
}

func newConfigInitCmd() *cobra.Command {
	var (
		path  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default values",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = filepath.Join(config.UserConfigDir(), "config.toml")
			}
			if err := config.WriteFile(path, config.Default(), force); err != nil {
				return err
			}
			pterm.Success.Printfln("Wrote %s", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "Where to write (default ~/.recipebox/config.toml)")
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing file, keeping a .bak copy")
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and report problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return errors.Wrap(err, "failed to load config")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			pterm.Success.Println("Configuration is valid")
			return nil
		},
	}
}
