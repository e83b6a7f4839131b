// Package commands holds the recipebox CLI.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/recipebox/recipebox/config"
	"github.com/recipebox/recipebox/errors"
	"github.com/recipebox/recipebox/logger"
)

// NewRootCmd builds the recipebox command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "recipebox",
		Short: "Turn recipe photos into saved recipes",
		Long: `recipebox runs the image-to-recipe service and its command line client.

The server verifies an uploaded photo, extracts the recipe and saves it,
pushing stage progress to the uploader over a websocket. The upload command
shows that progress and replays it locally when no push channel is available.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional
			_ = godotenv.Load()

			verbosity, _ := cmd.Flags().GetCount("verbose")
			jsonLogs, _ := cmd.Flags().GetBool("log-json")
			if err := logger.Initialize(jsonLogs, verbosity); err != nil {
				return errors.Wrap(err, "failed to initialize logger")
			}
			return nil
		},
	}

	root.PersistentFlags().CountP("verbose", "v", "Increase verbosity (-v info, -vv debug)")
	root.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
	root.PersistentFlags().String("config", "", "Config file to use instead of the search path")

	root.AddCommand(
		newServeCmd(),
		newUploadCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig honours --config, falling back to the layered search.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}
