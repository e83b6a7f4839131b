package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	"github.com/recipebox/recipebox/config"
	"github.com/recipebox/recipebox/logger"
	"github.com/recipebox/recipebox/version"
)

func printBanner(cfg *config.Config, verbosity int) {
	crop := "off"
	if cfg.Vision.CropEnabled {
		crop = "on"
	}
	origins := "none (non-browser clients only)"
	if len(cfg.Server.AllowedOrigins) > 0 {
		origins = strings.Join(cfg.Server.AllowedOrigins, ", ")
	}

	lines := []string{
		fmt.Sprintf("Version:  %s", version.Get().Short()),
		fmt.Sprintf("Listen:   http://localhost:%d", cfg.Server.Port),
		fmt.Sprintf("Push:     ws://localhost:%d/ws", cfg.Server.Port),
		fmt.Sprintf("Database: %s", cfg.Database.Path),
		fmt.Sprintf("AI:       %s (crop %s)", cfg.Vision.BaseURL, crop),
		fmt.Sprintf("Origins:  %s", origins),
		fmt.Sprintf("Logging:  %s", logger.LevelName(verbosity)),
	}
	pterm.DefaultBox.WithTitle("recipebox").Println(strings.Join(lines, "\n"))
}
