package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/recipebox/recipebox/db"
	"github.com/recipebox/recipebox/errors"
	"github.com/recipebox/recipebox/logger"
	"github.com/recipebox/recipebox/recipes"
	"github.com/recipebox/recipebox/server"
	"github.com/recipebox/recipebox/vision"
)

type serveOptions struct {
	port   int
	dbPath string
	noCrop bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server"},
		Short:   "Run the recipe upload server",
		Long: `Start the HTTP server that accepts recipe photos, runs them through the
AI verify and extract stages, saves the result and pushes stage progress to
connected uploaders.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Port to listen on (default from config)")
	cmd.Flags().StringVar(&opts.dbPath, "db-path", "", "SQLite database path (default from config)")
	cmd.Flags().BoolVar(&opts.noCrop, "no-crop", false, "Skip cover cropping even if enabled in config")
	return cmd
}

func runServe(cmd *cobra.Command, opts serveOptions) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if opts.port > 0 {
		cfg.Server.Port = opts.port
	}
	if opts.dbPath != "" {
		cfg.Database.Path = opts.dbPath
	}
	if opts.noCrop {
		cfg.Vision.CropEnabled = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.ComponentLogger("serve")

	database, err := db.OpenWithMigrations(cfg.Database.Path, logger.ComponentLogger("db"))
	if err != nil {
		return errors.Wrapf(err, "failed to open database %s", cfg.Database.Path)
	}
	defer database.Close()

	vc := vision.New(cfg.Vision, logger.ComponentLogger("vision"))
	deps := server.Deps{
		Verifier:  vc,
		Extractor: vc,
		Store:     recipes.NewStore(database, logger.ComponentLogger("recipes")),
		Prober:    vc,
	}
	if cfg.Vision.CropEnabled {
		deps.Cropper = vc
	}

	srv, err := server.New(cfg, deps, logger.ComponentLogger("server"))
	if err != nil {
		return errors.Wrap(err, "failed to create server")
	}

	verbosity, _ := cmd.Flags().GetCount("verbose")
	printBanner(cfg, verbosity)
	probeVision(cmd.Context(), vc, cfg.Vision.BaseURL)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return srv.ListenAndServe(fmt.Sprintf(":%d", cfg.Server.Port))
	})
	g.Go(func() error {
		<-ctx.Done()
		pterm.Info.Println("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Errorw("Server stopped with error", "error", err)
		return err
	}
	pterm.Success.Println("Server stopped")
	return nil
}

// probeVision warns when the AI service is down. The server still starts;
// uploads fail at the verifying stage until the service comes up.
func probeVision(ctx context.Context, vc *vision.Client, baseURL string) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := vc.Ping(ctx); err != nil {
		pterm.Warning.Printfln("AI service at %s is not reachable: %v", baseURL, err)
		return
	}
	pterm.Success.Printfln("AI service at %s is reachable", baseURL)
}
