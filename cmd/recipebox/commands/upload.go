package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/recipebox/recipebox/client"
	"github.com/recipebox/recipebox/config"
	"github.com/recipebox/recipebox/errors"
	"github.com/recipebox/recipebox/internal/httpclient"
	"github.com/recipebox/recipebox/logger"
	"github.com/recipebox/recipebox/progress"
	"github.com/recipebox/recipebox/recipes"
)

const (
	uploadTimeout = 3 * time.Minute
	// settleTimeout bounds the wait for pushes that trail the HTTP response.
	settleTimeout = 2 * time.Second
)

type uploadOptions struct {
	server    string
	token     string
	output    string
	noPush    bool
	preflight bool
}

func newUploadCmd() *cobra.Command {
	var opts uploadOptions
	cmd := &cobra.Command{
		Use:   "upload <image>",
		Short: "Upload a recipe photo and follow its progress",
		Long: `Upload a photo to a recipebox server. Progress for the uploading,
verifying, extracting and saving stages is shown as the server pushes it;
when no push channel is available the outcome is replayed from the response.`,
		Example: `  recipebox upload lasagna.jpg --token alice
  recipebox upload card.png --server http://kitchen:8080 --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.server, "server", "s", "", "Server URL (default http://localhost:<server.port>)")
	cmd.Flags().StringVarP(&opts.token, "token", "t", os.Getenv("RECIPEBOX_TOKEN"), "Bearer token identifying the user")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "Output format: text, json or yaml")
	cmd.Flags().BoolVar(&opts.noPush, "no-push", false, "Do not open a push channel")
	cmd.Flags().BoolVar(&opts.preflight, "preflight", true, "Check the AI service before uploading")
	return cmd
}

// uploadReport is the machine-readable result of an upload.
type uploadReport struct {
	ClientID    string          `json:"clientId" yaml:"client_id"`
	Status      int             `json:"status" yaml:"status"`
	Delivered   bool            `json:"realTimeUpdatesDelivered" yaml:"real_time_updates_delivered"`
	Replayed    int             `json:"replayed" yaml:"replayed"`
	Message     string          `json:"message" yaml:"message"`
	FailedStage progress.Stage  `json:"failedStage,omitempty" yaml:"failed_stage,omitempty"`
	Stages      []progress.Row  `json:"stages" yaml:"stages"`
	Recipe      *recipes.Recipe `json:"recipe,omitempty" yaml:"recipe,omitempty"`
}

func runUpload(cmd *cobra.Command, path string, opts uploadOptions) error {
	switch opts.output {
	case "text", "json", "yaml":
	default:
		return errors.Newf("unknown output %q (want text, json or yaml)", opts.output)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	image, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", path)
	}

	base := opts.server
	if base == "" {
		base = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}

	bus := progress.NewBus()
	tracker := progress.NewTracker()
	defer tracker.Attach(bus)()
	if opts.output == "text" {
		defer bus.Subscribe(printUpdate)()
	}

	ids, closeIDs, err := idSource(base, cfg, opts.noPush, bus)
	if err != nil {
		return err
	}
	defer closeIDs()

	sub := client.NewSubmitter(client.SubmitterOptions{
		BaseURL:          base,
		Token:            opts.token,
		MaxBytes:         cfg.Server.MaxUploadBytes,
		ClientIDHeader:   cfg.Server.ClientIDHeader,
		Preflight:        opts.preflight,
		PreflightTimeout: millis(cfg.Client.PreflightTimeoutMS),
	}, httpclient.New(uploadTimeout, httpclient.Options{}), ids, bus, logger.ComponentLogger("upload"))

	out, submitErr := sub.Submit(cmd.Context(), filepath.Base(path), image)
	if out == nil {
		return submitErr
	}
	if out.Response.RealTimeUpdatesDelivered {
		waitFinished(cmd.Context(), tracker, settleTimeout)
	}

	report := uploadReport{
		ClientID:    out.ClientID,
		Status:      out.Status,
		Delivered:   out.Response.RealTimeUpdatesDelivered,
		Replayed:    len(out.Replayed),
		Message:     out.Response.Message,
		FailedStage: out.Response.FailedStage,
		Stages:      tracker.Rows(),
		Recipe:      withoutCover(out.Response.Recipe),
	}
	if err := writeReport(cmd, opts.output, report); err != nil {
		return err
	}
	return submitErr
}

// idSource returns where upload ids come from and how to release it.
func idSource(base string, cfg *config.Config, noPush bool, bus *progress.Bus) (client.IDSource, func(), error) {
	if noPush {
		return client.Offline{}, func() {}, nil
	}
	wsURL, err := pushURL(base)
	if err != nil {
		return nil, nil, err
	}
	conn := client.NewConn(client.ConnOptions{
		URL:             wsURL,
		RegisterTimeout: millis(cfg.Client.RegisterTimeoutMS),
	}, bus, logger.ComponentLogger("push"))
	return conn, func() { _ = conn.Close() }, nil
}

// pushURL derives the websocket endpoint from the server's HTTP base URL.
func pushURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrapf(err, "invalid server URL %q", base)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", errors.Newf("invalid server URL %q: scheme must be http or https", base)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func waitFinished(ctx context.Context, tracker *progress.Tracker, limit time.Duration) {
	deadline := time.NewTimer(limit)
	defer deadline.Stop()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for !tracker.Finished() {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-tick.C:
		}
	}
}

// withoutCover drops the embedded image so reports stay readable.
func withoutCover(r *recipes.Recipe) *recipes.Recipe {
	if r == nil {
		return nil
	}
	c := *r
	c.ImageData = ""
	return &c
}

func printUpdate(u progress.Update) {
	label := progress.Label(u.Stage)
	switch u.Status {
	case progress.StatusProcessing:
		pterm.Info.Printfln("%s...", label)
	case progress.StatusSuccess:
		pterm.Success.Println(label)
	case progress.StatusError:
		if u.Message != "" {
			pterm.Error.Printfln("%s: %s", label, u.Message)
			return
		}
		pterm.Error.Println(label)
	}
}

func writeReport(cmd *cobra.Command, format string, report uploadReport) error {
	w := cmd.OutOrStdout()
	switch format {
	case "json":
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal report")
		}
		fmt.Fprintln(w, string(out))
	case "yaml":
		out, err := yaml.Marshal(report)
		if err != nil {
			return errors.Wrap(err, "failed to marshal report")
		}
		fmt.Fprint(w, string(out))
	default:
		printRecipe(report)
	}
	return nil
}

func printRecipe(report uploadReport) {
	if report.Recipe == nil {
		pterm.Warning.Println(report.Message)
		return
	}
	r := report.Recipe
	pterm.DefaultSection.Println(r.Title)
	if r.Description != "" {
		pterm.Println(r.Description)
	}
	pterm.Printfln("Recipe #%d · %d min · serves %d · %s", r.ID, r.CookTime, r.Servings, r.Difficulty)

	pterm.DefaultSection.WithLevel(2).Println("Ingredients")
	items := make([]pterm.BulletListItem, len(r.Ingredients))
	for i, ing := range r.Ingredients {
		items[i] = pterm.BulletListItem{Level: 0, Text: ing}
	}
	_ = pterm.DefaultBulletList.WithItems(items).Render()

	pterm.DefaultSection.WithLevel(2).Println("Instructions")
	for i, step := range r.Instructions {
		pterm.Printfln("%d. %s", i+1, step)
	}
}
