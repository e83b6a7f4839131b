// Package vision is the client for the AI image service that verifies,
// extracts and crops recipe photos.
//
// Every endpoint takes {"image": "<base64>"} and answers with a "success"
// flag; failures carry "error" (or "message") text.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/recipebox/recipebox/config"
	"github.com/recipebox/recipebox/errors"
	"github.com/recipebox/recipebox/internal/httpclient"
	"github.com/recipebox/recipebox/logger"
	"github.com/recipebox/recipebox/recipes"
)

// maxResponseBytes bounds a service response; crop answers carry a whole image.
const maxResponseBytes = 32 << 20

// Verification is the outcome of /verify.
type Verification struct {
	IsRecipe bool
	Message  string
}

// Crop is the outcome of /crop.
type Crop struct {
	Image     []byte
	CoverType string
	Message   string
}

// Client talks to the AI image service.
type Client struct {
	baseURL string
	http    *httpclient.Client
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
}

// New builds a client from config.
func New(cfg config.VisionConfig, log *zap.SugaredLogger) *Client {
	hc := httpclient.New(time.Duration(cfg.TimeoutSeconds)*time.Second, httpclient.Options{
		BlockPrivateIP: !cfg.AllowPrivateNetwork,
	})
	return NewWithHTTPClient(cfg.BaseURL, hc, cfg.MaxRequestsPerMinute, log)
}

// NewWithHTTPClient builds a client over hc. perMinute <= 0 disables rate
// limiting.
func NewWithHTTPClient(baseURL string, hc *httpclient.Client, perMinute int, log *zap.SugaredLogger) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		logger:  logger.OrNop(log),
	}
	if perMinute > 0 {
		// burst of one keeps requests evenly spaced
		c.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1)
	}
	return c
}

type imageRequest struct {
	Image string `json:"image"`
}

type response struct {
	Success      bool            `json:"success"`
	Message      string          `json:"message"`
	Error        string          `json:"error"`
	IsRecipe     *bool           `json:"is_recipe"`
	Recipe       json.RawMessage `json:"recipe"`
	CoverType    string          `json:"cover_type"`
	CroppedImage string          `json:"cropped_image"`
}

func (r *response) reason() string {
	if r.Error != "" {
		return r.Error
	}
	if r.Message != "" {
		return r.Message
	}
	return "no reason given"
}

// Verify asks whether the image contains a recipe. A service that answers
// success without is_recipe is taken as a yes.
func (c *Client) Verify(ctx context.Context, image []byte) (*Verification, error) {
	resp, err := c.post(ctx, "/verify", image)
	if err != nil {
		return nil, err
	}
	v := &Verification{IsRecipe: true, Message: resp.Message}
	if resp.IsRecipe != nil {
		v.IsRecipe = *resp.IsRecipe
	}
	return v, nil
}

// Extract reads the recipe fields off the image.
func (c *Client) Extract(ctx context.Context, image []byte) (*recipes.Extracted, error) {
	resp, err := c.post(ctx, "/extract", image)
	if err != nil {
		return nil, err
	}
	if len(resp.Recipe) == 0 || string(resp.Recipe) == "null" {
		return nil, errors.Mark(errors.New("extract: response has no recipe"), errors.ErrUpstream)
	}
	var e recipes.Extracted
	if err := json.Unmarshal(resp.Recipe, &e); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "extract: decode recipe"), errors.ErrUpstream)
	}
	return &e, nil
}

// Crop asks the service to tighten the image around the recipe.
func (c *Client) Crop(ctx context.Context, image []byte) (*Crop, error) {
	resp, err := c.post(ctx, "/crop", image)
	if err != nil {
		return nil, err
	}
	if resp.CroppedImage == "" {
		return nil, errors.Mark(errors.New("crop: response has no image"), errors.ErrUpstream)
	}
	img, err := base64.StdEncoding.DecodeString(stripDataURL(resp.CroppedImage))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "crop: decode image"), errors.ErrUpstream)
	}
	return &Crop{Image: img, CoverType: resp.CoverType, Message: resp.Message}, nil
}

// Ping checks that the service is reachable. The service only exposes POST
// routes, so any answer below 500 counts as up.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return errors.Wrap(err, "build ping request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "AI service unreachable"), errors.ErrServiceUnavailable)
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return errors.Mark(errors.Newf("AI service answered HTTP %d", resp.StatusCode), errors.ErrServiceUnavailable)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, image []byte) (*response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrapf(err, "%s: rate limit wait", path)
		}
	}

	body, err := json.Marshal(imageRequest{Image: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return nil, errors.Wrapf(err, "%s: encode request", path)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(err, "%s: build request", path)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "%s: request failed", path), errors.ErrServiceUnavailable)
	}

	var resp response
	decodeErr := httpclient.DecodeJSON(httpResp, maxResponseBytes, &resp)
	c.logger.Debugw("AI service call",
		logger.FieldPath, path,
		"status_code", httpResp.StatusCode,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	if decodeErr != nil {
		return nil, errors.Mark(errors.Wrap(decodeErr, path), errors.ErrUpstream)
	}
	if !resp.Success || httpResp.StatusCode >= http.StatusBadRequest {
		return nil, errors.Mark(
			errors.Newf("%s: service reported failure (HTTP %d): %s", path, httpResp.StatusCode, resp.reason()),
			errors.ErrUpstream,
		)
	}
	return &resp, nil
}

func stripDataURL(s string) string {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			return s[i+1:]
		}
	}
	return s
}
