package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/recipebox/recipebox/config"
	"github.com/recipebox/recipebox/errors"
	"github.com/recipebox/recipebox/internal/httpclient"
	"github.com/recipebox/recipebox/logger"
	"github.com/recipebox/recipebox/pipeline"
	"github.com/recipebox/recipebox/progress"
	"github.com/recipebox/recipebox/version"
)

// MsgServiceUnavailable is reported when the preflight probe fails.
const MsgServiceUnavailable = "AI recipe analysis service is not available"

const uploadPath = "/api/recipes/from-image"

const maxResponseBytes = 16 << 20

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// IDSource hands out the client id an upload is tagged with. *Conn is one.
type IDSource interface {
	ClientID(ctx context.Context) string
}

// SubmitterOptions configures a Submitter.
type SubmitterOptions struct {
	// BaseURL is the recipebox server, e.g. http://localhost:8080.
	BaseURL string
	// Token is sent as "Authorization: Bearer <token>".
	Token string
	// MaxBytes rejects larger images before any request is made.
	MaxBytes int64
	// ClientIDHeader carries the client id. Defaults to X-Client-ID.
	ClientIDHeader string
	// Preflight probes the AI service before uploading.
	Preflight        bool
	PreflightTimeout time.Duration
}

// Outcome is the result of one submission.
type Outcome struct {
	ClientID string
	Status   int
	Response pipeline.Response
	// Replayed lists the updates published locally because the server could
	// not push them.
	Replayed []progress.Update
}

// Submitter uploads images and keeps a progress.Bus consistent with the
// server's outcome whether or not the push channel worked.
type Submitter struct {
	opts   SubmitterOptions
	http   *httpclient.Client
	ids    IDSource
	bus    *progress.Bus
	logger *zap.SugaredLogger
}

// NewSubmitter creates a submitter.
func NewSubmitter(opts SubmitterOptions, hc *httpclient.Client, ids IDSource, bus *progress.Bus, log *zap.SugaredLogger) *Submitter {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.ClientIDHeader == "" {
		opts.ClientIDHeader = config.DefaultClientIDHeader
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = config.DefaultMaxUploadBytes
	}
	if opts.PreflightTimeout <= 0 {
		opts.PreflightTimeout = time.Duration(config.DefaultPreflightTimeoutMS) * time.Millisecond
	}
	return &Submitter{
		opts:   opts,
		http:   hc,
		ids:    ids,
		bus:    bus,
		logger: logger.OrNop(log).With(logger.FieldComponent, "submitter"),
	}
}

// Validate rejects what the server would refuse, without a request.
func (s *Submitter) Validate(image []byte) error {
	if len(image) == 0 {
		return errors.NewInvalidRequestError("Image is empty")
	}
	if int64(len(image)) > s.opts.MaxBytes {
		return errors.NewInvalidRequestError("Image is too large (limit %d bytes)", s.opts.MaxBytes)
	}
	if ct := http.DetectContentType(image); !allowedImageTypes[ct] {
		return errors.NewInvalidRequestError("File is not a supported image (%s)", ct)
	}
	return nil
}

// Preflight asks the server whether the AI service is up.
func (s *Submitter) Preflight(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.PreflightTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.opts.BaseURL+uploadPath, nil)
	if err != nil {
		return errors.Wrap(err, "build preflight request")
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return errors.Mark(errors.Wrap(err, MsgServiceUnavailable), errors.ErrServiceUnavailable)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Mark(errors.Newf("%s (HTTP %d)", MsgServiceUnavailable, resp.StatusCode), errors.ErrServiceUnavailable)
	}
	return nil
}

// Submit uploads image. Local validation and preflight failures return
// before anything is published. Otherwise uploading:processing is published
// first and, when the server reports undelivered pushes, the outcome is
// replayed on the bus. A non-2xx response returns both the Outcome and an
// error.
func (s *Submitter) Submit(ctx context.Context, filename string, image []byte) (*Outcome, error) {
	if err := s.Validate(image); err != nil {
		return nil, err
	}
	if s.opts.Preflight {
		if err := s.Preflight(ctx); err != nil {
			return nil, err
		}
	}

	out := &Outcome{ClientID: s.ids.ClientID(ctx)}
	log := s.logger.With(logger.FieldClientID, out.ClientID)

	s.bus.Publish(progress.Update{Stage: progress.StageUploading, Status: progress.StatusProcessing})

	start := time.Now()
	status, body, err := s.post(ctx, out.ClientID, filename, image)
	if err != nil {
		s.bus.Publish(progress.Update{Stage: progress.StageUploading, Status: progress.StatusError, Message: "Failed to upload image"})
		return out, err
	}
	out.Status = status
	out.Response = body

	out.Replayed = Replay(status, body)
	for _, u := range out.Replayed {
		s.bus.Publish(u)
	}
	log.Infow("Upload submitted",
		logger.FieldStatus, status,
		logger.FieldDelivered, body.RealTimeUpdatesDelivered,
		"replayed", len(out.Replayed),
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return out, responseError(status, body)
	}
	return out, nil
}

func (s *Submitter) post(ctx context.Context, clientID, filename string, image []byte) (int, pipeline.Response, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", filepath.Base(filename))
	if err != nil {
		return 0, pipeline.Response{}, errors.Wrap(err, "build multipart body")
	}
	if _, err := fw.Write(image); err != nil {
		return 0, pipeline.Response{}, errors.Wrap(err, "build multipart body")
	}
	if err := mw.Close(); err != nil {
		return 0, pipeline.Response{}, errors.Wrap(err, "build multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.BaseURL+uploadPath, &buf)
	if err != nil {
		return 0, pipeline.Response{}, errors.Wrap(err, "build upload request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("User-Agent", version.Get().UserAgent())
	req.Header.Set(s.opts.ClientIDHeader, clientID)
	if s.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.opts.Token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, pipeline.Response{}, errors.Mark(errors.Wrap(err, "upload request failed"), errors.ErrServiceUnavailable)
	}
	defer resp.Body.Close()

	var body pipeline.Response
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, body, errors.Wrap(err, "read upload response")
	}
	if err := json.Unmarshal(data, &body); err != nil {
		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			return resp.StatusCode, body, errors.Mark(errors.Wrapf(err, "decode upload response (HTTP %d)", resp.StatusCode), errors.ErrUpstream)
		}
		// Proxies answer errors with HTML; keep the status and carry on.
		body.Message = http.StatusText(resp.StatusCode)
	}
	return resp.StatusCode, body, nil
}

func responseError(status int, body pipeline.Response) error {
	err := errors.Newf("%s (HTTP %d)", body.Message, status)
	if body.Error != "" {
		err = errors.WithDetail(err, body.Error)
	}
	switch {
	case status == http.StatusUnauthorized:
		return errors.Mark(err, errors.ErrUnauthorized)
	case FailedStage(body) == progress.StageVerifying && status < http.StatusInternalServerError:
		return errors.Mark(err, errors.ErrNotARecipe)
	case status < http.StatusInternalServerError:
		return errors.Mark(err, errors.ErrInvalidRequest)
	default:
		return errors.Mark(err, errors.ErrUpstream)
	}
}
