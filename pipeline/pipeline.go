// Package pipeline runs the image-to-recipe job: verify the photo, extract
// the recipe, crop a cover and save, broadcasting every stage transition to
// the submitting client as it happens.
//
// Broadcasting is best effort. The job never waits on or fails because of
// the push channel; it only records whether every broadcast was delivered so
// the HTTP response can tell the client to replay the outcome itself.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/recipebox/recipebox/errors"
	"github.com/recipebox/recipebox/logger"
	"github.com/recipebox/recipebox/progress"
	"github.com/recipebox/recipebox/recipes"
	"github.com/recipebox/recipebox/vision"
)

// User-facing failure messages. Clients that cannot read failedStage match on
// these, so they must not change.
const (
	MsgUnauthorized  = "Authentication required"
	MsgVerifyFailed  = "Failed to verify recipe image"
	MsgNotARecipe    = "The image does not appear to contain a recipe"
	MsgExtractFailed = "Failed to extract recipe details"
	MsgSaveFailed    = "Failed to save recipe"
	MsgCreated       = "Recipe created successfully"
)

// Broadcaster delivers a stage transition to one client and reports whether
// it was delivered.
type Broadcaster interface {
	Broadcast(clientID string, stage progress.Stage, status progress.Status, message string) bool
}

// BroadcasterFunc adapts a function to Broadcaster.
type BroadcasterFunc func(clientID string, stage progress.Stage, status progress.Status, message string) bool

// Broadcast calls f.
func (f BroadcasterFunc) Broadcast(clientID string, stage progress.Stage, status progress.Status, message string) bool {
	return f(clientID, stage, status, message)
}

// Verifier decides whether an image shows a recipe.
type Verifier interface {
	Verify(ctx context.Context, image []byte) (*vision.Verification, error)
}

// Extractor reads recipe fields from an image.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (*recipes.Extracted, error)
}

// Cropper tightens an image around the recipe.
type Cropper interface {
	Crop(ctx context.Context, image []byte) (*vision.Crop, error)
}

// RecipeStore persists a recipe.
type RecipeStore interface {
	Create(ctx context.Context, r *recipes.Recipe) (*recipes.Recipe, error)
}

// Options tunes the orchestrator.
type Options struct {
	// CropTimeout bounds the optional crop call. Zero means the caller's context only.
	CropTimeout time.Duration
	// CoverMaxDimension is passed to recipes.PrepareCover.
	CoverMaxDimension int
}

// Job is one upload. It lives for the duration of a single HTTP request.
type Job struct {
	ClientID string
	UserID   string
	Image    []byte
}

// Result is returned for every job, successful or not.
type Result struct {
	Recipe *recipes.Recipe
	// Delivered is true only if every broadcast during the job was delivered.
	Delivered bool
	// Broadcasts counts the broadcasts attempted.
	Broadcasts int
}

// StageError reports the stage a job stopped at.
type StageError struct {
	Stage   progress.Stage
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }

// Orchestrator drives jobs. It holds no per-job state and is safe for
// concurrent use.
type Orchestrator struct {
	broadcaster Broadcaster
	verifier    Verifier
	extractor   Extractor
	cropper     Cropper
	store       RecipeStore
	opts        Options
	logger      *zap.SugaredLogger
}

// New creates an orchestrator. cropper may be nil to skip cropping.
func New(b Broadcaster, v Verifier, e Extractor, c Cropper, s RecipeStore, opts Options, log *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{
		broadcaster: b,
		verifier:    v,
		extractor:   e,
		cropper:     c,
		store:       s,
		opts:        opts,
		logger:      logger.OrNop(log),
	}
}

// job carries the mutable state of one Run.
type job struct {
	*Orchestrator
	Job
	log       *zap.SugaredLogger
	delivered bool
	sent      int
}

// Run executes the job. The returned Result is never nil; err is a
// *StageError when the job stopped early.
func (o *Orchestrator) Run(ctx context.Context, in Job) (*Result, error) {
	j := &job{
		Orchestrator: o,
		Job:          in,
		log:          logger.FromContext(ctx, o.logger).With(logger.FieldClientID, in.ClientID),
		delivered:    true,
	}

	if in.UserID == "" {
		// Nothing has started, so nothing is broadcast.
		return &Result{}, &StageError{Stage: progress.StageUploading, Message: MsgUnauthorized, Err: errors.ErrUnauthorized}
	}

	start := time.Now()
	rec, err := j.run(ctx)
	res := &Result{Recipe: rec, Delivered: j.delivered, Broadcasts: j.sent}

	if err != nil {
		var se *StageError
		errors.As(err, &se)
		j.log.Warnw("Upload job failed",
			logger.FieldStage, se.Stage,
			logger.FieldError, err,
			logger.FieldDelivered, res.Delivered,
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
		)
		return res, err
	}

	j.log.Infow("Upload job completed",
		logger.FieldRecipeID, rec.ID,
		logger.FieldDelivered, res.Delivered,
		logger.FieldCount, res.Broadcasts,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (j *job) run(ctx context.Context) (*recipes.Recipe, error) {
	// The request body has arrived, so uploading is already complete.
	j.emit(progress.StageUploading, progress.StatusSuccess, "")

	j.emit(progress.StageVerifying, progress.StatusProcessing, "")
	v, err := j.verifier.Verify(ctx, j.Image)
	if err != nil {
		return nil, j.fail(progress.StageVerifying, MsgVerifyFailed, err)
	}
	if !v.IsRecipe {
		return nil, j.fail(progress.StageVerifying, MsgNotARecipe, errors.Wrap(errors.ErrNotARecipe, v.Message))
	}
	j.emit(progress.StageVerifying, progress.StatusSuccess, "")

	j.emit(progress.StageExtracting, progress.StatusProcessing, "")
	extracted, err := j.extractor.Extract(ctx, j.Image)
	if err != nil {
		return nil, j.fail(progress.StageExtracting, MsgExtractFailed, err)
	}
	j.emit(progress.StageExtracting, progress.StatusSuccess, "")

	j.emit(progress.StageSaving, progress.StatusProcessing, "")
	rec := recipes.FromExtracted(j.UserID, extracted)
	rec.ImageData, rec.CoverType = j.cover(ctx)

	saved, err := j.store.Create(ctx, rec)
	if err != nil {
		return nil, j.fail(progress.StageSaving, MsgSaveFailed, err)
	}
	j.emit(progress.StageSaving, progress.StatusSuccess, "")
	return saved, nil
}

// cover crops the upload if a cropper is configured and prepares it for
// storage. Any failure falls back to the original image.
func (j *job) cover(ctx context.Context) (dataURL, coverType string) {
	img := j.Image
	coverType = "original"

	if j.cropper != nil {
		cctx := ctx
		if j.opts.CropTimeout > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(ctx, j.opts.CropTimeout)
			defer cancel()
		}
		crop, err := j.cropper.Crop(cctx, j.Image)
		switch {
		case err != nil:
			j.log.Warnw("Crop failed, keeping original image", logger.FieldError, err)
		case len(crop.Image) == 0:
			j.log.Warnw("Crop returned no image, keeping original")
		default:
			img = crop.Image
			if crop.CoverType != "" {
				coverType = crop.CoverType
			}
		}
	}

	dataURL, err := recipes.PrepareCover(img, j.opts.CoverMaxDimension)
	if err != nil {
		j.log.Debugw("Cover not re-encoded, storing as uploaded", logger.FieldError, err)
		return recipes.DataURL(img), coverType
	}
	return dataURL, coverType
}

func (j *job) emit(stage progress.Stage, status progress.Status, message string) {
	ok := j.broadcaster.Broadcast(j.ClientID, stage, status, message)
	j.sent++
	j.delivered = j.delivered && ok
	j.log.Debugw("Stage broadcast",
		logger.FieldStage, stage,
		logger.FieldStatus, status,
		logger.FieldDelivered, ok,
	)
}

func (j *job) fail(stage progress.Stage, message string, err error) error {
	j.emit(stage, progress.StatusError, message)
	return &StageError{Stage: stage, Message: message, Err: err}
}
