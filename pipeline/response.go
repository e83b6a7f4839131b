package pipeline

import (
	"net/http"

	"github.com/recipebox/recipebox/errors"
	"github.com/recipebox/recipebox/progress"
	"github.com/recipebox/recipebox/recipes"
)

// Response is the HTTP body returned for an upload, success or failure.
type Response struct {
	Recipe                   *recipes.Recipe `json:"recipe,omitempty" yaml:"recipe,omitempty"`
	Message                  string          `json:"message" yaml:"message"`
	Error                    string          `json:"error,omitempty" yaml:"error,omitempty"`
	RealTimeUpdatesDelivered bool            `json:"realTimeUpdatesDelivered" yaml:"real_time_updates_delivered"`
	FailedStage              progress.Stage  `json:"failedStage,omitempty" yaml:"failed_stage,omitempty"`
}

// NewResponse maps a Run outcome to an HTTP status and body.
func NewResponse(res *Result, err error) (int, Response) {
	if res == nil {
		res = &Result{}
	}
	if err == nil {
		return http.StatusCreated, Response{
			Recipe:                   res.Recipe,
			Message:                  MsgCreated,
			RealTimeUpdatesDelivered: res.Delivered,
		}
	}

	body := Response{
		Message:                  err.Error(),
		RealTimeUpdatesDelivered: res.Delivered,
		FailedStage:              progress.StageUploading,
	}
	var se *StageError
	if errors.As(err, &se) {
		body.Message = se.Message
		body.FailedStage = se.Stage
	}

	status := StatusFor(err)
	if status < http.StatusInternalServerError && se != nil && se.Err != nil {
		body.Error = se.Err.Error()
	}
	return status, body
}

// StatusFor returns the HTTP status for a job error.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusCreated
	case errors.Is(err, errors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.IsAny(err, errors.ErrInvalidRequest, errors.ErrNotARecipe, errors.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
