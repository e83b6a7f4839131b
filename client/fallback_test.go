package client

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/recipebox/recipebox/pipeline"
	"github.com/recipebox/recipebox/progress"
)

func TestFailedStage(t *testing.T) {
	tests := []struct {
		name string
		resp pipeline.Response
		want progress.Stage
	}{
		{"structured field wins", pipeline.Response{Message: pipeline.MsgNotARecipe, FailedStage: progress.StageSaving}, progress.StageSaving},
		{"not a recipe", pipeline.Response{Message: pipeline.MsgNotARecipe}, progress.StageVerifying},
		{"not a recipe, different case", pipeline.Response{Message: "THE IMAGE DOES NOT APPEAR TO CONTAIN A RECIPE"}, progress.StageVerifying},
		{"verify outage", pipeline.Response{Message: pipeline.MsgVerifyFailed}, progress.StageVerifying},
		{"extract", pipeline.Response{Message: pipeline.MsgExtractFailed}, progress.StageExtracting},
		{"save", pipeline.Response{Message: pipeline.MsgSaveFailed}, progress.StageSaving},
		{"unknown stage name ignored", pipeline.Response{Message: "boom", FailedStage: "cropping"}, progress.StageUploading},
		{"unrecognized", pipeline.Response{Message: "Bad Gateway"}, progress.StageUploading},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FailedStage(tt.resp))
		})
	}
}

func trailOf(updates []progress.Update) []string {
	out := make([]string, len(updates))
	for i, u := range updates {
		out[i] = u.String()
	}
	return out
}

func TestReplay(t *testing.T) {
	tests := []struct {
		name   string
		status int
		resp   pipeline.Response
		want   []string
	}{
		{
			name:   "delivered success",
			status: http.StatusCreated,
			resp:   pipeline.Response{RealTimeUpdatesDelivered: true},
			want:   []string{},
		},
		{
			name:   "undelivered success",
			status: http.StatusCreated,
			resp:   pipeline.Response{Message: pipeline.MsgCreated},
			want:   []string{"verifying:success", "extracting:success", "saving:success"},
		},
		{
			name:   "delivered failure",
			status: http.StatusInternalServerError,
			resp:   pipeline.Response{Message: pipeline.MsgSaveFailed, RealTimeUpdatesDelivered: true},
			want:   []string{},
		},
		{
			name:   "not a recipe",
			status: http.StatusBadRequest,
			resp:   pipeline.Response{Message: pipeline.MsgNotARecipe},
			want:   []string{"verifying:error"},
		},
		{
			name:   "extraction failure",
			status: http.StatusInternalServerError,
			resp:   pipeline.Response{Message: pipeline.MsgExtractFailed, FailedStage: progress.StageExtracting},
			want:   []string{"verifying:success", "extracting:error"},
		},
		{
			name:   "save failure",
			status: http.StatusInternalServerError,
			resp:   pipeline.Response{Message: pipeline.MsgSaveFailed},
			want:   []string{"verifying:success", "extracting:success", "saving:error"},
		},
		{
			name:   "rejected upload",
			status: http.StatusUnauthorized,
			resp:   pipeline.Response{Message: pipeline.MsgUnauthorized, FailedStage: progress.StageUploading},
			want:   []string{"uploading:error"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, trailOf(Replay(tt.status, tt.resp)))
		})
	}
}

func TestReplayErrorCarriesMessage(t *testing.T) {
	got := Replay(http.StatusBadRequest, pipeline.Response{Message: pipeline.MsgNotARecipe})
	assert.Equal(t, pipeline.MsgNotARecipe, got[len(got)-1].Message)

	got = Replay(http.StatusBadGateway, pipeline.Response{})
	assert.Equal(t, "Bad Gateway", got[0].Message)
}
