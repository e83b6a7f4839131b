package client

import (
	"net/http"
	"strings"

	"github.com/recipebox/recipebox/pipeline"
	"github.com/recipebox/recipebox/progress"
)

// failureWordings maps the fixed server messages to the stage that emits
// them, for responses that carry no failedStage.
var failureWordings = []struct {
	substr string
	stage  progress.Stage
}{
	{strings.ToLower(pipeline.MsgNotARecipe), progress.StageVerifying},
	{strings.ToLower(pipeline.MsgVerifyFailed), progress.StageVerifying},
	{strings.ToLower(pipeline.MsgExtractFailed), progress.StageExtracting},
	{strings.ToLower(pipeline.MsgSaveFailed), progress.StageSaving},
}

// FailedStage returns the stage a failed upload stopped at. The structured
// failedStage field is authoritative; the message is matched only when it
// is missing. Anything unrecognized is blamed on uploading.
func FailedStage(resp pipeline.Response) progress.Stage {
	if resp.FailedStage.Valid() {
		return resp.FailedStage
	}
	msg := strings.ToLower(resp.Message)
	for _, w := range failureWordings {
		if strings.Contains(msg, w.substr) {
			return w.stage
		}
	}
	return progress.StageUploading
}

// Replay returns the updates that stand in for pushes the server could not
// deliver. uploading:processing is published before the request, so a
// success replays the three later stages. A failure replays success for the
// stages after uploading that must have finished, then the error.
func Replay(status int, resp pipeline.Response) []progress.Update {
	if resp.RealTimeUpdatesDelivered {
		return nil
	}

	if status >= http.StatusOK && status < http.StatusMultipleChoices {
		return []progress.Update{
			{Stage: progress.StageVerifying, Status: progress.StatusSuccess},
			{Stage: progress.StageExtracting, Status: progress.StatusSuccess},
			{Stage: progress.StageSaving, Status: progress.StatusSuccess},
		}
	}

	failed := FailedStage(resp)
	var out []progress.Update
	for _, st := range failed.Before() {
		if st == progress.StageUploading {
			continue
		}
		out = append(out, progress.Update{Stage: st, Status: progress.StatusSuccess})
	}
	message := resp.Message
	if message == "" {
		message = http.StatusText(status)
	}
	return append(out, progress.Update{Stage: failed, Status: progress.StatusError, Message: message})
}
