// Package progress models the image-to-recipe job as a fixed sequence of
// stages and carries stage transitions between the server, the push channel
// and whoever renders them.
package progress

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Stage is one step of the upload job. Stages run in the order of Stages and
// are never revisited.
type Stage string

const (
	StageUploading  Stage = "uploading"
	StageVerifying  Stage = "verifying"
	StageExtracting Stage = "extracting"
	StageSaving     Stage = "saving"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageUploading, StageVerifying, StageExtracting, StageSaving}

// Index returns the position of s in Stages, or -1 for an unknown stage.
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is one of Stages.
func (s Stage) Valid() bool { return s.Index() >= 0 }

// Before returns the stages that precede s, in order.
func (s Stage) Before() []Stage {
	i := s.Index()
	if i <= 0 {
		return nil
	}
	out := make([]Stage, i)
	copy(out, Stages[:i])
	return out
}

var stageLabels = map[Stage]string{
	StageUploading:  "Uploading image",
	StageVerifying:  "Verifying recipe image",
	StageExtracting: "Extracting recipe details",
	StageSaving:     "Saving recipe",
}

var titleCaser = cases.Title(language.Und)

// Label returns the human-readable label for a stage. Unknown stages are
// title-cased ("cropping" -> "Cropping").
func Label(s Stage) string {
	if l, ok := stageLabels[s]; ok {
		return l
	}
	return titleCaser.String(strings.ReplaceAll(string(s), "_", " "))
}

// Status is the state of a single stage.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSuccess, StatusError:
		return true
	}
	return false
}

// Terminal reports whether s ends a stage.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// Update is one stage transition. It is the only unit of progress that
// travels between components.
type Update struct {
	Stage   Stage  `json:"stage" yaml:"stage"`
	Status  Status `json:"status" yaml:"status"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// String renders u as "stage:status", which is handy in logs and tests.
func (u Update) String() string {
	return string(u.Stage) + ":" + string(u.Status)
}
