package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsIdentity(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestWrapf(t *testing.T) {
	wrapped := Wrapf(New("original"), "stage %s", "verifying")
	assert.Equal(t, "stage verifying: original", wrapped.Error())
}

type stageFailure struct {
	stage string
}

func (e *stageFailure) Error() string {
	return e.stage + " failed"
}

func TestAsThroughWrap(t *testing.T) {
	wrapped := Wrap(&stageFailure{stage: "saving"}, "job aborted")

	var target *stageFailure
	require.True(t, As(wrapped, &target))
	assert.Equal(t, "saving", target.stage)
}

func TestHintsAndDetails(t *testing.T) {
	err := WithHint(New("ai service down"), "start the AI service")
	err = WithDetail(err, "GET /health refused")
	err = Wrap(err, "preflight")

	assert.Contains(t, GetAllHints(err), "start the AI service")
	assert.Contains(t, GetAllDetails(err), "GET /health refused")
}

func TestSentinelHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"not found marked", NewNotFoundError("recipe %d", 7), IsNotFound, true},
		{"not found wrapped", Wrap(ErrNotFound, "lookup"), IsNotFound, true},
		{"not found nil", nil, IsNotFound, false},
		{"invalid request marked", NewInvalidRequestError("missing %s", "image"), IsInvalidRequest, true},
		{"invalid request other", New("boom"), IsInvalidRequest, false},
		{"unavailable wrapped", Wrap(ErrServiceUnavailable, "dial"), IsServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}

func TestMarkedMessagesStayReadable(t *testing.T) {
	err := NewValidationError("title is required")
	assert.Equal(t, "title is required", err.Error())
	assert.True(t, Is(err, ErrValidation))
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
	assert.Nil(t, WithHint(nil, "hint"))
}

func ExampleWrap() {
	err := Wrap(New("connection refused"), "verify image")
	fmt.Println(err)
	// Output: verify image: connection refused
}
