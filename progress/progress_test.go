package progress

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageOrder(t *testing.T) {
	assert.Equal(t, 0, StageUploading.Index())
	assert.Equal(t, 3, StageSaving.Index())
	assert.Equal(t, -1, Stage("cropping").Index())
	assert.False(t, Stage("").Valid())
	assert.Equal(t, []Stage{StageUploading, StageVerifying}, StageExtracting.Before())
	assert.Nil(t, StageUploading.Before())
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Uploading image", Label(StageUploading))
	assert.Equal(t, "Verifying recipe image", Label(StageVerifying))
	assert.Equal(t, "Extracting recipe details", Label(StageExtracting))
	assert.Equal(t, "Saving recipe", Label(StageSaving))
	assert.Equal(t, "Cropping", Label("cropping"))
	assert.Equal(t, "Cover Detection", Label("cover_detection"))
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusSuccess.Terminal())
	assert.True(t, StatusError.Terminal())
	assert.False(t, Status("done").Valid())
}

func TestEncodeUpdateUsesNestedShape(t *testing.T) {
	data, err := EncodeUpdate(Update{Stage: StageVerifying, Status: StatusError, Message: "not a recipe"})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, TypeProcessingUpdate, raw["type"])
	stage, ok := raw["stage"].(map[string]any)
	require.True(t, ok, "stage should be an object")
	assert.Equal(t, "verifying", stage["id"])
	assert.Equal(t, "Verifying recipe image", stage["label"])
	assert.Equal(t, "error", stage["status"])
	assert.Equal(t, "not a recipe", stage["message"])
}

func TestDecodeAcceptsBothShapes(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Update
	}{
		{
			name:  "nested",
			frame: `{"type":"processing_update","stage":{"id":"extracting","label":"Extracting recipe details","status":"processing"}}`,
			want:  Update{Stage: StageExtracting, Status: StatusProcessing},
		},
		{
			name:  "flat legacy",
			frame: `{"type":"processing_update","stage":"saving","status":"error","message":"Failed to save recipe"}`,
			want:  Update{Stage: StageSaving, Status: StatusError, Message: "Failed to save recipe"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.frame))
			require.NoError(t, err)
			u, err := msg.Update()
			require.NoError(t, err)
			assert.Equal(t, tt.want, u)
		})
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"clientId":"x"}`))
	assert.Error(t, err)

	msg, err := Decode([]byte(`{"type":"processing_update","stage":"saving","status":"finished"}`))
	require.NoError(t, err)
	_, err = msg.Update()
	assert.Error(t, err)

	msg, err = Decode([]byte(`{"type":"register_confirm","clientId":"client_1"}`))
	require.NoError(t, err)
	assert.Equal(t, "client_1", msg.ClientID)
	_, err = msg.Update()
	assert.Error(t, err)
}

func TestRegisterFrames(t *testing.T) {
	data, err := EncodeRegister("client_abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"register","clientId":"client_abc"}`, string(data))

	data, err = EncodeRegisterConfirm("client_abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"register_confirm","clientId":"client_abc"}`, string(data))
}

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus()
	var a, b []string
	unsubA := bus.Subscribe(func(u Update) { a = append(a, u.String()) })
	bus.Subscribe(func(u Update) { b = append(b, u.String()) })

	bus.Publish(Update{Stage: StageUploading, Status: StatusProcessing})
	bus.Publish(Update{Stage: StageUploading, Status: StatusSuccess})
	unsubA()
	unsubA()
	bus.Publish(Update{Stage: StageVerifying, Status: StatusProcessing})

	assert.Equal(t, []string{"uploading:processing", "uploading:success"}, a)
	assert.Equal(t, []string{"uploading:processing", "uploading:success", "verifying:processing"}, b)
	assert.Equal(t, 1, bus.Subscribers())
}

func TestBusConcurrentPublishDropsNothing(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	count := 0
	bus.Subscribe(func(Update) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				bus.Publish(Update{Stage: StageSaving, Status: StatusProcessing})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 400, count)
}

func TestTrackerHappyPath(t *testing.T) {
	tr := NewTracker()
	for _, s := range Stages {
		tr.Apply(Update{Stage: s, Status: StatusProcessing})
		tr.Apply(Update{Stage: s, Status: StatusSuccess})
	}
	assert.True(t, tr.Done())
	assert.True(t, tr.Finished())
	_, _, failed := tr.Failed()
	assert.False(t, failed)
	for _, r := range tr.Rows() {
		assert.Equal(t, StatusSuccess, r.Status, r.Stage)
	}
	assert.Len(t, tr.History(), 8)
}

func TestTrackerLaterStageImpliesEarlierSuccess(t *testing.T) {
	tr := NewTracker()
	tr.Apply(Update{Stage: StageUploading, Status: StatusProcessing})
	tr.Apply(Update{Stage: StageExtracting, Status: StatusSuccess})

	rows := tr.Rows()
	assert.Equal(t, StatusSuccess, rows[0].Status)
	assert.Equal(t, StatusSuccess, rows[1].Status)
	assert.Equal(t, StatusSuccess, rows[2].Status)
	assert.Equal(t, StatusPending, rows[3].Status)
	assert.False(t, tr.Done())
}

func TestTrackerStopsAtFirstError(t *testing.T) {
	tr := NewTracker()
	tr.Apply(Update{Stage: StageUploading, Status: StatusProcessing})
	tr.Apply(Update{Stage: StageVerifying, Status: StatusError, Message: "The image does not appear to contain a recipe"})
	tr.Apply(Update{Stage: StageVerifying, Status: StatusSuccess})
	tr.Apply(Update{Stage: StageSaving, Status: StatusSuccess})

	stage, msg, failed := tr.Failed()
	require.True(t, failed)
	assert.Equal(t, StageVerifying, stage)
	assert.Contains(t, msg, "does not appear to contain a recipe")
	assert.True(t, tr.Finished())
	assert.False(t, tr.Done())

	rows := tr.Rows()
	assert.Equal(t, StatusSuccess, rows[0].Status)
	assert.Equal(t, StatusError, rows[1].Status)
	assert.Equal(t, StatusPending, rows[3].Status)
}

func TestTrackerIgnoresUnknownStage(t *testing.T) {
	tr := NewTracker()
	tr.Apply(Update{Stage: "cropping", Status: StatusProcessing})
	for _, r := range tr.Rows() {
		assert.Equal(t, StatusPending, r.Status)
	}
	assert.Len(t, tr.History(), 1)
}

func TestTrackerAttach(t *testing.T) {
	bus := NewBus()
	tr := NewTracker()
	detach := tr.Attach(bus)
	bus.Publish(Update{Stage: StageUploading, Status: StatusProcessing})
	detach()
	bus.Publish(Update{Stage: StageUploading, Status: StatusSuccess})

	assert.Equal(t, StatusProcessing, tr.Rows()[0].Status)
}
