package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recipebox/recipebox/progress"
)

func TestBroadcastEncodesNestedUpdate(t *testing.T) {
	r := NewRegistry(nil)
	c := &fakeConn{}
	r.Register("client_a", c)
	b := NewBroadcaster(r, nil)

	require.True(t, b.Broadcast("client_a", progress.StageVerifying, progress.StatusError, "not a recipe"))

	msgs := c.messages()
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{
		"type": "processing_update",
		"stage": {"id": "verifying", "label": "Verifying recipe image", "status": "error", "message": "not a recipe"}
	}`, msgs[0])
}

func TestBroadcastWithoutClientIDIsUndelivered(t *testing.T) {
	b := NewBroadcaster(NewRegistry(nil), nil)
	assert.False(t, b.Broadcast("", progress.StageUploading, progress.StatusSuccess, ""))
}

func TestBroadcastToUnknownClient(t *testing.T) {
	b := NewBroadcaster(NewRegistry(nil), nil)
	assert.False(t, b.Broadcast("fallback_123", progress.StageSaving, progress.StatusSuccess, ""))
}
