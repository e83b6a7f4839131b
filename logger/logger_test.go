package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	original := Logger
	t.Cleanup(func() { Logger = original })

	require.NoError(t, Initialize(false, VerbosityInfo))
	assert.NotNil(t, Logger)
	assert.False(t, JSONOutput)

	require.NoError(t, Initialize(true, VerbosityDebug))
	assert.True(t, JSONOutput)
}

func TestVerbosityToLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		want      zapcore.Level
	}{
		{-1, zapcore.WarnLevel},
		{0, zapcore.WarnLevel},
		{1, zapcore.InfoLevel},
		{2, zapcore.DebugLevel},
		{5, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, VerbosityToLevel(tt.verbosity), "verbosity %d", tt.verbosity)
	}
	assert.Equal(t, "Info (-v)", LevelName(1))
}

func TestFromContextAddsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core).Sugar()

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithUserID(ctx, "uid-9")
	ctx = WithClientID(ctx, "client_abc")

	FromContext(ctx, base).Infow("job started")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-1", fields[FieldRequestID])
	assert.Equal(t, "uid-9", fields[FieldUserID])
	assert.Equal(t, "client_abc", fields[FieldClientID])
}

func TestFromContextWithoutFields(t *testing.T) {
	base := zap.NewNop().Sugar()
	assert.Same(t, base, FromContext(context.Background(), base))
	assert.NotNil(t, FromContext(context.Background(), nil))
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := zap.NewNop().Sugar()
	assert.Same(t, l, OrNop(l))
}

func TestComponentLoggerIsNamed(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := Logger
	Logger = zap.New(core).Sugar()
	t.Cleanup(func() { Logger = prev })

	ComponentLogger("server").Infow("Server ready")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "server", logs.All()[0].LoggerName)
}
