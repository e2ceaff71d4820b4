package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
	}{
		{name: "JSON output mode", jsonOutput: true},
		{name: "Console output mode", jsonOutput: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Logger = nil
			JSONOutput = false

			err := Initialize(tt.jsonOutput)
			require.NoError(t, err)
			require.NotNil(t, Logger, "Initialize() did not set global Logger")
			assert.Equal(t, tt.jsonOutput, JSONOutput)

			Cleanup()
			Logger = zap.NewNop().Sugar()
		})
	}
}

func TestInitializeWithSink(t *testing.T) {
	t.Cleanup(func() { Logger = zap.NewNop().Sugar() })

	var buf bytes.Buffer
	require.NoError(t, InitializeWithSink(false, zapcore.AddSync(&buf)))
	Infow("Job created", FieldJobID, "J1")

	assert.Contains(t, buf.String(), "Job created")
	assert.Contains(t, buf.String(), "J1")
	assert.Equal(t, "debug (-v)", LevelName(VerbosityDebug))
	assert.Equal(t, "info", LevelName(VerbosityDefault))
}

func TestSetVerbosity(t *testing.T) {
	t.Cleanup(func() { SetVerbosity(VerbosityDefault) })

	SetVerbosity(VerbosityDefault)
	assert.Equal(t, zapcore.InfoLevel, Level())

	SetVerbosity(VerbosityDebug)
	assert.Equal(t, zapcore.DebugLevel, Level())

	SetVerbosity(5)
	assert.Equal(t, zapcore.DebugLevel, Level())
	assert.True(t, ShouldLogTrace(5))
	assert.False(t, ShouldLogTrace(VerbosityDebug))
}

func TestFieldsFromContext(t *testing.T) {
	ctx := WithJobID(context.Background(), "job-1")
	ctx = WithExecutionID(ctx, "E1")

	fields := FieldsFromContext(ctx)
	assert.Equal(t, []interface{}{FieldJobID, "job-1", FieldExecutionID, "E1"}, fields)

	assert.Empty(t, FieldsFromContext(context.Background()))
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core).Sugar()

	ctx := WithJobID(context.Background(), "job-7")
	FromContext(ctx, base).Infow("processing")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "job-7", entries[0].ContextMap()[FieldJobID])

	// no fields: the base logger comes back unchanged
	assert.Same(t, base, FromContext(context.Background(), base))
}

func TestComponentLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	previous := Logger
	Logger = zap.New(core).Sugar()
	t.Cleanup(func() { Logger = previous })

	ComponentLogger("scanner").Infow("tick", FieldCount, 3)
	ChildLogger(ComponentLogger("feed"), FieldTarget, "viewexecution").Infow("frame")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "scanner", entries[0].LoggerName)
	assert.Equal(t, int64(3), entries[0].ContextMap()[FieldCount])
	assert.Equal(t, "feed", entries[1].LoggerName)
	assert.Equal(t, "viewexecution", entries[1].ContextMap()[FieldTarget])
}
