package logger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr error
	}{
		{name: "nil config uses default", config: nil},
		{name: "json console", config: &Config{Level: DebugLevel, Format: JSONFormat}},
		{
			name:    "file enabled without path",
			config:  &Config{EnableFile: true},
			wantErr: ErrInvalidOutputPath,
		},
		{
			name:   "file output with size rotation",
			config: &Config{EnableFile: true, OutputPath: filepath.Join(t.TempDir(), "roster.log")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.config)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func newObserved(level zapcore.Level) (*BaseLogger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewWithCore(core, &Config{}), logs
}

func TestKeyValueFields(t *testing.T) {
	l, logs := newObserved(zapcore.DebugLevel)

	l.Warn("unknown id", "category", "relic", "raw_id", 390070051, "error", errors.New("boom"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "relic", fields["category"])
	assert.EqualValues(t, 390070051, fields["raw_id"])
	assert.Equal(t, "boom", fields["error"])
}

func TestOddKeyValues(t *testing.T) {
	l, logs := newObserved(zapcore.InfoLevel)

	l.Info("dangling", "account_id")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "<missing>", logs.All()[0].ContextMap()["account_id"])
}

func TestNamedAndWithFields(t *testing.T) {
	l, logs := newObserved(zapcore.InfoLevel)

	child := l.Named("resolver").WithFields("bundle", "primary")
	child.Info("loaded")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "resolver", entry.LoggerName)
	assert.Equal(t, "primary", entry.ContextMap()["bundle"])
}

func TestContextRunFields(t *testing.T) {
	l, logs := newObserved(zapcore.InfoLevel)

	ctx := WithRunFields(context.Background(), "account_id", "10001")
	ctx = WithRunFields(ctx, "run_id", int64(7))
	l.InfoContext(ctx, "ingest finished", "entries", 3)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "10001", fields["account_id"])
	assert.EqualValues(t, 7, fields["run_id"])
	assert.EqualValues(t, 3, fields["entries"])
}

func TestLevelFiltering(t *testing.T) {
	l, logs := newObserved(zapcore.WarnLevel)

	l.Debug("hidden")
	l.Info("hidden")
	l.Error("shown")

	assert.Equal(t, 1, logs.Len())
}

func TestNoop(t *testing.T) {
	var l Logger = NewNoop()
	l.Named("x").WithFields("k", "v").Info("nothing")
	assert.NoError(t, l.Sync())
	assert.NotNil(t, OrNoop(nil))
}
