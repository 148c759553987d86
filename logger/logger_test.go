package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"", InfoLevel},
		{"warning", WarnLevel},
		{" error ", ErrorLevel},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("verbose")
	require.Error(t, err)
}

func TestSlogLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogWithOptions(Options{Level: InfoLevel, Format: FormatJSON, Output: &buf})

	l.Debug("transport: hidden")
	assert.Zero(t, buf.Len(), "debug must be filtered at info level")

	l.With("device", "plc1").Info("transport: connected", "addr", "127.0.0.1:5050")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "transport: connected", rec["msg"])
	assert.Equal(t, "plc1", rec["device"])
	assert.Equal(t, "127.0.0.1:5050", rec["addr"])
	assert.Contains(t, rec, "ts")
	assert.NotContains(t, rec, "time")
}

func TestSlogLogger_SetLevelSharedWithChildren(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogWithOptions(Options{Level: ErrorLevel, Format: FormatJSON, Output: &buf})
	child := l.With("k", "v")

	child.Info("pcd: dropped")
	assert.Zero(t, buf.Len())

	l.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, child.Level())

	child.Debug("pcd: kept")
	assert.Contains(t, buf.String(), "pcd: kept")
}

func TestSlogLogger_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogWithOptions(Options{Level: InfoLevel, Format: FormatConsole, Output: &buf})
	l.Warn("coordinator: reconnecting", "attempt", 2)

	assert.Contains(t, buf.String(), "coordinator: reconnecting")
	assert.Contains(t, buf.String(), "attempt")
}

func TestSetLogger(t *testing.T) {
	prev := GetLogger()
	t.Cleanup(func() { SetLogger(prev) })

	m := NewMockLogger()
	m.On("Info", "hello", mock.Anything).Once()

	SetLogger(m)
	Info("hello", "k", 1)
	m.AssertExpectations(t)

	SetLogger(nil)
	assert.Same(t, m, GetLogger())
}

func TestParseFormat(t *testing.T) {
	f, ok := ParseFormat("console")
	assert.True(t, ok)
	assert.Equal(t, FormatConsole, f)

	_, ok = ParseFormat("xml")
	assert.False(t, ok)
}

func TestMockLogger_Quiet(t *testing.T) {
	m := NewMockLogger().Quiet()
	m.On("Warn", "degraded", mock.Anything).Once()

	m.Debug("ignored")
	m.Info("ignored", "k", 1)
	m.Warn("degraded", "k", 2)

	assert.Equal(t, InfoLevel, m.Level())
	assert.Same(t, m, m.With("device", "pcd"))
	m.AssertExpectations(t)
}
