package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONWithService(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(WithOutput(buf), WithService("feed-sync"), WithLevel(LevelDebug))

	log.Debug("batch received", "count", 3)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "batch received", record["msg"])
	require.Equal(t, "feed-sync", record["service"])
	require.EqualValues(t, 3, record["count"])
}

func TestNewFiltersBelowLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(WithOutput(buf), WithLevel(LevelWarn))

	log.Info("ignored")
	require.Zero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, LevelWarn, ParseLevel("warning"))
	require.Equal(t, LevelError, ParseLevel(" error "))
	require.Equal(t, LevelInfo, ParseLevel(""))
	require.Equal(t, LevelInfo, ParseLevel("verbose"))
}
