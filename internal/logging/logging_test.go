package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":      slog.LevelInfo,
		"info":  slog.LevelInfo,
		"DEBUG": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew_JSONWithRunAndProject(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{Format: "json"})
	require.NoError(t, err)

	logger, runID := WithRun(logger)
	_, err = uuid.Parse(runID)
	require.NoError(t, err)

	ForProject(logger, "express").Info("checked out", "stage", "CHECKED_OUT")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, runID, rec["run_id"])
	assert.Equal(t, "express", rec["project"])
	assert.Equal(t, "CHECKED_OUT", rec["stage"])
}

func TestNew_VerboseEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{Level: "warn", Verbose: true})
	require.NoError(t, err)

	logger.Debug("polling")
	assert.Contains(t, buf.String(), "polling")
}

func TestNew_RejectsUnknownFormat(t *testing.T) {
	_, err := New(&bytes.Buffer{}, Options{Format: "xml"})
	assert.Error(t, err)
}
