// ABOUTME: Tests for the interactive log handler
// ABOUTME: Covers level filtering and group qualification of attributes

package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianfields/deeplearn-sub010/internal/config"
)

func plainOutput(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func TestColorHandler_GroupQualifiesHandlerAttrs(t *testing.T) {
	plainOutput(t)
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "info", Format: "text"}, &buf)

	logger.With("top", 0).WithGroup("socket").With("topic_id", "t1").Info("connected", "attempt", 2)

	out := buf.String()
	assert.Contains(t, out, "INF connected")
	assert.Contains(t, out, " top=0")
	assert.Contains(t, out, " socket.topic_id=t1")
	assert.Contains(t, out, " socket.attempt=2")
	assert.NotContains(t, out, " topic_id=t1")
}

func TestColorHandler_AttrsKeepTheirGroupAfterNesting(t *testing.T) {
	plainOutput(t)
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "info"}, &buf)

	logger.WithGroup("a").With("k", "v").WithGroup("b").Info("m", "x", 1)

	out := buf.String()
	assert.Contains(t, out, " a.k=v")
	assert.Contains(t, out, " a.b.x=1")
	assert.NotContains(t, out, "a.b.k=")
}

func TestColorHandler_LevelFilter(t *testing.T) {
	plainOutput(t)
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "warn"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "WRN shown")
}

func TestSetupLogger_JSONNestsGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)

	logger.WithGroup("socket").With("topic_id", "t1").Debug("dialing")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "dialing", rec["msg"])
	group, ok := rec["socket"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "t1", group["topic_id"])
}
