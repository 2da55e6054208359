package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAttachesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Component: ComponentAuth, Output: &buf})

	logger.Info("login ok", FieldUsername, "alice")

	out := buf.String()
	assert.Contains(t, out, "component=auth")
	assert.Contains(t, out, "username=alice")
}

func TestLevelForEnvironment(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelForEnvironment("development"))
	assert.Equal(t, slog.LevelInfo, LevelForEnvironment("production"))
	assert.Equal(t, slog.LevelInfo, LevelForEnvironment(""))
}

func TestDebugSuppressedAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Output: &buf})

	logger.Debug("deserializing user")
	assert.Empty(t, buf.String())
}

func TestWithComponentReplacesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Output: &buf}).With(FieldRequestID, "req-1")

	logger.WithComponent(ComponentAuth).Info("login ok")

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "component="), out)
	assert.Contains(t, out, "component=auth")
	assert.Contains(t, out, "request_id=req-1")
}

func TestCtxUsesRequestScopedLogger(t *testing.T) {
	var buf bytes.Buffer
	root := New(Config{Level: slog.LevelInfo, Component: ComponentHTTP, Output: &buf})
	graphLogger := Discard().WithComponent(ComponentGraph)

	ctx := WithContext(context.Background(), root.With(FieldRequestID, "req-42"))
	graphLogger.Ctx(ctx).Info("transaction created")

	out := buf.String()
	assert.Contains(t, out, "request_id=req-42")
	assert.Contains(t, out, "component=graph")
	assert.NotContains(t, out, "component=http")
	assert.Equal(t, ComponentGraph, graphLogger.Ctx(ctx).Component())
}

func TestCtxFallsBackToOwnLogger(t *testing.T) {
	logger := Discard().WithComponent(ComponentGraph)

	assert.Same(t, logger, logger.Ctx(context.Background()))
}
