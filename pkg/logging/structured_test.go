package logging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_Fields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := New(zap.New(core))

	l.Info("hello", "strategy", "tit_for_tat", "rounds", 200, "dangling")
	l.Error("failed", "err", errors.New("boom"))
	l.LogMatch(context.Background(), "m1", "a", "b", 30, 25, time.Millisecond)

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "tit_for_tat", entries[0].ContextMap()["strategy"])
	assert.EqualValues(t, 200, entries[0].ContextMap()["rounds"])
	assert.Len(t, entries[0].Context, 2)
	assert.Equal(t, "boom", entries[1].ContextMap()["err"])
	assert.Equal(t, "m1", entries[2].ContextMap()["match_id"])
}

func TestLogger_Named(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := New(zap.New(core)).Named("tournament").WithFields(map[string]interface{}{"id": "t1"})
	l.Debug("hidden")
	l.Warn("visible")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "tournament", logs.All()[0].LoggerName)
	assert.Equal(t, "t1", logs.All()[0].ContextMap()["id"])
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(Config{Level: "debug", Format: "console", Output: "stdout"})
	require.NoError(t, err)
	l.Debug("ok")

	_, err = NewLogger(Config{Format: "yaml"})
	require.Error(t, err)

	NewNop().Info("discarded")
}
