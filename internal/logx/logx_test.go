package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json"}, &buf).With(String("comp", "orchestrator"))

	log.Info("task materialized", String("task", "t-1"), Int("subtasks", 2), Err(errors.New("boom")))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "task materialized", line["message"])
	assert.Equal(t, "orchestrator", line["comp"])
	assert.Equal(t, "t-1", line["task"])
	assert.EqualValues(t, 2, line["subtasks"])
	assert.Equal(t, "boom", line["err"])
	assert.Contains(t, line["caller"], "logx_test.go:")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warning", Format: "json"}, &buf)
	log.Info("dropped")
	assert.Zero(t, buf.Len())

	log.Printf("slow query %dms", 250)
	assert.Contains(t, buf.String(), "slow query 250ms")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG", zerolog.InfoLevel))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("", zerolog.InfoLevel))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("nope", zerolog.ErrorLevel))
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var log Logger
	assert.True(t, log.IsZero())
	log.Info("nothing happens")
	assert.False(t, Nop().IsZero())
}
