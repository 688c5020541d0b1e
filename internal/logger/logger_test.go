package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", JSONOutput: true, Output: &buf})
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	log := WithComponent("assignment")
	log.Info().Str("event_id", "e1").Msg("volunteer assigned")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "assignment", entry["component"])
	assert.Equal(t, "e1", entry["event_id"])
	assert.Equal(t, "volunteer assigned", entry["message"])
	assert.Equal(t, "info", entry["level"])
}

func TestInitUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "loud", JSONOutput: true, Output: &buf})

	Logger.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())

	Logger.Info().Msg("shown")
	assert.NotZero(t, buf.Len())
}
