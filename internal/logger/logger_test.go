package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTo_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := InitTo(&buf, "binary-test", false, true)

	log.Info().Str("participant_id", "p-1").Msg("placed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "binary-test", line["service"])
	assert.Equal(t, "placed", line["message"])
	assert.Equal(t, "p-1", line["participant_id"])
	assert.Contains(t, line, "timestamp")
}

func TestInitTo_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	log := InitTo(&buf, "binary-test", false, true)
	log.Debug().Msg("hidden")
	assert.Empty(t, buf.String())

	buf.Reset()
	log = InitTo(&buf, "binary-test", true, true)
	buf.Reset()
	log.Debug().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	InitTo(&buf, "binary-test", false, true)

	c := Component("matching")
	c.Info().Msg("hello")
	assert.Contains(t, buf.String(), `"component":"matching"`)
}
