package applog

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})

	Component("storage").Info("[Storage] ready", "backend", "sqlite")
	Debug("hidden at info level")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "[Storage] ready", entry["msg"])
	assert.Equal(t, "storage", entry["component"])
	assert.Equal(t, "sqlite", entry["backend"])
}

func TestParseLevels(t *testing.T) {
	assert.Equal(t, "DEBUG", parseSlogLevel(" Debug ").String())
	assert.Equal(t, "WARN", parseSlogLevel("warn").String())
	assert.Equal(t, "INFO", parseSlogLevel("verbose").String())
	assert.Equal(t, "error", parseZapLevel("ERROR").String())
}
