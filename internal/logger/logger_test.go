package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	SetLevel("debug")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	SetLevel("nonsense")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	SetLevel("")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestSetupWritesJSONFile(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	path := filepath.Join(t.TempDir(), "phishcatch.log")
	var console bytes.Buffer
	closer := setup(Config{Level: "info", File: path, JSONFormat: true}, &console)

	log.Info().Str("url", "https://phish.example").Msg("Phishing alert")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	assert.Equal(t, "Phishing alert", entry["message"])
	assert.Equal(t, "https://phish.example", entry["url"])
	assert.Contains(t, console.String(), "Phishing alert")
}
