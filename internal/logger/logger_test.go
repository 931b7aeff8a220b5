package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "info", config.Level)
	assert.Equal(t, "console", config.Format)
	assert.Equal(t, "stdout", config.Output)
	assert.False(t, config.Async)
}

func TestNewWithInvalidLevel(t *testing.T) {
	_, err := New(&Config{Level: "nope", Format: "console", Output: "stdout"})
	assert.Error(t, err)
}

func TestNewWithInvalidFormat(t *testing.T) {
	_, err := New(&Config{Level: "info", Format: "xml", Output: "stdout"})
	assert.Error(t, err)
}

func TestFileOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "sim.log")

	log, err := New(&Config{Level: "info", Format: "json", Output: logFile})
	require.NoError(t, err)

	log.Info("hello from test")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")
}

func TestWithStationAddsField(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "station.log")

	log, err := New(&Config{Level: "debug", Format: "json", Output: logFile})
	require.NoError(t, err)

	stationLog := log.WithStation("CP-42")
	stationLog.Infof("transaction %d started", 7)

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"station":"CP-42"`))
	assert.Contains(t, string(data), "transaction 7 started")
}

func TestSetLevel(t *testing.T) {
	log, err := New(&Config{Level: "info", Format: "json", Output: "stdout"})
	require.NoError(t, err)

	require.NoError(t, log.SetLevel("debug"))
	assert.Equal(t, "debug", log.GetLevel())

	assert.Error(t, log.SetLevel("bogus"))
}
