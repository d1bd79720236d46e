package logger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/bhoriuchi/graphql-ws-bridge/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	level, err := logger.ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, logger.DebugLevel, level)

	_, err = logger.ParseLevel("verbose")
	assert.Error(t, err)
}

func TestZerologOutput(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.InfoLevel, "json", &buf)

	l.WithField("connectionId", "abc").
		WithError(errors.New("boom")).
		Warnf("closing %s", "bridge")
	l.Debugf("dropped")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	entry := map[string]interface{}{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "closing bridge", entry["message"])
	assert.Equal(t, "abc", entry["connectionId"])
	assert.Equal(t, "boom", entry["error"])
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	parent := logger.NewNoopLogger().WithField("a", 1)
	child := parent.WithField("b", 2)

	assert.Len(t, parent.Fields, 1)
	assert.Len(t, child.Fields, 2)
}
