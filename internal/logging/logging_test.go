package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnrecognizedLevel(t *testing.T) {
	_, _, err := New("verbose", "")
	assert.Error(t, err)
}

func TestNewStdoutHandlerReturnsNoFile(t *testing.T) {
	logger, f, err := New("info", "")
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.Nil(t, f)
}

func TestNewFileHandlerOpensAndWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bar.log")
	logger, f, err := New("debug", path)
	require.NoError(t, err)
	require.NotNil(t, f)
	defer f.Close()

	logger.Debug("hello", "key", "value")

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "hello")
	assert.Contains(t, string(contents), "value")
}

func TestNewNoneLevelDiscardsOutput(t *testing.T) {
	logger, f, err := New("none", "")
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.NotPanics(t, func() { logger.Info("should not appear anywhere observable") })
}
