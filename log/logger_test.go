package log

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesToFile(t *testing.T) {
	dir := t.TempDir()
	outputFile := filepath.Join(dir, "billing.log")

	logger := Logger(logrus.New(), outputFile, "api", "unit-test")
	logger.Info("hello")

	content, err := os.ReadFile(outputFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "hello")
	assert.Contains(t, string(content), "application=api")
}

func TestLoggerBadFileFallsBackToStderr(t *testing.T) {
	logger := Logger(logrus.New(), "/this/path/does/not/exist/billing.log", "api", "unit-test")
	assert.NotNil(t, logger)
}

func TestCtxLogger(t *testing.T) {
	ctx := context.Background()

	// Unset returns the package default
	assert.NotNil(t, GetCtxLogger(ctx))

	ctx = NewStructuredLoggerEntry(logrus.New(), ctx)
	ctx, logger := SetCtxLogger(ctx, "claim_id", 42)
	assert.NotNil(t, logger)
	assert.Equal(t, logger, GetCtxLogger(ctx))
}
