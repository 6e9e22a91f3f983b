package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pixperk/objmutex/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestFileOutput(t *testing.T) {
	cfg := config.Default().Log
	cfg.Output = "file"
	cfg.Format = "json"
	cfg.FilePath = filepath.Join(t.TempDir(), "nested", "objmutex.log")

	log, err := New(cfg)
	require.NoError(t, err)

	log.Info("ticket registered")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(cfg.FilePath)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"msg":"ticket registered"`))
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
