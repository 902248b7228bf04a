package logging

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud", OutputPaths: []string{"stdout"}})
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	logger := FromConfig("debug", false)
	require.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	fallback := FromConfig("loud", false)
	require.NotNil(t, fallback)
	assert.False(t, fallback.Core().Enabled(zapcore.DebugLevel))
	assert.Equal(t, zapcore.InfoLevel, fallback.Level())

	dev := FromConfig("", true)
	assert.Equal(t, zapcore.DebugLevel, dev.Level())
}

func TestSetLevel(t *testing.T) {
	logger := FromConfig("info", false)
	child := logger.Component("resumption")
	assert.False(t, child.Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, logger.SetLevel("debug"))
	assert.True(t, child.Core().Enabled(zapcore.DebugLevel))

	assert.Error(t, logger.SetLevel("loud"))
	assert.Equal(t, zapcore.DebugLevel, logger.Level())
}

func TestLevelHandler(t *testing.T) {
	logger := FromConfig("info", false)
	h := logger.LevelHandler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/log/level", strings.NewReader(`{"level":"warn"}`)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, zapcore.WarnLevel, logger.Level())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/log/level", nil))
	assert.JSONEq(t, `{"level":"warn"}`, w.Body.String())
}

func TestComponentLogger(t *testing.T) {
	named := NewNop().Component("resumption")
	assert.NotNil(t, named)
}
