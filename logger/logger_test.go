package logger

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInit(t *testing.T) {
	prev := Log
	t.Cleanup(func() { Log = prev })

	require.NoError(t, Init("debug"))
	assert.True(t, Log.Core().Enabled(zapcore.DebugLevel))

	assert.Error(t, Init("loud"))
}

func TestSafeHeadersRedactsCredentials(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer secret")
	r.Header.Set("X-Request-Id", "abc")

	out := SafeHeaders(r)
	assert.Contains(t, out, "Authorization=<redacted>")
	assert.Contains(t, out, "X-Request-Id=abc")
	assert.NotContains(t, out, "secret")
}
