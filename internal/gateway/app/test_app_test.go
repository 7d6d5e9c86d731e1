package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codementor/internal/gateway/config"
	"codementor/internal/types/mentor"
)

func testConfig(provider string) *config.Config {
	cfg := config.Default()
	cfg.Port = ":0"
	cfg.LLM.Provider = provider
	cfg.Sandbox.Workers = 2
	cfg.Sandbox.Timeout = 5 * time.Second
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	a, err := NewWithConfig(context.Background(), cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return srv
}

func analyze(t *testing.T, url string, body string) mentor.AgentResponse {
	t.Helper()
	resp, err := http.Post(url+"/api/v1/projects/analyze", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out mentor.AgentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestReviewEndToEndWithFakeLLM(t *testing.T) {
	srv := newTestApp(t, testConfig("fake"))
	out := analyze(t, srv.URL, `{"files":{"index.py":"print('hi')\n"},"intent":"REVIEW"}`)
	assert.Equal(t, mentor.StatusSuccess, out.Status)
	require.NotNil(t, out.Score)
	// print() warning (-2) and the fake reviewer's low issue (-1)
	assert.Equal(t, 97, *out.Score)
}

func TestMissingCredentialFailsInBand(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	srv := newTestApp(t, testConfig("gemini"))
	out := analyze(t, srv.URL, `{"files":{"a.py":"x = 1"},"intent":"SECURITY_SCAN"}`)
	assert.Equal(t, mentor.StatusFailed, out.Status)
	assert.Contains(t, out.Insights, "API key missing")
}

func TestSandboxEndToEnd(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	srv := newTestApp(t, testConfig("fake"))
	resp, err := http.Post(srv.URL+"/api/v1/sandbox/run", "application/json",
		strings.NewReader(`{"files":{"run.sh":"echo hello"},"test_command":"sh run.sh"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out mentor.SandboxResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.False(t, out.Error)
	assert.Equal(t, "hello\n", out.Stdout)
}

func TestAutoFixEndToEnd(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	srv := newTestApp(t, testConfig("fake"))
	pass := analyze(t, srv.URL, `{"files":{"t.sh":"exit 0"},"intent":"AUTO_FIX","extra_context":{"test_command":"sh t.sh"}}`)
	assert.Equal(t, "Tests passed! No fix needed.", pass.Insights)

	fail := analyze(t, srv.URL, `{"files":{"t.sh":"echo broken >&2; exit 1"},"intent":"AUTO_FIX","extra_context":{"test_command":"sh t.sh"}}`)
	assert.Equal(t, mentor.StatusSuccess, fail.Status)
	assert.Equal(t, "Fake debugger proposed a fix.", fail.Insights)
}

func TestUnknownBackendFails(t *testing.T) {
	cfg := testConfig("fake")
	cfg.Cache.Backend = "redis"
	_, err := NewWithConfig(context.Background(), cfg)
	assert.Error(t, err)
}
