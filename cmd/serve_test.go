package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai_call_agent/internal/config"
)

func TestNewScriptProvider_Builtin(t *testing.T) {
	provider, err := newScriptProvider(config.ScriptsConfig{})
	require.NoError(t, err)

	script, err := provider.GetScript(context.Background(), "acme", "hvac")
	require.NoError(t, err)
	assert.Equal(t, "hvac", script.Industry)
}

func TestNewScriptProvider_RemoteFallsBackToLocal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	path := filepath.Join(t.TempDir(), "scripts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`scripts:
  - id: plumbing-local
    industry: plumbing
    greeting: "Hi, this is Drip Plumbing."
`), 0o644))

	provider, err := newScriptProvider(config.ScriptsConfig{BaseURL: srv.URL, File: path})
	require.NoError(t, err)

	script, err := provider.GetScript(context.Background(), "acme", "plumbing")
	require.NoError(t, err)
	assert.Equal(t, "plumbing-local", script.ID)

	_, err = newScriptProvider(config.ScriptsConfig{File: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestNewCheckpointStore(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	cfg := config.RedisConfig{Host: mr.Host(), Port: port, Prefix: "test", TTL: time.Hour}

	client, st, err := newCheckpointStore(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	assert.NotNil(t, st)

	cfg.Port = 1
	_, _, err = newCheckpointStore(context.Background(), cfg)
	assert.Error(t, err)
}
