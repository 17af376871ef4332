package main

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/phrazzld/goalq/internal/client"
	"github.com/phrazzld/goalq/internal/config"
	"github.com/phrazzld/goalq/internal/platform/logger"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-key-0123456789abcdef"

// sharedConfig is everything but the store section.
const sharedConfig = `
executor:
  kind: echo
dispatcher:
  poll_interval: 20ms
auth:
  api_keys: ["test-key-0123456789abcdef"]
  token_secret: "0123456789abcdef0123456789abcdef"
rate_limit:
  enabled: false
`

const baseConfig = `
store:
  driver: memory
` + sharedConfig

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(config.LoadOptions{ConfigFile: writeConfig(t, baseConfig)})
	require.NoError(t, err)
	return cfg
}

// startServer builds the application from cfg, optionally starts the
// dispatcher, and serves the router on an httptest server.
func startServer(t *testing.T, cfg *config.Config, withDispatcher bool) (*application, *httptest.Server) {
	t.Helper()

	app, err := newApplication(context.Background(), cfg, logger.Discard(), withDispatcher)
	require.NoError(t, err)
	t.Cleanup(app.cleanup)

	handler, err := app.setupRouter()
	require.NoError(t, err)

	if withDispatcher {
		require.NoError(t, app.dispatcher.Start())
	}

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return app, srv
}

func newTestClient(t *testing.T, srv *httptest.Server, key string) *client.Client {
	t.Helper()
	c, err := client.New(config.ClientConfig{ServerURL: srv.URL, APIKey: key, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}
