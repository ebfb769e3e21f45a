package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/canvasflow/config"
)

func testServerConfig() config.ServerConfig {
	cfg := config.DefaultServerConfig()
	cfg.HTTPPort = 0 // pick a free port
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func TestManager_StartServeShutdown(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "pong")
	})

	m := NewManager(mux, testServerConfig(), zap.NewNop())
	require.NoError(t, m.Start())

	resp, err := http.Get("http://" + m.Addr() + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", string(body))

	require.NoError(t, m.Shutdown(context.Background()))

	_, err = http.Get("http://" + m.Addr() + "/ping")
	assert.Error(t, err)
}

func TestManager_DoubleStartRejected(t *testing.T) {
	m := NewManager(http.NewServeMux(), testServerConfig(), zap.NewNop())
	require.NoError(t, m.Start())
	defer m.Shutdown(context.Background())

	assert.Error(t, m.Start())
}

func TestManager_ShutdownIdempotent(t *testing.T) {
	m := NewManager(http.NewServeMux(), testServerConfig(), zap.NewNop())
	require.NoError(t, m.Start())

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))

	// A closed manager cannot be restarted.
	assert.Error(t, m.Start())
}
