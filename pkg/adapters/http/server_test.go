package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aretw0/mqlua/pkg/domain"
	"github.com/aretw0/mqlua/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_Healthz(t *testing.T) {
	handler := NewHandler(nil, nil)

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok\n", w.Body.String())
}

func TestHandler_Status(t *testing.T) {
	metrics := observability.NewMetrics()
	metrics.Hooks().OnNodeStart(context.Background(), &domain.NodeEvent{NodeID: 1})

	handler := NewHandler(metrics, func() Status {
		return Status{Version: "test", Tracking: true, Active: 1}
	})

	req := httptest.NewRequest("GET", "/status", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var got Status
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, "test", got.Version)
	assert.True(t, got.Tracking)
	assert.Equal(t, int64(1), got.Active)
	assert.Equal(t, uint64(1), got.Lifecycle.Started)
}

func TestHandler_Metrics(t *testing.T) {
	metrics := observability.NewMetrics()
	metrics.Hooks().OnSpawnError(context.Background(), "x.lua", fmt.Errorf("%w: full", domain.ErrThreadCreation))

	handler := NewHandler(metrics, nil)
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "mqlua_nodes_started_total 0")
	assert.Contains(t, body, `mqlua_spawn_errors_total{kind="thread"} 1`)
}

func TestHandler_NoMetricsRoute(t *testing.T) {
	handler := NewHandler(nil, nil)
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_StartAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewServer("127.0.0.1:0", NewHandler(nil, nil))
	addr, err := srv.Start(ctx)
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, strings.HasPrefix(string(body), "ok"))

	require.NoError(t, srv.Shutdown())
}
