package cli

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/mediax/colourspace"
	"github.com/opd-ai/mediax/metrics"
	"github.com/opd-ai/mediax/stream"
)

func testStreams() []stream.Info {
	return []stream.Info{
		{SessionName: "rear", Hostname: "239.192.1.2", Port: 5004, Height: 480, Width: 640, Framerate: 25, Encoding: colourspace.YUV422},
		{SessionName: "front", Hostname: "127.0.0.1", Port: 5006, Height: 4, Width: 4, Framerate: 30, Encoding: colourspace.RGB24, Deleted: true},
	}
}

func get(t *testing.T, srv *httptest.Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestStreamsEndpoint(t *testing.T) {
	srv := httptest.NewServer(NewRouter(metrics.New(), testStreams))
	defer srv.Close()

	code, body := get(t, srv, "/streams")
	require.Equal(t, http.StatusOK, code)

	var views []StreamView
	require.NoError(t, json.Unmarshal([]byte(body), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "front", views[0].Name)
	assert.True(t, views[0].Deleted)
	assert.Equal(t, "rear", views[1].Name)
	assert.Equal(t, "239.192.1.2:5004", views[1].Address)
	assert.Equal(t, "YUV422", views[1].Encoding)
	assert.True(t, views[1].Multicast)
}

func TestStreamByName(t *testing.T) {
	srv := httptest.NewServer(NewRouter(metrics.New(), testStreams))
	defer srv.Close()

	code, body := get(t, srv, "/streams/rear")
	require.Equal(t, http.StatusOK, code)
	var view StreamView
	require.NoError(t, json.Unmarshal([]byte(body), &view))
	assert.Equal(t, uint32(640), view.Width)

	code, _ = get(t, srv, "/streams/missing")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestMetricsEndpointCountsActiveStreams(t *testing.T) {
	srv := httptest.NewServer(NewRouter(metrics.New(), testStreams))
	defer srv.Close()

	code, body := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "mediax_sap_active_streams 1")

	code, body = get(t, srv, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0", http.NotFoundHandler())
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestSetupLogging(t *testing.T) {
	var buf strings.Builder
	require.NoError(t, SetupLogging(&buf, "DEBUG", "json"))
	assert.Error(t, SetupLogging(nil, "loud", "text"))
	assert.Error(t, SetupLogging(nil, "info", "xml"))
	require.NoError(t, SetupLogging(io.Discard, "info", "text"))
}
