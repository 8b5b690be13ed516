package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NIU1599156/CameraManager/internal/app"
	"github.com/NIU1599156/CameraManager/internal/config"
	"github.com/NIU1599156/CameraManager/internal/framesource"
	"github.com/NIU1599156/CameraManager/internal/metrics"
	"github.com/NIU1599156/CameraManager/internal/models"
	"github.com/NIU1599156/CameraManager/internal/registry"
	"github.com/NIU1599156/CameraManager/internal/stream"
)

type offlineOpener struct{}

func (offlineOpener) Open(context.Context, string) (framesource.Source, error) {
	return nil, framesource.ErrSourceUnavailable
}

type fakeLine struct {
	mu   sync.Mutex
	high bool
}

func (l *fakeLine) Set(high bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.high = high
	return nil
}

func (l *fakeLine) isHigh() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.high
}

type testServer struct {
	*httptest.Server
	app  *app.App
	line *fakeLine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.Default()
	cfg.Stream.Binary = "sleep"
	cfg.Stream.StopTimeout = 200 * time.Millisecond
	cfg.Alarm.Duration = 200 * time.Millisecond

	reg := registry.New(registry.NewFileStore(filepath.Join(t.TempDir(), "cameras.json")), zerolog.Nop())
	require.NoError(t, reg.Load(context.Background()))

	line := &fakeLine{}
	a := app.New(cfg, app.Deps{
		Registry:   reg,
		Opener:     offlineOpener{},
		Line:       line,
		StreamArgs: func(models.Camera, string) []string { return []string{"30"} },
	}, metrics.New(), zerolog.Nop())

	srv := httptest.NewServer(NewHandlers(a, zerolog.Nop()).Router())
	t.Cleanup(func() {
		srv.Close()
		_ = a.Shutdown()
	})
	return &testServer{Server: srv, app: a, line: line}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, s.URL+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

func TestCameraCRUD(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodPost, "/cameras", `{"name":"Front door","ip":"rtsp://cam1"}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, models.Camera{ID: 1, Name: "Front door", Address: "rtsp://cam1"}, decode[models.Camera](t, body))

	status, _ = s.do(t, http.MethodPost, "/cameras", `{"name":"Garage","address":"rtsp://cam2"}`)
	require.Equal(t, http.StatusCreated, status)

	status, body = s.do(t, http.MethodGet, "/cameras", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.Camera](t, body), 2)

	status, body = s.do(t, http.MethodPut, "/cameras/2", `{"name":"Back door","address":"rtsp://cam3"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Back door", decode[models.Camera](t, body).Name)

	status, body = s.do(t, http.MethodGet, "/cameras/2", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "rtsp://cam3", decode[models.Camera](t, body).Address)

	status, _ = s.do(t, http.MethodDelete, "/cameras/1", "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, http.MethodDelete, "/cameras/1", "")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = s.do(t, http.MethodGet, "/cameras/1", "")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = s.do(t, http.MethodPut, "/cameras/9", `{"name":"x","ip":"y"}`)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAddCameraValidation(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, http.MethodPost, "/cameras", `{not json`)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = s.do(t, http.MethodPost, "/cameras", `{"name":"no address"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Empty(t, s.app.Cameras())
}

func TestStreamRoutes(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/cameras", `{"name":"Garage","ip":"rtsp://cam2"}`)

	status, body := s.do(t, http.MethodPost, "/cameras/1/start", "")
	require.Equal(t, http.StatusOK, status)
	handle := decode[stream.Handle](t, body)
	assert.Equal(t, 1, handle.CameraID)
	assert.Equal(t, stream.StateRunning, handle.State)

	status, _ = s.do(t, http.MethodPost, "/cameras/1/start", "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Len(t, s.app.Streams(), 1)

	status, _ = s.do(t, http.MethodPost, "/cameras/1/stop", "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, http.MethodPost, "/cameras/1/stop", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, http.MethodPost, "/cameras/7/start", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDeleteAllCamerasStopsRelays(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/cameras", `{"name":"a","ip":"rtsp://a"}`)
	s.do(t, http.MethodPost, "/cameras", `{"name":"b","ip":"rtsp://b"}`)
	s.do(t, http.MethodPost, "/cameras/1/start", "")
	s.do(t, http.MethodPost, "/cameras/2/start", "")
	require.Len(t, s.app.Streams(), 2)

	status, _ := s.do(t, http.MethodDelete, "/cameras", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, s.app.Streams())
	assert.Empty(t, s.app.Cameras())
}

func TestAlarmRoute(t *testing.T) {
	s := newTestServer(t)

	first := make(chan int, 1)
	go func() {
		resp, err := s.Client().Post(s.URL+"/alarm", "application/json", nil)
		if err != nil {
			first <- 0
			return
		}
		resp.Body.Close()
		first <- resp.StatusCode
	}()
	require.Eventually(t, s.line.isHigh, time.Second, time.Millisecond)

	status, _ := s.do(t, http.MethodPost, "/alarm", "")
	assert.Equal(t, http.StatusConflict, status)

	assert.Equal(t, http.StatusOK, <-first)
	assert.False(t, s.line.isHigh())
}

func TestWebsocketReceivesBroadcast(t *testing.T) {
	s := newTestServer(t)

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.app.Status().Observers == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, s.app.Broadcast(context.Background(), "Motion detected Front door"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "Motion detected Front door", string(data))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return s.app.Status().Observers == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHealthStatusMetrics(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	status, body = s.do(t, http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusOK, status)
	st := decode[app.Status](t, body)
	assert.False(t, st.Detection)
	assert.Equal(t, 0, st.Observers)

	status, body = s.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "notify_observers")
}
