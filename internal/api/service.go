package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/NIU1599156/CameraManager/internal/alarm"
	"github.com/NIU1599156/CameraManager/internal/app"
	"github.com/NIU1599156/CameraManager/internal/registry"
	"github.com/NIU1599156/CameraManager/internal/stream"
)

type Handlers struct {
	app      *app.App
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewHandlers(a *app.App, logger zerolog.Logger) *Handlers {
	return &Handlers{
		app: a,
		upgrader: websocket.Upgrader{
			// observers are local dashboards served from other origins
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "api").Logger(),
	}
}

// Router registers every route.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/cameras", h.ListCamerasHandler).Methods(http.MethodGet)
	r.HandleFunc("/cameras", h.AddCameraHandler).Methods(http.MethodPost)
	r.HandleFunc("/cameras", h.DeleteAllCamerasHandler).Methods(http.MethodDelete)
	r.HandleFunc("/cameras/{id:[0-9]+}", h.GetCameraHandler).Methods(http.MethodGet)
	r.HandleFunc("/cameras/{id:[0-9]+}", h.UpdateCameraHandler).Methods(http.MethodPut)
	r.HandleFunc("/cameras/{id:[0-9]+}", h.DeleteCameraHandler).Methods(http.MethodDelete)
	r.HandleFunc("/cameras/{id:[0-9]+}/start", h.StartStreamHandler).Methods(http.MethodPost)
	r.HandleFunc("/cameras/{id:[0-9]+}/stop", h.StopStreamHandler).Methods(http.MethodPost)

	r.HandleFunc("/alarm", h.AlarmHandler).Methods(http.MethodPost)
	r.HandleFunc("/ws", h.WebsocketHandler).Methods(http.MethodGet)

	r.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/status", h.StatusHandler).Methods(http.MethodGet)
	r.Handle("/metrics", h.app.Metrics().Handler()).Methods(http.MethodGet)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// writeError maps domain errors to status codes.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, stream.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, stream.ErrAlreadyRunning), errors.Is(err, alarm.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, registry.ErrInvalidCamera):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
