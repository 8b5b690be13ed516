package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/NIU1599156/CameraManager/internal/registry"
)

// cameraRequest accepts the stream address as "address" or, like the
// registry file, as "ip".
type cameraRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	IP      string `json:"ip"`
}

func (c cameraRequest) address() string {
	if c.Address != "" {
		return c.Address
	}
	return c.IP
}

func decodeCamera(r *http.Request) (cameraRequest, error) {
	var req cameraRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, fmt.Errorf("%w: %v", registry.ErrInvalidCamera, err)
	}
	return req, nil
}

func cameraID(r *http.Request) int {
	// the route pattern only admits digits
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	return id
}

func (h *Handlers) ListCamerasHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Cameras())
}

func (h *Handlers) GetCameraHandler(w http.ResponseWriter, r *http.Request) {
	camera, err := h.app.Camera(cameraID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, camera)
}

func (h *Handlers) AddCameraHandler(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCamera(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	camera, err := h.app.AddCamera(r.Context(), req.Name, req.address())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, camera)
}

func (h *Handlers) UpdateCameraHandler(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCamera(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	camera, err := h.app.UpdateCamera(r.Context(), cameraID(r), req.Name, req.address())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, camera)
}

func (h *Handlers) DeleteCameraHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.app.DeleteCamera(r.Context(), cameraID(r)); err != nil {
		h.writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Camera deleted")
}

// DeleteAllCamerasHandler stops every relay and clears the registry.
func (h *Handlers) DeleteAllCamerasHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.app.DeleteAllCameras(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "All cameras deleted")
}
