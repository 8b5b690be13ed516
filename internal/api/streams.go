package api

import (
	"net/http"
)

func (h *Handlers) StartStreamHandler(w http.ResponseWriter, r *http.Request) {
	handle, err := h.app.StartStream(r.Context(), cameraID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, handle)
}

func (h *Handlers) StopStreamHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.app.StopStream(cameraID(r)); err != nil {
		h.writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Camera stream stopped")
}
