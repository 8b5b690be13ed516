package api

import (
	"net/http"
)

// AlarmHandler blocks for the whole pulse.
func (h *Handlers) AlarmHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.app.PulseAlarm(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Alarm activated")
}
