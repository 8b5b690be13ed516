package api

import (
	"net/http"

	"github.com/NIU1599156/CameraManager/internal/notify"
)

// WebsocketHandler keeps the observer subscribed until the client goes away.
func (h *Handlers) WebsocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	observer := notify.NewWebsocketObserver(conn)
	handle := h.app.Subscribe(observer)
	h.logger.Debug().Str("remote", r.RemoteAddr).Msg("new websocket client connected")

	_ = observer.Wait()

	h.app.Unsubscribe(handle)
	_ = observer.Close()
	h.logger.Debug().Str("remote", r.RemoteAddr).Msg("websocket client disconnected")
}
