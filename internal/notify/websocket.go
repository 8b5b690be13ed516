package notify

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebsocketObserver adapts a websocket connection to Observer. Writes come
// only from the hub (one Broadcast at a time); reads only from Wait.
type WebsocketObserver struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func NewWebsocketObserver(conn *websocket.Conn) *WebsocketObserver {
	return &WebsocketObserver{conn: conn}
}

func (o *WebsocketObserver) Send(ctx context.Context, text string) error {
	deadline, _ := ctx.Deadline()
	if err := o.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return o.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// Wait reads (and discards) client messages until the connection drops.
func (o *WebsocketObserver) Wait() error {
	for {
		if _, _, err := o.conn.ReadMessage(); err != nil {
			return err
		}
	}
}

func (o *WebsocketObserver) Close() error {
	o.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
		_ = o.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		o.closeErr = o.conn.Close()
	})
	return o.closeErr
}
