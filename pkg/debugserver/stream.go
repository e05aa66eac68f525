package debugserver

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // debug surface, bound to a local address
	},
}

// StreamHandler upgrades to a websocket and pushes the telemetry snapshot
// every interval until the client goes away or done is closed. Hijacked
// connections outlive http.Server.Shutdown, so done is their only stop.
func StreamHandler(svc Service, interval time.Duration, done <-chan struct{}, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.WithError(err).Debug("websocket upgrade failed")
			return
		}
		defer conn.Close()

		closed := make(chan struct{})
		go readPump(conn, closed)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(svc.Snapshot()); err != nil {
				log.WithError(err).Debug("stream write failed")
				return
			}

			select {
			case <-closed:
				return
			case <-done:
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
				return
			case <-c.Request.Context().Done():
				return
			case <-ticker.C:
			}
		}
	}
}

// readPump drains client frames so close and pong control frames are handled.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(maxMessageSize)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
