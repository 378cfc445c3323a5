package stream

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer
	pongWait = 60 * time.Second

	// Send pings with this period; must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames
	maxMessageSize = 4096
)

// Frame types sent over the websocket.
const (
	FrameHello  = "hello"  // backlog snapshot, sent once on connect
	FrameEntry  = "entry"  // one live entry
	FrameClosed = "closed" // the topic ended; no more frames follow
)

// Frame is the JSON envelope written to websocket clients.
type Frame struct {
	Type    string  `json:"type"`
	Topic   string  `json:"topic"`
	Entries []Entry `json:"entries,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Handler serves a topic over a websocket. topicFn picks the topic from the request.
//
// The first frame is always a hello carrying the backlog, so a client can tell "connected with no activity yet"
// from "not connected".
func Handler(b *Broker, topicFn func(*http.Request) string, logger *log.Logger) http.HandlerFunc {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		name := topicFn(r)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "topic", name, "error", err)
			return
		}
		defer conn.Close()

		backlog, sub := b.Subscribe(name)
		defer sub.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go readPump(conn, cancel)

		logger.Debug("stream client connected", "topic", name, "backlog", len(backlog))
		if err := writeFrame(conn, Frame{Type: FrameHello, Topic: name, Entries: backlog}); err != nil {
			return
		}

		writePump(ctx, conn, name, sub, logger)
		logger.Debug("stream client disconnected", "topic", name, "dropped", sub.Dropped())
	}
}

// readPump drains control frames so pongs are processed, and cancels when the peer goes away.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, name string, sub *Subscription, logger *log.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				_ = writeFrame(conn, Frame{Type: FrameClosed, Topic: name})
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream ended"))
				return
			}
			if err := writeFrame(conn, Frame{Type: FrameEntry, Topic: name, Entries: []Entry{e}}); err != nil {
				logger.Debug("stream write failed", "topic", name, "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, f Frame) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(f)
}
