package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/renify/internal/app/notification"
)

const (
	wsSendBuffer   = 32
	wsWriteTimeout = 5 * time.Second
)

var errStreamBackpressure = errors.New("notification stream backpressure")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsStream adapts a websocket connection to the notification.Stream
// interface. Send never blocks; a full buffer drops the subscriber.
type wsStream struct {
	conn *websocket.Conn
	send chan *notification.Message
	once sync.Once
	done chan struct{}
}

func newWSStream(conn *websocket.Conn) *wsStream {
	return &wsStream{
		conn: conn,
		send: make(chan *notification.Message, wsSendBuffer),
		done: make(chan struct{}),
	}
}

func (s *wsStream) Send(msg *notification.Message) error {
	select {
	case s.send <- msg:
		return nil
	case <-s.done:
		return errors.New("stream closed")
	default:
		return errStreamBackpressure
	}
}

func (s *wsStream) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *wsStream) writePump() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := s.conn.WriteJSON(msg); err != nil {
				s.close()
				return
			}
		}
	}
}

// readPump discards inbound frames; its job is detecting disconnects.
func (s *wsStream) readPump() {
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			s.close()
			return
		}
	}
}

func (h *Handler) handleNotifications(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zlog.Warn().Msgf("websocket upgrade failed: %v", err)
		return
	}

	stream := newWSStream(conn)
	subID := h.notifier.Subscribe(stream)
	zlog.Debug().Msgf("notification subscriber connected: id=%s", subID)

	go stream.writePump()
	stream.readPump()

	h.notifier.Unsubscribe(subID)
	stream.close()
	zlog.Debug().Msgf("notification subscriber disconnected: id=%s", subID)
}
