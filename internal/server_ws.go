package internal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"roomchat/internal/chat"
	"roomchat/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 16 * 1024
)

// wsConn is the chat.Outbox of one websocket connection.
type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func newWSConn(conn *websocket.Conn, buffer int) *wsConn {
	return &wsConn{conn: conn, send: make(chan []byte, buffer)}
}

func (c *wsConn) Deliver(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close stops accepting frames. The write pump flushes what is queued, sends
// a close frame and tears down the socket.
func (c *wsConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	metrics.OpenConnections.Inc()

	out := newWSConn(conn, s.cfg.SendBuffer)
	sess := s.chat.Open(out)
	log := s.log.With().Str("conn", sess.ID()).Str("remote_addr", r.RemoteAddr).Logger()
	log.Debug().Msg("connection opened")

	go out.writePump()
	s.readPump(r.Context(), out, sess, log)
}

func (s *Server) readPump(ctx context.Context, c *wsConn, sess *chat.Session, log zerolog.Logger) {
	defer func() {
		sess.Disconnect()
		c.Close()
		_ = c.conn.Close()
		s.events.Forget(sess.ID())
		metrics.OpenConnections.Dec()
		log.Debug().Msg("connection closed")
	}()

	c.conn.SetReadLimit(maxMsgSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("read failed")
			}
			return
		}
		if !s.events.Allow(sess.ID()) {
			metrics.RateLimited.WithLabelValues("events").Inc()
			// Unauthenticated connections get no feedback of any kind.
			if sess.State() == chat.StateAuthenticated {
				sess.Reject("", chat.CodeRateLimited, "You're sending messages too quickly. Please wait a moment and try again.")
			}
			continue
		}
		if !s.dispatch(ctx, sess, payload, log) {
			return
		}
	}
}

// dispatch confines a panicking handler to its own connection. It reports
// false when the connection should be closed.
func (s *Server) dispatch(ctx context.Context, sess *chat.Session, payload []byte, log zerolog.Logger) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("event handler panicked")
			ok = false
		}
	}()
	sess.Handle(ctx, payload)
	return true
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
