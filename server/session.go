package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Session is the per-connection state: the opaque connection handle used
// for targeted delivery, plus the identity attached by the admission gate.
// It lives exactly as long as the connection and is never persisted.
type Session struct {
	ID   string // connection handle
	conn *websocket.Conn

	userID        int64
	username      string
	token         string
	authenticated bool

	writeMu  sync.Mutex
	teardown sync.Once
}

// write serializes frames onto the connection. Handlers for different
// sessions run concurrently and may target the same peer.
func (s *Session) write(payload []byte, timeout time.Duration) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(timeout))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *Session) writeControl(msg []byte, timeout time.Duration) error {
	return s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(timeout))
}
