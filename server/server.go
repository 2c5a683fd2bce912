package server

import (
	"net/http"
	"time"

	"chatrelay/db"
	"chatrelay/protocol"
	"chatrelay/token"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type Server struct {
	db       *db.DB
	config   *Config
	tokens   *token.Service
	presence *presence
	log      *zap.Logger
	upgrader websocket.Upgrader
}

type Config struct {
	ReadTimeout  time.Duration // 0 disables the read deadline
	WriteTimeout time.Duration
	CORSOrigin   string
}

func New(database *db.DB, tokens *token.Service, config *Config, log *zap.Logger) *Server {
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 30 * time.Second
	}

	s := &Server{
		db:       database,
		config:   config,
		tokens:   tokens,
		presence: newPresence(),
		log:      log,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origin == config.CORSOrigin
		},
	}
	return s
}

// Register mounts the HTTP surface: the registration endpoint and the
// websocket upgrade route.
func (s *Server) Register(e *echo.Echo) {
	e.POST("/subscribe", s.handleSubscribe)
	e.GET("/ws", s.handleWS)
}

func (s *Server) handleWS(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		return nil
	}
	s.handleConnection(conn)
	return nil
}

// handleConnection runs the whole life of one session: handshake gate,
// event loop, teardown. Events within a session are handled in arrival
// order; sessions interleave freely.
func (s *Server) handleConnection(conn *websocket.Conn) {
	sess := &Session{ID: uuid.NewString(), conn: conn}

	defer func() {
		s.teardown(sess)
		conn.Close()
	}()

	remoteAddr := conn.RemoteAddr().String()
	s.log.Info("client connected", zap.String("conn", sess.ID), zap.String("addr", remoteAddr))

	// The first frame must be the credential bundle.
	if s.config.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		s.log.Info("client left before handshake", zap.String("conn", sess.ID))
		return
	}

	hs, err := decodeHandshake(raw)
	if err != nil {
		s.sendError(sess, "authentication error")
		return
	}

	user, err := s.admit(sess, hs)
	if err != nil {
		if err != errAuthentication {
			s.log.Error("admission failed", zap.String("conn", sess.ID), zap.Error(err))
		}
		s.sendError(sess, "authentication error")
		return
	}

	s.log.Info("user admitted",
		zap.String("conn", sess.ID),
		zap.Int64("user", user.ID),
		zap.String("username", user.Username))

	// Own roster record, including the session token, then the join
	// broadcast to everyone else (without the token).
	own := protocol.UserRecord{
		ID:           user.ID,
		Username:     user.Username,
		IsOnline:     true,
		ConnectionID: sess.ID,
		Token:        sess.token,
	}
	s.send(sess, protocol.EventUser, own)

	joined := own
	joined.Token = ""
	s.broadcast(sess, protocol.EventUserConnected, joined)

	for {
		if s.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Info("connection dropped", zap.String("conn", sess.ID), zap.Error(err))
			}
			break
		}

		env, err := protocol.Decode(raw)
		if err != nil {
			s.sendError(sess, "invalid event")
			continue
		}

		s.handleEvent(sess, env)

		// Explicit teardown ends the session; Offline is terminal.
		if env.Event == protocol.EventUserDisconnecting {
			return
		}
	}
}

func (s *Server) handleEvent(sess *Session, env *protocol.Envelope) {
	switch env.Event {
	case protocol.EventGetUsers:
		s.handleGetUsers(sess)
	case protocol.EventPrivateMessage:
		s.handlePrivateMessage(sess, env.Data)
	case protocol.EventMessages:
		s.handleHistory(sess, env.Data)
	case protocol.EventOffer, protocol.EventAnswer, protocol.EventICECandidate,
		protocol.EventPickCall, protocol.EventHangUp:
		s.handleSignal(sess, env.Event, env.Data)
	case protocol.EventUserDisconnecting:
		s.teardown(sess)
	default:
		s.sendError(sess, "unknown event")
	}
}

func (s *Server) send(sess *Session, event string, data interface{}) {
	payload, err := protocol.Encode(event, data)
	if err != nil {
		s.log.Error("encode event", zap.String("event", event), zap.Error(err))
		return
	}

	if err := sess.write(payload, s.config.WriteTimeout); err != nil {
		s.log.Debug("write failed",
			zap.String("conn", sess.ID),
			zap.String("event", event),
			zap.Error(err))
	}
}

func (s *Server) sendError(sess *Session, message string) {
	s.send(sess, protocol.EventError, protocol.ErrorPayload{Message: message})
}

// broadcast fans an event out to every live session except from. Presence
// notifications are the only broadcast traffic; messages and signaling
// stay point-to-point.
func (s *Server) broadcast(from *Session, event string, data interface{}) {
	for _, sess := range s.presence.all() {
		if from != nil && sess.ID == from.ID {
			continue
		}
		s.send(sess, event, data)
	}
}

// teardown marks the user offline and emits the leave notifications. It is
// safe to call from both the explicit user_disconnecting path and the
// transport-close path: the sync.Once guarantees a single leave broadcast.
func (s *Server) teardown(sess *Session) {
	sess.teardown.Do(func() {
		if !sess.authenticated {
			return
		}

		// A superseded session is no longer the live handle for its user;
		// it must not flip the user offline.
		if !s.presence.unregister(sess) {
			return
		}

		if err := s.db.SetOffline(sess.userID); err != nil {
			s.log.Error("mark offline", zap.Int64("user", sess.userID), zap.Error(err))
		}

		left := protocol.UserRecord{
			ID:           sess.userID,
			Username:     sess.username,
			IsOnline:     false,
			ConnectionID: sess.ID,
		}
		s.broadcast(sess, protocol.EventOtherUserDisconnected, left)
		s.send(sess, protocol.EventUserDisconnected, left)

		s.log.Info("user disconnected", zap.String("conn", sess.ID), zap.Int64("user", sess.userID))
	})
}

// ReconcilePresence re-syncs the durable online flags against the live
// session map. Run periodically; heals rows left stale by a crash between
// the store write and the map update.
func (s *Server) ReconcilePresence() {
	corrected, err := s.db.SyncOnline(s.presence.liveUserIDs())
	if err != nil {
		s.log.Warn("presence reconciliation", zap.Error(err))
		return
	}
	if corrected > 0 {
		s.log.Info("presence reconciled", zap.Int64("rows", corrected))
	}
}

// Shutdown closes every live session with a going-away frame.
func (s *Server) Shutdown() {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, sess := range s.presence.all() {
		sess.writeControl(msg, s.config.WriteTimeout)
		sess.conn.Close()
	}
}
