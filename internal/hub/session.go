package hub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"courier-dispatch/internal/dispatch/domain/dto"
	"courier-dispatch/internal/xpkg/logger"
	"courier-dispatch/internal/xpkg/metrics"
)

const (
	identifyTimeout = 30 * time.Second
	lookupTimeout   = 5 * time.Second
)

// Session is one live push-channel connection. It stays unregistered, and
// receives no fan-out, until the client identifies with a role the users
// table confirms.
type Session struct {
	hub  *Hub
	conn *websocket.Conn

	sessionID string
	userID    int64
	role      string

	send      chan []byte
	closeOnce sync.Once
}

func newSession(h *Hub, conn *websocket.Conn) *Session {
	return &Session{
		hub:       h,
		conn:      conn,
		sessionID: uuid.NewString(),
		send:      make(chan []byte, h.cfg.SendQueueSize),
	}
}

// enqueue queues a message without blocking. A false return means the
// session cannot keep up; closing it is the caller's job, because close
// unregisters and must not run while the registry lock is held.
func (s *Session) enqueue(raw []byte) bool {
	select {
	case s.send <- raw:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.hub.unregister(s)
		close(s.send)
		_ = s.conn.Close()
	})
}

func (s *Session) readLoop() {
	defer s.close()

	mylog := s.hub.mylog.With("session_id", s.sessionID)

	_ = s.conn.SetReadDeadline(time.Now().Add(identifyTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(2 * s.hub.cfg.PingInterval))
	})

	if !s.handshake(mylog) {
		return
	}
	_ = s.conn.SetReadDeadline(time.Now().Add(2 * s.hub.cfg.PingInterval))

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		ev, err := dto.Decode(raw)
		if err != nil {
			metrics.EventsDroppedTotal.Inc()
			mylog.Action("session_read").Warn("dropping undecodable message", zap.Error(err))
			continue
		}
		switch ev.Type {
		case dto.TypeIdentify:
			// Re-identify on an open connection is a no-op.
		case dto.TypeSubscribe:
			mylog.Action("session_subscribe").Debug("subscribe",
				zap.String("channel", ev.Subscribe.Channel))
		default:
			metrics.EventsDroppedTotal.Inc()
			mylog.Action("session_read").Debug("ignoring client message",
				zap.String("type", ev.Type))
		}
	}
}

// handshake requires the first message to be IDENTIFY and validates the
// asserted identity against the users table before trusting it. The wire
// shape is unchanged; the lookup is what keeps a client from simply
// asserting the admin role.
func (s *Session) handshake(mylog *logger.Logger) bool {
	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		return false
	}

	ev, err := dto.Decode(raw)
	if err != nil || ev.Type != dto.TypeIdentify {
		mylog.Action("handshake").Warn("first message was not a valid IDENTIFY")
		s.rejectAndClose("identify required")
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	user, err := s.hub.users.Get(ctx, ev.Identify.UserID)
	if err != nil || user.Role != ev.Identify.Role {
		mylog.Action("handshake").Warn("identify rejected",
			zap.Int64("user_id", ev.Identify.UserID),
			zap.String("asserted_role", ev.Identify.Role))
		s.rejectAndClose("unauthorized")
		return false
	}

	s.userID = user.ID
	s.role = user.Role
	s.hub.register(s)

	ack, err := dto.NewEnvelope(dto.TypeIdentified, dto.IdentifiedPayload{
		UserID:    s.userID,
		Role:      s.role,
		SessionID: s.sessionID,
	})
	if err == nil {
		if encoded, encErr := ack.Encode(); encErr == nil {
			s.enqueue(encoded)
		}
	}
	return true
}

func (s *Session) writeLoop() {
	ping := time.NewTicker(s.hub.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case raw, ok := <-s.send:
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				s.close()
				return
			}
		case <-ping.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		}
	}
}

func (s *Session) rejectAndClose(reason string) {
	env, err := dto.NewEnvelope(dto.TypeForceLogout, dto.ForceLogoutPayload{Reason: reason})
	if err == nil {
		raw, _ := env.Encode()
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.WriteTimeout))
		_ = s.conn.WriteMessage(websocket.TextMessage, raw)
	}
	s.close()
}
