package hub

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"courier-dispatch/internal/dispatch/app/core"
	"courier-dispatch/internal/dispatch/domain/dto"
	"courier-dispatch/internal/xpkg/config"
	"courier-dispatch/internal/xpkg/logger"
	"courier-dispatch/internal/xpkg/metrics"
)

// Hub owns the role-keyed session registry and fans events out to matching
// sessions. The registry is mutated only by the register/unregister paths
// driven by connect and disconnect; application code goes through Dispatch.
type Hub struct {
	users core.IUserRepo
	cfg   config.HubConfig
	mylog *logger.Logger

	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{}
}

func New(users core.IUserRepo, cfg config.HubConfig, mylog *logger.Logger) *Hub {
	return &Hub{
		users: users,
		cfg:   cfg,
		mylog: mylog,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sessions: make(map[string]map[*Session]struct{}),
	}
}

// ServeWS upgrades the request and runs the session until it closes. The
// session is not registered until its identify handshake passes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.mylog.Action("ws_upgrade").Error("websocket upgrade failed", err)
		return
	}
	s := newSession(h, conn)
	go s.writeLoop()
	go s.readLoop()
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessions[s.role] == nil {
		h.sessions[s.role] = make(map[*Session]struct{})
	}
	h.sessions[s.role][s] = struct{}{}
	metrics.SessionsGauge.WithLabelValues(s.role).Inc()

	h.mylog.Action("session_registered").Info("session registered",
		zap.String("role", s.role), zap.Int64("user_id", s.userID))
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.sessions[s.role]; ok {
		if _, present := set[s]; present {
			delete(set, s)
			metrics.SessionsGauge.WithLabelValues(s.role).Dec()
		}
	}
}

// Dispatch delivers a broadcast to every local session matching its
// targets. A target with a zero UserID addresses the whole role. Sessions
// that cannot keep up are dropped, but only after the registry lock is
// released: close unregisters, which takes the write lock.
func (h *Hub) Dispatch(b dto.Broadcast) {
	raw, err := b.Event.Encode()
	if err != nil {
		h.mylog.Action("dispatch").Error("failed to encode event", err)
		return
	}

	var slow []*Session

	h.mu.RLock()
	for _, target := range b.Targets {
		for s := range h.sessions[target.Role] {
			if target.UserID != 0 && s.userID != target.UserID {
				continue
			}
			if !s.enqueue(raw) {
				slow = append(slow, s)
			}
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.mylog.Action("session_slow").Warn("send queue full, dropping session",
			zap.Int64("user_id", s.userID), zap.String("role", s.role))
		s.close()
	}
}

// BroadcastToRole fans one event out to every session of the role.
func (h *Hub) BroadcastToRole(role string, env dto.Envelope) {
	h.Dispatch(dto.Broadcast{Targets: []dto.Target{{Role: role}}, Event: env})
}

// SendToUser delivers one event to all sessions of a single user.
func (h *Hub) SendToUser(role string, userID int64, env dto.Envelope) {
	h.Dispatch(dto.Broadcast{Targets: []dto.Target{{Role: role, UserID: userID}}, Event: env})
}
