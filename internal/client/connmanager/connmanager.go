package connmanager

import (
	"encoding/json"
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"courier-dispatch/internal/dispatch/domain/dto"
	"courier-dispatch/internal/xpkg/logger"
)

// ErrReconnectCeiling is surfaced through OnError when the automatic
// reconnect budget is exhausted. The session stays closed until a manual
// Connect call.
var ErrReconnectCeiling = errors.New("reconnect attempt ceiling exceeded")

// Conn is the minimal transport the manager needs. The gorilla adapter
// lives in ws.go; tests substitute an in-memory fake.
type Conn interface {
	WriteMessage(data []byte) error
	ReadMessage() ([]byte, error)
	Close() error
}

type Dialer func(url string) (Conn, error)

type Options struct {
	URL    string
	UserID int64
	Role   string

	Base        time.Duration
	Growth      float64
	Cap         time.Duration
	MaxAttempts int

	Dial Dialer
	Log  *logger.Logger
}

// Callbacks are registered once and live for the lifetime of the manager,
// not per-connection.
type Callbacks struct {
	OnOpen      func()
	OnMessage   func(raw []byte)
	OnClose     func()
	OnError     func(err error)
	OnReconnect func(attempt int)
}

// Manager owns one push-channel session: the identify handshake, the
// ordered outbound queue while disconnected, and capped exponential backoff
// reconnects.
type Manager struct {
	opts Options
	cb   Callbacks

	mu             sync.Mutex
	conn           Conn
	queue          [][]byte
	attempts       int
	reconnectTimer *time.Timer
	closed         bool
}

func New(opts Options, cb Callbacks) *Manager {
	if opts.Base <= 0 {
		opts.Base = 2 * time.Second
	}
	if opts.Growth <= 1 {
		opts.Growth = 1.5
	}
	if opts.Cap <= 0 {
		opts.Cap = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	return &Manager{opts: opts, cb: cb}
}

// Connect opens the session. It is a no-op when already connected. A
// manual call also resets an exhausted reconnect budget: this is the
// recovery path after the ceiling was hit.
func (m *Manager) Connect() error {
	m.mu.Lock()
	if m.conn != nil {
		m.mu.Unlock()
		return nil
	}
	m.closed = false
	m.attempts = 0
	err := m.connectLocked()
	m.mu.Unlock()
	return err
}

// connectLocked dials and, on success, sends IDENTIFY before flushing the
// queued messages in their original enqueue order. Callers hold m.mu.
func (m *Manager) connectLocked() error {
	conn, err := m.opts.Dial(m.opts.URL)
	if err != nil {
		m.opts.Log.Action("connect").Warn("dial failed", zap.Error(err))
		m.scheduleReconnectLocked()
		return err
	}

	identify, err := dto.NewEnvelope(dto.TypeIdentify, dto.IdentifyPayload{
		UserID: m.opts.UserID,
		Role:   m.opts.Role,
	})
	if err == nil {
		var raw []byte
		if raw, err = identify.Encode(); err == nil {
			err = conn.WriteMessage(raw)
		}
	}
	if err != nil {
		_ = conn.Close()
		m.scheduleReconnectLocked()
		return err
	}

	// Flush strictly FIFO: everything queued while disconnected goes out
	// before any message composed after this point.
	for len(m.queue) > 0 {
		msg := m.queue[0]
		if err := conn.WriteMessage(msg); err != nil {
			_ = conn.Close()
			m.scheduleReconnectLocked()
			return err
		}
		m.queue = m.queue[1:]
	}

	m.conn = conn
	m.attempts = 0
	go m.readLoop(conn)

	if m.cb.OnOpen != nil {
		go m.cb.OnOpen()
	}
	return nil
}

// Send transmits immediately when connected; otherwise the message joins
// the ordered queue and a connect attempt is triggered.
func (m *Manager) Send(msg []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		if err := m.conn.WriteMessage(msg); err == nil {
			return
		}
		// Write failed: the connection is gone. Keep the message.
		_ = m.conn.Close()
		m.conn = nil
		if m.cb.OnClose != nil {
			go m.cb.OnClose()
		}
		m.queue = append(m.queue, msg)
		m.scheduleReconnectLocked()
		return
	}

	m.queue = append(m.queue, msg)
	if m.reconnectTimer == nil && !m.closed {
		_ = m.connectLocked()
	}
}

// SendJSON wraps a payload in the canonical envelope and sends it.
func (m *Manager) SendJSON(msgType string, payload any) error {
	env, err := dto.NewEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	m.Send(raw)
	return nil
}

// Close terminates the session and cancels any pending reconnect.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
}

// Connected reports whether a live connection is held.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// QueueLen reports how many messages wait for the next flush.
func (m *Manager) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *Manager) readLoop(conn Conn) {
	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(conn)
			return
		}
		if m.cb.OnMessage != nil {
			m.cb.OnMessage(raw)
		}
	}
}

func (m *Manager) handleDisconnect(conn Conn) {
	m.mu.Lock()
	if m.conn != conn {
		// A newer connection superseded this one.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	closed := m.closed
	if !closed {
		m.scheduleReconnectLocked()
	}
	m.mu.Unlock()

	if m.cb.OnClose != nil {
		m.cb.OnClose()
	}
}

// scheduleReconnectLocked arms the backoff timer for the next attempt, or
// surfaces the terminal failure once the ceiling is exceeded. Callers hold
// m.mu.
func (m *Manager) scheduleReconnectLocked() {
	if m.reconnectTimer != nil || m.closed {
		return
	}

	m.attempts++
	if m.attempts > m.opts.MaxAttempts {
		m.opts.Log.Action("reconnect").Warn("reconnect ceiling exceeded, giving up")
		if m.cb.OnError != nil {
			go m.cb.OnError(ErrReconnectCeiling)
		}
		return
	}

	attempt := m.attempts
	delay := Backoff(m.opts.Base, m.opts.Cap, m.opts.Growth, attempt)
	m.reconnectTimer = time.AfterFunc(delay, func() {
		if m.cb.OnReconnect != nil {
			m.cb.OnReconnect(attempt)
		}
		m.mu.Lock()
		m.reconnectTimer = nil
		if !m.closed && m.conn == nil {
			_ = m.connectLocked()
		}
		m.mu.Unlock()
	})
}

// Backoff returns the delay before the nth reconnect attempt:
// min(cap, base * growth^(n-1)). Non-decreasing in n.
func Backoff(base, capDelay time.Duration, growth float64, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(base) * math.Pow(growth, float64(attempt-1)))
	if d > capDelay {
		return capDelay
	}
	return d
}
