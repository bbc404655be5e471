package connmanager

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"courier-dispatch/internal/dispatch/domain/dto"
)

type fakeConn struct {
	mu     sync.Mutex
	writes [][]byte
	inbox  chan []byte
	once   sync.Once
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbox: make(chan []byte, 16)}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.writes = append(c.writes, buf)
	return nil
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	raw, ok := <-c.inbox
	if !ok {
		return nil, errors.New("connection closed")
	}
	return raw, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.once.Do(func() { close(c.inbox) })
	return nil
}

func (c *fakeConn) written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

// fakeDialer hands out fresh fakeConns, optionally failing first.
type fakeDialer struct {
	mu      sync.Mutex
	failing bool
	dials   int
	conns   []*fakeConn
}

func (d *fakeDialer) dial(string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failing {
		return nil, errors.New("connection refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) setFailing(v bool) {
	d.mu.Lock()
	d.failing = v
	d.mu.Unlock()
}

func (d *fakeDialer) latest() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func fastOpts(d *fakeDialer) Options {
	return Options{
		URL:         "ws://test",
		UserID:      42,
		Role:        "courier",
		Base:        time.Millisecond,
		Growth:      1.5,
		Cap:         5 * time.Millisecond,
		MaxAttempts: 5,
		Dial:        d.dial,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func decodeType(t *testing.T, raw []byte) (string, json.RawMessage) {
	t.Helper()
	var env dto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("wire message is not an envelope: %v", err)
	}
	return env.Type, env.Payload
}

func TestConnectSendsIdentifyFirst(t *testing.T) {
	d := &fakeDialer{}
	m := New(fastOpts(d), Callbacks{})
	defer m.Close()

	if err := m.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	writes := d.latest().written()
	if len(writes) != 1 {
		t.Fatalf("got %d writes, want only the identify", len(writes))
	}
	msgType, payload := decodeType(t, writes[0])
	if msgType != dto.TypeIdentify {
		t.Fatalf("first message type = %q, want %q", msgType, dto.TypeIdentify)
	}
	var id dto.IdentifyPayload
	if err := json.Unmarshal(payload, &id); err != nil {
		t.Fatalf("identify payload: %v", err)
	}
	if id.UserID != 42 || id.Role != "courier" {
		t.Errorf("identify = %+v, want userId 42 role courier", id)
	}
}

func TestQueuedMessagesFlushInOrder(t *testing.T) {
	d := &fakeDialer{failing: true}
	opts := fastOpts(d)
	opts.MaxAttempts = 1000
	m := New(opts, Callbacks{})
	defer m.Close()

	m.Send([]byte(`{"type":"SUBSCRIBE","payload":{"channel":"a"}}`))
	m.Send([]byte(`{"type":"SUBSCRIBE","payload":{"channel":"b"}}`))
	m.Send([]byte(`{"type":"SUBSCRIBE","payload":{"channel":"c"}}`))

	if got := m.QueueLen(); got != 3 {
		t.Fatalf("queue length = %d, want 3", got)
	}

	d.setFailing(false)
	waitFor(t, m.Connected)
	waitFor(t, func() bool { return len(d.latest().written()) == 4 })

	writes := d.latest().written()
	if msgType, _ := decodeType(t, writes[0]); msgType != dto.TypeIdentify {
		t.Fatalf("first flushed message = %q, want identify", msgType)
	}
	for i, want := range []string{"a", "b", "c"} {
		var env struct {
			Payload struct {
				Channel string `json:"channel"`
			} `json:"payload"`
		}
		if err := json.Unmarshal(writes[i+1], &env); err != nil {
			t.Fatalf("flushed message %d: %v", i, err)
		}
		if env.Payload.Channel != want {
			t.Errorf("flush position %d = %q, want %q", i, env.Payload.Channel, want)
		}
	}
	if m.QueueLen() != 0 {
		t.Error("queue not drained after flush")
	}
}

func TestReconnectCeilingThenManualRecovery(t *testing.T) {
	d := &fakeDialer{failing: true}

	errs := make(chan error, 1)
	m := New(fastOpts(d), Callbacks{
		OnError: func(err error) { errs <- err },
	})
	defer m.Close()

	m.Send([]byte(`{"type":"SUBSCRIBE","payload":{"channel":"x"}}`))

	select {
	case err := <-errs:
		if !errors.Is(err, ErrReconnectCeiling) {
			t.Fatalf("terminal error = %v, want ErrReconnectCeiling", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect ceiling never reported")
	}

	// 1 initial + 5 budgeted retries.
	if got := d.dialCount(); got != 6 {
		t.Errorf("dial attempts = %d, want 6", got)
	}
	if m.Connected() {
		t.Fatal("manager should be offline after ceiling")
	}

	// Manual reconnect resets the budget and flushes the queue.
	d.setFailing(false)
	if err := m.Connect(); err != nil {
		t.Fatalf("manual connect failed: %v", err)
	}
	writes := d.latest().written()
	if len(writes) != 2 {
		t.Fatalf("got %d writes after recovery, want identify + queued message", len(writes))
	}
	if m.QueueLen() != 0 {
		t.Error("queue survived the recovery flush")
	}
}

func TestDroppedConnectionReconnectsAndRedelivers(t *testing.T) {
	d := &fakeDialer{}

	var mu sync.Mutex
	var received [][]byte
	m := New(fastOpts(d), Callbacks{
		OnMessage: func(raw []byte) {
			mu.Lock()
			received = append(received, raw)
			mu.Unlock()
		},
	})
	defer m.Close()

	if err := m.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	first := d.latest()

	first.inbox <- []byte(`{"type":"NOTIFICATION","payload":{"message":"hi","type":"info"}}`)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})

	// Server drops the connection; the manager must come back by itself.
	first.Close()
	waitFor(t, func() bool { return d.dialCount() >= 2 && m.Connected() })

	if d.latest() == first {
		t.Fatal("manager did not dial a fresh connection")
	}
	if msgType, _ := decodeType(t, d.latest().written()[0]); msgType != dto.TypeIdentify {
		t.Error("reconnected session did not identify first")
	}
}

func TestBackoffGrowthAndCap(t *testing.T) {
	base := 2 * time.Second
	capDelay := 30 * time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 3 * time.Second},
		{3, 4500 * time.Millisecond},
		{4, 6750 * time.Millisecond},
		{5, 10125 * time.Millisecond},
		{12, 30 * time.Second},
	}
	for _, tc := range tests {
		if got := Backoff(base, capDelay, 1.5, tc.attempt); got != tc.want {
			t.Errorf("Backoff(attempt=%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 20; attempt++ {
		d := Backoff(base, capDelay, 1.5, attempt)
		if d < prev {
			t.Fatalf("backoff decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		if d > capDelay {
			t.Fatalf("backoff exceeded cap at attempt %d: %v", attempt, d)
		}
		prev = d
	}
}
