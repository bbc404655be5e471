package router

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"courier-dispatch/internal/client/countdown"
	"courier-dispatch/internal/dispatch/domain/dto"
	"courier-dispatch/internal/dispatch/domain/models"
)

type recordingSink struct {
	mu    sync.Mutex
	calls []string
}

func (s *recordingSink) record(format string, args ...any) {
	s.mu.Lock()
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
	s.mu.Unlock()
}

func (s *recordingSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *recordingSink) AddOrderPreview(order dto.OrderPayload) { s.record("preview:%d", order.ID) }
func (s *recordingSink) ReplaceUnclaimed(orders []models.Order) { s.record("replace:%d", len(orders)) }
func (s *recordingSink) RemoveUnclaimed(orderID int64)          { s.record("remove:%d", orderID) }
func (s *recordingSink) OrderAccepted(order dto.OrderPayload, mine bool) {
	s.record("accepted:%d:mine=%v", order.ID, mine)
}
func (s *recordingSink) OrderProcessing(order dto.OrderPayload) { s.record("processing:%d", order.ID) }
func (s *recordingSink) OrderDelivered(order dto.OrderPayload)  { s.record("delivered:%d", order.ID) }
func (s *recordingSink) Notify(message, kind string)            { s.record("notify:%s:%s", kind, message) }
func (s *recordingSink) SessionTerminated(reason string)        { s.record("terminated:%s", reason) }

type resyncLog struct {
	mu      sync.Mutex
	reasons []string
}

func (r *resyncLog) trigger(reason string) {
	r.mu.Lock()
	r.reasons = append(r.reasons, reason)
	r.mu.Unlock()
}

func (r *resyncLog) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.reasons))
	copy(out, r.reasons)
	return out
}

func newTestRouter(userID int64) (*Router, *recordingSink, *resyncLog, *countdown.Engine) {
	sink := &recordingSink{}
	resyncs := &resyncLog{}
	engine := countdown.New(countdown.Config{Tick: time.Hour}, nil, nil, nil)
	r := New(userID, engine, resyncs.trigger, sink, nil)
	return r, sink, resyncs, engine
}

func contains(calls []string, want string) bool {
	for _, c := range calls {
		if c == want {
			return true
		}
	}
	return false
}

func TestNewOrderPushPreviewsThenResyncs(t *testing.T) {
	r, sink, resyncs, _ := newTestRouter(7)

	r.Route([]byte(`{"type":"NEW_ORDER_AVAILABLE","payload":{"id":5,"status":"pending","amount":"10.00"}}`))

	if !contains(sink.all(), "preview:5") {
		t.Errorf("sink calls = %v, want preview", sink.all())
	}
	if !contains(resyncs.all(), "new_order") {
		t.Errorf("resyncs = %v, want new_order", resyncs.all())
	}
}

func TestClaimWonVersusLost(t *testing.T) {
	r, sink, _, _ := newTestRouter(7)

	// This user won.
	r.Route([]byte(`{"type":"ORDER_UPDATED","payload":{"id":1,"status":"accepted","courier_id":7,"amount":"10.00"}}`))
	if !contains(sink.all(), "accepted:1:mine=true") {
		t.Errorf("sink calls = %v, want accepted mine", sink.all())
	}
	if contains(sink.all(), "remove:1") {
		t.Error("winner must keep the order visible")
	}

	// Another courier won: the stale card leaves the list.
	r.Route([]byte(`{"type":"ORDER_UPDATED","payload":{"id":2,"status":"accepted","courier_id":9,"amount":"10.00"}}`))
	if !contains(sink.all(), "accepted:2:mine=false") {
		t.Errorf("sink calls = %v, want accepted not mine", sink.all())
	}
	if !contains(sink.all(), "remove:2") {
		t.Error("lost claim must remove the unclaimed card")
	}
}

func TestProcessingPushStartsCountdown(t *testing.T) {
	r, sink, resyncs, engine := newTestRouter(7)

	eta := time.Now().Add(20 * time.Minute).UTC().Format(time.RFC3339)
	r.Route([]byte(fmt.Sprintf(
		`{"type":"ORDER_UPDATED","payload":{"id":3,"status":"processing","courier_id":7,"eta":%q,"amount":"10.00"}}`, eta)))

	if !engine.Running(3) {
		t.Error("processing push did not start the countdown")
	}
	if !contains(sink.all(), "processing:3") {
		t.Errorf("sink calls = %v", sink.all())
	}
	if !contains(resyncs.all(), "order_processing") {
		t.Errorf("resyncs = %v", resyncs.all())
	}
}

func TestDeliveredPushCancelsCountdown(t *testing.T) {
	r, sink, _, engine := newTestRouter(7)
	engine.Start(4, time.Now().Add(10*time.Minute))

	r.Route([]byte(`{"type":"ORDER_UPDATED","payload":{"id":4,"status":"delivered","courier_id":7,"amount":"10.00"}}`))

	if engine.Running(4) {
		t.Error("delivered push left the countdown running")
	}
	if !contains(sink.all(), "delivered:4") {
		t.Errorf("sink calls = %v", sink.all())
	}
}

func TestCountdownUpdateWithPastEtaCompletesOnce(t *testing.T) {
	sink := &recordingSink{}
	resyncs := &resyncLog{}

	var mu sync.Mutex
	fired := 0
	engine := countdown.New(countdown.Config{Tick: time.Hour}, func(int64) {
		mu.Lock()
		fired++
		mu.Unlock()
	}, nil, nil)
	r := New(7, engine, resyncs.trigger, sink, nil)

	engine.Start(6, time.Now().Add(10*time.Minute))

	past := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
	msg := []byte(fmt.Sprintf(`{"type":"COUNTDOWN_UPDATE","payload":{"id":6,"eta":%q}}`, past))
	r.Route(msg)
	r.Route(msg)

	mu.Lock()
	defer mu.Unlock()
	if fired != 1 {
		t.Errorf("completion fired %d times, want exactly 1", fired)
	}
}

func TestForceLogoutReachesSink(t *testing.T) {
	r, sink, _, _ := newTestRouter(7)

	r.Route([]byte(`{"type":"FORCE_LOGOUT","payload":{"reason":"unauthorized"}}`))
	if !contains(sink.all(), "terminated:unauthorized") {
		t.Errorf("sink calls = %v", sink.all())
	}
}

func TestUnknownAndMalformedMessagesAreDropped(t *testing.T) {
	r, sink, resyncs, _ := newTestRouter(7)

	r.Route([]byte(`{"type":"FUTURE_FEATURE","payload":{"x":1}}`))
	r.Route([]byte(`not even json`))
	r.Route([]byte(`{"payload":{"id":1}}`))

	if len(sink.all()) != 0 {
		t.Errorf("sink calls = %v, want none", sink.all())
	}
	if len(resyncs.all()) != 0 {
		t.Errorf("resyncs = %v, want none", resyncs.all())
	}
}

func TestLegacyFlattenedOrderUpdate(t *testing.T) {
	r, sink, _, _ := newTestRouter(7)

	r.Route([]byte(`{"type":"ORDER_UPDATED","id":8,"status":"accepted","courier_id":7,"amount":"12.00"}`))
	if !contains(sink.all(), "accepted:8:mine=true") {
		t.Errorf("sink calls = %v, legacy shape not routed", sink.all())
	}
}
