package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/roombook/internal/metrics"
)

type recordingSink struct {
	mu       sync.Mutex
	name     string
	failures int
	calls    int
	events   []Event
	block    chan struct{}
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(ctx context.Context, event Event) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("sink unavailable")
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) snapshot() ([]Event, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...), s.calls
}

func sampleEvent(typ Type, reservationID string) Event {
	payload := &ReservationPayload{
		ID:         reservationID,
		ResourceID: "room-1",
		OwnerID:    "alice",
		StartTime:  time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC),
		EndTime:    time.Date(2024, 5, 6, 11, 0, 0, 0, time.UTC),
	}
	if typ == ReservationDeleted {
		payload = nil
	}
	return New(typ, reservationID, "room-1", payload, time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC))
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	sink := &recordingSink{name: "rec"}
	d := NewDispatcher(DispatcherOptions{Buffer: 16}, sink)

	want := []Event{
		sampleEvent(ReservationCreated, "r1"),
		sampleEvent(ReservationUpdated, "r1"),
		sampleEvent(ReservationDeleted, "r1"),
	}
	for _, e := range want {
		d.Publish(context.Background(), e)
	}
	require.NoError(t, d.Close(context.Background()))

	got, _ := sink.snapshot()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Type, got[i].Type)
	}
}

func TestDispatcherRetriesFailedDelivery(t *testing.T) {
	sink := &recordingSink{name: "flaky", failures: 2}
	d := NewDispatcher(DispatcherOptions{Backoff: time.Millisecond}, sink)

	d.Publish(context.Background(), sampleEvent(ReservationCreated, "r1"))
	require.NoError(t, d.Close(context.Background()))

	got, calls := sink.snapshot()
	assert.Len(t, got, 1)
	assert.Equal(t, 3, calls)
}

func TestDispatcherGivesUpAfterMaxAttempts(t *testing.T) {
	failing := &recordingSink{name: "down", failures: 10}
	healthy := &recordingSink{name: "up"}
	d := NewDispatcher(DispatcherOptions{Backoff: time.Millisecond, MaxAttempts: 3}, failing, healthy)
	before := testutil.ToFloat64(metrics.EventDeliveryFailures.WithLabelValues("down"))

	d.Publish(context.Background(), sampleEvent(ReservationCreated, "r1"))
	require.NoError(t, d.Close(context.Background()))

	_, calls := failing.snapshot()
	assert.Equal(t, 3, calls)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.EventDeliveryFailures.WithLabelValues("down")))
	got, _ := healthy.snapshot()
	assert.Len(t, got, 1, "a failing sink must not starve the others")
}

func TestDispatcherPublishNeverBlocks(t *testing.T) {
	sink := &recordingSink{name: "slow", block: make(chan struct{})}
	d := NewDispatcher(DispatcherOptions{Buffer: 1}, sink)
	dropped := testutil.ToFloat64(metrics.EventsDropped.WithLabelValues(string(ReservationCreated)))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			d.Publish(context.Background(), sampleEvent(ReservationCreated, "r"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full queue")
	}

	close(sink.block)
	require.NoError(t, d.Close(context.Background()))
	got, _ := sink.snapshot()
	assert.Less(t, len(got), 20)
	assert.NotEmpty(t, got)
	assert.Equal(t, float64(20-len(got)), testutil.ToFloat64(metrics.EventsDropped.WithLabelValues(string(ReservationCreated)))-dropped)
}

func TestDispatcherPublishAfterClose(t *testing.T) {
	sink := &recordingSink{name: "rec"}
	d := NewDispatcher(DispatcherOptions{}, sink)
	require.NoError(t, d.Close(context.Background()))

	d.Publish(context.Background(), sampleEvent(ReservationCreated, "r1"))
	require.NoError(t, d.Close(context.Background()))

	got, _ := sink.snapshot()
	assert.Empty(t, got)
}

func TestRedisSinkPublishesJSON(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	sub := client.Subscribe(ctx, "roombook:test")
	t.Cleanup(func() { sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	sink := NewRedisSink(client, "roombook:test")
	event := sampleEvent(ReservationCreated, "r1")
	require.NoError(t, sink.Deliver(ctx, event))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, ReservationCreated, decoded.Type)
	require.NotNil(t, decoded.Reservation)
	assert.Equal(t, "alice", decoded.Reservation.OwnerID)
}

func TestRedisSinkDefaultChannel(t *testing.T) {
	sink := NewRedisSink(nil, "")
	assert.Equal(t, DefaultChannel, sink.channel)
}

func TestHubBroadcastsToSubscribers(t *testing.T) {
	hub := NewHub(nil, nil)
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)
	t.Cleanup(hub.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	event := sampleEvent(ReservationDeleted, "r9")
	require.NoError(t, hub.Deliver(context.Background(), event))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var decoded Event
	require.NoError(t, conn.ReadJSON(&decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, "r9", decoded.ReservationID)
	assert.Nil(t, decoded.Reservation)
}

func TestHubForgetsDisconnectedClients(t *testing.T) {
	hub := NewHub(nil, nil)
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestLogSinkNeverFails(t *testing.T) {
	assert.NoError(t, NewLogSink(nil).Deliver(context.Background(), sampleEvent(ReservationCreated, "r1")))
}
