package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub { return NewHub(zerolog.Nop()) }

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case raw := <-c.Send:
		var e Event
		require.NoError(t, json.Unmarshal(raw, &e))
		return e
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestCanSubscribe(t *testing.T) {
	patient := Subscriber{UserID: "p1", Role: "patient"}
	assert.True(t, patient.CanSubscribe("patient:p1"))
	assert.False(t, patient.CanSubscribe("patient:p2"))
	assert.True(t, patient.CanSubscribe("hospital:h1"))
	assert.True(t, patient.CanSubscribe("doctor:d1"))
	assert.False(t, patient.CanSubscribe("admin:all"))
	assert.False(t, patient.CanSubscribe("hospital:"))

	staff := Subscriber{UserID: "s1", Role: "staff"}
	assert.True(t, staff.CanSubscribe("patient:p2"))
}

func TestHubBroadcastToSubscribers(t *testing.T) {
	hub := newTestHub()
	a := NewClient(Subscriber{UserID: "p1", Role: "patient"})
	b := NewClient(Subscriber{UserID: "s1", Role: "staff"})
	hub.Register(a)
	hub.Register(b)

	assert.Empty(t, hub.Subscribe(a, []string{"hospital:h1"}))
	assert.Equal(t, []string{"patient:p2"}, hub.Subscribe(a, []string{"patient:p2"}))
	hub.Subscribe(b, []string{"hospital:h1", "patient:p2"})

	assert.Equal(t, 2, hub.ClientCount())
	assert.Equal(t, 2, hub.TopicCount("hospital:h1"))
	assert.Equal(t, 1, hub.TopicCount("patient:p2"))

	events, err := NewEvent(EventQueueUpdated, "queue", "q1", map[string]string{"status": "active"}, "hospital:h1")
	require.NoError(t, err)
	require.NoError(t, hub.Publish(context.Background(), events[0]))

	ea, eb := receive(t, a), receive(t, b)
	assert.Equal(t, EventQueueUpdated, ea.Type)
	assert.Equal(t, "q1", eb.ResourceID)
	assert.JSONEq(t, `{"status":"active"}`, string(ea.Data))
}

func TestHubUnregister(t *testing.T) {
	hub := newTestHub()
	c := NewClient(Subscriber{UserID: "s1", Role: "staff"})
	hub.Register(c)
	hub.Subscribe(c, []string{"doctor:d1"})

	hub.Unregister(c)
	hub.Unregister(c)

	assert.Zero(t, hub.ClientCount())
	assert.Zero(t, hub.TopicCount("doctor:d1"))
	_, open := <-c.Send
	assert.False(t, open)

	hub.Broadcast(Event{Topic: "doctor:d1"})
}

func TestHubSkipsFullClients(t *testing.T) {
	hub := newTestHub()
	c := NewClient(Subscriber{Role: "staff"})
	hub.Register(c)
	hub.Subscribe(c, []string{"doctor:d1"})

	for i := 0; i < sendBuffer+10; i++ {
		hub.Broadcast(Event{Topic: "doctor:d1"})
	}
	assert.Len(t, c.Send, sendBuffer)
}

func TestNewEventPerTopic(t *testing.T) {
	events, err := NewEvent(EventAppointmentBooked, "appointment", "a1", nil, "hospital:h", "doctor:d", "patient:p")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "doctor:d", events[1].Topic)
	assert.Equal(t, events[0].Timestamp, events[2].Timestamp)
}

func TestServeWS(t *testing.T) {
	hub := newTestHub()
	SetAllowedOrigins(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.ServeWS(w, r, Subscriber{UserID: "p1", Role: "patient"})
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{"patient:p1", "patient:p9"}}))

	var denied map[string]interface{}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&denied))
	assert.Equal(t, "error", denied["type"])

	require.Eventually(t, func() bool { return hub.TopicCount("patient:p1") == 1 }, time.Second, 10*time.Millisecond)
	hub.Broadcast(Event{Type: EventQueueUpdated, Topic: "patient:p1", ResourceID: "q1"})

	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "q1", got.ResourceID)
}

func TestRedisBusDispatch(t *testing.T) {
	hub := newTestHub()
	c := NewClient(Subscriber{Role: "staff"})
	hub.Register(c)
	hub.Subscribe(c, []string{"doctor:d1"})

	bus := NewRedisBus(nil, hub, zerolog.Nop())
	bus.dispatch("not json")
	assert.Empty(t, c.Send)

	raw, err := json.Marshal(Event{Type: EventQueueUpdated, Topic: "doctor:d1", ResourceID: "q7"})
	require.NoError(t, err)
	bus.dispatch(string(raw))
	assert.Equal(t, "q7", receive(t, c).ResourceID)
}
