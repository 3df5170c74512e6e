package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openwot/webthing-core/internal/thing"
)

// dialTestWS upgrades a connection against the test server and cleans it
// up at the end of the test.
func dialTestWS(t *testing.T, handler *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(handler.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialling %s: %v", url, err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readWSMessage reads one message with a deadline so a missing delivery
// fails the test instead of hanging it.
func readWSMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("setting read deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading message: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decoding message %q: %v", data, err)
	}
	return msg
}

func waitForSubscribers(t *testing.T, th *thing.Thing, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for th.SubscriberCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber count never reached %d", want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketReceivesPropertyStatus(t *testing.T) {
	srv, router := newTestServer(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	conn := dialTestWS(t, ts)
	waitForSubscribers(t, srv.thing, 1)

	if err := srv.thing.SetProperty("brightness", 90); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}

	msg := readWSMessage(t, conn)
	if msg["messageType"] != "propertyStatus" {
		t.Fatalf("messageType = %v, want propertyStatus", msg["messageType"])
	}
	data, _ := msg["data"].(map[string]any)
	if data["brightness"] != float64(90) {
		t.Errorf("brightness = %v, want 90", data["brightness"])
	}
}

func TestWebSocketSetProperty(t *testing.T) {
	srv, router := newTestServer(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	conn := dialTestWS(t, ts)
	waitForSubscribers(t, srv.thing, 1)

	err := conn.WriteJSON(map[string]any{
		"messageType": "setProperty",
		"data":        map[string]any{"brightness": 15},
	})
	if err != nil {
		t.Fatalf("writing message: %v", err)
	}

	// The accepted write comes back as a propertyStatus notification.
	msg := readWSMessage(t, conn)
	if msg["messageType"] != "propertyStatus" {
		t.Fatalf("messageType = %v, want propertyStatus", msg["messageType"])
	}
	if v, _ := srv.thing.GetProperty("brightness"); v != float64(15) {
		t.Errorf("brightness = %v, want 15", v)
	}
}

func TestWebSocketSetPropertyRejection(t *testing.T) {
	srv, router := newTestServer(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	conn := dialTestWS(t, ts)
	waitForSubscribers(t, srv.thing, 1)

	err := conn.WriteJSON(map[string]any{
		"messageType": "setProperty",
		"data":        map[string]any{"nope": 1},
	})
	if err != nil {
		t.Fatalf("writing message: %v", err)
	}

	msg := readWSMessage(t, conn)
	if msg["messageType"] != "error" {
		t.Fatalf("messageType = %v, want error", msg["messageType"])
	}
}

func TestWebSocketRequestAction(t *testing.T) {
	srv, router := newTestServer(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	conn := dialTestWS(t, ts)
	waitForSubscribers(t, srv.thing, 1)

	err := conn.WriteJSON(map[string]any{
		"messageType": "requestAction",
		"data":        map[string]any{"fade": map[string]any{"input": map[string]any{"brightness": 5}}},
	})
	if err != nil {
		t.Fatalf("writing message: %v", err)
	}

	// Creation is announced as actionStatus before the runner advances it.
	msg := readWSMessage(t, conn)
	if msg["messageType"] != "actionStatus" {
		t.Fatalf("messageType = %v, want actionStatus", msg["messageType"])
	}
}

func TestWebSocketEventSubscription(t *testing.T) {
	srv, router := newTestServer(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	subscribed := dialTestWS(t, ts)
	unsubscribed := dialTestWS(t, ts)
	waitForSubscribers(t, srv.thing, 2)

	err := subscribed.WriteJSON(map[string]any{
		"messageType": "addEventSubscription",
		"data":        map[string]any{"overheated": map[string]any{}},
	})
	if err != nil {
		t.Fatalf("writing message: %v", err)
	}

	// The subscription is applied by the read pump; give it a moment
	// before emitting.
	time.Sleep(50 * time.Millisecond)
	srv.thing.AddEvent(thing.NewBaseEvent(srv.thing, "overheated", 104))

	msg := readWSMessage(t, subscribed)
	if msg["messageType"] != "event" {
		t.Fatalf("messageType = %v, want event", msg["messageType"])
	}
	data, _ := msg["data"].(map[string]any)
	if _, ok := data["overheated"]; !ok {
		t.Errorf("event data missing overheated key: %v", data)
	}

	// The other client is a global subscriber only; it must not receive
	// the event message.
	if err := unsubscribed.SetReadDeadline(time.Now().Add(200 * time.Millisecond)); err != nil {
		t.Fatalf("setting read deadline: %v", err)
	}
	if _, _, err := unsubscribed.ReadMessage(); err == nil {
		t.Error("unsubscribed client received an event message")
	}
}

func TestWebSocketDisconnectRemovesSubscriber(t *testing.T) {
	srv, router := newTestServer(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	conn := dialTestWS(t, ts)
	waitForSubscribers(t, srv.thing, 1)

	conn.Close()
	waitForSubscribers(t, srv.thing, 0)
}
