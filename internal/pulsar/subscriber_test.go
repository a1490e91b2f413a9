package pulsar

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/calden87/tuyatrace/internal/infrastructure/logging"
)

var upgrader = websocket.Upgrader{}

// newTestSubscriber builds a Subscriber pointed at a local test server
// with fast reconnect delays.
func newTestSubscriber(srvURL string) *Subscriber {
	return &Subscriber{
		url:              "ws" + strings.TrimPrefix(srvURL, "http"),
		header:           http.Header{},
		dialer:           websocket.DefaultDialer,
		decoder:          PlainDecoder{},
		log:              logging.Default(),
		reconnectInitial: 10 * time.Millisecond,
		reconnectMax:     50 * time.Millisecond,
		events:           make(chan Event, 128),
		done:             make(chan struct{}),
	}
}

// businessFrame wraps a business payload for device id and timestamp in a
// delivery frame, base64-encoded as on the wire.
func businessFrame(messageID, deviceID string, ts int64) []byte {
	payload := fmt.Sprintf(`{"bizCode":"dp_report","devId":%q,"productKey":"prod1","ts":%d,"data":{"n":1}}`, deviceID, ts)
	data, _ := json.Marshal(frame{
		MessageID: messageID,
		Payload:   base64.StdEncoding.EncodeToString([]byte(payload)),
	})
	return data
}

func TestSubscriberStreamsAndAcks(t *testing.T) {
	acks := make(chan string, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for i := 1; i <= 3; i++ {
			msg := businessFrame(fmt.Sprintf("m%d", i), "dev123", int64(1700000000000+i))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
			var ack map[string]string
			if err := conn.ReadJSON(&ack); err != nil {
				return
			}
			acks <- ack["messageId"]
		}
		// Hold the connection open until the client goes away.
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	s := newTestSubscriber(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Start(ctx)
	defer s.Close()

	for i := 1; i <= 3; i++ {
		ev, err := s.NextEvent(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if ev.DeviceID != "dev123" {
			t.Errorf("event %d DeviceID = %s", i, ev.DeviceID)
		}
		if ev.Timestamp != int64(1700000000000+i) {
			t.Errorf("event %d Timestamp = %d", i, ev.Timestamp)
		}
	}

	for i := 1; i <= 3; i++ {
		select {
		case id := <-acks:
			if want := fmt.Sprintf("m%d", i); id != want {
				t.Errorf("ack %d = %s, want %s", i, id, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("ack %d not received", i)
		}
	}

	if st := s.State(); st != StateStreaming {
		t.Errorf("state = %s, want streaming", st)
	}
}

func TestSubscriberMalformedFramesAreDropped(t *testing.T) {
	const total = 100
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for i := 1; i <= total; i++ {
			var msg []byte
			if i == 37 || i == 81 {
				// Valid frame, undecodable payload.
				msg, _ = json.Marshal(frame{
					MessageID: fmt.Sprintf("m%d", i),
					Payload:   base64.StdEncoding.EncodeToString([]byte("not json at all")),
				})
			} else {
				msg = businessFrame(fmt.Sprintf("m%d", i), "dev123", int64(1700000000000+i))
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
			// Every frame is acknowledged, malformed ones included.
			var ack map[string]string
			if err := conn.ReadJSON(&ack); err != nil {
				return
			}
		}
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	s := newTestSubscriber(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Start(ctx)
	defer s.Close()

	var got int
	for got < total-2 {
		ev, err := s.NextEvent(ctx)
		if err != nil {
			t.Fatalf("after %d events: %v", got, err)
		}
		if ev.Timestamp == 1700000000037 || ev.Timestamp == 1700000000081 {
			t.Errorf("malformed frame %d delivered", ev.Timestamp)
		}
		got++
	}

	// No 99th event and a live connection.
	shortCtx, shortCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer shortCancel()
	if _, err := s.NextEvent(shortCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected no further events, got err = %v", err)
	}
	if st := s.State(); st != StateStreaming {
		t.Errorf("state = %s, want streaming", st)
	}
}

func TestSubscriberReconnects(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := conns.Add(1)
		if n == 1 {
			// One event, then an abrupt drop mid-stream.
			_ = conn.WriteMessage(websocket.TextMessage, businessFrame("m1", "dev123", 1700000000001))
			var ack map[string]string
			_ = conn.ReadJSON(&ack)
			conn.Close()
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, businessFrame("m2", "dev123", 1700000000002))
		var ack map[string]string
		_ = conn.ReadJSON(&ack)
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	s := newTestSubscriber(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Start(ctx)
	defer s.Close()

	ev1, err := s.NextEvent(ctx)
	if err != nil {
		t.Fatal(err)
	}
	ev2, err := s.NextEvent(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ev1.Timestamp != 1700000000001 || ev2.Timestamp != 1700000000002 {
		t.Errorf("events = %d, %d", ev1.Timestamp, ev2.Timestamp)
	}
	if n := conns.Load(); n != 2 {
		t.Errorf("connections = %d, want 2", n)
	}
}

func TestSubscriberClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	s := newTestSubscriber(srv.URL)
	s.Start(context.Background())

	// Let it connect, then close.
	time.Sleep(100 * time.Millisecond)
	s.Close()

	if _, err := s.NextEvent(context.Background()); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("err = %v, want ErrStreamClosed", err)
	}
	if st := s.State(); st != StateClosed {
		t.Errorf("state = %s, want closed", st)
	}

	// Close again is a no-op.
	s.Close()
}

func TestSubscriberCancelDuringBackoff(t *testing.T) {
	// Nothing listening: every dial fails and the loop sits in backoff.
	s := newTestSubscriber("http://127.0.0.1:1")
	s.reconnectInitial = time.Hour
	s.reconnectMax = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	time.Sleep(100 * time.Millisecond)
	if st := s.State(); st != StateBackoff {
		t.Fatalf("state = %s, want backoff", st)
	}

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return promptly during backoff")
	}
}

func TestSubscriberNotStarted(t *testing.T) {
	s := newTestSubscriber("http://127.0.0.1:1")
	if _, err := s.NextEvent(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("err = %v, want ErrNotStarted", err)
	}
}

func TestStateString(t *testing.T) {
	states := map[State]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateSubscribed:   "subscribed",
		StateStreaming:    "streaming",
		StateBackoff:      "backoff",
		StateClosed:       "closed",
		State(99):         "unknown",
	}
	for st, want := range states {
		if got := st.String(); got != want {
			t.Errorf("State(%d).String() = %s, want %s", st, got, want)
		}
	}
}
