package pulsar

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/calden87/tuyatrace/internal/infrastructure/config"
	"github.com/calden87/tuyatrace/internal/infrastructure/logging"
)

// frame is the broker's delivery wrapper around one event payload.
type frame struct {
	MessageID string `json:"messageId"`
	Payload   string `json:"payload"` // base64
}

// Subscriber maintains the event stream connection.
//
// After Start the subscriber dials, consumes, and reconnects on its own;
// callers pull decoded events with NextEvent. Close (or cancelling the
// Start context) ends the stream permanently.
//
// Thread Safety:
//   - NextEvent, State, and Close are safe for concurrent use.
//   - Start must be called at most once.
type Subscriber struct {
	url     string
	header  http.Header
	dialer  *websocket.Dialer
	decoder Decoder
	log     *logging.Logger

	reconnectInitial time.Duration
	reconnectMax     time.Duration

	events  chan Event
	state   atomic.Int32
	started atomic.Bool

	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a Subscriber for the configured credential and region.
//
// decoder may be nil, in which case cleartext payloads are assumed.
func New(tcfg config.TuyaConfig, pcfg config.PulsarConfig, decoder Decoder, log *logging.Logger) (*Subscriber, error) {
	base, err := tcfg.PulsarURL()
	if err != nil {
		return nil, err
	}
	if decoder == nil {
		decoder = PlainDecoder{}
	}

	header := http.Header{}
	header.Set("Authorization", basicAuth(tcfg.AccessID, wsPassword(tcfg.AccessID, tcfg.AccessSecret)))

	buffer := pcfg.Buffer
	if buffer <= 0 {
		buffer = 64
	}

	return &Subscriber{
		url: fmt.Sprintf("%sws/v2/consumer/persistent/%s/out/event/event-sub?ackTimeoutMillis=%d",
			base, tcfg.AccessID, pcfg.AckTimeout.Milliseconds()),
		header:           header,
		dialer:           websocket.DefaultDialer,
		decoder:          decoder,
		log:              log.With("component", "pulsar"),
		reconnectInitial: pcfg.Reconnect.InitialDelay,
		reconnectMax:     pcfg.Reconnect.MaxDelay,
		events:           make(chan Event, buffer),
		done:             make(chan struct{}),
	}, nil
}

// wsPassword derives the broker password from the access credential:
// the middle hex of md5(accessID + middle hex of md5(accessSecret)).
func wsPassword(accessID, accessSecret string) string {
	secretSum := md5.Sum([]byte(accessSecret))
	secretHash := hex.EncodeToString(secretSum[:])[8:24]
	sum := md5.Sum([]byte(accessID + secretHash))
	return hex.EncodeToString(sum[:])[8:24]
}

// basicAuth builds an HTTP Basic Authorization header value.
func basicAuth(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

// Start launches the connection loop. The stream ends when ctx is
// cancelled or Close is called.
func (s *Subscriber) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
}

// Close ends the stream. Blocks until the connection loop has exited.
// Safe to call more than once.
func (s *Subscriber) Close() {
	if !s.started.Load() {
		return
	}
	s.closeOnce.Do(func() { s.cancel() })
	<-s.done
}

// State returns the current connection state.
func (s *Subscriber) State() State {
	return State(s.state.Load())
}

func (s *Subscriber) setState(st State) {
	s.state.Store(int32(st))
}

// NextEvent blocks until a decoded event arrives, ctx is cancelled, or
// the stream ends. A graceful end (Close or Start-context cancellation)
// returns ErrStreamClosed; reconnection is internal and invisible here.
func (s *Subscriber) NextEvent(ctx context.Context) (Event, error) {
	if !s.started.Load() {
		return Event{}, ErrNotStarted
	}
	select {
	case ev, ok := <-s.events:
		if !ok {
			return Event{}, ErrStreamClosed
		}
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// run is the iterative connect/consume/backoff loop.
func (s *Subscriber) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)
	defer s.setState(StateClosed)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.reconnectInitial
	bo.MaxInterval = s.reconnectMax
	bo.MaxElapsedTime = 0 // reconnect forever

	for {
		if ctx.Err() != nil {
			return
		}

		s.setState(StateConnecting)
		conn, resp, err := s.dialer.DialContext(ctx, s.url, s.header)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				s.log.Error("broker rejected credentials; check that the message service is enabled for this project")
			} else {
				s.log.Warn("connect failed", "error", err)
			}
			if !s.waitBackoff(ctx, bo.NextBackOff()) {
				return
			}
			continue
		}

		s.setState(StateSubscribed)
		s.log.Info("event stream connected")
		bo.Reset()

		err = s.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}

		s.log.Warn("event stream dropped, reconnecting", "error", err)
		if !s.waitBackoff(ctx, bo.NextBackOff()) {
			return
		}
	}
}

// waitBackoff sleeps for d in Backoff state. Returns false when ctx was
// cancelled before the delay elapsed.
func (s *Subscriber) waitBackoff(ctx context.Context, d time.Duration) bool {
	s.setState(StateBackoff)
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// consume reads frames from one connection until it fails or ctx is
// cancelled. Decode failures drop the frame and keep the connection.
func (s *Subscriber) consume(ctx context.Context, conn *websocket.Conn) error {
	// ReadMessage does not take a context; close the connection to
	// unblock it on cancellation.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.setState(StateStreaming)

		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			// No delivery identifier to acknowledge.
			s.log.Warn("undecodable frame dropped", "error", err)
			continue
		}
		if f.Payload == "" {
			s.ack(conn, f.MessageID)
			continue
		}

		payload, err := base64.StdEncoding.DecodeString(f.Payload)
		var ev *Event
		if err == nil {
			ev, err = s.decoder.Decode(payload)
		}
		if err != nil {
			// Acknowledge so the broker does not redeliver a payload we
			// can never decode.
			s.log.Warn("frame decode failed, dropping", "message_id", f.MessageID, "error", err)
			s.ack(conn, f.MessageID)
			continue
		}

		select {
		case s.events <- *ev:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.ack(conn, f.MessageID)
	}
}

// ack acknowledges one delivery. Failure is logged, not fatal: the broker
// redelivers and the store's deduplication absorbs it.
func (s *Subscriber) ack(conn *websocket.Conn, messageID string) {
	if messageID == "" {
		return
	}
	if err := conn.WriteJSON(map[string]string{"messageId": messageID}); err != nil {
		s.log.Warn("ack failed", "message_id", messageID, "error", err)
	}
}
