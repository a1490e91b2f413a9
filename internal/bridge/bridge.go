package bridge

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/calden87/tuyatrace/internal/infrastructure/config"
	"github.com/calden87/tuyatrace/internal/infrastructure/logging"
	"github.com/calden87/tuyatrace/internal/store"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2
)

// Client is the publish-only MQTT client behind the event bridge.
//
// Reconnection is delegated to the paho library; a failed publish while
// disconnected returns ErrNotConnected and the caller (the watcher's
// fan-out) drops the message.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	cfg    config.BridgeConfig
	log    *logging.Logger

	connected bool
	connMu    sync.RWMutex
}

// Connect establishes the broker connection and announces online status.
//
// Returns an error if the QoS setting is invalid or the initial
// connection does not complete within the timeout.
func Connect(cfg config.BridgeConfig, log *logging.Logger) (*Client, error) {
	if cfg.QoS < 0 || cfg.QoS > maxQoS {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQoS, cfg.QoS)
	}

	c := &Client{
		cfg: cfg,
		log: log.With("component", "bridge"),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.ClientID)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect callback runs asynchronously and may not have fired
	// yet; mark connected here so IsConnected is immediately accurate.
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return c, nil
}

// buildClientOptions creates paho options from the bridge config.
func buildClientOptions(cfg config.BridgeConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}

// configureLWT sets the Last Will so observers can tell a crash from a
// graceful shutdown.
func configureLWT(opts *pahomqtt.ClientOptions, clientID string) {
	payload := fmt.Sprintf(
		`{"status":"offline","client_id":"%s","reason":"unexpected_disconnect","timestamp":"%s"}`,
		clientID, time.Now().UTC().Format(time.RFC3339))
	opts.SetWill(Topics{}.SystemStatus(), payload, 1, true)
}

func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	payload := fmt.Sprintf(
		`{"status":"online","client_id":"%s","timestamp":"%s"}`,
		c.cfg.ClientID, time.Now().UTC().Format(time.RFC3339))
	c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, payload)
	c.log.Info("bridge connected", "host", c.cfg.Host, "port", c.cfg.Port)
}

func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()
	c.log.Warn("bridge connection lost", "error", err)
}

// Publish sends one stored record to its device's event topic. It
// satisfies the watcher's sink contract.
func (c *Client) Publish(ctx context.Context, rec store.Record) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(map[string]any{
		"device_id":  rec.DeviceID,
		"event_id":   rec.EventID,
		"event_time": rec.EventTime,
		"code":       rec.Code,
		"value":      json.RawMessage(rawOrString(rec.Value)),
		"status":     rec.Status,
	})
	if err != nil {
		return fmt.Errorf("%w: encoding payload: %w", ErrPublishFailed, err)
	}

	token := c.client.Publish(Topics{}.Event(rec.DeviceID), byte(c.cfg.QoS), false, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// rawOrString returns v as raw JSON when it already is valid JSON, or as
// a JSON string otherwise. Record values arrive in both shapes.
func rawOrString(v string) []byte {
	if json.Valid([]byte(v)) && v != "" {
		return []byte(v)
	}
	quoted, _ := json.Marshal(v)
	return quoted
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// HealthCheck verifies the broker connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("bridge health check: %w", ctx.Err())
	default:
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close publishes a graceful offline status and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		payload := fmt.Sprintf(
			`{"status":"offline","client_id":"%s","reason":"graceful_shutdown","timestamp":"%s"}`,
			c.cfg.ClientID, time.Now().UTC().Format(time.RFC3339))
		token := c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, payload)
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()
	return nil
}
