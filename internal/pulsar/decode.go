package pulsar

import (
	"crypto/aes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Event is one decoded real-time event from the message bus.
type Event struct {
	// Type is the vendor's business code, e.g. "dp_report", "online",
	// "offline".
	Type string

	DeviceID  string
	ProductID string

	// Data is the event body. Non-object bodies are wrapped under the
	// "value" key so consumers always see a map.
	Data map[string]any

	// Timestamp is the event occurrence time in Unix milliseconds.
	Timestamp int64

	// Raw is the full decoded payload for downstream archival.
	Raw json.RawMessage
}

// Decoder turns a raw frame payload into an Event.
//
// The vendor's wire encoding is versioned; the decode step is pluggable
// so a scheme change swaps the decoder, not the subscriber.
type Decoder interface {
	Decode(payload []byte) (*Event, error)
}

// PlainDecoder handles payloads whose body is cleartext JSON.
type PlainDecoder struct{}

// Decode parses a cleartext business payload.
func (PlainDecoder) Decode(payload []byte) (*Event, error) {
	return parseBusiness(payload)
}

// AESDecoder handles payloads whose "data" field is AES-128-ECB encrypted
// with a key derived from the access secret.
type AESDecoder struct {
	key []byte
}

// NewAESDecoder derives the decryption key from the access secret
// (its middle 16 bytes, per the vendor's scheme).
func NewAESDecoder(accessSecret string) (*AESDecoder, error) {
	if len(accessSecret) < 24 {
		return nil, fmt.Errorf("access secret too short for key derivation: %d chars", len(accessSecret))
	}
	return &AESDecoder{key: []byte(accessSecret[8:24])}, nil
}

// Decode decrypts the payload's data field and parses the business body.
func (d *AESDecoder) Decode(payload []byte) (*Event, error) {
	var wrapper struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(payload, &wrapper); err != nil {
		return nil, fmt.Errorf("parsing encrypted envelope: %w", err)
	}
	if wrapper.Data == "" {
		return nil, fmt.Errorf("encrypted envelope has no data field")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(wrapper.Data)
	if err != nil {
		return nil, fmt.Errorf("decoding data field: %w", err)
	}

	plaintext, err := decryptECB(d.key, ciphertext)
	if err != nil {
		return nil, err
	}
	return parseBusiness(plaintext)
}

// decryptECB decrypts AES-128-ECB with PKCS#7 padding.
func decryptECB(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("ciphertext length %d not a multiple of block size", len(ciphertext))
	}

	plaintext := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += block.BlockSize() {
		block.Decrypt(plaintext[i:], ciphertext[i:])
	}

	pad := int(plaintext[len(plaintext)-1])
	if pad <= 0 || pad > block.BlockSize() || pad > len(plaintext) {
		return nil, fmt.Errorf("invalid padding byte %d", pad)
	}
	return plaintext[:len(plaintext)-pad], nil
}

// business is the vendor's event body.
type business struct {
	BizCode    string          `json:"bizCode"`
	DevID      string          `json:"devId"`
	ProductKey string          `json:"productKey"`
	TS         int64           `json:"ts"`
	Data       json.RawMessage `json:"data"`
}

// parseBusiness maps a decoded payload body to an Event.
func parseBusiness(payload []byte) (*Event, error) {
	var b business
	if err := json.Unmarshal(payload, &b); err != nil {
		return nil, fmt.Errorf("parsing event payload: %w", err)
	}

	data := map[string]any{}
	if len(b.Data) > 0 {
		if err := json.Unmarshal(b.Data, &data); err != nil {
			// Scalar or array body: keep it under a fixed key.
			var v any
			if err := json.Unmarshal(b.Data, &v); err != nil {
				return nil, fmt.Errorf("parsing event data: %w", err)
			}
			data = map[string]any{"value": v}
		}
	}

	ts := b.TS
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	eventType := b.BizCode
	if eventType == "" {
		eventType = "unknown"
	}

	return &Event{
		Type:      eventType,
		DeviceID:  b.DevID,
		ProductID: b.ProductKey,
		Data:      data,
		Timestamp: ts,
		Raw:       append(json.RawMessage(nil), payload...),
	}, nil
}
