package tuya

import (
	"testing"
	"time"
)

func TestSignerSignature(t *testing.T) {
	s := NewSigner("test_access_id", "test_access_secret")

	tests := []struct {
		name        string
		method      string
		path        string
		body        string
		accessToken string
		t           string
		nonce       string
		want        string
	}{
		{
			name:   "token grant without access token",
			method: "GET",
			path:   "/v1.0/token?grant_type=1",
			t:      "1700000000000",
			nonce:  "abcdef0123456789abcdef0123456789",
			want:   "63803998E5C3699B40419435D80B457254662CEA0BDA0B07360186EAABDF8AB2",
		},
		{
			name:        "authenticated get with sorted query",
			method:      "GET",
			path:        "/v1.0/iot-03/devices/dev123/logs?end_time=2000&size=50&start_time=1000&type=7",
			accessToken: "tok_abc123",
			t:           "1700000000500",
			nonce:       "00000000000000000000000000000000",
			want:        "B7FCCB151308EF644452CB1461E78B3DACD485306EA84CC680CDE4723EAFDDE0",
		},
		{
			name:        "post with json body",
			method:      "POST",
			path:        "/v1.0/iot-03/devices/dev123/commands",
			body:        `{"commands":[{"code":"switch_1","value":true}]}`,
			accessToken: "tok_abc123",
			t:           "1700000001000",
			nonce:       "ffffffffffffffffffffffffffffffff",
			want:        "6C66045B653B7D728C265B2938CED5F976D7413032A1537E7D9383A4B0AA95EE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.signature(tt.method, tt.path, tt.body, tt.accessToken, tt.t, tt.nonce)
			if got != tt.want {
				t.Errorf("signature() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSignerSignLowercaseMethod(t *testing.T) {
	s := NewSigner("test_access_id", "test_access_secret")

	// Method is upper-cased before signing, so the case the caller uses
	// must not change the signature.
	upper := s.signature("GET", "/v1.0/token?grant_type=1", "", "", "1700000000000", "n")
	lower := s.signature("get", "/v1.0/token?grant_type=1", "", "", "1700000000000", "n")
	if upper != lower {
		t.Errorf("signature differs by method case: %s vs %s", upper, lower)
	}
}

func TestSignerSignHeaders(t *testing.T) {
	s := NewSigner("test_access_id", "test_access_secret")
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }
	s.nonce = func() string { return "abcdef0123456789abcdef0123456789" }

	t.Run("without access token", func(t *testing.T) {
		h := s.Sign("GET", "/v1.0/token?grant_type=1", "", "")

		if got := h.Get("client_id"); got != "test_access_id" {
			t.Errorf("client_id = %s", got)
		}
		if got := h.Get("t"); got != "1700000000000" {
			t.Errorf("t = %s", got)
		}
		if got := h.Get("sign_method"); got != "HMAC-SHA256" {
			t.Errorf("sign_method = %s", got)
		}
		if got := h.Get("nonce"); got != "abcdef0123456789abcdef0123456789" {
			t.Errorf("nonce = %s", got)
		}
		if got := h.Get("sign"); got != "63803998E5C3699B40419435D80B457254662CEA0BDA0B07360186EAABDF8AB2" {
			t.Errorf("sign = %s", got)
		}
		if _, ok := h["Access_token"]; ok {
			t.Error("access_token header set without a token")
		}
	})

	t.Run("with access token", func(t *testing.T) {
		h := s.Sign("GET", "/v1.0/devices", "", "tok_abc123")
		if got := h.Get("access_token"); got != "tok_abc123" {
			t.Errorf("access_token = %s", got)
		}
	})
}

func TestSha256HexEmpty(t *testing.T) {
	// Empty body hash is a fixed constant in the canonical string.
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := sha256Hex(""); got != want {
		t.Errorf("sha256Hex(\"\") = %s, want %s", got, want)
	}
}

func TestNewNonce(t *testing.T) {
	n := newNonce()
	if len(n) != 32 {
		t.Errorf("nonce length = %d, want 32", len(n))
	}
	if n == newNonce() {
		t.Error("consecutive nonces must differ")
	}
}
