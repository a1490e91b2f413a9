package bridge

import "testing"

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"event", topics.Event("bf1234abcd"), "tuyatrace/event/bf1234abcd"},
		{"system status", topics.SystemStatus(), "tuyatrace/system/status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %s, want %s", tt.got, tt.want)
			}
		})
	}
}

func TestRawOrString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"switch_1":true}`, `{"switch_1":true}`},
		{`true`, `true`},
		{`42`, `42`},
		{`plain text`, `"plain text"`},
		{``, `""`},
	}
	for _, tt := range tests {
		if got := string(rawOrString(tt.in)); got != tt.want {
			t.Errorf("rawOrString(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
