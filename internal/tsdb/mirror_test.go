package tsdb

import "testing"

func TestNumericValue(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want float64
		ok   bool
	}{
		{"float", "21.5", 21.5, true},
		{"integer", "42", 42, true},
		{"true", "true", 1, true},
		{"false", "false", 0, true},
		{"quoted number", `"230"`, 230, true},
		{"string", `"on"`, 0, false},
		{"object", `{"v":1}`, 0, false},
		{"empty", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := numericValue(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Errorf("numericValue(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}
