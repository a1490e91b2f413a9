package logging

import (
	"log/slog"
	"testing"

	"github.com/calden87/tuyatrace/internal/infrastructure/config"
)

// TestParseLevel verifies level string parsing.
func TestParseLevel(t *testing.T) {
	cases := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			if got := parseLevel(tc.input); got != tc.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

// TestNew verifies logger construction with various configs.
func TestNew(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		log := New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "test")
		if log == nil || log.Logger == nil {
			t.Fatal("New() returned nil logger")
		}
	})

	t.Run("text format", func(t *testing.T) {
		log := New(config.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"}, "test")
		if log == nil || log.Logger == nil {
			t.Fatal("New() returned nil logger")
		}
	})
}

// TestWith verifies attribute chaining returns a distinct logger.
func TestWith(t *testing.T) {
	base := Default()
	child := base.With("component", "collector")

	if child == base {
		t.Error("With() should return a new logger")
	}
	if child.Logger == nil {
		t.Error("With() returned logger with nil slog.Logger")
	}
}

// TestDefault verifies the pre-config logger is usable.
func TestDefault(t *testing.T) {
	log := Default()
	if log == nil {
		t.Fatal("Default() returned nil")
	}
	// Should not panic
	log.Info("test message", "key", "value")
}
