package main

import (
	"log/slog"
	"testing"
)

func TestConfigPath(t *testing.T) {
	t.Setenv("ENRICHER_CONFIG", "/etc/enricher.yaml")
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--input", "a.csv", "--config", "x.yaml"}, "x.yaml"},
		{[]string{"-config=y.yaml"}, "y.yaml"},
		{[]string{"--config=z.yaml", "--workers", "2"}, "z.yaml"},
		{[]string{"--input", "a.csv"}, "/etc/enricher.yaml"},
	}
	for _, tt := range tests {
		if got := configPath(tt.args); got != tt.want {
			t.Fatalf("configPath(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestNewLoggerLevel(t *testing.T) {
	if l := newLogger("warn", false); l.Enabled(t.Context(), slog.LevelInfo) {
		t.Fatalf("warn logger must not log info")
	}
	if l := newLogger("bogus", true); !l.Enabled(t.Context(), slog.LevelDebug) {
		t.Fatalf("--debug must enable debug")
	}
}
