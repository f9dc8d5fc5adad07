package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestInit(t *testing.T) {
	shutdown, err := Init("test-service", "v0.0.1")
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if shutdown == nil {
		t.Fatal("Shutdown function should not be nil")
	}

	// Ensure shutdown works
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestInitWithConfig_UnknownExporter(t *testing.T) {
	_, err := InitWithConfig("test-service", "v0.0.1", Config{Exporter: "bogus"})
	if err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestInitWithConfig_OTLPRequiresEndpoint(t *testing.T) {
	_, err := InitWithConfig("test-service", "v0.0.1", Config{Exporter: "otlp"})
	if err == nil {
		t.Fatal("expected error for otlp without endpoint")
	}
}

func TestConfigureSlog_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "debug", "json")

	logger.Debug("hello", "key", "value")

	out := buf.String()
	if !strings.Contains(out, `"msg":"hello"`) {
		t.Errorf("expected JSON output, got %q", out)
	}
	if !strings.Contains(out, `"key":"value"`) {
		t.Errorf("expected attribute in output, got %q", out)
	}
}

func TestConfigureSlog_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "warn", "text")

	logger.Info("should be filtered")
	if buf.Len() != 0 {
		t.Errorf("info record should be filtered at warn level: %q", buf.String())
	}

	logger.Warn("should appear")
	if buf.Len() == 0 {
		t.Error("warn record should pass the filter")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"  DEBUG  ", slog.LevelDebug},
	}

	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
