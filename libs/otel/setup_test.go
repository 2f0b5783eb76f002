package otelx

import (
	"context"
	"testing"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.25")

	cfg := ConfigFromEnv("booking-service")
	if cfg.Enabled {
		t.Fatal("expected tracing disabled")
	}
	if cfg.SampleRatio != 0.25 {
		t.Fatalf("expected ratio 0.25, got %v", cfg.SampleRatio)
	}
	if cfg.ServiceName != "booking-service" {
		t.Fatalf("unexpected service name %q", cfg.ServiceName)
	}
}

func TestSetup_DisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestTraceContextRoundTrip(t *testing.T) {
	_, _ = Setup(context.Background(), Config{Enabled: false})
	if !CaptureTraceContext(context.Background()).IsZero() {
		t.Fatal("expected empty trace context without a span")
	}
	in := TraceContext{Parent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"}
	out := CaptureTraceContext(in.Into(context.Background()))
	if out.Parent != in.Parent {
		t.Fatalf("unexpected traceparent %q", out.Parent)
	}
}
