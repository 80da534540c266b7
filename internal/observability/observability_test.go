package observability

import (
	"context"
	"errors"
	"testing"
)

func TestTracerRecordsSpans(t *testing.T) {
	tr := NewTracer(TracerConfig{Enabled: true, MaxSpans: 4})

	span := tr.StartSpan(context.Background(), "test.op", nil)
	tr.EndSpan(span, nil)

	if got := tr.SpanCount(); got != 1 {
		t.Fatalf("SpanCount() = %d, want 1", got)
	}
	spans := tr.Spans(0)
	if spans[0].Operation != "test.op" {
		t.Errorf("Operation = %q, want %q", spans[0].Operation, "test.op")
	}
	if spans[0].Status != SpanOK {
		t.Errorf("Status = %v, want SpanOK", spans[0].Status)
	}
}

func TestTracerRecordsErrorStatus(t *testing.T) {
	tr := NewTracer(TracerConfig{Enabled: true, MaxSpans: 4})

	span := tr.StartSpan(context.Background(), "test.op", nil)
	tr.EndSpan(span, errors.New("boom"))

	spans := tr.Spans(1)
	if spans[0].Status != SpanError {
		t.Errorf("Status = %v, want SpanError", spans[0].Status)
	}
	if spans[0].Attrs["error"] != "boom" {
		t.Errorf("Attrs[error] = %q, want %q", spans[0].Attrs["error"], "boom")
	}
}

func TestTracerRingBufferEvictsOldest(t *testing.T) {
	tr := NewTracer(TracerConfig{Enabled: true, MaxSpans: 2})

	for i := 0; i < 3; i++ {
		span := tr.StartSpan(context.Background(), "op", nil)
		tr.EndSpan(span, nil)
	}

	if got := tr.SpanCount(); got != 2 {
		t.Errorf("SpanCount() = %d, want 2 (bounded by MaxSpans)", got)
	}
}

func TestDisabledTracerRecordsNothing(t *testing.T) {
	tr := NewTracer(TracerConfig{Enabled: false, MaxSpans: 4})

	span := tr.StartSpan(context.Background(), "op", nil)
	tr.EndSpan(span, nil)

	if got := tr.SpanCount(); got != 0 {
		t.Errorf("SpanCount() = %d, want 0 for a disabled tracer", got)
	}
}

func TestDefaultTracerIsEnabledByDefault(t *testing.T) {
	DefaultTracer.Reset()
	span := DefaultTracer.StartSpan(context.Background(), "default.op", nil)
	DefaultTracer.EndSpan(span, nil)

	if got := DefaultTracer.SpanCount(); got != 1 {
		t.Errorf("DefaultTracer.SpanCount() = %d, want 1", got)
	}
}
