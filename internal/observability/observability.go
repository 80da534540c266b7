// Package observability provides lightweight span tracing and
// Prometheus metrics for the epidemic and CRAQ layers. In production
// this would wrap the OpenTelemetry SDK; here it stores spans
// in-memory for inspection and export, the same trade-off the teacher
// repo's tracer makes.
package observability

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SpanKind classifies a span.
type SpanKind int

const (
	SpanInternal SpanKind = iota
	SpanServer
	SpanClient
)

// Span represents a unit of work within a distributed trace.
type Span struct {
	TraceID   string
	SpanID    string
	ParentID  string
	Operation string
	Kind      SpanKind
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Status    SpanStatus
	Attrs     map[string]string
}

// SpanStatus indicates success/failure.
type SpanStatus int

const (
	SpanOK SpanStatus = iota
	SpanError
)

// Tracer is a ring-buffered span recorder.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
	enabled  bool
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	Enabled  bool
	MaxSpans int
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{Enabled: true, MaxSpans: 10_000}
}

// NewTracer creates a new tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	return &Tracer{
		spans:    make([]Span, 0, cfg.MaxSpans),
		maxSpans: cfg.MaxSpans,
		enabled:  cfg.Enabled,
	}
}

// DefaultTracer is the process-wide span recorder the epidemic reactor
// and the CRAQ service record their request-handling spans to.
var DefaultTracer = NewTracer(DefaultTracerConfig())

// StartSpan begins a new span with the given operation name, e.g.
// "epidemic.probe" or "craq.write".
func (t *Tracer) StartSpan(ctx context.Context, operation string, attrs map[string]string) *Span {
	if !t.enabled {
		return &Span{Operation: operation}
	}
	return &Span{
		TraceID:   traceIDFromContext(ctx),
		SpanID:    generateID(),
		ParentID:  spanIDFromContext(ctx),
		Operation: operation,
		Kind:      SpanInternal,
		StartTime: time.Now(),
		Status:    SpanOK,
		Attrs:     attrs,
	}
}

// EndSpan completes a span and records it.
func (t *Tracer) EndSpan(span *Span, err error) {
	if !t.enabled || span == nil {
		return
	}
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	if err != nil {
		span.Status = SpanError
		if span.Attrs == nil {
			span.Attrs = make(map[string]string)
		}
		span.Attrs["error"] = err.Error()
		TraceErrors.Inc()
	}
	TracesRecorded.Inc()

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, *span)
}

// Spans returns a copy of the most recent limit spans (0 = all).
func (t *Tracer) Spans(limit int) []Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}
	start := len(t.spans) - limit
	out := make([]Span, limit)
	copy(out, t.spans[start:])
	return out
}

// SpanCount returns the number of recorded spans.
func (t *Tracer) SpanCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// Reset clears all recorded spans.
func (t *Tracer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = t.spans[:0]
}

type contextKey string

const (
	traceIDKey contextKey = "artillery-trace-id"
	spanIDKey  contextKey = "artillery-span-id"
)

// WithTraceID returns a context carrying the given trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithSpanID returns a context carrying the given span ID.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, spanIDKey, spanID)
}

func traceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return generateID()
}

func spanIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(spanIDKey).(string); ok {
		return v
	}
	return ""
}

var spanCounter atomic.Int64

func generateID() string {
	n := spanCounter.Add(1)
	return fmt.Sprintf("%s-%d", time.Now().Format("20060102150405"), n)
}

// ─── Epidemic metrics ───────────────────────────────────────────────────────

var MembershipEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "artillery",
	Subsystem: "epidemic",
	Name:      "membership_events_total",
	Help:      "Total membership events emitted, by kind (MemberJoined, MemberWentUp, MemberSuspectedDown, MemberWentDown, MemberLeft).",
}, []string{"kind"})

var AliveMembers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "artillery",
	Subsystem: "epidemic",
	Name:      "alive_members",
	Help:      "Current count of members observed as Alive.",
})

var ProbeRoundTrip = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "artillery",
	Subsystem: "epidemic",
	Name:      "probe_round_trip_ms",
	Help:      "Round-trip time of a direct probe that received an ack, in milliseconds.",
	Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
})

var IndirectProbesSent = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "artillery",
	Subsystem: "epidemic",
	Name:      "indirect_probes_sent_total",
	Help:      "Total ping-req messages sent to relay an indirect probe.",
})

// ─── CRAQ metrics ───────────────────────────────────────────────────────────

var CraqWrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "artillery",
	Subsystem: "craq",
	Name:      "writes_total",
	Help:      "Total write/test_and_set RPCs handled, by outcome (committed, rejected, error).",
}, []string{"outcome"})

var CraqReads = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "artillery",
	Subsystem: "craq",
	Name:      "reads_total",
	Help:      "Total read RPCs handled, by consistency mode.",
}, []string{"mode"})

var CraqLatestCleanVersion = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "artillery",
	Subsystem: "craq",
	Name:      "latest_clean_version",
	Help:      "This node's latest_clean_version watermark.",
}, []string{"node_addr"})

var CraqPoolExhaustions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "artillery",
	Subsystem: "craq",
	Name:      "pool_exhaustions_total",
	Help:      "Total connection-pool acquire timeouts, by target (successor, tail).",
}, []string{"target"})

// ─── Trace metrics ──────────────────────────────────────────────────────────

var TracesRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "artillery",
	Subsystem: "traces",
	Name:      "spans_recorded_total",
	Help:      "Total trace spans recorded.",
})

var TraceErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "artillery",
	Subsystem: "traces",
	Name:      "error_spans_total",
	Help:      "Total trace spans with error status.",
})
