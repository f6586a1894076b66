// Package spanwire provides a minimal span-lifecycle tracing library.
//
// spanwire focuses on span creation, context propagation, and handing
// completed spans to export sinks without the weight of a full tracing
// SDK. It is designed for programs that need predictable, inspectable
// tracing primitives.
//
// Core Components:.
//   - Tracer: Manages span lifecycle and completion handlers.
//   - Span: Represents a single unit of work.
//   - ActiveSpan: Thread-safe wrapper for ongoing spans.
//   - SpanContext: Propagatable span identity (trace id, span id, sampled flag).
//   - Collector: Buffers completed spans for export.
//   - JSONWriter: Writes completed spans as JSON lines.
//
// Basic Usage:.
//
//	tracer := spanwire.New()
//	defer tracer.Close()
//
//	// Start a new span.
//	ctx, span := tracer.StartSpan(ctx, "operation-name")
//	defer span.Finish()
//
//	// Add metadata.
//	span.SetTag("user.id", "123")
//	span.AddEvent("cache miss", nil)
//
//	// Pass context to child operations.
//	childCtx, childSpan := tracer.StartSpan(ctx, "child-operation")
//	defer childSpan.Finish()
//
// Scoped Usage:.
//
//	err := tracer.WithSpan(ctx, "operation-name", func(ctx context.Context, span *spanwire.ActiveSpan) error {
//		return doWork(ctx)
//	})
//
// WithSpan guarantees the span is finished on every exit path. An error
// returned by the function is recorded on the span, reflected in its
// status, and returned to the caller unchanged.
//
// Thread Safety:.
//
// Tracer is safe for concurrent use by multiple goroutines.
// ActiveSpan operations are safe for concurrent use.
//
// Raw Span structs are NOT thread-safe while active - do not modify the
// same Span from multiple goroutines. Once finished, spans are immutable
// and safe to read concurrently.
//
// Context Propagation:.
//
// Spans are linked via context.Context within a process. Child spans
// inherit their parent's TraceID and reference the parent's SpanID.
// Across process boundaries, Inject and Extract carry the SpanContext
// through a single traceparent-shaped header. Concurrent branches must
// each derive their own context from StartSpan's return value; never
// share ambient span state across goroutine boundaries.
//
// Resource Cleanup:.
//
// Call tracer.Close() to properly shut down all background goroutines.
package spanwire

// Key represents a span operation name.
type Key = string

// Tag represents a span tag key.
type Tag = string
