package spanwire

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// bundleKeyType is a private type for context keys to avoid collisions.
type bundleKeyType string

const (
	bundleKey bundleKeyType = "spanwire"
	remoteKey bundleKeyType = "spanwire-remote"
)

// StatusCode classifies the outcome of a span's unit of work.
type StatusCode int

const (
	// StatusUnset means no outcome was recorded.
	StatusUnset StatusCode = iota
	// StatusOK marks the work as successful.
	StatusOK
	// StatusError marks the work as failed. Error is sticky: once set it
	// cannot be downgraded back to OK.
	StatusError
)

// String returns the canonical name of the status code.
func (c StatusCode) String() string {
	switch c {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	default:
		return "unset"
	}
}

// MarshalJSON emits the canonical name rather than the numeric code.
func (c StatusCode) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// UnmarshalJSON accepts the canonical names produced by MarshalJSON.
func (c *StatusCode) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"ok"`:
		*c = StatusOK
	case `"error"`:
		*c = StatusError
	case `"unset"`:
		*c = StatusUnset
	default:
		return fmt.Errorf("spanwire: unknown status code %s", data)
	}
	return nil
}

// Status is the recorded outcome of a span.
type Status struct {
	Code    StatusCode `json:"code"`
	Message string     `json:"message,omitempty"`
}

// Event is a timestamped annotation on a span.
type Event struct {
	Time  time.Time     `json:"time"`
	Attrs map[Tag]Value `json:"attrs,omitempty"`
	Name  string        `json:"name"`
}

// Tag keys used by RecordError for the structured error event.
const (
	errorEventName Key = "error"

	// ErrorTypeTag holds the concrete Go type of a recorded error.
	ErrorTypeTag Tag = "error.type"
	// ErrorMessageTag holds the recorded error's message.
	ErrorMessageTag Tag = "error.message"
	// ErrorStackTag holds the stack text captured at record time.
	ErrorStackTag Tag = "error.stack"
)

// Span represents a single unit of work in a trace.
// Spans are NOT thread-safe while active - do not modify from multiple
// goroutines. Once EndTime is set the span is immutable.
//
//nolint:govet // Field alignment optimized for JSON serialization order
type Span struct {
	Tags      map[Tag]Value `json:"tags,omitempty"`
	Events    []Event       `json:"events,omitempty"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time,omitempty"`
	Duration  time.Duration `json:"duration"`
	Status    Status        `json:"status"`
	TraceID   string        `json:"trace_id"`
	SpanID    string        `json:"span_id"`
	ParentID  string        `json:"parent_id,omitempty"`
	Name      string        `json:"name"`
	Sampled   bool          `json:"sampled"`
}

// Ended reports whether the span has been finished.
func (s *Span) Ended() bool {
	return !s.EndTime.IsZero()
}

// Context returns the propagatable identity of the span.
func (s *Span) Context() SpanContext {
	return SpanContext{TraceID: s.TraceID, SpanID: s.SpanID, Sampled: s.Sampled}
}

// clone deep-copies the span so exported copies never share mutable state
// with the original.
func (s *Span) clone() Span {
	out := *s
	if s.Tags != nil {
		out.Tags = make(map[Tag]Value, len(s.Tags))
		for k, v := range s.Tags {
			out.Tags[k] = v
		}
	}
	if s.Events != nil {
		out.Events = make([]Event, len(s.Events))
		for i, ev := range s.Events {
			out.Events[i] = ev
			if ev.Attrs != nil {
				attrs := make(map[Tag]Value, len(ev.Attrs))
				for k, v := range ev.Attrs {
					attrs[k] = v
				}
				out.Events[i].Attrs = attrs
			}
		}
	}
	return out
}

// ActiveSpan wraps a Span with thread-safe mutation and lifecycle management.
// Safe for concurrent use by multiple goroutines.
type ActiveSpan struct {
	span   *Span
	tracer *Tracer
	mu     sync.Mutex // Protects the wrapped span until it is finished.
}

// SetTag adds a string tag to the span. Last write wins.
// No-op with a warning if the span is already finished.
func (a *ActiveSpan) SetTag(key Tag, value string) {
	a.setValue(key, StringValue(value))
}

// SetIntTag adds an integer tag to the span.
// No-op with a warning if the span is already finished.
func (a *ActiveSpan) SetIntTag(key Tag, value int64) {
	a.setValue(key, IntValue(value))
}

// SetFloatTag adds a float tag to the span.
// No-op with a warning if the span is already finished.
func (a *ActiveSpan) SetFloatTag(key Tag, value float64) {
	a.setValue(key, FloatValue(value))
}

// SetBoolTag adds a boolean tag to the span.
// No-op with a warning if the span is already finished.
func (a *ActiveSpan) SetBoolTag(key Tag, value bool) {
	a.setValue(key, BoolValue(value))
}

func (a *ActiveSpan) setValue(key Tag, value Value) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.span.Ended() {
		a.tracer.warnFinished("tag set on finished span", a.span.Name, "key", key)
		return
	}

	if a.span.Tags == nil {
		a.span.Tags = make(map[Tag]Value)
	}
	a.span.Tags[key] = value
}

// GetTag retrieves a tag value by key.
// Thread-safe for concurrent access.
func (a *ActiveSpan) GetTag(key Tag) (Value, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.span.Tags == nil {
		return Value{}, false
	}
	value, ok := a.span.Tags[key]
	return value, ok
}

// AddEvent appends a timestamped event to the span. attrs may be nil.
// No-op with a warning if the span is already finished.
func (a *ActiveSpan) AddEvent(name Key, attrs map[Tag]Value) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.span.Ended() {
		a.tracer.warnFinished("event added to finished span", a.span.Name, "event", name)
		return
	}

	var copied map[Tag]Value
	if len(attrs) > 0 {
		copied = make(map[Tag]Value, len(attrs))
		for k, v := range attrs {
			copied[k] = v
		}
	}

	a.span.Events = append(a.span.Events, Event{
		Name:  string(name),
		Time:  a.tracer.now(),
		Attrs: copied,
	})
}

// RecordError appends a structured error event capturing the error's type,
// message, and the stack text at the call site. It does not change the
// span's status; call SetStatus separately.
// No-op with a warning if the span is already finished or err is nil.
func (a *ActiveSpan) RecordError(err error) {
	if err == nil {
		return
	}

	a.AddEvent(errorEventName, map[Tag]Value{
		ErrorTypeTag:    StringValue(fmt.Sprintf("%T", err)),
		ErrorMessageTag: StringValue(err.Error()),
		ErrorStackTag:   StringValue(string(debug.Stack())),
	})
}

// SetStatus records the span's outcome. Transitions are monotonic:
// Unset may move to OK or Error, re-setting the same code refreshes the
// message, and Error is never downgraded to OK. Setting a status on a
// finished span is a warned no-op.
func (a *ActiveSpan) SetStatus(code StatusCode, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.span.Ended() {
		a.tracer.warnFinished("status set on finished span", a.span.Name, "status", code.String())
		return
	}

	// Error is sticky.
	if a.span.Status.Code == StatusError && code != StatusError {
		return
	}
	// Unset carries no information and never overwrites a recorded outcome.
	if code == StatusUnset {
		return
	}

	a.span.Status = Status{Code: code, Message: message}
}

// Finish completes the span and hands it to the tracer's completion
// handlers. Safe to call multiple times - subsequent calls are no-ops.
func (a *ActiveSpan) Finish() {
	a.mu.Lock()

	// Prevent double-finishing.
	if a.span.Ended() {
		a.mu.Unlock()
		return
	}

	a.span.EndTime = a.tracer.now()
	a.span.Duration = a.span.EndTime.Sub(a.span.StartTime)

	// Handlers receive a deep copy, so dispatch happens outside the lock.
	completed := a.span.clone()
	a.mu.Unlock()

	a.tracer.executeHandlers(completed)
}

// TraceID returns the trace ID of this span.
func (a *ActiveSpan) TraceID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.TraceID
}

// SpanID returns the span ID of this span.
func (a *ActiveSpan) SpanID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.SpanID
}

// SpanContext returns the propagatable identity of this span, suitable
// for Inject.
func (a *ActiveSpan) SpanContext() SpanContext {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.Context()
}

// Context creates a new context with this span embedded.
// The returned context can be used to start child spans.
func (a *ActiveSpan) Context(parent context.Context) context.Context {
	bundle := &contextBundle{tracer: a.tracer, span: a.span}
	return context.WithValue(parent, bundleKey, bundle)
}

// GetSpan extracts the current span from a context.
// Returns nil if no span is present.
func GetSpan(ctx context.Context) *Span {
	if ctx == nil {
		return nil
	}

	if bundle, ok := ctx.Value(bundleKey).(*contextBundle); ok {
		return bundle.span
	}

	return nil
}
