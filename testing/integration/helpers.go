package integration

import (
	"sync"
	"testing"

	"github.com/spanwire/spanwire"
)

// recordingSink captures every completed span for later assertions.
// Registered through Tracer.AddExporter with async=false so tests stay
// deterministic.
type recordingSink struct {
	mu    sync.Mutex
	spans []spanwire.Span
}

func newRecordingSink() *recordingSink {
	return &recordingSink{spans: make([]spanwire.Span, 0)}
}

// Submit implements spanwire.Exporter.
func (r *recordingSink) Submit(span spanwire.Span) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = append(r.spans, span)
}

// All returns the captured spans in completion order.
func (r *recordingSink) All() []spanwire.Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]spanwire.Span, len(r.spans))
	copy(out, r.spans)
	return out
}

// ByName returns captured spans with the given name.
func (r *recordingSink) ByName(name string) []spanwire.Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []spanwire.Span
	for _, s := range r.spans {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// newTracedEnv builds a tracer wired to a recording sink and registers
// cleanup with the test.
func newTracedEnv(t *testing.T) (*spanwire.Tracer, *recordingSink) {
	t.Helper()

	tracer := spanwire.New()
	sink := newRecordingSink()
	tracer.AddExporter(sink, false)
	t.Cleanup(tracer.Close)

	return tracer, sink
}
