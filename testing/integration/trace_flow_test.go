package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spanwire/spanwire"
)

// TestCrossGoroutineContextPropagation verifies parent-child relationships
// across goroutine boundaries. Each branch derives its own context from
// the parent span's StartSpan return; no ambient global state is shared.
func TestCrossGoroutineContextPropagation(t *testing.T) {
	tracer, sink := newTracedEnv(t)

	ctx, parentSpan := tracer.StartSpan(context.Background(), "parent-operation")
	parentTraceID := parentSpan.TraceID()
	parentSpanID := parentSpan.SpanID()

	var wg sync.WaitGroup
	childCount := 10

	for i := 0; i < childCount; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			_, childSpan := tracer.StartSpan(ctx, "child-operation")
			childSpan.SetIntTag("goroutine.index", int64(idx))

			time.Sleep(5 * time.Millisecond)

			childSpan.Finish()
		}(i)
	}

	wg.Wait()
	parentSpan.Finish()

	children := sink.ByName("child-operation")
	if len(children) != childCount {
		t.Fatalf("Expected %d child spans, got %d", childCount, len(children))
	}

	seen := make(map[int64]bool)
	for _, child := range children {
		if child.TraceID != parentTraceID {
			t.Errorf("Child escaped the parent trace: %s != %s", child.TraceID, parentTraceID)
		}
		if child.ParentID != parentSpanID {
			t.Errorf("Child has wrong parent: %s != %s", child.ParentID, parentSpanID)
		}
		idx := child.Tags["goroutine.index"].AsInt()
		if seen[idx] {
			t.Errorf("Duplicate goroutine index %d", idx)
		}
		seen[idx] = true
	}
}

// TestConcurrentBranchesDoNotCrossContaminate runs several independent
// root operations in parallel and checks every trace tree stays disjoint.
func TestConcurrentBranchesDoNotCrossContaminate(t *testing.T) {
	tracer, sink := newTracedEnv(t)

	var wg sync.WaitGroup
	rootCount := 8

	for i := 0; i < rootCount; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			name := fmt.Sprintf("root-%d", idx)
			_ = tracer.WithSpan(context.Background(), name, func(ctx context.Context, _ *spanwire.ActiveSpan) error {
				return tracer.WithSpan(ctx, name+"-child", func(context.Context, *spanwire.ActiveSpan) error {
					return nil
				})
			})
		}(i)
	}

	wg.Wait()

	traceOf := make(map[string]string)
	for _, span := range sink.All() {
		if span.ParentID != "" {
			continue
		}
		traceOf[span.Name] = span.TraceID
	}
	if len(traceOf) != rootCount {
		t.Fatalf("Expected %d root spans, got %d", rootCount, len(traceOf))
	}

	for i := 0; i < rootCount; i++ {
		name := fmt.Sprintf("root-%d", i)
		children := sink.ByName(name + "-child")
		if len(children) != 1 {
			t.Fatalf("Expected 1 child for %s, got %d", name, len(children))
		}
		if children[0].TraceID != traceOf[name] {
			t.Errorf("Child of %s landed in trace %s, expected %s", name, children[0].TraceID, traceOf[name])
		}
	}

	distinct := make(map[string]bool)
	for _, id := range traceOf {
		distinct[id] = true
	}
	if len(distinct) != rootCount {
		t.Errorf("Expected %d distinct traces, got %d", rootCount, len(distinct))
	}
}

// TestCrossProcessHandoff simulates two services linked only by the
// propagation headers: the upstream injects, the downstream extracts into
// its own tracer, and both ends stay in one trace.
func TestCrossProcessHandoff(t *testing.T) {
	upstream, upstreamSink := newTracedEnv(t)
	downstream, downstreamSink := newTracedEnv(t)

	var wire map[string]string
	err := upstream.WithSpan(context.Background(), "upstream-request", func(_ context.Context, span *spanwire.ActiveSpan) error {
		wire = spanwire.Inject(span.SpanContext())
		return nil
	})
	if err != nil {
		t.Fatalf("Unexpected upstream error: %v", err)
	}

	remote, ok := spanwire.Extract(wire)
	if !ok {
		t.Fatal("Downstream failed to extract the propagated context")
	}

	ctx := spanwire.ContextWithRemote(context.Background(), remote)
	_, serverSpan, err := downstream.StartChildSpan(ctx, "downstream-handle")
	if err != nil {
		t.Fatalf("Unexpected downstream error: %v", err)
	}
	serverSpan.Finish()

	upstreamSpans := upstreamSink.All()
	downstreamSpans := downstreamSink.All()
	if len(upstreamSpans) != 1 || len(downstreamSpans) != 1 {
		t.Fatalf("Expected one span per side, got %d and %d", len(upstreamSpans), len(downstreamSpans))
	}

	if downstreamSpans[0].TraceID != upstreamSpans[0].TraceID {
		t.Error("Handoff broke the trace: trace IDs differ across the wire")
	}
	if downstreamSpans[0].ParentID != upstreamSpans[0].SpanID {
		t.Error("Downstream span does not reference the upstream span")
	}
	if !downstreamSpans[0].Sampled {
		t.Error("Sampled flag was lost across the wire")
	}
}

// TestScopedWorkAnnotatesWithoutAltering exercises the scoped pattern
// under both outcomes and verifies instrumentation transparency.
func TestScopedWorkAnnotatesWithoutAltering(t *testing.T) {
	tracer, sink := newTracedEnv(t)

	var result string
	err := tracer.WithSpan(context.Background(), "ok-path", func(context.Context, *spanwire.ActiveSpan) error {
		result = "ok"
		return nil
	})
	if err != nil || result != "ok" {
		t.Fatalf("Scoped span altered the success path: %v %q", err, result)
	}

	failure := fmt.Errorf("downstream unavailable")
	err = tracer.WithSpan(context.Background(), "error-path", func(context.Context, *spanwire.ActiveSpan) error {
		return failure
	})
	if err != failure {
		t.Fatalf("Scoped span altered the error: %v", err)
	}

	errorSpans := sink.ByName("error-path")
	if len(errorSpans) != 1 {
		t.Fatalf("Expected 1 error-path span, got %d", len(errorSpans))
	}
	if errorSpans[0].Status.Code != spanwire.StatusError {
		t.Errorf("Expected error status, got %s", errorSpans[0].Status.Code)
	}
}
