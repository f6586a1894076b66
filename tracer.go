package spanwire

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/zoobzio/clockz"
)

// ErrNoActiveSpan is returned by StartChildSpan when the context carries
// neither an active span nor a remote span context. Creating a child
// without a parent is treated as an instrumentation bug rather than
// silently starting a new trace.
var ErrNoActiveSpan = errors.New("spanwire: no active span in context")

// contextBundle holds both tracer and span to reduce context allocations.
type contextBundle struct {
	tracer *Tracer
	span   *Span
}

// SpanHandler is called when a span completes. The handler receives a
// deep copy and may retain it.
type SpanHandler func(span Span)

type handlerEntry struct {
	handler SpanHandler
	id      uint64
	async   bool
}

// Tracer manages span lifecycle and completion dispatch.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	handlers     []handlerEntry
	panicHook    func(handlerID uint64, r interface{})
	workers      *workerPool
	traceIDPool  *IDPool
	spanIDPool   *IDPool
	clock        clockz.Clock
	logger       hclog.Logger
	handlersLock sync.RWMutex
	idPoolOnce   sync.Once
	nextID       atomic.Uint64
	droppedSpans atomic.Uint64
}

// New creates a new tracer with the real clock and a no-op logger.
func New() *Tracer {
	return &Tracer{
		handlers: make([]handlerEntry, 0),
		clock:    clockz.RealClock,
		logger:   hclog.NewNullLogger(),
	}
}

// WithClock returns a new tracer using the specified clock.
// Enables clock injection for deterministic testing.
func (t *Tracer) WithClock(clock clockz.Clock) *Tracer {
	return &Tracer{
		handlers: make([]handlerEntry, 0),
		clock:    clock,
		logger:   t.logger,
	}
}

// WithLogger returns a new tracer that reports warnings (finished-span
// mutation, dropped spans, handler panics) through the given logger.
func (t *Tracer) WithLogger(logger hclog.Logger) *Tracer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Tracer{
		handlers: make([]handlerEntry, 0),
		clock:    t.clock,
		logger:   logger,
	}
}

// now returns the tracer's clock time, falling back to the wall clock so
// hand-constructed spans in tests never panic.
func (t *Tracer) now() time.Time {
	if t == nil || t.clock == nil {
		return time.Now()
	}
	return t.clock.Now()
}

// warnFinished logs a mutation attempt against a finished span.
func (t *Tracer) warnFinished(msg, spanName string, args ...interface{}) {
	if t == nil || t.logger == nil {
		return
	}
	t.logger.Warn(msg, append([]interface{}{"span", spanName}, args...)...)
}

// ensureIDPools initializes ID pools if not already created.
// Trace IDs are 16 random bytes and span IDs 8 random bytes, hex encoded,
// which is exactly the shape the traceparent wire format carries.
func (t *Tracer) ensureIDPools() {
	t.idPoolOnce.Do(func() {
		// Pool size based on number of CPUs for contention balance.
		poolSize := runtime.NumCPU() * 100

		t.traceIDPool = NewIDPool(poolSize, func() string {
			return randomHexID(16, t.clock, time.RFC3339Nano)
		})
		t.spanIDPool = NewIDPool(poolSize, func() string {
			return randomHexID(8, t.clock, "15:04:05.000000")
		})
	})
}

// randomHexID returns n random bytes hex encoded, with a time-derived
// fallback should crypto/rand ever fail.
func randomHexID(n int, clock clockz.Clock, fallbackLayout string) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return hex.EncodeToString([]byte(clock.Now().Format(fallbackLayout)))
	}
	return hex.EncodeToString(buf)
}

// OnSpanComplete registers a synchronous handler called when spans complete.
func (t *Tracer) OnSpanComplete(handler SpanHandler) uint64 {
	return t.registerHandler(handler, false)
}

// OnSpanCompleteAsync registers an asynchronous handler called when spans
// complete. Dispatch never blocks the goroutine that finished the span.
func (t *Tracer) OnSpanCompleteAsync(handler SpanHandler) uint64 {
	return t.registerHandler(handler, true)
}

// AddExporter registers an export sink for completed spans. When async is
// true the sink's Submit runs off the finishing goroutine. Returns the
// handler ID for RemoveHandler.
func (t *Tracer) AddExporter(exporter Exporter, async bool) uint64 {
	if exporter == nil {
		return 0
	}
	return t.registerHandler(exporter.Submit, async)
}

func (t *Tracer) registerHandler(handler SpanHandler, async bool) uint64 {
	if handler == nil {
		return 0
	}

	id := t.nextID.Add(1)

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	t.handlers = append(t.handlers, handlerEntry{
		id:      id,
		handler: handler,
		async:   async,
	})

	return id
}

// RemoveHandler removes a handler by ID.
func (t *Tracer) RemoveHandler(id uint64) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	// Preserve order
	for i, h := range t.handlers {
		if h.id == id {
			copy(t.handlers[i:], t.handlers[i+1:])
			t.handlers = t.handlers[:len(t.handlers)-1]
			return
		}
	}
}

// HasHandlers reports whether any completion handler is registered.
func (t *Tracer) HasHandlers() bool {
	t.handlersLock.RLock()
	defer t.handlersLock.RUnlock()
	return len(t.handlers) > 0
}

// SetPanicHook sets a function to be called when a handler panics.
// When unset, panics are reported through the tracer's logger.
func (t *Tracer) SetPanicHook(hook func(handlerID uint64, r interface{})) {
	t.panicHook = hook
}

// StartSpan creates a new span and returns it wrapped in an ActiveSpan.
// If the context contains an existing span the new span is its child; if
// it contains a remote span context (see ContextWithRemote) the new span
// continues that trace. Otherwise a fresh root span is started. Always
// succeeds.
func (t *Tracer) StartSpan(ctx context.Context, operation Key) (context.Context, *ActiveSpan) {
	// Handle nil context by creating a new one.
	if ctx == nil {
		ctx = context.Background()
	}

	t.ensureIDPools()

	span := &Span{
		SpanID:    t.spanIDPool.Get(),
		Name:      string(operation),
		StartTime: t.now(),
		Sampled:   true,
	}

	if parent := GetSpan(ctx); parent != nil {
		span.TraceID = parent.TraceID
		span.ParentID = parent.SpanID
		span.Sampled = parent.Sampled
	} else if remote, ok := RemoteFromContext(ctx); ok {
		span.TraceID = remote.TraceID
		span.ParentID = remote.SpanID
		span.Sampled = remote.Sampled
	} else {
		span.TraceID = t.traceIDPool.Get()
	}

	activeSpan := &ActiveSpan{
		span:   span,
		tracer: t,
	}

	// Bundle tracer and span into a single context allocation.
	bundle := &contextBundle{tracer: t, span: span}
	newCtx := context.WithValue(ctx, bundleKey, bundle)

	return newCtx, activeSpan
}

// StartChildSpan creates a span that must have a parent: either an active
// span in ctx or a remote span context installed by ContextWithRemote.
// Returns ErrNoActiveSpan otherwise.
func (t *Tracer) StartChildSpan(ctx context.Context, operation Key) (context.Context, *ActiveSpan, error) {
	if GetSpan(ctx) == nil && !hasRemote(ctx) {
		return ctx, nil, ErrNoActiveSpan
	}
	newCtx, span := t.StartSpan(ctx, operation)
	return newCtx, span, nil
}

// WithSpan runs fn inside a new span and guarantees the span is finished
// on every exit path. An error returned by fn is recorded on the span,
// sets its status to Error, and is returned unchanged. A panic inside fn
// is recorded the same way and then re-raised with its original value.
// WithSpan never alters what the caller observes as the outcome of fn.
func (t *Tracer) WithSpan(ctx context.Context, operation Key, fn func(ctx context.Context, span *ActiveSpan) error) error {
	spanCtx, span := t.StartSpan(ctx, operation)

	defer func() {
		if r := recover(); r != nil {
			span.RecordError(panicError(r))
			span.SetStatus(StatusError, fmt.Sprintf("panic: %v", r))
			span.Finish()
			panic(r)
		}
		span.Finish()
	}()

	if err := fn(spanCtx, span); err != nil {
		span.RecordError(err)
		span.SetStatus(StatusError, err.Error())
		return err
	}
	return nil
}

// panicError normalizes a recovered panic value into an error for
// RecordError.
func panicError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}

// executeHandlers calls all registered handlers with the completed span.
func (t *Tracer) executeHandlers(span Span) {
	t.handlersLock.RLock()
	if len(t.handlers) == 0 {
		t.handlersLock.RUnlock()
		return
	}

	handlers := make([]handlerEntry, len(t.handlers))
	copy(handlers, t.handlers)
	t.handlersLock.RUnlock()

	for _, h := range handlers {
		if h.async {
			// Make a copy of h for closure
			entry := h
			if t.workers != nil {
				t.workers.submit(func() {
					t.safeCall(entry, span)
				})
			} else {
				go t.safeCall(entry, span)
			}
		} else {
			t.safeCall(h, span)
		}
	}
}

func (t *Tracer) safeCall(entry handlerEntry, span Span) {
	defer func() {
		if r := recover(); r != nil {
			if t.panicHook != nil {
				t.panicHook(entry.id, r)
				return
			}
			if t.logger != nil {
				t.logger.Error("span handler panicked", "handler_id", entry.id, "panic", r)
			}
		}
	}()
	entry.handler(span)
}

// EnableWorkerPool creates a bounded worker pool for async handlers.
// Without it, each async dispatch runs on its own goroutine.
func (t *Tracer) EnableWorkerPool(workers, queueSize int) error {
	if t.workers != nil {
		return errors.New("worker pool already enabled")
	}
	if workers <= 0 {
		return errors.New("workers must be > 0")
	}
	if queueSize <= 0 {
		return errors.New("queueSize must be > 0")
	}

	t.workers = &workerPool{
		tasks:   make(chan func(), queueSize),
		stop:    make(chan struct{}),
		dropped: &t.droppedSpans,
	}

	t.workers.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go t.workers.run()
	}

	return nil
}

// DroppedSpans returns the number of spans dropped due to a full worker
// queue.
func (t *Tracer) DroppedSpans() uint64 {
	return t.droppedSpans.Load()
}

// Close shuts down the tracer gracefully and cleans up resources.
// This should be called when the tracer is no longer needed.
func (t *Tracer) Close() {
	// Stop new handler executions
	t.handlersLock.Lock()
	t.handlers = nil
	t.handlersLock.Unlock()

	// Wait for in-flight async tasks
	if t.workers != nil {
		t.workers.shutdown()
		t.workers = nil
	}

	// Close ID pools
	if t.traceIDPool != nil {
		t.traceIDPool.Close()
	}
	if t.spanIDPool != nil {
		t.spanIDPool.Close()
	}
}

// workerPool manages a fixed number of workers for processing async handlers.
//
//nolint:govet // Field order optimized for functionality over memory
type workerPool struct {
	tasks   chan func()
	stop    chan struct{}
	dropped *atomic.Uint64
	wg      sync.WaitGroup
}

func (w *workerPool) run() {
	defer w.wg.Done()
	for {
		select {
		case task := <-w.tasks:
			task()
		case <-w.stop:
			return
		}
	}
}

func (w *workerPool) submit(task func()) {
	select {
	case w.tasks <- task:
	default:
		w.dropped.Add(1)
	}
}

func (w *workerPool) shutdown() {
	close(w.stop)
	w.wg.Wait()
}
