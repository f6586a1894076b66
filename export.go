package spanwire

import (
	"io"
	"sync"
	"sync/atomic"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-hclog"
)

// Exporter receives completed, immutable spans. Submit must not block for
// long: spans are handed over fire-and-forget from the finishing
// goroutine's point of view, and delivery is best-effort.
type Exporter interface {
	Submit(span Span)
}

// JSONWriter exports completed spans as JSON lines to an io.Writer.
// It is a local sink (file, stdout, test buffer), not a network exporter.
// Safe for concurrent use by multiple goroutines.
type JSONWriter struct {
	w          io.Writer
	logger     hclog.Logger
	mu         sync.Mutex
	writeFails atomic.Uint64
}

// NewJSONWriter creates a JSON-lines span writer. Write failures are
// counted and reported through the logger when one is set.
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{w: w, logger: hclog.NewNullLogger()}
}

// WithLogger sets the logger used to report write failures.
func (jw *JSONWriter) WithLogger(logger hclog.Logger) *JSONWriter {
	if logger != nil {
		jw.logger = logger
	}
	return jw
}

// Submit encodes the span as a single JSON line. Implements Exporter.
// Encoding or write errors never reach the instrumented code path; they
// are counted and logged.
func (jw *JSONWriter) Submit(span Span) {
	line, err := json.Marshal(span)
	if err != nil {
		jw.writeFails.Add(1)
		jw.logger.Error("span encode failed", "span", span.Name, "error", err)
		return
	}
	line = append(line, '\n')

	jw.mu.Lock()
	_, err = jw.w.Write(line)
	jw.mu.Unlock()

	if err != nil {
		jw.writeFails.Add(1)
		jw.logger.Error("span write failed", "span", span.Name, "error", err)
	}
}

// WriteFailures returns the number of spans that could not be written.
func (jw *JSONWriter) WriteFailures() uint64 {
	return jw.writeFails.Load()
}
