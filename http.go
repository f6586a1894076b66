package spanwire

import (
	"net/http"
)

// Span keys and tag names used by the HTTP helpers.
const (
	// HTTPClientKey names the span wrapped around an outbound request.
	HTTPClientKey Key = "http.request"
	// HTTPServerKey names the span opened for an inbound request.
	HTTPServerKey Key = "http.server"

	// HTTPMethodTag holds the request method.
	HTTPMethodTag Tag = "http.method"
	// HTTPURLTag holds the request URL.
	HTTPURLTag Tag = "http.url"
	// HTTPStatusCodeTag holds the response status code.
	HTTPStatusCodeTag Tag = "http.status_code"
	// SpanKindTag distinguishes client from server spans.
	SpanKindTag Tag = "span.kind"
)

// InjectHTTP writes the span context's traceparent header into h.
// Invalid contexts leave h unchanged.
func InjectHTTP(sc SpanContext, h http.Header) {
	for name, value := range Inject(sc) {
		h.Set(name, value)
	}
}

// ExtractHTTP recovers a span context from incoming request headers.
func ExtractHTTP(h http.Header) (SpanContext, bool) {
	value := h.Get(TraceparentHeader)
	if value == "" {
		return SpanContext{}, false
	}
	return parseTraceparent(value)
}

// Transport is an http.RoundTripper that wraps each outbound request in a
// client span, injects the traceparent header, and tags method, URL, and
// response status. Request errors are recorded on the span and returned
// to the caller unchanged.
type Transport struct {
	// Base is the underlying round tripper. Defaults to
	// http.DefaultTransport.
	Base http.RoundTripper
	// Tracer creates the client spans. Required.
	Tracer *Tracer
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	ctx, span := t.Tracer.StartSpan(req.Context(), HTTPClientKey)
	defer span.Finish()

	span.SetTag(HTTPMethodTag, req.Method)
	span.SetTag(HTTPURLTag, req.URL.String())
	span.SetTag(SpanKindTag, "client")

	// RoundTrippers must not mutate the caller's request.
	req = req.Clone(ctx)
	InjectHTTP(span.SpanContext(), req.Header)

	resp, err := base.RoundTrip(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(StatusError, err.Error())
		return nil, err
	}

	span.SetIntTag(HTTPStatusCodeTag, int64(resp.StatusCode))
	return resp, nil
}

// Middleware wraps an http.Handler so each inbound request runs inside a
// server span. A traceparent header on the request continues the caller's
// trace; otherwise a new trace is started.
func Middleware(tracer *Tracer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if remote, ok := ExtractHTTP(r.Header); ok {
				ctx = ContextWithRemote(ctx, remote)
			}

			ctx, span := tracer.StartSpan(ctx, HTTPServerKey)
			defer span.Finish()

			span.SetTag(HTTPMethodTag, r.Method)
			span.SetTag(HTTPURLTag, r.URL.Path)
			span.SetTag(SpanKindTag, "server")

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(ctx))

			span.SetIntTag(HTTPStatusCodeTag, int64(recorder.status))
			if recorder.status >= http.StatusInternalServerError {
				span.SetStatus(StatusError, http.StatusText(recorder.status))
			}
		})
	}
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
