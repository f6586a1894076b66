package spanwire

import (
	"context"
	"strings"
)

// TraceparentHeader is the single header carrying a propagated span
// context, shaped like the W3C trace-context traceparent field:
//
//	00-<32 hex trace id>-<16 hex span id>-<2 hex flags>
const TraceparentHeader = "traceparent"

const (
	traceparentVersion = "00"
	traceIDHexLen      = 32
	spanIDHexLen       = 16
	flagSampled        = 0x01
)

// SpanContext is the externally propagatable identity of a span.
// Immutable once created.
type SpanContext struct {
	TraceID string
	SpanID  string
	Sampled bool
}

// Valid reports whether the context carries well-formed, non-zero
// identifiers.
func (sc SpanContext) Valid() bool {
	return isLowerHex(sc.TraceID, traceIDHexLen) && !allZero(sc.TraceID) &&
		isLowerHex(sc.SpanID, spanIDHexLen) && !allZero(sc.SpanID)
}

// traceparent renders the context in wire form.
func (sc SpanContext) traceparent() string {
	flags := "00"
	if sc.Sampled {
		flags = "01"
	}
	return traceparentVersion + "-" + sc.TraceID + "-" + sc.SpanID + "-" + flags
}

// Inject serializes the span context into a transport-agnostic header
// mapping. Pure function; no side effects. Injecting an invalid context
// yields an empty mapping.
func Inject(sc SpanContext) map[string]string {
	if !sc.Valid() {
		return map[string]string{}
	}
	return map[string]string{TraceparentHeader: sc.traceparent()}
}

// Extract recovers a span context from a header mapping. Header name
// lookup is case-insensitive. Malformed or absent input yields
// (SpanContext{}, false); Extract never fails loudly - no propagated
// context is an ordinary condition for trace roots.
func Extract(headers map[string]string) (SpanContext, bool) {
	for name, value := range headers {
		if strings.EqualFold(name, TraceparentHeader) {
			return parseTraceparent(value)
		}
	}
	return SpanContext{}, false
}

// parseTraceparent decodes the wire form produced by traceparent.
// Unknown versions and malformed fields are rejected.
func parseTraceparent(value string) (SpanContext, bool) {
	parts := strings.Split(strings.TrimSpace(value), "-")
	if len(parts) != 4 {
		return SpanContext{}, false
	}

	version, traceID, spanID, flags := parts[0], parts[1], parts[2], parts[3]
	if version != traceparentVersion {
		return SpanContext{}, false
	}
	if !isLowerHex(traceID, traceIDHexLen) || allZero(traceID) {
		return SpanContext{}, false
	}
	if !isLowerHex(spanID, spanIDHexLen) || allZero(spanID) {
		return SpanContext{}, false
	}
	if !isLowerHex(flags, 2) {
		return SpanContext{}, false
	}

	sampled := hexByte(flags)&flagSampled != 0
	return SpanContext{TraceID: traceID, SpanID: spanID, Sampled: sampled}, true
}

// ContextWithRemote installs an extracted span context as the ambient
// parent, so StartSpan on the receiving side continues the remote trace.
// An invalid span context leaves ctx unchanged.
func ContextWithRemote(ctx context.Context, sc SpanContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if !sc.Valid() {
		return ctx
	}
	return context.WithValue(ctx, remoteKey, sc)
}

// RemoteFromContext returns the remote span context installed by
// ContextWithRemote, if any.
func RemoteFromContext(ctx context.Context) (SpanContext, bool) {
	if ctx == nil {
		return SpanContext{}, false
	}
	sc, ok := ctx.Value(remoteKey).(SpanContext)
	return sc, ok
}

func hasRemote(ctx context.Context) bool {
	_, ok := RemoteFromContext(ctx)
	return ok
}

func isLowerHex(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func allZero(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != '0' {
			return false
		}
	}
	return true
}

// hexByte decodes a two-character lower-hex string. Callers validate with
// isLowerHex first.
func hexByte(s string) byte {
	return nibble(s[0])<<4 | nibble(s[1])
}

func nibble(c byte) byte {
	if c >= 'a' {
		return c - 'a' + 10
	}
	return c - '0'
}
