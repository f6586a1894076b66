package spanwire

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	testSpanID  = "00f067aa0ba902b7"
)

func TestInjectExtractRoundTrip(t *testing.T) {
	for _, sampled := range []bool{true, false} {
		sc := SpanContext{TraceID: testTraceID, SpanID: testSpanID, Sampled: sampled}

		headers := Inject(sc)
		require.Len(t, headers, 1)
		require.Contains(t, headers, TraceparentHeader)

		got, ok := Extract(headers)
		require.True(t, ok)
		assert.Equal(t, sc, got, "round trip must be lossless (sampled=%v)", sampled)
	}
}

func TestInjectWireFormat(t *testing.T) {
	sc := SpanContext{TraceID: testTraceID, SpanID: testSpanID, Sampled: true}
	headers := Inject(sc)
	assert.Equal(t, "00-"+testTraceID+"-"+testSpanID+"-01", headers[TraceparentHeader])

	sc.Sampled = false
	headers = Inject(sc)
	assert.Equal(t, "00-"+testTraceID+"-"+testSpanID+"-00", headers[TraceparentHeader])
}

func TestInjectInvalidContext(t *testing.T) {
	assert.Empty(t, Inject(SpanContext{}), "invalid context injects nothing")
	assert.Empty(t, Inject(SpanContext{TraceID: "short", SpanID: testSpanID}))
}

func TestExtractCaseInsensitiveHeaderName(t *testing.T) {
	headers := map[string]string{"Traceparent": "00-" + testTraceID + "-" + testSpanID + "-01"}
	sc, ok := Extract(headers)
	require.True(t, ok)
	assert.Equal(t, testTraceID, sc.TraceID)
	assert.Equal(t, testSpanID, sc.SpanID)
	assert.True(t, sc.Sampled)
}

func TestExtractMalformedInput(t *testing.T) {
	cases := []struct {
		name  string
		value string
	}{
		{"empty", ""},
		{"garbage", "not-a-traceparent"},
		{"too few fields", "00-" + testTraceID + "-" + testSpanID},
		{"too many fields", "00-" + testTraceID + "-" + testSpanID + "-01-extra"},
		{"unknown version", "ff-" + testTraceID + "-" + testSpanID + "-01"},
		{"short trace id", "00-abc123-" + testSpanID + "-01"},
		{"short span id", "00-" + testTraceID + "-abc-01"},
		{"uppercase hex", "00-" + "4BF92F3577B34DA6A3CE929D0E0E4736" + "-" + testSpanID + "-01"},
		{"all-zero trace id", "00-00000000000000000000000000000000-" + testSpanID + "-01"},
		{"all-zero span id", "00-" + testTraceID + "-0000000000000000-01"},
		{"non-hex flags", "00-" + testTraceID + "-" + testSpanID + "-zz"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sc, ok := Extract(map[string]string{TraceparentHeader: tc.value})
			assert.False(t, ok, "malformed input must read as no context present")
			assert.Equal(t, SpanContext{}, sc)
		})
	}
}

func TestExtractAbsentHeader(t *testing.T) {
	sc, ok := Extract(map[string]string{"content-type": "text/plain"})
	assert.False(t, ok)
	assert.Equal(t, SpanContext{}, sc)

	sc, ok = Extract(nil)
	assert.False(t, ok)
	assert.Equal(t, SpanContext{}, sc)
}

func TestExtractToleratesWhitespace(t *testing.T) {
	headers := map[string]string{TraceparentHeader: "  00-" + testTraceID + "-" + testSpanID + "-01  "}
	_, ok := Extract(headers)
	assert.True(t, ok)
}

func TestSpanContextValid(t *testing.T) {
	assert.True(t, SpanContext{TraceID: testTraceID, SpanID: testSpanID}.Valid())
	assert.False(t, SpanContext{}.Valid())
	assert.False(t, SpanContext{TraceID: testTraceID}.Valid())
	assert.False(t, SpanContext{TraceID: "00000000000000000000000000000000", SpanID: testSpanID}.Valid())
}

func TestContextWithRemote(t *testing.T) {
	sc := SpanContext{TraceID: testTraceID, SpanID: testSpanID, Sampled: true}

	ctx := ContextWithRemote(context.Background(), sc)
	got, ok := RemoteFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, sc, got)

	// Invalid remote contexts are not installed.
	ctx = ContextWithRemote(context.Background(), SpanContext{})
	_, ok = RemoteFromContext(ctx)
	assert.False(t, ok)
}

func TestLiveSpanRoundTrip(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	_, span := tracer.StartSpan(context.Background(), "origin")
	defer span.Finish()

	got, ok := Extract(Inject(span.SpanContext()))
	require.True(t, ok)
	assert.Equal(t, span.TraceID(), got.TraceID)
	assert.Equal(t, span.SpanID(), got.SpanID)
	assert.True(t, got.Sampled)
}
