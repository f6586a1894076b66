// Command spanwire-demo traces one instrumented HTTP request end to end:
// a root span for the run, a child span around the outbound call, events
// on both, and every completed span written as a JSON line.
//
// Configuration (environment, optionally via a .env file):
//
//	SPANWIRE_SERVICE_NAME  service.name tag on the root span (default "spanwire-demo")
//	SPANWIRE_TARGET_URL    URL to fetch (default "https://www.jaegertracing.io/")
//	SPANWIRE_LOG_LEVEL     hclog level (default "info")
//	SPANWIRE_SPAN_LOG      span output path, "-" or empty for stdout
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"

	"github.com/spanwire/spanwire"
)

func main() {
	_ = godotenv.Load()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "spanwire-demo",
		Level: hclog.LevelFromString(envOr("SPANWIRE_LOG_LEVEL", "info")),
	})

	if err := run(logger); err != nil {
		logger.Error("demo failed", "error", err)
		os.Exit(1)
	}
}

func run(logger hclog.Logger) error {
	serviceName := envOr("SPANWIRE_SERVICE_NAME", "spanwire-demo")
	targetURL := envOr("SPANWIRE_TARGET_URL", "https://www.jaegertracing.io/")

	out, closeOut, err := spanOutput(envOr("SPANWIRE_SPAN_LOG", "-"))
	if err != nil {
		return fmt.Errorf("open span log: %w", err)
	}
	defer closeOut()

	tracer := spanwire.New().WithLogger(logger)
	defer tracer.Close()
	tracer.AddExporter(spanwire.NewJSONWriter(out).WithLogger(logger), false)

	client := &http.Client{
		Transport: &spanwire.Transport{Tracer: tracer},
		Timeout:   10 * time.Second,
	}

	return tracer.WithSpan(context.Background(), "main_process", func(ctx context.Context, span *spanwire.ActiveSpan) error {
		span.SetTag("service.name", serviceName)
		span.AddEvent("starting application", nil)

		time.Sleep(100 * time.Millisecond)

		body, err := sayHello(ctx, tracer, client, targetURL)
		if err != nil {
			// The failed request is recorded on the root span but does
			// not abort the run; the remaining events still fire.
			span.RecordError(err)
			span.SetStatus(spanwire.StatusError, err.Error())
			logger.Warn("request failed", "url", targetURL, "error", err)
		} else {
			span.AddEvent("request successful", map[spanwire.Tag]spanwire.Value{
				"value": spanwire.StringValue(snippet(body, 100)),
			})
		}

		time.Sleep(100 * time.Millisecond)

		span.AddEvent("finished application", nil)
		return nil
	})
}

// sayHello performs the traced outbound request. The Transport opens a
// nested client span and injects the traceparent header; this span covers
// the whole logical sub-operation.
func sayHello(ctx context.Context, tracer *spanwire.Tracer, client *http.Client, url string) (string, error) {
	var body string

	err := tracer.WithSpan(ctx, "say_hello", func(ctx context.Context, span *spanwire.ActiveSpan) error {
		span.SetTag(spanwire.HTTPMethodTag, http.MethodGet)
		span.SetTag(spanwire.HTTPURLTag, url)
		span.SetTag(spanwire.SpanKindTag, "client")

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("get %s: %w", url, err)
		}
		defer resp.Body.Close()

		span.SetIntTag(spanwire.HTTPStatusCodeTag, int64(resp.StatusCode))

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		body = string(data)
		return nil
	})

	return body, err
}

func spanOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
