package tracing

import (
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentClient wraps an http.Client so every outbound request carries a
// client span and W3C trace headers. Used by the signing and payment
// provider clients.
func InstrumentClient(client *http.Client, peer string) *http.Client {
	if client == nil {
		client = &http.Client{}
	}
	clone := *client
	base := clone.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	clone.Transport = &tracedTransport{
		base:   base,
		peer:   peer,
		tracer: otel.Tracer("packhey/outbound"),
	}
	return &clone
}

type tracedTransport struct {
	base   http.RoundTripper
	peer   string
	tracer trace.Tracer
}

func (t *tracedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return t.base.RoundTrip(req)
	}

	ctx, span := t.tracer.Start(req.Context(),
		t.peer+" "+req.Method+" "+req.URL.Path,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := t.base.RoundTrip(req.WithContext(ctx))
	if err != nil {
		// Record the error type only; transport errors can echo URLs with
		// embedded credentials or signer link tokens.
		span.RecordError(fmt.Errorf("%T", err))
		span.SetStatus(codes.Error, "transport error")
		return resp, err
	}

	span.SetAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("peer.service", t.peer),
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.Int64("http.duration_ms", time.Since(start).Milliseconds()),
	)
	if resp.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, "upstream error")
	}
	return resp, err
}
