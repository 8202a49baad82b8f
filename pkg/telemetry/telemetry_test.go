// SPDX-FileCopyrightText: 2025 Northbeam AI
//
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"

	"github.com/northbeam-ai/sitegate/pkg/config"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
}

// quickShutdown bounds the final flush; the collector endpoint is unreachable.
func quickShutdown(shutdown ShutdownFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = shutdown(ctx)
}

func otlpOptions(t *testing.T) Options {
	return Options{
		Exporter: ExporterOTLP,
		// The exporter connects lazily, so an unroutable endpoint is fine.
		Endpoint: "localhost:0",
		Insecure: true,
		Logger:   zaptest.NewLogger(t).Sugar(),
	}
}

func TestInitNoneInstallsNoop(t *testing.T) {
	restoreGlobals(t)

	for _, exporter := range []string{ExporterNone, ""} {
		tp, shutdown, err := Init(context.Background(), Options{Exporter: exporter})
		require.NoError(t, err)
		assert.IsType(t, noop.TracerProvider{}, tp)
		assert.NoError(t, shutdown(context.Background()))

		_, span := otel.Tracer("test").Start(context.Background(), "op")
		assert.False(t, span.IsRecording())
		span.End()
	}
}

func TestInitRejectsUnknownExporter(t *testing.T) {
	restoreGlobals(t)

	_, _, err := Init(context.Background(), Options{Exporter: "jaeger"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jaeger")
}

func TestInitOTLPRecordsSpans(t *testing.T) {
	restoreGlobals(t)
	ctx := context.Background()

	tp, shutdown, err := Init(ctx, otlpOptions(t))
	require.NoError(t, err)
	t.Cleanup(func() { quickShutdown(shutdown) })
	assert.IsType(t, &sdktrace.TracerProvider{}, tp)

	_, span := otel.Tracer("test").Start(ctx, "op")
	assert.True(t, span.SpanContext().IsValid())
	assert.True(t, span.IsRecording())
	span.End()
}

func TestShutdownIsIdempotent(t *testing.T) {
	restoreGlobals(t)
	ctx := context.Background()

	_, shutdown, err := Init(ctx, otlpOptions(t))
	require.NoError(t, err)
	first := shutdown(ctx)
	assert.Equal(t, first, shutdown(ctx))
}

func TestSampleRate(t *testing.T) {
	tests := map[float64]float64{
		0:    1,
		-0.5: 1,
		1.5:  1,
		0.25: 0.25,
		1:    1,
	}
	for in, want := range tests {
		assert.Equal(t, want, sampleRate(in), "sampleRate(%v)", in)
	}
}

func TestNewResourceDefaultsServiceName(t *testing.T) {
	res, err := newResource(Options{ServiceVersion: "v1.0.0"})
	require.NoError(t, err)

	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, DefaultServiceName, attrs["service.name"])
	assert.Equal(t, "v1.0.0", attrs["service.version"])
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.Telemetry{
		Exporter:    "otlp",
		Endpoint:    "collector:4318",
		Insecure:    true,
		ServiceName: "sitegate-test",
		SampleRate:  0.25,
	}, "v1.2.3", nil)

	assert.Equal(t, ExporterOTLP, opts.Exporter)
	assert.Equal(t, "collector:4318", opts.Endpoint)
	assert.True(t, opts.Insecure)
	assert.Equal(t, "sitegate-test", opts.ServiceName)
	assert.Equal(t, "v1.2.3", opts.ServiceVersion)
	assert.Equal(t, 0.25, opts.SampleRate)
}

func TestMiddlewareContinuesRemoteTrace(t *testing.T) {
	restoreGlobals(t)
	ctx := context.Background()
	_, shutdown, err := Init(ctx, otlpOptions(t))
	require.NoError(t, err)
	t.Cleanup(func() { quickShutdown(shutdown) })

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	var got trace.SpanContext

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		_, span := otel.Tracer("test").Start(c.Request.Context(), "handler")
		got = span.SpanContext()
		span.End()
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, traceID, got.TraceID().String())
}
