// SPDX-FileCopyrightText: 2025 Northbeam AI
//
// SPDX-License-Identifier: Apache-2.0

// Package telemetry installs the OpenTelemetry TracerProvider and propagates
// incoming W3C trace context into request handling.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/northbeam-ai/sitegate/pkg/config"
)

const (
	DefaultServiceName = "sitegate"

	ExporterOTLP = "otlp"
	ExporterNone = "none"

	flushTimeout = 5 * time.Second
)

type Options struct {
	ServiceName    string
	ServiceVersion string
	// Exporter is ExporterOTLP or ExporterNone. None installs a no-op provider.
	Exporter string
	// Endpoint is the OTLP/HTTP collector, e.g. "otel-collector:4318".
	Endpoint string
	Insecure bool
	// SampleRate is the ratio of new root traces that are sampled. Values
	// outside (0, 1] mean 1.
	SampleRate float64
	Logger     *zap.SugaredLogger
}

func OptionsFromConfig(cfg config.Telemetry, version string, log *zap.SugaredLogger) Options {
	return Options{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
		Exporter:       cfg.Exporter,
		Endpoint:       cfg.Endpoint,
		Insecure:       cfg.Insecure,
		SampleRate:     cfg.SampleRate,
		Logger:         log,
	}
}

// ShutdownFunc flushes pending spans. It is safe to call more than once.
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// Init installs the global TracerProvider and the trace context propagator.
// The returned ShutdownFunc is never nil on success.
func Init(ctx context.Context, opts Options) (trace.TracerProvider, ShutdownFunc, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	switch opts.Exporter {
	case ExporterNone, "":
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp, noopShutdown, nil
	case ExporterOTLP:
	default:
		return nil, nil, fmt.Errorf("unknown trace exporter %q: supported values are %s, %s", opts.Exporter, ExporterOTLP, ExporterNone)
	}

	exporter, err := newOTLPExporter(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	res, err := newResource(opts)
	if err != nil {
		return nil, nil, err
	}

	rate := sampleRate(opts.SampleRate)
	if rate != opts.SampleRate {
		log.Warnw("Trace sample rate out of range, sampling everything", "configured", opts.SampleRate)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		log.Warnw("OpenTelemetry export error", "error", err)
	}))
	log.Infow("Tracing enabled", "endpoint", opts.Endpoint, "sampleRate", rate)

	var once sync.Once
	var shutdownErr error
	shutdown := func(ctx context.Context) error {
		once.Do(func() {
			flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
			defer cancel()
			shutdownErr = tp.Shutdown(flushCtx)
		})
		return shutdownErr
	}
	return tp, shutdown, nil
}

func newOTLPExporter(ctx context.Context, opts Options) (sdktrace.SpanExporter, error) {
	var httpOpts []otlptracehttp.Option
	if opts.Endpoint != "" {
		httpOpts = append(httpOpts, otlptracehttp.WithEndpoint(opts.Endpoint))
	}
	if opts.Insecure {
		httpOpts = append(httpOpts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, httpOpts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}
	return exporter, nil
}

func newResource(opts Options) (*resource.Resource, error) {
	name := opts.ServiceName
	if name == "" {
		name = DefaultServiceName
	}
	// Schemaless so the merge never conflicts with the SDK default schema URL.
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", name),
		attribute.String("service.version", opts.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}
	return res, nil
}

func sampleRate(r float64) float64 {
	if r <= 0 || r > 1 {
		return 1
	}
	return r
}

// Middleware continues the caller's trace: a valid traceparent header makes
// spans started further down the chain children of the remote span.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
