package infra

import (
	"context"
	"log"
	"time"

	"github.com/harborcrm/crm-import-orchestrator/config"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// TelemetryClient owns the OTLP metric and trace pipelines. It is optional:
// when no endpoint is configured (local development) it is nil and nothing
// is exported.
type TelemetryClient struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
}

func InitTelemetryClient(cfg *config.EnvConfig) *TelemetryClient {
	if cfg.Environment.Mode == "development" || cfg.Grafana.OTLPEndpoint == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.Grafana.ServiceName),
		semconv.DeploymentEnvironment(cfg.Environment.Mode),
	))
	if err != nil {
		res = resource.Default()
	}

	metricExporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(cfg.Grafana.OTLPEndpoint),
	)
	if err != nil {
		log.Printf("Warning: OTLP metric exporter init failed: %v, metrics disabled", err)
		return nil
	}

	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Grafana.OTLPEndpoint),
	)
	if err != nil {
		log.Printf("Warning: OTLP trace exporter init failed: %v, tracing disabled", err)
		return nil
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
			sdkmetric.WithInterval(30*time.Second))),
	)
	otel.SetMeterProvider(meterProvider)

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
	)
	otel.SetTracerProvider(tracerProvider)

	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		log.Printf("Warning: runtime instrumentation failed: %v", err)
	}

	return &TelemetryClient{
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
	}
}

func (t *TelemetryClient) Shutdown(ctx context.Context) {
	if t == nil {
		return
	}
	if err := t.meterProvider.Shutdown(ctx); err != nil {
		log.Printf("Warning: meter provider shutdown failed: %v", err)
	}
	if err := t.tracerProvider.Shutdown(ctx); err != nil {
		log.Printf("Warning: tracer provider shutdown failed: %v", err)
	}
}
