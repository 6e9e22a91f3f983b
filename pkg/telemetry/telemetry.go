package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pixperk/objmutex/pkg/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// installs the global tracer provider chosen by the config
// the returned func flushes and stops it; with no exporter configured it is a no-op
func Setup(cfg config.TelemetryConfig) (func(context.Context) error, error) {
	return setup(cfg, os.Stderr)
}

func setup(cfg config.TelemetryConfig, w io.Writer) (func(context.Context) error, error) {
	switch cfg.TraceExporter {
	case "", "none":
		return func(context.Context) error { return nil }, nil
	case "stdout":
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.TraceExporter)
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
