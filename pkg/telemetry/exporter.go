package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
)

// createMetricReaders creates one periodic reader per configured metric exporter.
func createMetricReaders(cfg Config) ([]metric.Reader, error) {
	var readers []metric.Reader

	for _, exporterName := range cfg.Exporters {
		switch exporterName {
		case ExporterStdout:
			exporter, err := stdoutmetric.New(
				stdoutmetric.WithWriter(cfg.output()),
				stdoutmetric.WithPrettyPrint(),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
			}
			readers = append(readers, metric.NewPeriodicReader(exporter, metric.WithInterval(cfg.ExportInterval)))
		default:
			continue
		}
	}

	return readers, nil
}

// createTraceExporters creates trace exporters based on configuration. The
// otlp exporter exports traces only; metrics stay on the stdout reader.
func createTraceExporters(cfg Config) ([]trace.SpanExporter, error) {
	var exporters []trace.SpanExporter

	for _, exporterName := range cfg.Exporters {
		switch exporterName {
		case ExporterStdout:
			exporter, err := stdouttrace.New(
				stdouttrace.WithWriter(cfg.output()),
				stdouttrace.WithPrettyPrint(),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
			}
			exporters = append(exporters, exporter)
		case ExporterOTLP:
			// the client connects lazily, so a missing collector is not an error here
			exporter, err := otlptracegrpc.New(
				context.Background(),
				otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
				otlptracegrpc.WithInsecure(),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
			}
			exporters = append(exporters, exporter)
		default:
			continue
		}
	}

	return exporters, nil
}
