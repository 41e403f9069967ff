package observe

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig configures the OpenTelemetry SDK providers.
type ProviderConfig struct {
	// ServiceName is the service name reported in telemetry. Default: "voxwidget".
	ServiceName string

	// ServiceVersion is the build version, set from -ldflags in main.
	ServiceVersion string

	// InstanceID tells replicas behind one widget domain apart, e.g. the
	// hostname. Default: a random UUID per process.
	InstanceID string

	// LLMProvider, STTProvider and TTSProvider are the configured provider
	// names. They are attached to the resource so dashboards can split
	// latency by upstream without a label on every data point. Empty names
	// are omitted.
	LLMProvider string
	STTProvider string
	TTSProvider string

	// Prometheus registers the Prometheus exporter bridge behind /metrics.
	// The chat client has no /metrics route and leaves it off, which keeps
	// the global meter provider a no-op.
	Prometheus bool

	// TraceExporter is an optional span exporter. When nil, spans are
	// recorded but not exported.
	TraceExporter sdktrace.SpanExporter
}

// newResource describes this process. Provider attributes use the
// voxwidget.* namespace. The attributes are schemaless so that the merge
// keeps the schema URL of [resource.Default], whatever semconv version the
// SDK was built with.
func newResource(cfg ProviderConfig) (*resource.Resource, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "voxwidget"
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceInstanceID(cfg.InstanceID),
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	for key, name := range map[string]string{
		"voxwidget.provider.llm": cfg.LLMProvider,
		"voxwidget.provider.stt": cfg.STTProvider,
		"voxwidget.provider.tts": cfg.TTSProvider,
	} {
		if name != "" {
			attrs = append(attrs, attribute.String(key, name))
		}
	}
	return resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
}

// InitProvider initialises the OTel SDK and registers the global providers:
//
//   - With cfg.Prometheus, a [sdkmetric.MeterProvider] read by the
//     Prometheus exporter, so the server's /metrics handler serves every
//     instrument of [DefaultMetrics].
//   - Always, a [sdktrace.TracerProvider] with the configured exporter, so
//     that log lines and X-Correlation-ID carry trace IDs.
//
// The returned function flushes and closes what was started. Call it during
// shutdown.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	var shutdownFuncs []func(context.Context) error

	// ── Metrics ──
	if cfg.Prometheus {
		promExp, err := promexporter.New()
		if err != nil {
			return nil, err
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(promExp),
		)
		otel.SetMeterProvider(mp)
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
	}

	// ── Traces ──
	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	shutdownFuncs = append(shutdownFuncs, tp.Shutdown)

	return func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			if e := fn(ctx); e != nil {
				errs = append(errs, e)
			}
		}
		return errors.Join(errs...)
	}, nil
}
