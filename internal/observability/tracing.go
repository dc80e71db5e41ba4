package observability

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/pawnbridge/internal/logging"
)

// Environment variables read by TracingConfigFromEnv.
const (
	EnvTracingEnabled    = "PAWNBRIDGE_TRACING_ENABLED"
	EnvTracingExporter   = "PAWNBRIDGE_TRACING_EXPORTER"
	EnvTracingService    = "PAWNBRIDGE_TRACING_SERVICE_NAME"
	EnvTracingRatio      = "PAWNBRIDGE_TRACING_SAMPLE_RATIO"
	EnvTracingAttributes = "PAWNBRIDGE_TRACING_ATTRIBUTES"
	EnvOTLPEndpoint      = "PAWNBRIDGE_OTLP_ENDPOINT"
)

// Resource attribute keys describing the bridge instance. Every request and
// tick span carries them through the tracer provider's resource.
const (
	AttrListenAddr = attribute.Key("pawnbridge.listen_addr")
	AttrWorldPawns = attribute.Key("pawnbridge.world.pawns")
	AttrTickPeriod = attribute.Key("pawnbridge.tick_interval_ms")
)

const serviceNamespace = "pawnbridge"

// TracingConfig governs how request and tick tracing is initialised.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string // stdout | otlp
	Endpoint    string // used when Exporter == otlp
	SampleRatio float64

	// Instance description, filled in by the server from its own settings.
	ListenAddr   string
	WorldPawns   int
	TickInterval time.Duration

	// Attributes are extra resource attributes, from
	// PAWNBRIDGE_TRACING_ATTRIBUTES as comma-separated key=value pairs.
	Attributes map[string]string
}

// TracingConfigFromEnv pulls tracing configuration from environment variables,
// using sensible defaults when unset.
func TracingConfigFromEnv() TracingConfig {
	return tracingConfigFrom(os.Getenv)
}

func tracingConfigFrom(getenv func(string) string) TracingConfig {
	cfg := TracingConfig{
		Enabled:     strings.EqualFold(getenv(EnvTracingEnabled), "true"),
		ServiceName: getenv(EnvTracingService),
		Exporter:    strings.ToLower(getenv(EnvTracingExporter)),
		Endpoint:    getenv(EnvOTLPEndpoint),
		SampleRatio: 1,
		Attributes:  parseAttributes(getenv(EnvTracingAttributes)),
	}
	if cfg.Exporter == "" {
		cfg.Exporter = "stdout"
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = serviceNamespace
	}
	if raw := getenv(EnvTracingRatio); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed >= 0 && parsed <= 1 {
			cfg.SampleRatio = parsed
		}
	}
	return cfg
}

// parseAttributes reads "k1=v1,k2=v2". Pairs without a key are skipped.
func parseAttributes(raw string) map[string]string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		k, v, _ := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

// resourceAttributes describes this bridge instance. Extra attributes are
// sorted by key and never override the built-in ones.
func resourceAttributes(cfg TracingConfig, instanceID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.namespace", serviceNamespace),
		attribute.String("service.instance.id", instanceID),
	}
	if cfg.ListenAddr != "" {
		attrs = append(attrs, AttrListenAddr.String(cfg.ListenAddr))
	}
	if cfg.WorldPawns > 0 {
		attrs = append(attrs, AttrWorldPawns.Int(cfg.WorldPawns))
	}
	if cfg.TickInterval > 0 {
		attrs = append(attrs, AttrTickPeriod.Int64(cfg.TickInterval.Milliseconds()))
	}

	builtin := make(map[string]bool, len(attrs))
	for _, kv := range attrs {
		builtin[string(kv.Key)] = true
	}
	keys := make([]string, 0, len(cfg.Attributes))
	for k := range cfg.Attributes {
		if !builtin[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, attribute.String(k, cfg.Attributes[k]))
	}
	return attrs
}

// InitTracing installs the global tracer provider used by the bridge's
// request and tick spans. It returns a shutdown function to flush spans.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}

	if !cfg.Enabled {
		otel.SetTracerProvider(trace.NewNoopTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Info(ctx, "tracing disabled; using noop tracer provider")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := exporterFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	tp, err := newTracerProvider(ctx, cfg, exp)
	if err != nil {
		return nil, err
	}

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", cfg.ServiceName),
		logging.String("listen_addr", cfg.ListenAddr),
		logging.Float("sample_ratio", cfg.SampleRatio),
	)
	return tp.Shutdown, nil
}

func newTracerProvider(ctx context.Context, cfg TracingConfig, exp sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(resourceAttributes(cfg, uuid.NewString())...),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	), nil
}

func exporterFromConfig(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "stdout", "":
		return stdouttrace.New(
			stdouttrace.WithWriter(os.Stdout),
			stdouttrace.WithoutTimestamps(),
		)
	case "otlp", "otlpgrpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
		return otlptrace.New(ctx, client)
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}
}

// ShutdownWithTimeout flushes spans with a bounded timeout. Errors are only
// logged.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
