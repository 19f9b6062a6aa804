// Package otelx installs the global OpenTelemetry tracer provider and
// propagators. Spans from the file API and the filesystem layer share the
// service name "<service>.<component>".
package otelx

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"

	"github.com/keithlinneman/linnemanlabs-filegw/internal/xerrors"
)

type Options struct {
	Enabled   bool
	Endpoint  string
	Insecure  bool
	Sample    float64
	Service   string
	Component string
	Version   string
}

// dialTimeout bounds exporter setup; a local collector answers well within it.
const dialTimeout = 3 * time.Second

// Init sets the global tracer provider and returns its shutdown func. When
// disabled an SDK provider that never samples is installed, so spans are
// cheap and no exporter runs.
func Init(ctx context.Context, o Options) (func(context.Context) error, error) {
	setPropagator()

	if !o.Enabled {
		otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample())))
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(o.Endpoint),
		otlptracegrpc.WithDialOption(grpc.WithUserAgent(userAgent(o))),
	}
	if o.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, dialTimeout)
	defer dialCancel()
	exp, err := otlptracegrpc.New(dialCtx, opts...)
	if err != nil {
		return nil, xerrors.Wrapf(err, "create otlp exporter endpoint=%s", o.Endpoint)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler(o.Sample)),
		sdktrace.WithBatcher(exp,
			sdktrace.WithMaxQueueSize(2048),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(newResource(ctx, o)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func userAgent(o Options) string {
	ua := serviceName(o.Service, o.Component)
	if o.Version != "" {
		ua += "/" + o.Version
	}
	return ua
}

func setPropagator() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
}

// sampler honors the parent's decision and samples root spans at ratio,
// clamped to [0,1].
func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio <= 0:
		ratio = 0
	case ratio > 1:
		ratio = 1
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// serviceName joins service and component, dropping whichever is empty.
func serviceName(service, component string) string {
	switch {
	case service == "":
		return component
	case component == "":
		return service
	}
	return service + "." + component
}

func newResource(ctx context.Context, o Options) *resource.Resource {
	// partial resources are still useful; detector errors are ignored
	res, _ := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName(o.Service, o.Component)),
			semconv.ServiceVersionKey.String(o.Version),
		),
	)
	if res == nil {
		return resource.Default()
	}
	return res
}
