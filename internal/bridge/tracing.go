package bridge

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/signalsfoundry/pawnbridge/internal/bridge"

// tracer resolves the tracer on each use so InitTracing may run after the
// bridge is constructed.
func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
