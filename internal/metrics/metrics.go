// Package metrics exposes OpenTelemetry counters through a Prometheus endpoint.
package metrics

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelglobal "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "coinline"

var (
	initOnce          sync.Once
	initErr           error
	transitionCounter metric.Int64Counter
	actionCounter     metric.Int64Counter
	conflictCounter   metric.Int64Counter
	dispatchFailures  metric.Int64Counter
)

var (
	AttrFrom      = attribute.Key("from")
	AttrTo        = attribute.Key("to")
	AttrOperation = attribute.Key("operation")
	AttrSink      = attribute.Key("sink")
)

// InitMeterProvider installs a global MeterProvider backed by a Prometheus
// exporter and returns the handler that serves /metrics.
func InitMeterProvider(ctx context.Context, serviceName string) (http.Handler, error) {
	if serviceName == "" {
		serviceName = "coinline"
	}
	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", serviceName)))
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otelglobal.SetMeterProvider(provider)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}), nil
}

func meter() metric.Meter {
	return otelglobal.Meter(meterName)
}

// Init creates the instruments. Safe to call more than once; call after
// InitMeterProvider. Record helpers are no-ops until Init ran.
func Init() error {
	initOnce.Do(func() {
		m := meter()
		if transitionCounter, initErr = m.Int64Counter("coinline_task_transitions_total", metric.WithDescription("Committed task status transitions")); initErr != nil {
			return
		}
		if actionCounter, initErr = m.Int64Counter("coinline_action_operations_total", metric.WithDescription("Committed action complete/uncomplete operations")); initErr != nil {
			return
		}
		if conflictCounter, initErr = m.Int64Counter("coinline_version_conflicts_total", metric.WithDescription("Optimistic write attempts lost to a concurrent writer")); initErr != nil {
			return
		}
		dispatchFailures, initErr = m.Int64Counter("coinline_dispatch_failures_total", metric.WithDescription("Side effects that failed or panicked"))
	})
	return initErr
}

func RecordTransition(ctx context.Context, from, to string) {
	if transitionCounter == nil {
		return
	}
	transitionCounter.Add(ctx, 1, metric.WithAttributes(AttrFrom.String(from), AttrTo.String(to)))
}

func RecordActionOp(ctx context.Context, op string) {
	if actionCounter == nil {
		return
	}
	actionCounter.Add(ctx, 1, metric.WithAttributes(AttrOperation.String(op)))
}

func RecordConflict(ctx context.Context, op string) {
	if conflictCounter == nil {
		return
	}
	conflictCounter.Add(ctx, 1, metric.WithAttributes(AttrOperation.String(op)))
}

func RecordDispatchFailure(ctx context.Context, sink string) {
	if dispatchFailures == nil {
		return
	}
	dispatchFailures.Add(ctx, 1, metric.WithAttributes(AttrSink.String(sink)))
}
