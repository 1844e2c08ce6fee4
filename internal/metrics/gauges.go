package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// FlowCounter reports the number of flows held by the correlator.
type FlowCounter interface {
	Len() int
}

// RegisterFlowGauge exports the number of tracked flows as <namespace>_exchange_flows.
// The value is read at collection time.
func RegisterFlowGauge(meterProvider metric.MeterProvider, namespace string, flows FlowCounter) error {
	meter := meterProvider.Meter(namespace)

	_, err := meter.Int64ObservableGauge(
		fmt.Sprintf("%s_exchange_flows", namespace),
		metric.WithDescription("Number of exchange flows tracked in memory"),
		metric.WithUnit("{flow}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(flows.Len()))
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create flow gauge: %w", err)
	}
	return nil
}
