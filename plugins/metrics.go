package plugins

import (
	"context"
	"fmt"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/courier"
	"github.com/casualjim/courier/events"
	"github.com/casualjim/courier/hooks"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names recorded by the Metrics plugin.
const (
	MetricDeliveries    = "courier.deliveries"
	MetricSendDuration  = "courier.send.duration"
	MetricSubscriptions = "courier.subscriptions"
)

type instruments struct {
	deliveries    metric.Int64Counter
	duration      metric.Float64Histogram
	subscriptions metric.Int64Counter
	started       *haxmap.Map[string, time.Time]
}

// Metrics records send outcomes, send durations and subscriptions on meter.
func Metrics(meter metric.Meter) courier.Plugin {
	return func(b *courier.Broker) (func(), error) {
		m, err := newInstruments(meter)
		if err != nil {
			return nil, err
		}

		removeBefore := b.UseBeforeSendHook(func(_ context.Context, env events.Envelope) hooks.Decision {
			m.started.Set(env.ID, time.Now())
			return hooks.Allow()
		})
		removeAfter := b.UseAfterSendHook(m.record)
		removeSubscribe := b.UseOnSubscribeHandler(func(ctx context.Context, eventType, _ string) {
			m.subscriptions.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", eventType)))
		})

		return func() {
			removeBefore()
			removeAfter()
			removeSubscribe()
		}, nil
	}
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	var (
		m   = &instruments{started: haxmap.New[string, time.Time]()}
		err error
	)
	m.deliveries, err = meter.Int64Counter(MetricDeliveries,
		metric.WithDescription("Number of sends by outcome"),
		metric.WithUnit("{send}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create deliveries counter: %w", err)
	}

	m.duration, err = meter.Float64Histogram(MetricSendDuration,
		metric.WithDescription("Time from the before-send gate to the send result"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	m.subscriptions, err = meter.Int64Counter(MetricSubscriptions,
		metric.WithDescription("Number of subscriptions made"),
		metric.WithUnit("{subscription}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriptions counter: %w", err)
	}
	return m, nil
}

func (m *instruments) record(ctx context.Context, env events.Envelope, result events.DeliveryResult) {
	mode := "unicast"
	if env.IsBroadcast() {
		mode = "broadcast"
	}
	attrs := metric.WithAttributes(
		attribute.String("event.type", env.Type),
		attribute.String("status", string(result.Status)),
		attribute.String("mode", mode),
	)

	m.deliveries.Add(ctx, 1, attrs)
	if start, ok := m.started.Get(env.ID); ok {
		m.started.Del(env.ID)
		m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}
