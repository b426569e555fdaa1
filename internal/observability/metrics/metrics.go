package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes alerting-level instruments.
type Metrics struct {
	rulesEvaluated        metric.Int64Counter
	alertsTriggered       metric.Int64Counter
	anomalyAdvisories     metric.Int64Counter
	notificationsAttempts metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "wattwatch"
	}
	meter := provider.Meter(name)

	rulesEvaluated, err := meter.Int64Counter("wattwatch_rules_evaluated_total")
	if err != nil {
		return nil, err
	}
	alertsTriggered, err := meter.Int64Counter("wattwatch_alerts_triggered_total")
	if err != nil {
		return nil, err
	}
	anomalyAdvisories, err := meter.Int64Counter("wattwatch_anomaly_advisories_total")
	if err != nil {
		return nil, err
	}
	notificationsAttempts, err := meter.Int64Counter("wattwatch_notifications_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		rulesEvaluated:        rulesEvaluated,
		alertsTriggered:       alertsTriggered,
		anomalyAdvisories:     anomalyAdvisories,
		notificationsAttempts: notificationsAttempts,
	}, nil
}

// RecordRuleEvaluated counts a single rule evaluation by outcome (triggered, skipped, deduped, error).
func (m *Metrics) RecordRuleEvaluated(ctx context.Context, period, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("period", strings.TrimSpace(period)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.rulesEvaluated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAlertTriggered counts persisted triggered events.
func (m *Metrics) RecordAlertTriggered(ctx context.Context, period, severity string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("period", strings.TrimSpace(period)),
		attribute.String("severity", strings.TrimSpace(severity)),
	)
	m.alertsTriggered.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAnomalyAdvisory counts raised anomaly advisories.
func (m *Metrics) RecordAnomalyAdvisory(ctx context.Context, scopeKind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("scope_kind", strings.TrimSpace(scopeKind)))
	m.anomalyAdvisories.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordNotification counts publish attempts on the notification surface.
func (m *Metrics) RecordNotification(ctx context.Context, driver, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("driver", strings.TrimSpace(driver)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.notificationsAttempts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"period":     {},
	"outcome":    {},
	"severity":   {},
	"scope_kind": {},
	"driver":     {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
