package system

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/circleci/modellr/o11y"
	"github.com/circleci/modellr/worker"
)

// MetricProducer is a component with gauges that are reported periodically.
type MetricProducer interface {
	// MetricName scopes the gauges, dashes become underscores
	MetricName() string
	Gauges(context.Context) map[string]float64
}

var metricsInterval = 10 * time.Second

// metricsReporter returns an errgroup func publishing the producer gauges every metricsInterval.
func metricsReporter(ctx context.Context, mps []MetricProducer) func() error {
	return func() error {
		return worker.Run(ctx, worker.Config{
			Name:          "metric-loop",
			MaxWorkTime:   time.Second,
			NoWorkBackOff: backoff.NewConstantBackOff(metricsInterval),
			WorkFunc: func(ctx context.Context) error {
				publishGauges(ctx, mps)
				return worker.ErrShouldBackoff
			},
		})
	}
}

func publishGauges(ctx context.Context, producers []MetricProducer) {
	metrics := o11y.FromContext(ctx).MetricsProvider()
	for _, p := range producers {
		scope := "gauge." + strings.ReplaceAll(p.MetricName(), "-", "_") + "."
		gauges := p.Gauges(ctx)

		names := make([]string, 0, len(gauges))
		for name := range gauges {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			_ = metrics.Gauge(scope+name, gauges[name], []string{}, 1)
		}
	}
}
