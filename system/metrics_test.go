package system

import (
	"context"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/circleci/modellr/o11y"
	"github.com/circleci/modellr/o11y/zlog"
	"github.com/circleci/modellr/testing/fakemetrics"
)

type gauges map[string]float64

func (g gauges) MetricName() string                        { return "modellr-db" }
func (g gauges) Gauges(context.Context) map[string]float64 { return g }

func TestPublishGauges(t *testing.T) {
	metrics := &fakemetrics.Provider{}
	ctx := o11y.WithProvider(context.Background(), zlog.New(zlog.Config{Metrics: metrics}))

	publishGauges(ctx, []MetricProducer{gauges{"in_use": 2, "idle": 3}})

	calls := metrics.Calls()
	assert.Assert(t, cmp.Len(calls, 2))
	assert.Check(t, cmp.DeepEqual(calls, []fakemetrics.MetricCall{
		{Metric: "gauge", Name: "gauge.modellr_db.idle", Value: 3, Tags: []string{}, Rate: 1},
		{Metric: "gauge", Name: "gauge.modellr_db.in_use", Value: 2, Tags: []string{}, Rate: 1},
	}))
}
