package testcontext

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/circleci/modellr/o11y"
)

func TestBackground_MetricsProvider(t *testing.T) {
	ctx := Background()
	metrics := o11y.FromContext(ctx).MetricsProvider()

	err := metrics.Gauge("gauge", 1, nil, 1)
	assert.Assert(t, err)
}

func TestBackground_Span(t *testing.T) {
	ctx := Background()
	ctx, span := o11y.StartSpan(ctx, "test span")
	defer span.End()

	assert.Check(t, o11y.FromContext(ctx).GetSpan(ctx) != nil)
}
