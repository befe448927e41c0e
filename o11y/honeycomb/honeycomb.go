// Package honeycomb is the beeline backed o11y provider. Spans become libhoney events that
// are written locally and, when enabled, sent on to honeycomb.
package honeycomb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/honeycombio/beeline-go"
	"github.com/honeycombio/beeline-go/client"
	"github.com/honeycombio/beeline-go/trace"
	"github.com/honeycombio/dynsampler-go"
	"github.com/honeycombio/libhoney-go"
	"github.com/honeycombio/libhoney-go/transmission"

	"github.com/circleci/modellr/o11y"
)

type Config struct {
	Host    string
	Dataset string
	Key     string
	// Format of the local output, "json" (the default) or "text"
	Format string
	// SendTraces sends events to the honeycomb API as well as writing them locally
	SendTraces bool
	// Sender replaces the honeycomb API transmission, mainly for tests
	Sender        transmission.Sender
	SampleTraces  bool
	SampleKeyFunc func(map[string]interface{}) string
	SampleRates   map[string]int
	// Writer defaults to os.Stderr
	Writer  io.Writer
	Metrics o11y.MetricsProvider
	// ServiceName is added to the honeycomb user agent
	ServiceName string

	Debug bool
}

func (c *Config) Validate() error {
	// the key is only needed to send with the default transmission
	if c.SendTraces && c.Key == "" && c.Sender == nil {
		return errors.New("honeycomb key required for honeycomb")
	}
	switch c.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("unknown format %q", c.Format)
	}
	return nil
}

func (c *Config) sender() transmission.Sender {
	writer := c.Writer
	if writer == nil {
		writer = os.Stderr
	}

	s := &MultiSender{}
	if c.SendTraces {
		if c.Sender == nil {
			s.Senders = append(s.Senders, &transmission.Honeycomb{
				MaxBatchSize:         libhoney.DefaultMaxBatchSize,
				BatchTimeout:         libhoney.DefaultBatchTimeout,
				MaxConcurrentBatches: libhoney.DefaultMaxConcurrentBatches,
				PendingWorkCapacity:  libhoney.DefaultPendingWorkCapacity,
				UserAgentAddition:    c.ServiceName,
			})
		} else {
			s.Senders = append(s.Senders, c.Sender)
		}
	}

	if c.Format == "text" {
		s.Senders = append(s.Senders, &TextSender{w: writer})
	} else {
		s.Senders = append(s.Senders, &transmission.WriterSender{W: writer})
	}
	return s
}

// metricKey holds the metrics recorded on a span until the presend hook emits them
const metricKey = "__MAGIC_METRIC_KEY__"

type Provider struct {
	metrics o11y.MetricsProvider
}

// New initialises the global beeline. Only one provider should be in use at a time and it
// must be closed to flush pending events.
func New(conf Config) *Provider {
	if conf.Metrics == nil {
		conf.Metrics = &statsd.NoOpClient{}
	}

	// beeline ignores this error in its own constructor too
	c, _ := libhoney.NewClient(libhoney.ClientConfig{
		APIKey:       conf.Key,
		Dataset:      conf.Dataset,
		APIHost:      conf.Host,
		Transmission: conf.sender(),
	})

	bc := beeline.Config{
		Client:      c,
		Debug:       conf.Debug,
		WriteKey:    conf.Key,
		ServiceName: conf.ServiceName,
	}

	send := extractAndSendMetrics(conf.Metrics)
	if conf.SampleTraces {
		if conf.SampleRates == nil {
			conf.SampleRates = map[string]int{}
		}
		sampler := &TraceSampler{
			KeyFunc: conf.SampleKeyFunc,
			Sampler: &dynsampler.Static{
				Default: 1,
				Rates:   conf.SampleRates,
			},
		}
		// the presend hook is skipped for spans that are sampled out, so metrics go here
		bc.SamplerHook = func(fields map[string]interface{}) (bool, int) {
			send(fields)
			return sampler.Hook(fields)
		}
	} else {
		bc.PresendHook = send
	}

	beeline.Init(bc)
	return &Provider{metrics: conf.Metrics}
}

func extractAndSendMetrics(mp o11y.MetricsProvider) func(map[string]interface{}) {
	return func(fields map[string]interface{}) {
		standardErrorMetrics(mp, fields)

		metrics, ok := fields[metricKey].([]o11y.Metric)
		delete(fields, metricKey)
		if !ok {
			return
		}
		for _, m := range metrics {
			tags := extractTagsFromFields(m.TagFields, fields)
			switch m.Type {
			case o11y.MetricTimer:
				val, ok := getField(m.Field, fields)
				if !ok {
					continue
				}
				if ms, ok := toMilliSecond(val); ok {
					_ = mp.TimeInMilliseconds(m.Name, ms, tags, 1)
				}
			case o11y.MetricGauge:
				val, ok := getField(m.Field, fields)
				if !ok {
					continue
				}
				if f, ok := toFloat64(val); ok {
					_ = mp.Gauge(m.Name, f, tags, 1)
				}
			case o11y.MetricCount:
				_ = mp.Count(m.Name, 1, tags, 1)
			}
		}
	}
}

// standardErrorMetrics counts every span that ended with an error or a warning.
func standardErrorMetrics(mp o11y.MetricsProvider, fields map[string]interface{}) {
	tag := []string{fmtTag("type", "o11y")}
	if _, ok := fields["error"]; ok {
		_ = mp.Count("error", 1, tag, 1)
	}
	if _, ok := fields["warning"]; ok {
		_ = mp.Count("warning", 1, tag, 1)
	}
}

func extractTagsFromFields(tags []string, fields map[string]interface{}) []string {
	result := make([]string, 0, len(tags))
	for _, name := range tags {
		if val, ok := getField(name, fields); ok {
			result = append(result, fmtTag(name, val))
		}
	}
	return result
}

// getField falls back to the app prefixed field
func getField(name string, fields map[string]interface{}) (interface{}, bool) {
	val, ok := fields[name]
	if !ok {
		val, ok = fields["app."+name]
	}
	return val, ok
}

func toFloat64(val interface{}) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func toMilliSecond(val interface{}) (float64, bool) {
	if f, ok := toFloat64(val); ok {
		return f, true
	}
	if d, ok := val.(time.Duration); ok {
		return float64(d) / float64(time.Millisecond), true
	}
	return 0, false
}

func fmtTag(name string, val interface{}) string {
	return fmt.Sprintf("%s:%v", name, val)
}

func (h *Provider) AddGlobalField(key string, val interface{}) {
	mustValidateKey(key)
	client.AddField(key, val)
}

func (h *Provider) StartSpan(ctx context.Context, name string) (context.Context, o11y.Span) {
	var s *trace.Span
	if parent := trace.GetSpanFromContext(ctx); parent != nil {
		ctx, s = parent.CreateAsyncChild(ctx)
	} else {
		// a new trace already has a root span, use it rather than nesting under it
		ctx, _ = trace.NewTrace(ctx, nil)
		s = trace.GetSpanFromContext(ctx)
	}
	s.AddField("name", name)
	return ctx, WrapSpan(s)
}

func (h *Provider) GetSpan(ctx context.Context) o11y.Span {
	return WrapSpan(trace.GetSpanFromContext(ctx))
}

func (h *Provider) AddField(ctx context.Context, key string, val interface{}) {
	mustValidateKey(key)
	beeline.AddField(ctx, key, val)
}

func (h *Provider) Log(ctx context.Context, name string, fields ...o11y.Pair) {
	_, s := beeline.StartSpan(ctx, name)
	span := WrapSpan(s)
	for _, f := range fields {
		span.AddField(f.Key, f.Value)
	}
	span.End()
}

// Close flushes the pending events and closes the metrics provider.
func (h *Provider) Close(_ context.Context) {
	beeline.Close()
	if c, ok := h.metrics.(io.Closer); ok {
		_ = c.Close()
	}
}

func (h *Provider) MetricsProvider() o11y.MetricsProvider {
	return h.metrics
}

// WrapSpan returns nil for a nil span so GetSpan keeps its contract.
func WrapSpan(s *trace.Span) o11y.Span {
	if s == nil {
		return nil
	}
	return &span{span: s}
}

type span struct {
	span    *trace.Span
	metrics []o11y.Metric
}

func (s *span) AddField(key string, val interface{}) {
	s.AddRawField("app."+key, val)
}

func (s *span) AddRawField(key string, val interface{}) {
	mustValidateKey(key)
	if err, ok := val.(error); ok {
		val = err.Error()
	}
	s.span.AddField(key, val)
}

func (s *span) RecordMetric(metric o11y.Metric) {
	s.metrics = append(s.metrics, metric)
	s.span.AddField(metricKey, s.metrics)
}

func (s *span) End() {
	s.span.Send()
}

func mustValidateKey(key string) {
	if strings.Contains(key, "-") {
		panic(fmt.Errorf("key %q cannot contain '-'", key))
	}
}
