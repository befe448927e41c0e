// Package zlog is an o11y provider that renders spans and log events as zerolog records.
//
// A span is written once, when it ends, with its duration and all of its fields.
// Metrics recorded on a span are sent to the configured MetricsProvider at the same point.
package zlog

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/circleci/modellr/o11y"
)

type Config struct {
	// Writer defaults to os.Stdout
	Writer io.Writer
	// Format is either "json" (the default) or "text"
	Format string
	Level  zerolog.Level
	// Metrics defaults to a no-op statsd client
	Metrics o11y.MetricsProvider
}

type Provider struct {
	logger  zerolog.Logger
	metrics o11y.MetricsProvider

	mu     sync.RWMutex
	global map[string]interface{}
}

func New(cfg Config) *Provider {
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	if cfg.Format == "text" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "2006-01-02 15:04:05", NoColor: true}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = &statsd.NoOpClient{}
	}
	return &Provider{
		logger:  zerolog.New(w).Level(cfg.Level).With().Timestamp().Logger(),
		metrics: metrics,
		global:  map[string]interface{}{},
	}
}

func (p *Provider) AddGlobalField(key string, val interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.global[key] = val
}

type spanKey struct{}

func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, o11y.Span) {
	parent := getSpan(ctx)
	s := &span{
		provider: p,
		name:     name,
		id:       uuid.New(),
		started:  time.Now(),
		fields:   map[string]interface{}{},
	}
	if parent == nil {
		s.traceID = uuid.New()
	} else {
		s.traceID = parent.traceID
		s.parentID = parent.id
	}
	return context.WithValue(ctx, spanKey{}, s), s
}

func (p *Provider) GetSpan(ctx context.Context) o11y.Span {
	s := getSpan(ctx)
	if s == nil {
		return nil
	}
	return s
}

func (p *Provider) AddField(ctx context.Context, key string, val interface{}) {
	s := getSpan(ctx)
	if s == nil {
		return
	}
	s.AddField(key, val)
}

func (p *Provider) Log(ctx context.Context, name string, fields ...o11y.Pair) {
	e := p.logger.Info()
	if s := getSpan(ctx); s != nil {
		e = e.Str("trace_id", s.traceID.String()).Str("parent_id", s.id.String())
	}
	e = p.withGlobal(e)
	for _, f := range fields {
		e = addValue(e, "app."+f.Key, f.Value)
	}
	e.Msg(name)
}

func (p *Provider) Close(_ context.Context) {
	if c, ok := p.metrics.(io.Closer); ok {
		_ = c.Close()
	}
}

func (p *Provider) MetricsProvider() o11y.MetricsProvider {
	return p.metrics
}

func (p *Provider) withGlobal(e *zerolog.Event) *zerolog.Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for k, v := range p.global {
		e = addValue(e, k, v)
	}
	return e
}

func getSpan(ctx context.Context) *span {
	if s, ok := ctx.Value(spanKey{}).(*span); ok {
		return s
	}
	return nil
}

type span struct {
	provider *Provider
	name     string
	id       uuid.UUID
	traceID  uuid.UUID
	parentID uuid.UUID
	started  time.Time

	mu      sync.Mutex
	fields  map[string]interface{}
	metrics []o11y.Metric
}

func (s *span) AddField(key string, val interface{}) {
	s.AddRawField("app."+key, val)
}

func (s *span) AddRawField(key string, val interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields[key] = val
}

func (s *span) RecordMetric(metric o11y.Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, metric)
}

func (s *span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()

	duration := time.Since(s.started)
	s.fields["duration_ms"] = float64(duration) / float64(time.Millisecond)

	level := zerolog.DebugLevel
	if s.fields["result"] == "error" {
		level = zerolog.ErrorLevel
	}

	e := s.provider.logger.WithLevel(level).
		Str("span_id", s.id.String()).
		Str("trace_id", s.traceID.String())
	if s.parentID != uuid.Nil {
		e = e.Str("parent_id", s.parentID.String())
	}
	e = s.provider.withGlobal(e)
	for k, v := range s.fields {
		e = addValue(e, k, v)
	}
	e.Msg(s.name)

	for _, m := range s.metrics {
		s.emit(m)
	}
}

func (s *span) emit(m o11y.Metric) {
	tags := make([]string, 0, len(m.TagFields))
	for _, f := range m.TagFields {
		v, ok := s.field(f)
		if !ok {
			continue
		}
		tags = append(tags, fmt.Sprintf("%s:%v", f, v))
	}

	metrics := s.provider.metrics
	switch m.Type {
	case o11y.MetricTimer:
		if v, ok := s.floatField(m.Field); ok {
			_ = metrics.TimeInMilliseconds(m.Name, v, tags, 1)
		}
	case o11y.MetricGauge:
		if v, ok := s.floatField(m.Field); ok {
			_ = metrics.Gauge(m.Name, v, tags, 1)
		}
	case o11y.MetricCount:
		_ = metrics.Count(m.Name, 1, tags, 1)
	}
}

// field finds a raw field first and falls back to the app prefixed one
func (s *span) field(key string) (interface{}, bool) {
	if v, ok := s.fields[key]; ok {
		return v, true
	}
	v, ok := s.fields["app."+key]
	return v, ok
}

func (s *span) floatField(key string) (float64, bool) {
	v, ok := s.field(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func addValue(e *zerolog.Event, key string, val interface{}) *zerolog.Event {
	switch v := val.(type) {
	case string:
		return e.Str(key, v)
	case error:
		return e.Str(key, v.Error())
	case fmt.Stringer:
		return e.Str(key, v.String())
	default:
		return e.Interface(key, v)
	}
}
