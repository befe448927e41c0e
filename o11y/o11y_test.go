package o11y

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rollbar/rollbar-go"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

type recordingSpan struct {
	fields  map[string]interface{}
	metrics []Metric
	ended   bool
}

func newRecordingSpan() *recordingSpan {
	return &recordingSpan{fields: map[string]interface{}{}}
}

func (s *recordingSpan) AddField(key string, val interface{})    { s.fields["app."+key] = val }
func (s *recordingSpan) AddRawField(key string, val interface{}) { s.fields[key] = val }
func (s *recordingSpan) RecordMetric(metric Metric)              { s.metrics = append(s.metrics, metric) }
func (s *recordingSpan) End()                                    { s.ended = true }

// spanProvider hands out one recording span and otherwise does nothing.
type spanProvider struct {
	noopProvider
	span *recordingSpan
}

func (p spanProvider) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, p.span
}

func TestFromContext(t *testing.T) {
	assert.Check(t, cmp.Equal(FromContext(context.Background()), defaultProvider))

	p := spanProvider{span: newRecordingSpan()}
	ctx := WithProvider(context.Background(), p)
	assert.Check(t, cmp.Equal(FromContext(ctx), Provider(p)))
}

func TestNoProvider(t *testing.T) {
	ctx := context.Background()
	Log(ctx, "modellr: connection pruned", Field("alias", "b"))
	AddField(ctx, "alias", "b")

	nctx, span := StartSpan(ctx, "modellr: load")
	assert.Check(t, span != nil)
	assert.Check(t, nctx == ctx)
	span.RecordMetric(Timing("modellr.load"))
	span.End()
}

func TestLogError(t *testing.T) {
	span := newRecordingSpan()
	ctx := WithProvider(context.Background(), spanProvider{span: span})

	LogError(ctx, "monitor: instances unhealthy", errors.New("refused"), Field("alias", "a"))
	assert.Check(t, span.ended)
	assert.Check(t, cmp.Equal(span.fields["app.alias"], "a"))
	assert.Check(t, cmp.Equal(span.fields["error"], "refused"))
	assert.Check(t, cmp.Equal(span.fields["result"], "error"))
}

func TestHandlePanic(t *testing.T) {
	span := newRecordingSpan()
	err := func() (err error) {
		defer func() {
			err = HandlePanic(context.Background(), span, recover(), nil)
		}()
		panic("factory exploded")
	}()

	assert.Check(t, cmp.Error(err, "panic handled: factory exploded"))
	assert.Check(t, cmp.Equal(span.fields["has_panicked"], "true"))
	assert.Check(t, cmp.Equal(span.fields["panic"], "factory exploded"))
	assert.Check(t, cmp.Contains(span.fields["stack"], "TestHandlePanic"))
	assert.Check(t, cmp.DeepEqual(span.metrics, []Metric{Incr("panics", "name")}))
}

type rollbarProvider struct {
	noopProvider
	client *rollbar.Client
}

func (p rollbarProvider) RollBarClient() *rollbar.Client {
	return p.client
}

func TestHandlePanic_Rollbar(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		_, _ = w.Write([]byte(`{"err":0}`))
	}))
	defer ts.Close()

	client := rollbar.NewSync("test-token", "test", "dev", "localhost", "")
	client.SetEndpoint(ts.URL + "/")
	defer client.Close()
	ctx := WithProvider(context.Background(), rollbarProvider{client: client})

	t.Run("panic", func(t *testing.T) {
		err := HandlePanic(ctx, newRecordingSpan(), "factory exploded", nil)
		assert.Check(t, cmp.Error(err, "panic handled: factory exploded"))
	})

	t.Run("request", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/instances", nil)
		err := HandlePanic(ctx, newRecordingSpan(), "handler exploded", r)
		assert.Check(t, cmp.Error(err, "panic handled: handler exploded"))
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Assert(t, cmp.Len(bodies, 2))
	assert.Check(t, cmp.Contains(bodies[0], "factory exploded"))
	assert.Check(t, cmp.Contains(bodies[1], "handler exploded"))
	assert.Check(t, cmp.Contains(bodies[1], "/instances"))
}

func TestAddResultToSpan(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		fields map[string]interface{}
	}{
		{
			name:   "nil",
			fields: map[string]interface{}{"result": "success"},
		},
		{
			name:   "error",
			err:    errors.New("refused"),
			fields: map[string]interface{}{"result": "error", "error": "refused"},
		},
		{
			name:   "wrapped warning",
			err:    fmt.Errorf("prune: %w", NewWarning("connection failed")),
			fields: map[string]interface{}{"result": "success", "warning": "prune: connection failed"},
		},
		{
			name:   "canceled",
			err:    context.Canceled,
			fields: map[string]interface{}{"result": "canceled", "warning": "context canceled"},
		},
		{
			name:   "wrapped deadline",
			err:    fmt.Errorf("authenticate: %w", context.DeadlineExceeded),
			fields: map[string]interface{}{"result": "canceled", "warning": "authenticate: context deadline exceeded"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			span := newRecordingSpan()
			AddResultToSpan(span, tt.err)
			assert.Check(t, cmp.DeepEqual(span.fields, tt.fields))
		})
	}
}

func TestEnd(t *testing.T) {
	t.Run("reads the final error", func(t *testing.T) {
		span := newRecordingSpan()
		func() (err error) {
			defer End(span, &err)
			err = errors.New("first")
			return errors.New("last")
		}()
		assert.Check(t, cmp.Equal(span.fields["error"], "last"))
		assert.Check(t, span.ended)
	})

	t.Run("nil pointer", func(t *testing.T) {
		span := newRecordingSpan()
		End(span, nil)
		assert.Check(t, cmp.Equal(span.fields["result"], "success"))
		assert.Check(t, span.ended)
	})
}

func TestMetrics(t *testing.T) {
	assert.Check(t, cmp.DeepEqual(Timing("modellr.authenticate", "db.alias"),
		Metric{Type: MetricTimer, Name: "modellr.authenticate", Field: "duration_ms", TagFields: []string{"db.alias"}}))
	assert.Check(t, cmp.DeepEqual(Gauge("modellr", "instances_live"),
		Metric{Type: MetricGauge, Name: "modellr", Field: "instances_live"}))
}
