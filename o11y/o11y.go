// Package o11y carries tracing, structured logging and metrics through a context.
//
// A Provider is attached to a context with WithProvider. Contexts without one
// fall back to a provider that does nothing, so instrumented code never checks.
package o11y

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rollbar/rollbar-go"
)

type Provider interface {
	// AddGlobalField sets a field reported with every span, such as service or version.
	AddGlobalField(key string, val interface{})

	// StartSpan opens a span named for a unit of work. The caller must End it:
	//
	//	ctx, span := o11y.StartSpan(ctx, "modellr: load")
	//	defer o11y.End(span, &err)
	StartSpan(ctx context.Context, name string) (context.Context, Span)

	// GetSpan is nil when ctx holds no span.
	GetSpan(ctx context.Context) Span

	// AddField sets an "app." prefixed field on the span in ctx.
	AddField(ctx context.Context, key string, val interface{})

	// Log reports a zero duration event.
	Log(ctx context.Context, name string, fields ...Pair)

	Close(ctx context.Context)

	MetricsProvider() MetricsProvider
}

type Span interface {
	// AddField stores key under the "app." namespace.
	AddField(key string, val interface{})
	// AddRawField stores key as is. Intended for plumbing fields like result or db.alias.
	AddRawField(key string, val interface{})
	// RecordMetric queues a metric, which is emitted from the span fields on End.
	RecordMetric(metric Metric)
	// End completes the span. It must not be used afterwards.
	End()
}

type providerKey struct{}

func WithProvider(ctx context.Context, p Provider) context.Context {
	return context.WithValue(ctx, providerKey{}, p)
}

// FromContext never returns nil.
func FromContext(ctx context.Context) Provider {
	if p, ok := ctx.Value(providerKey{}).(Provider); ok {
		return p
	}
	return defaultProvider
}

func StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return FromContext(ctx).StartSpan(ctx, name)
}

func AddField(ctx context.Context, key string, val interface{}) {
	FromContext(ctx).AddField(ctx, key, val)
}

func Log(ctx context.Context, name string, fields ...Pair) {
	FromContext(ctx).Log(ctx, name, fields...)
}

// LogError reports a zero duration event carrying err.
func LogError(ctx context.Context, name string, err error, fields ...Pair) {
	_, span := StartSpan(ctx, name)
	for _, f := range fields {
		span.AddField(f.Key, f.Value)
	}
	End(span, &err)
}

// End records the result held in *err and ends the span. Passing a pointer lets
// End be deferred straight after StartSpan and still see the final named return.
func End(span Span, err *error) {
	var e error
	if err != nil {
		e = *err
	}
	AddResultToSpan(span, e)
	span.End()
}

// AddResultToSpan sets the "result" field, plus "error" or "warning" when err is not nil.
// Warnings count as a success and context errors as canceled.
func AddResultToSpan(span Span, err error) {
	result := "success"
	switch {
	case err == nil:
	case IsWarning(err):
		span.AddRawField("warning", err.Error())
	case isContextErr(err):
		result = "canceled"
		span.AddRawField("warning", err.Error())
	default:
		result = "error"
		span.AddRawField("error", err.Error())
	}
	span.AddRawField("result", result)
}

// HandlePanic marks the span as panicked and turns the recovered value into an error.
// The panic is also reported to rollbar when the provider in ctx has a client. r is the
// request being served, if any.
func HandlePanic(ctx context.Context, span Span, recovered interface{}, r *http.Request) error {
	err := fmt.Errorf("panic handled: %+v", recovered)
	span.AddRawField("panic", recovered)
	span.AddRawField("has_panicked", "true")
	span.AddRawField("stack", string(debug.Stack()))
	span.RecordMetric(Incr("panics", "name"))

	rollable, ok := FromContext(ctx).(rollbarAble)
	if !ok {
		return err
	}
	client := rollable.RollBarClient()
	if r != nil {
		client.RequestError(rollbar.CRIT, r, err)
	} else {
		client.LogPanic(recovered, true)
	}
	return err
}

type rollbarAble interface {
	RollBarClient() *rollbar.Client
}

type Pair struct {
	Key   string
	Value interface{}
}

func Field(key string, value interface{}) Pair {
	return Pair{Key: key, Value: value}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
