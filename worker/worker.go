package worker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/circleci/modellr/o11y"
)

// ErrShouldBackoff is returned by a WorkFunc that found nothing to do.
var ErrShouldBackoff = errors.New("should back off")

const defaultMaxWorkTime = 10 * time.Second

type Config struct {
	Name string
	// NoWorkBackOff paces the calls after a WorkFunc returned ErrShouldBackoff.
	// It is reset whenever a call did some work.
	NoWorkBackOff backoff.BackOff
	// MaxWorkTime bounds each call of WorkFunc, defaults to 10 seconds
	MaxWorkTime time.Duration
	WorkFunc    func(ctx context.Context) error

	waiter func(ctx context.Context, delay time.Duration)
}

// Run calls WorkFunc in a loop until ctx is done. Run always returns nil, so it can be
// handed straight to an errgroup.
func Run(ctx context.Context, cfg Config) error {
	cfg = setDefaults(cfg)
	cfg.NoWorkBackOff.Reset()

	failures := 0
	for ctx.Err() == nil {
		delay, err := doWork(ctx, cfg, failures)
		switch {
		case err != nil:
			failures++
		default:
			failures = 0
		}
		if delay < 0 {
			cfg.NoWorkBackOff.Reset()
			continue
		}
		cfg.waiter(ctx, delay)
	}
	return nil
}

func setDefaults(cfg Config) Config {
	if cfg.MaxWorkTime <= 0 {
		cfg.MaxWorkTime = defaultMaxWorkTime
	}
	if cfg.waiter == nil {
		cfg.waiter = wait
	}
	if cfg.NoWorkBackOff == nil {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 50 * time.Millisecond
		b.MaxInterval = 5 * time.Second
		b.MaxElapsedTime = 0
		cfg.NoWorkBackOff = b
	}
	return cfg
}

func wait(ctx context.Context, delay time.Duration) {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// doWork returns how long to wait before the next call, negative for no wait.
// The call is not canceled with the loop, only bounded by MaxWorkTime.
func doWork(parent context.Context, cfg Config, failures int) (delay time.Duration, err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), cfg.MaxWorkTime)
	defer cancel()

	ctx, span := o11y.StartSpan(ctx, "worker loop: "+cfg.Name)
	defer o11y.End(span, &err)
	span.AddRawField("loop_name", cfg.Name)
	span.RecordMetric(o11y.Timing("worker_loop", "loop_name", "result"))
	if failures > 0 {
		span.AddField("previous_failures", failures)
	}

	defer func() {
		if r := recover(); r != nil {
			err = o11y.HandlePanic(ctx, span, r, nil)
			delay = -1
		}
	}()

	delay = -1
	err = cfg.WorkFunc(ctx)
	if errors.Is(err, ErrShouldBackoff) {
		delay = cfg.NoWorkBackOff.NextBackOff()
		err = nil
	}
	span.AddField("backoff_ms", delay.Milliseconds())
	return delay, err
}
