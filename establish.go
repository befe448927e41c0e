package modellr

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/circleci/modellr/o11y"
)

// outcome is the settled result of one authentication attempt. Exactly one of
// instance and err is set.
type outcome struct {
	alias    string
	instance *Instance
	err      error
}

// establish authenticates every config concurrently and waits for all of them.
// Failures are returned as outcomes, never as an error.
func (m *Manager) establish(ctx context.Context, conns []ConnectionConfig) []outcome {
	ctx, span := o11y.StartSpan(ctx, "modellr: establish")
	defer span.End()
	span.AddField("connections", len(conns))

	outcomes := make([]outcome, len(conns))
	g := errgroup.Group{}
	for i, c := range conns {
		i, c := i, c
		g.Go(func() error {
			outcomes[i] = m.attempt(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.err != nil {
			failed++
		}
	}
	span.AddField("failed", failed)
	return outcomes
}

func (m *Manager) attempt(ctx context.Context, cfg ConnectionConfig) (o outcome) {
	o.alias = cfg.Alias

	ctx, span := o11y.StartSpan(ctx, "modellr: authenticate")
	defer func() {
		o11y.End(span, &o.err)
	}()
	span.AddRawField("db.alias", cfg.Alias)
	span.AddRawField("db.driver", cfg.Dialect())
	span.RecordMetric(o11y.Timing("modellr.authenticate", "db.alias", "result"))

	var engine Engine
	defer func() {
		if r := recover(); r != nil {
			o.err = o11y.HandlePanic(ctx, span, r, nil)
			o.instance = nil
			if engine != nil {
				_ = engine.Close()
			}
		}
	}()

	engine, err := m.opener(ctx, cfg.Alias, cfg.Config)
	if err != nil {
		o.err = err
		return o
	}
	if engine == nil {
		o.err = errors.New("opener returned no engine")
		return o
	}

	authCtx := ctx
	if m.authTimeout > 0 {
		var cancel context.CancelFunc
		authCtx, cancel = context.WithTimeout(ctx, m.authTimeout)
		defer cancel()
	}

	err = engine.Authenticate(authCtx)
	if err != nil {
		_ = engine.Close()
		o.err = err
		return o
	}

	o.instance = newInstance(cfg.Alias, engine, StateLive)
	return o
}
