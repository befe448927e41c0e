package modellr

import (
	"context"
	"errors"
	"sync"

	"github.com/circleci/modellr/db"
)

type fakeEngine struct {
	alias string
	cfg   db.Config
	auth  func(ctx context.Context) error

	mu     sync.Mutex
	closed int
}

func (e *fakeEngine) Authenticate(ctx context.Context) error {
	if e.auth == nil {
		return nil
	}
	return e.auth(ctx)
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed++
	return nil
}

func (e *fakeEngine) closeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

var errRefused = errors.New("connection refused")

// fakeOpener hands out fake engines. Aliases in refuse fail to authenticate.
type fakeOpener struct {
	refuse map[string]error
	auth   func(ctx context.Context, alias string) error

	mu      sync.Mutex
	engines []*fakeEngine
}

func (f *fakeOpener) open(_ context.Context, alias string, cfg db.Config) (Engine, error) {
	e := &fakeEngine{alias: alias, cfg: cfg}
	switch {
	case f.refuse[alias] != nil:
		err := f.refuse[alias]
		e.auth = func(context.Context) error { return err }
	case f.auth != nil:
		e.auth = func(ctx context.Context) error { return f.auth(ctx, alias) }
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.engines = append(f.engines, e)
	return e, nil
}

func (f *fakeOpener) opened() []*fakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	engines := make([]*fakeEngine, len(f.engines))
	copy(engines, f.engines)
	return engines
}

func (f *fakeOpener) engine(alias string) *fakeEngine {
	for _, e := range f.opened() {
		if e.alias == alias {
			return e
		}
	}
	return nil
}

type warnings struct {
	mu   sync.Mutex
	msgs []string
}

func (w *warnings) add(msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msg)
}

func (w *warnings) all() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.msgs...)
}

func newTestManager(opener *fakeOpener) (*Manager, *warnings) {
	m := New(Options{Opener: opener.open})
	w := &warnings{}
	m.OnWarning(w.add)
	return m, w
}

func aliased(aliases ...string) []ConnectionConfig {
	conns := make([]ConnectionConfig, 0, len(aliases))
	for _, a := range aliases {
		conns = append(conns, ConnectionConfig{Alias: a, Config: db.Config{Host: a + ".example.com"}})
	}
	return conns
}
