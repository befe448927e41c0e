package modellr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/circleci/modellr/db"
	"github.com/circleci/modellr/model"
	"github.com/circleci/modellr/o11y"
)

// Opener creates the engine for one connection. The engine is authenticated by the manager.
type Opener func(ctx context.Context, alias string, cfg db.Config) (Engine, error)

// SQLOpener opens postgres and sqlite engines with the db package. appName is used as the
// postgres application name for configs that do not set one.
func SQLOpener(appName string) Opener {
	return func(ctx context.Context, alias string, cfg db.Config) (Engine, error) {
		if cfg.AppName == "" {
			cfg.AppName = appName
		}
		e, err := db.Open(ctx, alias, cfg)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}

type Options struct {
	// Opener defaults to SQLOpener
	Opener Opener
	// AuthTimeout bounds each authentication attempt, zero waits for as long as ctx allows
	AuthTimeout time.Duration
	// Types is handed to every model factory, defaults to model.DefaultTypes
	Types   model.Types
	AppName string
}

// Summary is the shape of a successful load.
type Summary struct {
	// Instances counts the registry entries, the default placeholder included
	Instances int
	// Models counts the definitions applied to each live instance
	Models int
}

type Manager struct {
	opener      Opener
	authTimeout time.Duration
	types       model.Types

	// loadMu serialises the operations that change what is live
	loadMu sync.Mutex

	mu   sync.RWMutex
	reg  *registry
	defs []model.Definition

	warnMu    sync.Mutex
	nextID    int
	listeners map[int]func(string)
}

func New(opts Options) *Manager {
	if opts.Opener == nil {
		appName := opts.AppName
		if appName == "" {
			appName = "modellr"
		}
		opts.Opener = SQLOpener(appName)
	}
	if opts.Types == (model.Types{}) {
		opts.Types = model.DefaultTypes
	}
	return &Manager{
		opener:      opts.Opener,
		authTimeout: opts.AuthTimeout,
		types:       opts.Types,
		reg:         newRegistry(),
		listeners:   map[int]func(string){},
	}
}

// Load establishes an instance per alias, prunes those that fail to authenticate, then
// defines the models from src on every live instance and runs their relation hooks.
//
// Load fails with ErrNoConnections before any connection is attempted if conns is empty,
// and with ErrNoViableConnection if nothing is live afterwards or the default alias was
// configured and could not connect. Instances that connected stay live when a later step
// fails.
func (m *Manager) Load(ctx context.Context, src model.Source, conns ...ConnectionConfig) (_ Summary, err error) {
	ctx, span := o11y.StartSpan(ctx, "modellr: load")
	defer o11y.End(span, &err)

	conns, err = Normalize(conns)
	if err != nil {
		return Summary{}, err
	}

	// listeners run once the load lock is released so they may call back into m
	var warnings []string
	defer func() {
		for _, w := range warnings {
			m.emit(w)
		}
	}()

	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	defaultFailed := false
	for _, o := range m.establish(ctx, conns) {
		if o.err != nil {
			if o.alias == DefaultAlias {
				defaultFailed = true
			}
			warnings = append(warnings, m.prune(ctx, o))
			continue
		}
		m.mu.Lock()
		prev := m.reg.put(o.instance)
		m.mu.Unlock()
		if prev != nil {
			// a previous load of the same alias is replaced, never leaked
			_ = prev.close()
		}
	}

	live := m.Live()
	span.AddField("instances_live", len(live))
	if len(live) == 0 || defaultFailed {
		return Summary{}, ErrNoViableConnection
	}

	m.mu.Lock()
	defs, err := m.definitions(src)
	instances := m.reg.len()
	m.mu.Unlock()
	if err != nil {
		return Summary{}, fmt.Errorf("could not discover models: %w", err)
	}
	span.AddField("models", len(defs))

	err = m.define(ctx, defs, live)
	if err != nil {
		return Summary{}, err
	}
	err = m.relate(ctx, live)
	if err != nil {
		return Summary{}, err
	}

	return Summary{Instances: instances, Models: len(defs)}, nil
}

// prune drops the failed alias and returns the warning for the listeners.
func (m *Manager) prune(ctx context.Context, o outcome) string {
	m.mu.Lock()
	prev := m.reg.remove(o.alias)
	m.mu.Unlock()
	if prev != nil {
		_ = prev.close()
		prev.setState(StatePruned)
	}

	cerr := &ConnectionError{Alias: o.alias, Err: o.err}
	o11y.Log(ctx, "modellr: connection pruned",
		o11y.Field("alias", o.alias),
		o11y.Field("error", o.err.Error()),
	)
	return cerr.Error()
}

// Close releases the live instance under alias. The entry stays in the registry and no
// longer resolves as live. Unknown or not live aliases are ignored, an empty alias closes
// everything.
func (m *Manager) Close(ctx context.Context, alias string) (err error) {
	if alias == "" {
		return m.CloseAll(ctx)
	}
	_, span := o11y.StartSpan(ctx, "modellr: close")
	defer o11y.End(span, &err)
	span.AddRawField("db.alias", alias)

	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	m.mu.RLock()
	inst := m.reg.get(alias)
	m.mu.RUnlock()
	if inst == nil {
		return nil
	}
	return inst.close()
}

// CloseAll releases every live instance and forgets the discovered definitions. The
// default slot goes back to the unloaded placeholder.
func (m *Manager) CloseAll(ctx context.Context) (err error) {
	_, span := o11y.StartSpan(ctx, "modellr: close all")
	defer o11y.End(span, &err)

	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	m.mu.Lock()
	insts := m.reg.live()
	m.defs = nil
	m.mu.Unlock()

	span.AddField("instances", len(insts))
	var result error
	for _, inst := range insts {
		if err := inst.close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", inst.Alias, err))
		}
	}

	m.mu.Lock()
	m.reg.resetDefault()
	m.mu.Unlock()
	return result
}

// ResetModels forgets the discovered definitions so the next load discovers them again.
func (m *Manager) ResetModels() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defs = nil
}

// ModelFiles lists the names of the cached definitions in load order.
func (m *Manager) ModelFiles() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.defs == nil {
		return nil
	}
	names := make([]string, 0, len(m.defs))
	for _, d := range m.defs {
		names = append(names, d.Name)
	}
	return names
}

// OnWarning subscribes fn to pruning warnings. Calling the returned func unsubscribes.
func (m *Manager) OnWarning(fn func(msg string)) func() {
	m.warnMu.Lock()
	defer m.warnMu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.warnMu.Lock()
		defer m.warnMu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Manager) emit(msg string) {
	m.warnMu.Lock()
	fns := make([]func(string), 0, len(m.listeners))
	for i := 0; i < m.nextID; i++ {
		if fn, ok := m.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	m.warnMu.Unlock()

	for _, fn := range fns {
		fn(msg)
	}
}

// Aliases lists every registry entry in insertion order, live or not.
func (m *Manager) Aliases() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	aliases := make([]string, len(m.reg.order))
	copy(aliases, m.reg.order)
	return aliases
}

// Live returns the live instances in insertion order.
func (m *Manager) Live() []*Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reg.live()
}

// Sync creates the tables of the defined models on every live instance that supports it.
func (m *Manager) Sync(ctx context.Context) (err error) {
	ctx, span := o11y.StartSpan(ctx, "modellr: sync")
	defer o11y.End(span, &err)

	var result error
	for _, inst := range m.Live() {
		err := inst.Sync(ctx)
		switch {
		case errors.Is(err, ErrSyncUnsupported):
			o11y.Log(ctx, "modellr: sync skipped", o11y.Field("alias", inst.Alias))
		case err != nil:
			result = multierror.Append(result, fmt.Errorf("%s: %w", inst.Alias, err))
		}
	}
	return result
}
