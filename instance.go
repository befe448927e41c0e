package modellr

import (
	"context"
	"sync"

	"github.com/circleci/modellr/model"
)

type State string

const (
	StateUnloaded State = "unloaded"
	StateLive     State = "live"
	StatePruned   State = "pruned"
	StateClosed   State = "closed"
)

// Engine is the database capability behind an instance.
type Engine interface {
	Authenticate(ctx context.Context) error
	Close() error
}

// Syncer is implemented by engines that can create the tables of their models.
type Syncer interface {
	Sync(ctx context.Context, models []*model.Model) error
}

// Instance is one aliased database handle and the models defined on it.
// The embedded Set is the registration target handed to model factories.
type Instance struct {
	*model.Set
	Alias  string
	Engine Engine

	mu    sync.RWMutex
	state State
}

func newInstance(alias string, engine Engine, state State) *Instance {
	return &Instance{
		Set:    model.NewSet(),
		Alias:  alias,
		Engine: engine,
		state:  state,
	}
}

func (i *Instance) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

func (i *Instance) Live() bool {
	return i.State() == StateLive
}

func (i *Instance) setState(s State) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = s
}

// Sync creates the tables of the instance models if the engine can.
func (i *Instance) Sync(ctx context.Context) error {
	s, ok := i.Engine.(Syncer)
	if !ok {
		return ErrSyncUnsupported
	}
	return s.Sync(ctx, i.Models())
}

// close releases a live engine. Closing anything else does nothing.
func (i *Instance) close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StateLive {
		return nil
	}
	i.state = StateClosed
	if i.Engine == nil {
		return nil
	}
	return i.Engine.Close()
}
