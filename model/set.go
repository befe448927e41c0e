package model

import "sync"

// Target is the registration surface a Factory defines its model on.
type Target interface {
	// Define registers a model under name, replacing any earlier model of that name.
	Define(name string, schema Schema, opts Options) *Model
	// Model looks up a model that has already been defined. It returns nil if there is none.
	Model(name string) *Model
}

// Set is the collection of models owned by one instance. Models are kept in define order.
type Set struct {
	mu     sync.RWMutex
	order  []string
	models map[string]*Model
}

func NewSet() *Set {
	return &Set{models: map[string]*Model{}}
}

func (s *Set) Define(name string, schema Schema, opts Options) *Model {
	m := New(name, schema, opts)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.models[name]; !ok {
		s.order = append(s.order, name)
	}
	s.models[name] = m
	return m
}

func (s *Set) Model(name string) *Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.models[name]
}

func (s *Set) Models() []*Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	models := make([]*Model, 0, len(s.order))
	for _, name := range s.order {
		models = append(models, s.models[name])
	}
	return models
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
