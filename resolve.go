package modellr

import (
	"strings"

	"github.com/circleci/modellr/model"
)

// Instance resolves an alias. It returns the live instance under alias, else the first
// live instance, else the default entry. It never returns nil.
func (m *Manager) Instance(alias string) *Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if alias != "" {
		if inst := m.reg.get(alias); inst != nil && inst.Live() {
			return inst
		}
	}
	if live := m.reg.live(); len(live) > 0 {
		return live[0]
	}
	return m.reg.get(DefaultAlias)
}

// ResolveModel returns the model called name on the instance alias resolves to,
// or nil if that instance has no such model.
func (m *Manager) ResolveModel(alias, name string) *model.Model {
	return m.Instance(alias).Model(name)
}

type ResolutionKind int

const (
	ResolvedNone ResolutionKind = iota
	ResolvedMember
	ResolvedModel
)

func (k ResolutionKind) String() string {
	switch k {
	case ResolvedMember:
		return "member"
	case ResolvedModel:
		return "model"
	}
	return "none"
}

type Resolution struct {
	Kind     ResolutionKind
	Name     string
	Instance *Instance
	Model    *model.Model
}

// members are the manager operation names a model can never shadow. Matching ignores case.
var members = map[string]bool{
	"load":         true,
	"close":        true,
	"closeall":     true,
	"instance":     true,
	"models":       true,
	"modelfiles":   true,
	"resetmodels":  true,
	"resolvemodel": true,
	"lookup":       true,
	"on":           true,
	"onwarning":    true,
	"emit":         true,
	"aliases":      true,
	"live":         true,
	"sync":         true,
}

// IsMember reports whether name is reserved for a manager operation.
func IsMember(name string) bool {
	return members[strings.ToLower(name)]
}

// Lookup resolves name without an alias. Manager members win over models of the same name,
// then the model on the instance Instance("") resolves to, else ResolvedNone.
func (m *Manager) Lookup(name string) Resolution {
	if IsMember(name) {
		return Resolution{Kind: ResolvedMember, Name: name}
	}
	inst := m.Instance("")
	if mdl := inst.Model(name); mdl != nil {
		return Resolution{Kind: ResolvedModel, Name: name, Instance: inst, Model: mdl}
	}
	return Resolution{Kind: ResolvedNone, Name: name, Instance: inst}
}
