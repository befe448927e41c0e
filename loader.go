package modellr

import (
	"context"
	"errors"
	"fmt"

	"github.com/circleci/modellr/model"
	"github.com/circleci/modellr/o11y"
)

// definitions discovers the model definitions once. Later loads reuse the list until
// it is reset. A nil source has no models.
func (m *Manager) definitions(src model.Source) ([]model.Definition, error) {
	if m.defs != nil {
		return m.defs, nil
	}
	if src == nil {
		return nil, nil
	}
	defs, err := src.Discover()
	if err != nil {
		return nil, err
	}
	if defs == nil {
		defs = []model.Definition{}
	}
	m.defs = defs
	return defs, nil
}

// define applies every definition to every live instance, in discovery order. A failing
// definition is still tried on the remaining instances, then the first failure is returned
// and no further definitions are applied.
func (m *Manager) define(ctx context.Context, defs []model.Definition, insts []*Instance) (err error) {
	ctx, span := o11y.StartSpan(ctx, "modellr: define")
	defer o11y.End(span, &err)
	span.AddField("models", len(defs))
	span.AddField("instances", len(insts))

	for _, def := range defs {
		var first error
		for _, inst := range insts {
			err := m.apply(ctx, def, inst)
			if err != nil && first == nil {
				first = &ModelLoadError{Model: def.Name, Alias: inst.Alias, Err: err}
			}
		}
		if first != nil {
			return first
		}
	}
	return nil
}

func (m *Manager) apply(ctx context.Context, def model.Definition, inst *Instance) (err error) {
	_, span := o11y.StartSpan(ctx, "modellr: define model")
	defer o11y.End(span, &err)
	span.AddRawField("db.alias", inst.Alias)
	span.AddField("model", def.Name)

	defer func() {
		if r := recover(); r != nil {
			err = o11y.HandlePanic(ctx, span, r, nil)
		}
	}()

	if def.Factory == nil {
		return errors.New("definition has no factory")
	}
	mdl, err := def.Factory(inst, m.types)
	if err != nil {
		return err
	}
	if mdl == nil {
		return errors.New("factory returned no model")
	}
	if inst.Model(mdl.Name) != mdl {
		return fmt.Errorf("factory returned model %q that is not defined on the instance", mdl.Name)
	}
	return nil
}

// relate runs the relation hook of every model on every live instance, once. It must only
// be called after every definition has been applied everywhere. Hook errors are returned
// as they are and hook panics are not recovered.
func (m *Manager) relate(ctx context.Context, insts []*Instance) (err error) {
	_, span := o11y.StartSpan(ctx, "modellr: relate")
	defer o11y.End(span, &err)

	hooks := 0
	for _, inst := range insts {
		for _, mdl := range inst.Models() {
			if mdl.Relate == nil {
				continue
			}
			hooks++
			if err := mdl.Relate(); err != nil {
				span.AddRawField("db.alias", inst.Alias)
				span.AddField("model", mdl.Name)
				return err
			}
		}
	}
	span.AddField("hooks", hooks)
	return nil
}
