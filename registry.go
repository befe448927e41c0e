package modellr

// registry maps aliases to instances in insertion order. It always holds a "default"
// entry, the unloaded placeholder until an instance replaces it.
type registry struct {
	order   []string
	byAlias map[string]*Instance
}

func newRegistry() *registry {
	r := &registry{byAlias: map[string]*Instance{}}
	r.put(newPlaceholder())
	return r
}

func newPlaceholder() *Instance {
	return newInstance(DefaultAlias, nil, StateUnloaded)
}

// put stores the instance under its alias, in place if the alias is known.
// The instance it replaced is returned.
func (r *registry) put(inst *Instance) *Instance {
	prev, ok := r.byAlias[inst.Alias]
	if !ok {
		r.order = append(r.order, inst.Alias)
	}
	r.byAlias[inst.Alias] = inst
	return prev
}

// remove drops the alias and returns what was there. The default slot is reset to the
// placeholder instead of being dropped.
func (r *registry) remove(alias string) *Instance {
	prev, ok := r.byAlias[alias]
	if !ok {
		return nil
	}
	if alias == DefaultAlias {
		r.byAlias[alias] = newPlaceholder()
		return prev
	}
	delete(r.byAlias, alias)
	for i, a := range r.order {
		if a == alias {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return prev
}

// resetDefault puts the placeholder back in the default slot.
func (r *registry) resetDefault() {
	r.byAlias[DefaultAlias] = newPlaceholder()
}

func (r *registry) get(alias string) *Instance {
	return r.byAlias[alias]
}

func (r *registry) all() []*Instance {
	insts := make([]*Instance, 0, len(r.order))
	for _, a := range r.order {
		insts = append(insts, r.byAlias[a])
	}
	return insts
}

func (r *registry) live() []*Instance {
	var insts []*Instance
	for _, a := range r.order {
		if inst := r.byAlias[a]; inst.Live() {
			insts = append(insts, inst)
		}
	}
	return insts
}

func (r *registry) len() int {
	return len(r.order)
}
