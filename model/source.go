package model

// Factory applies one schema definition to a registration target.
type Factory func(target Target, types Types) (*Model, error)

// Definition is a named factory, the unit the loader applies to every instance.
type Definition struct {
	Name    string
	Factory Factory
}

// Source discovers the definitions to load, in the order they should be applied.
type Source interface {
	Discover() ([]Definition, error)
}

// Static is a Source of definitions registered in code.
type Static []Definition

func (s Static) Discover() ([]Definition, error) {
	defs := make([]Definition, len(s))
	copy(defs, s)
	return defs, nil
}
