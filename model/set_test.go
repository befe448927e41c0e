package model

import (
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestSet(t *testing.T) {
	s := NewSet()
	assert.Check(t, s.Model("User") == nil)

	first := s.Define("User", nil, Options{})
	s.Define("Organization", nil, Options{})
	again := s.Define("User", Schema{{Name: "id", Type: Integer}}, Options{})

	assert.Check(t, first != again)
	assert.Check(t, cmp.Equal(s.Model("User"), again))
	assert.Check(t, cmp.Equal(s.Len(), 2))

	var names []string
	for _, m := range s.Models() {
		names = append(names, m.Name)
	}
	assert.Check(t, cmp.DeepEqual(names, []string{"User", "Organization"}), "redefine keeps the original position")
}

func TestStatic(t *testing.T) {
	src := Static{
		{Name: "user", Factory: func(target Target, types Types) (*Model, error) {
			return target.Define("User", nil, Options{}), nil
		}},
	}
	defs, err := src.Discover()
	assert.NilError(t, err)
	assert.Assert(t, cmp.Len(defs, 1))

	s := NewSet()
	m, err := defs[0].Factory(s, DefaultTypes)
	assert.NilError(t, err)
	assert.Check(t, cmp.Equal(s.Model("User"), m))
}
