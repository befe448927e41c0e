package modellr

import (
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/circleci/modellr/internal/testmodels"
	"github.com/circleci/modellr/model"
	"github.com/circleci/modellr/testing/testcontext"
)

func TestInstance_BeforeLoad(t *testing.T) {
	m := New(Options{})
	inst := m.Instance("anything")
	assert.Check(t, cmp.Equal(inst.Alias, "default"))
	assert.Check(t, cmp.Equal(inst.State(), StateUnloaded))
	assert.Check(t, inst == m.Instance(""))
	assert.Check(t, cmp.Nil(m.ResolveModel("", "User")))
}

func TestResolution(t *testing.T) {
	ctx := testcontext.Background()
	m, _ := newTestManager(&fakeOpener{refuse: map[string]error{"b": errRefused}})

	src := append(testmodels.Source(), model.Definition{
		Name: "shadow",
		Factory: func(target model.Target, types model.Types) (*model.Model, error) {
			return target.Define("Load", nil, model.Options{}), nil
		},
	})
	_, err := m.Load(ctx, src, aliased("a", "b", "c")...)
	assert.Assert(t, err)

	t.Run("unknown alias falls back", func(t *testing.T) {
		assert.Check(t, m.Instance("missingAlias") == m.Instance(""))
		assert.Check(t, m.Instance("b") == m.Instance("a"))
	})

	t.Run("known alias", func(t *testing.T) {
		assert.Check(t, cmp.Equal(m.Instance("c").Alias, "c"))
		assert.Check(t, m.ResolveModel("c", "User") == m.Instance("c").Model("User"))
		assert.Check(t, m.ResolveModel("c", "User") != m.ResolveModel("a", "User"))
	})

	t.Run("absent model", func(t *testing.T) {
		r := m.Lookup("Invoice")
		assert.Check(t, cmp.Equal(r.Kind, ResolvedNone))
		assert.Check(t, cmp.Nil(r.Model))
		assert.Check(t, cmp.Equal(r.Instance.Alias, "a"))
		assert.Check(t, cmp.Nil(m.ResolveModel("a", "Invoice")))
	})

	t.Run("model", func(t *testing.T) {
		r := m.Lookup("Organization")
		assert.Check(t, cmp.Equal(r.Kind, ResolvedModel))
		assert.Check(t, r.Model == m.Instance("a").Model("Organization"))
	})

	t.Run("members take precedence", func(t *testing.T) {
		assert.Check(t, m.ResolveModel("a", "Load") != nil)
		r := m.Lookup("Load")
		assert.Check(t, cmp.Equal(r.Kind, ResolvedMember))
		assert.Check(t, cmp.Nil(r.Model))

		for _, name := range []string{"close", "instance", "models", "on", "emit"} {
			assert.Check(t, cmp.Equal(m.Lookup(name).Kind, ResolvedMember), name)
		}
	})
}

func TestResolutionKind_String(t *testing.T) {
	assert.Check(t, cmp.Equal(ResolvedNone.String(), "none"))
	assert.Check(t, cmp.Equal(ResolvedMember.String(), "member"))
	assert.Check(t, cmp.Equal(ResolvedModel.String(), "model"))
}
