package model

import (
	"testing"
	"testing/fstest"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestDir_Discover(t *testing.T) {
	defs, err := Dir("testdata").Discover()
	assert.NilError(t, err)

	var names []string
	for _, d := range defs {
		names = append(names, d.Name)
	}
	assert.Check(t, cmp.DeepEqual(names, []string{
		"organization.model.json",
		"organizationUser.model.json",
		"user.model.json",
	}))
}

func TestDir_DefineThenRelate(t *testing.T) {
	defs, err := Dir("testdata").Discover()
	assert.NilError(t, err)

	s := NewSet()
	for _, d := range defs {
		_, err := d.Factory(s, DefaultTypes)
		assert.NilError(t, err, d.Name)
	}
	for _, m := range s.Models() {
		assert.Assert(t, m.Relate != nil, m.Name)
		assert.NilError(t, m.Relate(), m.Name)
	}

	user := s.Model("User")
	assert.Assert(t, user != nil)
	assert.Check(t, user.Options.Timestamps)
	email, ok := user.Attribute("email")
	assert.Check(t, ok)
	assert.Check(t, email.Unique)

	assocs := user.Associations()
	assert.Assert(t, cmp.Len(assocs, 1))
	assert.Check(t, cmp.Equal(assocs[0].Target, s.Model("Organization")))
	assert.Check(t, cmp.Equal(assocs[0].Through, s.Model("OrganizationUser")))

	assert.Check(t, cmp.Len(s.Model("OrganizationUser").Associations(), 2))
}

func TestFS_BrokenFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"bad.model.json":      {Data: []byte(`{"name": `)},
		"nameless.model.json": {Data: []byte(`{"schema": []}`)},
		"badtype.model.json":  {Data: []byte(`{"name": "X", "schema": [{"name": "id", "type": "UUID"}]}`)},
		"unknown.model.json":  {Data: []byte(`{"name": "X", "colour": "blue"}`)},
		"orphan.model.json": {Data: []byte(
			`{"name": "Orphan", "relations": [{"kind": "belongsTo", "target": "Nobody"}]}`)},
		"weird.model.json": {Data: []byte(
			`{"name": "Weird", "relations": [{"kind": "sortOf", "target": "Weird"}]}`)},
	}
	defs, err := FS(fsys).Discover()
	assert.NilError(t, err)
	assert.Assert(t, cmp.Len(defs, 6))

	byName := map[string]Definition{}
	for _, d := range defs {
		byName[d.Name] = d
	}

	tests := []struct {
		file    string
		wantErr string
	}{
		{file: "bad.model.json", wantErr: "invalid schema file"},
		{file: "nameless.model.json", wantErr: "no model name"},
		{file: "badtype.model.json", wantErr: `unknown type "UUID"`},
		{file: "unknown.model.json", wantErr: "colour"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			_, err := byName[tt.file].Factory(NewSet(), DefaultTypes)
			assert.Check(t, cmp.ErrorContains(err, tt.wantErr))
		})
	}

	t.Run("relation to missing model", func(t *testing.T) {
		s := NewSet()
		m, err := byName["orphan.model.json"].Factory(s, DefaultTypes)
		assert.NilError(t, err)
		assert.Check(t, cmp.ErrorIs(m.Relate(), ErrUnknownTarget))
	})

	t.Run("unknown relation kind", func(t *testing.T) {
		s := NewSet()
		m, err := byName["weird.model.json"].Factory(s, DefaultTypes)
		assert.NilError(t, err)
		assert.Check(t, cmp.ErrorContains(m.Relate(), "unknown relation kind"))
	})
}

func TestDir_Missing(t *testing.T) {
	_, err := Dir("testdata/nope").Discover()
	assert.Check(t, cmp.ErrorContains(err, "could not list models"))
}
