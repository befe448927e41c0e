package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// FileSuffix marks the files in a model directory that hold schema definitions.
const FileSuffix = ".model.json"

// Dir is a Source reading declarative schema files from a directory on disk.
func Dir(path string) Source {
	return FS(os.DirFS(path))
}

// FS is a Source reading declarative schema files from the root of fsys.
// Files are taken in directory order and only those ending in FileSuffix are used.
func FS(fsys fs.FS) Source {
	return fsSource{fsys: fsys}
}

type fsSource struct {
	fsys fs.FS
}

func (s fsSource) Discover() ([]Definition, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("could not list models: %w", err)
	}

	var defs []Definition
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), FileSuffix) {
			continue
		}
		b, err := fs.ReadFile(s.fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("could not read model %q: %w", e.Name(), err)
		}
		defs = append(defs, Definition{Name: e.Name(), Factory: fileFactory(b)})
	}
	return defs, nil
}

type file struct {
	Name      string     `json:"name"`
	Options   Options    `json:"options"`
	Schema    []column   `json:"schema"`
	Relations []relation `json:"relations"`
}

type column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	PrimaryKey bool   `json:"primaryKey"`
	Required   bool   `json:"required"`
	Unique     bool   `json:"unique"`
}

type relation struct {
	Kind       AssociationKind `json:"kind"`
	Target     string          `json:"target"`
	Through    string          `json:"through"`
	As         string          `json:"as"`
	ForeignKey string          `json:"foreignKey"`
	OtherKey   string          `json:"otherKey"`
}

// fileFactory defers parsing to the define phase, so a broken file is reported
// as a failure to load that model.
func fileFactory(b []byte) Factory {
	return func(target Target, types Types) (*Model, error) {
		f := file{}
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("invalid schema file: %w", err)
		}
		if f.Name == "" {
			return nil, fmt.Errorf("schema file has no model name")
		}

		schema := make(Schema, 0, len(f.Schema))
		for _, c := range f.Schema {
			t, ok := types.Lookup(c.Type)
			if !ok {
				return nil, fmt.Errorf("column %q has unknown type %q", c.Name, c.Type)
			}
			schema = append(schema, Attribute{
				Name:       c.Name,
				Type:       t,
				PrimaryKey: c.PrimaryKey,
				Required:   c.Required,
				Unique:     c.Unique,
			})
		}

		m := target.Define(f.Name, schema, f.Options)
		if len(f.Relations) > 0 {
			m.Relate = relateFunc(target, m, f.Relations)
		}
		return m, nil
	}
}

func relateFunc(target Target, m *Model, relations []relation) func() error {
	return func() error {
		for _, r := range relations {
			opts := AssociationOptions{
				As:         r.As,
				ForeignKey: r.ForeignKey,
				OtherKey:   r.OtherKey,
			}
			if r.Through != "" {
				opts.Through = target.Model(r.Through)
				if opts.Through == nil {
					return fmt.Errorf("%s through %q: %w", m.Name, r.Through, ErrUnknownTarget)
				}
			}
			other := target.Model(r.Target)

			var err error
			switch r.Kind {
			case KindBelongsTo:
				err = m.BelongsTo(other, opts)
			case KindHasMany:
				err = m.HasMany(other, opts)
			case KindBelongsToMany:
				err = m.BelongsToMany(other, opts)
			default:
				err = fmt.Errorf("%s: unknown relation kind %q", m.Name, r.Kind)
			}
			if err != nil {
				return err
			}
		}
		return nil
	}
}
