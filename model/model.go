/*
Package model describes the schema objects that modellr registers on every live database instance.

Models are created by factories during the define phase. A model may carry a Relate hook which
wires associations to sibling models; hooks only run once every model has been defined, so they
can refer to any other model on the same instance.
*/
package model

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"
)

var (
	ErrUnknownTarget = errors.New("association target is not defined")
	ErrNoThrough     = errors.New("many to many association needs a through model")
)

type Attribute struct {
	Name       string   `json:"name"`
	Type       DataType `json:"type"`
	PrimaryKey bool     `json:"primaryKey,omitempty"`
	Required   bool     `json:"required,omitempty"`
	Unique     bool     `json:"unique,omitempty"`
}

// Schema is ordered, column order in generated tables follows it.
type Schema []Attribute

type Options struct {
	TableName  string `json:"tableName,omitempty"`
	Timestamps bool   `json:"timestamps,omitempty"`
}

type AssociationKind string

const (
	KindBelongsTo     AssociationKind = "belongsTo"
	KindHasMany       AssociationKind = "hasMany"
	KindBelongsToMany AssociationKind = "belongsToMany"
)

type AssociationOptions struct {
	As         string
	ForeignKey string
	OtherKey   string
	Through    *Model
}

type Association struct {
	Kind       AssociationKind
	Target     *Model
	Through    *Model
	As         string
	ForeignKey string
	OtherKey   string
}

type Model struct {
	Name    string
	Options Options

	// Relate is optional. It is called once per instance, after every model on every
	// live instance has been defined.
	Relate func() error

	mu           sync.RWMutex
	schema       Schema
	associations []Association
}

func New(name string, schema Schema, opts Options) *Model {
	s := make(Schema, len(schema))
	copy(s, schema)
	return &Model{Name: name, Options: opts, schema: s}
}

func (m *Model) Schema() Schema {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := make(Schema, len(m.schema))
	copy(s, m.schema)
	return s
}

func (m *Model) Attribute(name string) (Attribute, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.schema {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// TableName is the configured table name, or the snake cased plural of the model name.
func (m *Model) TableName() string {
	if m.Options.TableName != "" {
		return m.Options.TableName
	}
	return snake(m.Name) + "s"
}

func (m *Model) Associations() []Association {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a := make([]Association, len(m.associations))
	copy(a, m.associations)
	return a
}

// BelongsTo records that m holds a foreign key to target. The foreign key column is
// added to the schema if it is not already there.
func (m *Model) BelongsTo(target *Model, opts AssociationOptions) error {
	if target == nil {
		return fmt.Errorf("%s belongs to: %w", m.Name, ErrUnknownTarget)
	}
	fk := opts.ForeignKey
	if fk == "" {
		fk = snake(target.Name) + "_id"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasAttribute(fk) {
		m.schema = append(m.schema, Attribute{Name: fk, Type: Integer})
	}
	m.associations = append(m.associations, Association{
		Kind:       KindBelongsTo,
		Target:     target,
		As:         opts.As,
		ForeignKey: fk,
	})
	return nil
}

func (m *Model) HasMany(target *Model, opts AssociationOptions) error {
	if target == nil {
		return fmt.Errorf("%s has many: %w", m.Name, ErrUnknownTarget)
	}
	fk := opts.ForeignKey
	if fk == "" {
		fk = snake(m.Name) + "_id"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.associations = append(m.associations, Association{
		Kind:       KindHasMany,
		Target:     target,
		As:         opts.As,
		ForeignKey: fk,
	})
	return nil
}

func (m *Model) BelongsToMany(target *Model, opts AssociationOptions) error {
	if target == nil {
		return fmt.Errorf("%s belongs to many: %w", m.Name, ErrUnknownTarget)
	}
	if opts.Through == nil {
		return fmt.Errorf("%s belongs to many %s: %w", m.Name, target.Name, ErrNoThrough)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.associations = append(m.associations, Association{
		Kind:       KindBelongsToMany,
		Target:     target,
		Through:    opts.Through,
		As:         opts.As,
		ForeignKey: opts.ForeignKey,
		OtherKey:   opts.OtherKey,
	})
	return nil
}

func (m *Model) hasAttribute(name string) bool {
	for _, a := range m.schema {
		if a.Name == name {
			return true
		}
	}
	return false
}

func snake(s string) string {
	b := strings.Builder{}
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
