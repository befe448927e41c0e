// Package testmodels holds model factories registered in code, for tests.
package testmodels

import (
	"github.com/circleci/modellr/model"
)

func User(target model.Target, types model.Types) (*model.Model, error) {
	m := target.Define("User", model.Schema{
		{Name: "id", Type: types.Integer, PrimaryKey: true},
		{Name: "email", Type: types.String, Required: true, Unique: true},
	}, model.Options{TableName: "users"})

	m.Relate = func() error {
		return m.BelongsToMany(target.Model("Organization"), model.AssociationOptions{
			As:         "organizations",
			Through:    target.Model("OrganizationUser"),
			ForeignKey: "user",
			OtherKey:   "organization",
		})
	}
	return m, nil
}

func Organization(target model.Target, types model.Types) (*model.Model, error) {
	m := target.Define("Organization", model.Schema{
		{Name: "id", Type: types.Integer, PrimaryKey: true},
		{Name: "name", Type: types.String, Required: true},
	}, model.Options{TableName: "organizations"})

	m.Relate = func() error {
		return m.BelongsToMany(target.Model("User"), model.AssociationOptions{
			As:         "users",
			Through:    target.Model("OrganizationUser"),
			ForeignKey: "organization",
			OtherKey:   "user",
		})
	}
	return m, nil
}

func OrganizationUser(target model.Target, types model.Types) (*model.Model, error) {
	m := target.Define("OrganizationUser", model.Schema{
		{Name: "organization", Type: types.Integer},
		{Name: "user", Type: types.Integer},
	}, model.Options{TableName: "organization_users"})

	m.Relate = func() error {
		err := m.BelongsTo(target.Model("Organization"), model.AssociationOptions{ForeignKey: "organization"})
		if err != nil {
			return err
		}
		return m.BelongsTo(target.Model("User"), model.AssociationOptions{ForeignKey: "user"})
	}
	return m, nil
}

// Car has no relations.
func Car(target model.Target, types model.Types) (*model.Model, error) {
	return target.Define("Car", model.Schema{
		{Name: "id", Type: types.Integer, PrimaryKey: true},
	}, model.Options{TableName: "cars"}), nil
}

// Source is the user, organization and organization user definitions in that order.
func Source() model.Static {
	return model.Static{
		{Name: "user", Factory: User},
		{Name: "organization", Factory: Organization},
		{Name: "organizationUser", Factory: OrganizationUser},
	}
}
