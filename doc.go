/*
Package modellr manages a named set of database instances and the models defined on them.

A Manager is given one or more connection configurations. Load authenticates one engine
per alias concurrently, prunes the aliases that could not connect (reporting a warning
for each), then applies every model definition to every live instance and finally runs
the relation hooks of the defined models:

	mgr := modellr.New(modellr.Options{})
	summary, err := mgr.Load(ctx, model.Dir("./models"),
		modellr.ConnectionConfig{Alias: "primary", Config: db.Config{Host: "localhost", Port: 5432}},
		modellr.ConnectionConfig{Alias: "reporting", Config: db.Config{Host: "replica", Port: 5432}},
	)

Resolution never fails. Instance returns the named live instance, else the first live one,
else the unloaded "default" placeholder.
*/
package modellr
