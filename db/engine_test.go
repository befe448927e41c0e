package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/circleci/modellr/model"
	"github.com/circleci/modellr/testing/testcontext"
)

func newSQLiteEngine(t *testing.T, name string) *Engine {
	t.Helper()
	ctx := testcontext.Background()
	e, err := Open(ctx, name, Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), name+".db"),
	})
	assert.Assert(t, err)
	t.Cleanup(func() {
		_ = e.Close()
	})
	return e
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(testcontext.Background(), "x", Config{Driver: "oracle"})
	assert.Check(t, errors.Is(err, ErrUnknownDriver))
}

func TestOpen_PostgresIsLazy(t *testing.T) {
	e, err := Open(testcontext.Background(), "pg", Config{
		Host: "localhost",
		Port: 5432,
		User: "user",
		Pass: "password",
		Name: "dbname",
	})
	assert.Assert(t, err)
	defer e.Close()
	assert.Check(t, cmp.Equal(e.Dialect(), model.DialectPostgres))
}

func TestEngine_AuthenticateFails(t *testing.T) {
	ctx, cancel := context.WithCancel(testcontext.Background())
	defer cancel()

	// port 1 is not going to have a postgres server listening
	e, err := Open(ctx, "nowhere", Config{Host: "127.0.0.1", Port: 1, User: "u", Name: "n", ConnectTimeout: 1})
	assert.Assert(t, err)
	defer e.Close()

	err = e.Authenticate(ctx)
	assert.Check(t, err != nil)
}

func TestEngine_SQLite(t *testing.T) {
	ctx := testcontext.Background()
	e := newSQLiteEngine(t, "lite")

	assert.Assert(t, e.Authenticate(ctx))
	assert.Check(t, cmp.Equal(e.Dialect(), model.DialectSQLite))

	set := model.NewSet()
	set.Define("User", model.Schema{
		{Name: "id", Type: model.Integer, PrimaryKey: true},
		{Name: "email", Type: model.String, Unique: true, Required: true},
	}, model.Options{TableName: "users", Timestamps: true})

	t.Run("sync creates tables", func(t *testing.T) {
		assert.Assert(t, e.Sync(ctx, set.Models()))
		// a second sync is a no-op
		assert.Assert(t, e.Sync(ctx, set.Models()))

		var cols []string
		err := e.Tx.NoTx().SelectContext(ctx, &cols, `SELECT name FROM pragma_table_info('users')`)
		assert.Assert(t, err)
		assert.Check(t, cmp.DeepEqual(cols, []string{"id", "email", "created_at", "updated_at"}))
	})

	t.Run("errors are mapped", func(t *testing.T) {
		q := e.Tx.NoTx()
		_, err := q.ExecContext(ctx, `INSERT INTO users (id, email) VALUES (1, 'a@example.com')`)
		assert.Assert(t, err)

		_, err = q.ExecContext(ctx, `INSERT INTO users (id, email) VALUES (2, 'a@example.com')`)
		assert.Check(t, errors.Is(err, ErrNop))

		var email string
		err = q.GetContext(ctx, &email, `SELECT email FROM users WHERE id = 42`)
		assert.Check(t, errors.Is(err, ErrNop))
	})

	t.Run("health check", func(t *testing.T) {
		hc := e.HealthCheck()
		name, ready, live := hc.HealthChecks()
		assert.Check(t, cmp.Equal(name, "lite-db"))
		assert.Check(t, live == nil)
		assert.Check(t, ready(ctx))
		assert.Check(t, cmp.Contains(hc.Gauges(ctx), "in_use"))
	})
}

func TestCreateTableSQL(t *testing.T) {
	m := model.New("OrganizationUser", model.Schema{
		{Name: "organization", Type: model.Integer, Required: true},
		{Name: "user", Type: model.Integer},
	}, model.Options{})

	assert.Check(t, cmp.Equal(CreateTableSQL(model.DialectPostgres, m),
		`CREATE TABLE IF NOT EXISTS "organization_users" ("organization" integer NOT NULL, "user" integer)`))
}
