package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/jmoiron/sqlx"

	"github.com/circleci/modellr/model"
	"github.com/circleci/modellr/o11y"
)

// Engine is one SQL handle with the capabilities modellr needs from an instance.
type Engine struct {
	Name    string
	DB      *sqlx.DB
	Tx      *TxManager
	dialect string
}

// Open creates an engine named after the instance alias. The handle is not authenticated.
func Open(ctx context.Context, name string, cfg Config) (*Engine, error) {
	db, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewEngine(name, cfg.Dialect(), db), nil
}

func NewEngine(name, dialect string, db *sqlx.DB) *Engine {
	return &Engine{
		Name:    name,
		DB:      db,
		Tx:      &TxManager{DB: db, Name: name, Dialect: dialect},
		dialect: dialect,
	}
}

func (e *Engine) Dialect() string {
	return e.dialect
}

// Authenticate makes the first connection to the database.
func (e *Engine) Authenticate(ctx context.Context) (err error) {
	ctx, span := Span(ctx, e.dialect, e.Name, "authenticate")
	defer o11y.End(span, &err)

	err = e.DB.PingContext(ctx)
	if err != nil {
		_, err = mapError(err)
		return err
	}
	return nil
}

func (e *Engine) Close() error {
	return e.DB.Close()
}

func (e *Engine) HealthCheck() *HealthCheck {
	return &HealthCheck{Name: e.Name + "-db", DB: e.DB, Dialect: e.dialect}
}

// Sync creates the table of every model that does not have one yet, in a single transaction.
func (e *Engine) Sync(ctx context.Context, models []*model.Model) (err error) {
	ctx, span := Span(ctx, e.dialect, e.Name, "sync")
	defer o11y.End(span, &err)
	span.AddField("models", len(models))

	return e.Tx.WithTransaction(ctx, func(ctx context.Context, q Querier) error {
		for _, m := range models {
			_, err := q.ExecContext(ctx, CreateTableSQL(e.dialect, m))
			if err != nil && !errors.Is(err, ErrNop) {
				return fmt.Errorf("could not create table for %s: %w", m.Name, err)
			}
		}
		return nil
	})
}

// CreateTableSQL renders the DDL creating the table for m.
func CreateTableSQL(dialect string, m *model.Model) string {
	schema := m.Schema()
	if m.Options.Timestamps {
		schema = append(schema,
			model.Attribute{Name: "created_at", Type: model.Date},
			model.Attribute{Name: "updated_at", Type: model.Date},
		)
	}

	cols := make([]string, 0, len(schema))
	for _, a := range schema {
		col := pgx.Identifier{a.Name}.Sanitize() + " " + a.Type.SQL(dialect)
		if a.PrimaryKey {
			col += " PRIMARY KEY"
		}
		if a.Required {
			col += " NOT NULL"
		}
		if a.Unique {
			col += " UNIQUE"
		}
		cols = append(cols, col)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		pgx.Identifier{m.TableName()}.Sanitize(), strings.Join(cols, ", "))
}
