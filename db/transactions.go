package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/circleci/modellr/o11y"
)

// TxManager runs statements for one instance, optionally inside a transaction.
type TxManager struct {
	DB      *sqlx.DB
	Name    string
	Dialect string
}

func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{DB: db, Name: "db", Dialect: db.DriverName()}
}

// NoTx returns a Querier that runs each statement on its own.
func (t *TxManager) NoTx() Querier {
	return t.querier(t.DB)
}

func (t *TxManager) querier(q sqlxQuerier) Querier {
	return mappedQuerier{q: q, name: t.Name, dialect: t.Dialect}
}

// WithTransaction calls f in a transaction that is committed only if f succeeds and ctx
// has not been canceled. Anything else, including a panic in f, rolls back.
func (t *TxManager) WithTransaction(ctx context.Context, f func(context.Context, Querier) error) (err error) {
	ctx, span := Span(ctx, t.Dialect, t.Name, "transaction")
	defer o11y.End(span, &err)

	tx, err := t.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not start transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// a canceled context has usually rolled back already
		rErr := tx.Rollback()
		if rErr != nil && !errors.Is(rErr, sql.ErrTxDone) {
			span.AddRawField("rollback_error", rErr.Error())
		}
	}()

	err = f(ctx, t.querier(tx))
	if err != nil {
		return err
	}
	// f may have swallowed the cancellation
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	committed = true
	return nil
}
