package db

import (
	"context"
	"database/sql"
	"errors"
	"reflect"

	"github.com/circleci/modellr/o11y"
)

// Querier is the statement surface of an engine, on the plain handle or inside a transaction.
// Errors are mapped onto the package errors, so an empty result is ErrNop.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	// GetContext scans a single row into dest
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	// SelectContext scans every row into dest, which must be a pointer to a slice
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// sqlxQuerier is satisfied by both *sqlx.DB and *sqlx.Tx
type sqlxQuerier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// mappedQuerier traces each statement against the instance it runs on.
type mappedQuerier struct {
	q       sqlxQuerier
	name    string
	dialect string
}

func (m mappedQuerier) ExecContext(ctx context.Context, query string, args ...interface{}) (_ sql.Result, err error) {
	ctx, span := Span(ctx, m.dialect, m.name, "exec")
	defer o11y.End(span, &err)

	result, err := m.q.ExecContext(ctx, query, args...)
	if found, mapped := mapError(err); found || err != nil {
		return result, mapped
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return result, err
	}
	span.AddField("rows_affected", rows)
	return result, nil
}

func (m mappedQuerier) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) (err error) {
	ctx, span := Span(ctx, m.dialect, m.name, "get")
	defer o11y.End(span, &err)

	err = m.q.GetContext(ctx, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNop
	}
	_, err = mapError(err)
	return err
}

func (m mappedQuerier) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) (err error) {
	ctx, span := Span(ctx, m.dialect, m.name, "select")
	defer o11y.End(span, &err)

	err = m.q.SelectContext(ctx, dest, query, args...)
	if err != nil {
		_, err = mapError(err)
		return err
	}
	rows := reflect.Indirect(reflect.ValueOf(dest)).Len()
	span.AddField("rows", rows)
	if rows == 0 {
		return ErrNop
	}
	return nil
}
