package db

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib" // Load the postgres driver as "pgx"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Load the sqlite driver as "sqlite"

	"github.com/circleci/modellr/config/secret"
	"github.com/circleci/modellr/model"
	"github.com/circleci/modellr/o11y"
)

var ErrUnknownDriver = errors.New("unknown database driver")

// Config holds the engine specific options of one connection.
type Config struct {
	// Driver is "postgres" (the default) or "sqlite"
	Driver string        `json:"driver"`
	Host   string        `json:"host"`
	Port   int           `json:"port"`
	User   string        `json:"user"`
	Pass   secret.String `json:"password"`
	Name   string        `json:"database"`
	SSL    bool          `json:"ssl"`
	// Path is the sqlite database file, ":memory:" is allowed
	Path    string `json:"path"`
	AppName string `json:"appName"`
	// ConnectTimeout is in seconds, defaults to 5
	ConnectTimeout int `json:"connectTimeout"`
	MaxOpenConns   int `json:"maxOpenConns"`
	MaxIdleConns   int `json:"maxIdleConns"`
}

// Dialect is the model dialect matching the driver.
func (c Config) Dialect() string {
	if c.Driver == model.DialectSQLite {
		return model.DialectSQLite
	}
	return model.DialectPostgres
}

// New opens a handle. Opening does not connect, the first connection is made by Ping.
func New(ctx context.Context, options Config) (db *sqlx.DB, err error) {
	_, span := o11y.StartSpan(ctx, "db: open")
	defer o11y.End(span, &err)

	span.AddField("driver", options.Driver)

	switch options.Driver {
	case "", model.DialectPostgres:
		db, err = openPostgres(span, options)
	case model.DialectSQLite:
		db, err = openSQLite(span, options)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, options.Driver)
	}
	if err != nil {
		return nil, err
	}

	db.SetConnMaxLifetime(time.Hour)
	if options.MaxOpenConns > 0 {
		db.SetMaxOpenConns(options.MaxOpenConns)
	}
	if options.MaxIdleConns > 0 {
		db.SetMaxIdleConns(options.MaxIdleConns)
	}
	return db, nil
}

func openPostgres(span o11y.Span, options Config) (*sqlx.DB, error) {
	host := fmt.Sprintf("%s:%d", options.Host, options.Port)
	span.AddField("host", host)
	span.AddField("dbname", options.Name)
	span.AddField("username", options.User)

	timeout := options.ConnectTimeout
	if timeout <= 0 {
		timeout = 5
	}

	params := url.Values{}
	params.Set("connect_timeout", strconv.Itoa(timeout))
	if options.AppName != "" {
		params.Set("application_name", options.AppName)
	}
	if options.SSL {
		params.Set("sslmode", "require")
	} else {
		params.Set("sslmode", "disable")
	}
	uri := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(options.User, options.Pass.Raw()),
		Host:     host,
		Path:     options.Name,
		RawQuery: params.Encode(),
	}
	db, err := sqlx.Open("pgx", uri.String())
	if err != nil {
		return nil, err
	}
	// Chosen to protect the db server when many instances share it
	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(50)
	return db, nil
}

func openSQLite(span o11y.Span, options Config) (*sqlx.DB, error) {
	path := options.Path
	if path == "" {
		path = options.Name
	}
	span.AddField("path", path)

	params := url.Values{}
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "busy_timeout(5000)")
	db, err := sqlx.Open("sqlite", path+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}
	return db, nil
}
