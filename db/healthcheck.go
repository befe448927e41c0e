package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/circleci/modellr/model"
	"github.com/circleci/modellr/o11y"
)

type HealthCheck struct {
	Name    string
	DB      *sqlx.DB
	Dialect string
}

func (h *HealthCheck) HealthChecks() (name string, ready, live func(ctx context.Context) error) {
	return h.Name, newHealthCheck(h.DB, h.Dialect), nil
}

func (h *HealthCheck) MetricName() string {
	return h.Name
}

func (h *HealthCheck) Gauges(_ context.Context) map[string]float64 {
	stats := h.DB.Stats()
	return map[string]float64{
		"in_use":               float64(stats.InUse),
		"idle":                 float64(stats.Idle),
		"wait_count":           float64(stats.WaitCount),
		"wait_duration":        float64(stats.WaitDuration / time.Millisecond),
		"max_idle_closed":      float64(stats.MaxIdleClosed),
		"max_idle_time_closed": float64(stats.MaxIdleTimeClosed),
		"max_lifetime_closed":  float64(stats.MaxLifetimeClosed),
	}
}

var versionQueries = map[string]string{
	model.DialectSQLite: `SELECT sqlite_version()`,
}

// newHealthCheck pings the handle, then reads the server version to prove a
// round trip through the driver works.
func newHealthCheck(db *sqlx.DB, dialect string) func(ctx context.Context) error {
	query, ok := versionQueries[dialect]
	if !ok {
		query = `SELECT VERSION()`
	}
	return func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("%s health check failed on ping: %w", dialect, err)
		}
		var version string
		if err := db.GetContext(ctx, &version, query); err != nil {
			return fmt.Errorf("%s health check failed on version: %w", dialect, err)
		}
		o11y.AddField(ctx, "db.version", version)
		return nil
	}
}
