package modellr

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"github.com/circleci/modellr/db"
	"github.com/circleci/modellr/system"
)

type healthChecked interface {
	HealthCheck() *db.HealthCheck
}

// AddToSystem registers the manager health check and gauges, the pool gauges of every
// live SQL instance and a cleanup closing everything.
func (m *Manager) AddToSystem(sys *system.System) {
	sys.AddHealthCheck(m)
	sys.AddMetrics(m)
	for _, inst := range m.Live() {
		if e, ok := inst.Engine.(healthChecked); ok {
			sys.AddMetrics(e.HealthCheck())
		}
	}
	sys.AddCleanup(m.CloseAll)
}

func (m *Manager) HealthChecks() (name string, ready, live func(ctx context.Context) error) {
	return "modellr", m.ready, nil
}

// ready authenticates every live instance again.
func (m *Manager) ready(ctx context.Context) error {
	insts := m.Live()
	if len(insts) == 0 {
		return ErrNoViableConnection
	}
	var result error
	for _, inst := range insts {
		if err := inst.Engine.Authenticate(ctx); err != nil {
			result = multierror.Append(result, &ConnectionError{Alias: inst.Alias, Err: err})
		}
	}
	return result
}

func (m *Manager) MetricName() string {
	return "modellr"
}

func (m *Manager) Gauges(_ context.Context) map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]float64{
		"instances":      float64(m.reg.len()),
		"instances_live": float64(len(m.reg.live())),
		"models":         float64(len(m.defs)),
	}
}
