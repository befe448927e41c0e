// Package o11y sets up the observability provider for the modellr binaries.
package o11y

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/rollbar/rollbar-go"
	"github.com/rs/zerolog"

	"github.com/circleci/modellr/config/secret"
	"github.com/circleci/modellr/o11y"
	"github.com/circleci/modellr/o11y/honeycomb"
	"github.com/circleci/modellr/o11y/zlog"
)

type Config struct {
	Statsd            string
	StatsNamespace    string
	RollbarToken      secret.String
	RollbarEnv        string
	RollbarServerRoot string
	HoneycombEnabled  bool
	HoneycombDataset  string
	HoneycombKey      secret.String
	SampleTraces      bool
	SampleKeyFunc     func(map[string]interface{}) string
	SampleRates       map[string]int
	// Format is "json" or "text"
	Format  string
	Version string
	Service string

	// Optional
	Mode string
	// Backend is "honeycomb" (the default) or "zerolog". Only honeycomb can send traces.
	Backend string
	Debug   bool
	// Writer overrides stderr, mainly for tests
	Writer                  io.Writer
	RollbarDisabled         bool
	StatsdTelemetryDisabled bool
}

// Setup is the primary entrypoint to initialise the o11y system. The returned func should be
// deferred to flush traces and metrics on exit.
func Setup(ctx context.Context, o Config) (context.Context, func(context.Context), error) {
	hostname, _ := os.Hostname()

	var metrics o11y.MetricsProvider = &statsd.NoOpClient{}
	if o.Statsd != "" {
		tags := []string{
			"service:" + o.Service,
			"version:" + o.Version,
			"hostname:" + hostname,
		}
		if o.Mode != "" {
			tags = append(tags, "mode:"+o.Mode)
		}

		statsdOpts := []statsd.Option{
			statsd.WithNamespace(o.StatsNamespace),
			statsd.WithTags(tags),
		}
		if o.StatsdTelemetryDisabled {
			statsdOpts = append(statsdOpts, statsd.WithoutTelemetry())
		}

		stats, err := statsd.New(o.Statsd, statsdOpts...)
		if err != nil {
			return nil, nil, err
		}
		metrics = stats
	}

	var p o11y.Provider
	switch o.Backend {
	case "", "honeycomb":
		conf, err := honeyComb(o)
		if err != nil {
			return nil, nil, err
		}
		conf.Metrics = metrics
		p = honeycomb.New(conf)
	case "zerolog":
		if o.HoneycombEnabled {
			return nil, nil, fmt.Errorf("backend %q cannot send to honeycomb", o.Backend)
		}
		level := zerolog.InfoLevel
		if o.Debug {
			level = zerolog.DebugLevel
		}
		w := o.Writer
		if w == nil {
			w = os.Stderr
		}
		p = zlog.New(zlog.Config{
			Writer:  w,
			Format:  o.Format,
			Level:   level,
			Metrics: metrics,
		})
	default:
		return nil, nil, fmt.Errorf("unknown o11y backend %q", o.Backend)
	}

	p.AddGlobalField("service", o.Service)
	p.AddGlobalField("version", o.Version)
	if o.Mode != "" {
		p.AddGlobalField("mode", o.Mode)
	}

	if o.RollbarToken != "" {
		client := rollbar.NewAsync(o.RollbarToken.Raw(), o.RollbarEnv, o.Version, hostname, o.RollbarServerRoot)
		client.SetEnabled(!o.RollbarDisabled)
		client.Message(rollbar.INFO, "Deployment")
		p = rollBarProvider{
			Provider:      p,
			rollBarClient: client,
		}
	}

	ctx = o11y.WithProvider(ctx, p)
	return ctx, p.Close, nil
}

type rollBarProvider struct {
	o11y.Provider
	rollBarClient *rollbar.Client
}

func (p rollBarProvider) Close(ctx context.Context) {
	p.Provider.Close(ctx)
	_ = p.rollBarClient.Close()
}

func (p rollBarProvider) RollBarClient() *rollbar.Client {
	return p.rollBarClient
}

func honeyComb(o Config) (honeycomb.Config, error) {
	if o.SampleKeyFunc == nil {
		o.SampleKeyFunc = func(fields map[string]interface{}) string {
			// the admin server and the monitor loop are the noisy spans
			return fmt.Sprintf("%s %v %v",
				fields["name"],
				fields["http.route"],
				fields["result"],
			)
		}
	}

	conf := honeycomb.Config{
		Dataset:       o.HoneycombDataset,
		Key:           o.HoneycombKey.Raw(),
		Format:        o.Format,
		SendTraces:    o.HoneycombEnabled,
		SampleTraces:  o.SampleTraces,
		SampleKeyFunc: o.SampleKeyFunc,
		SampleRates:   o.SampleRates,
		Writer:        o.Writer,
		ServiceName:   o.Service,
		Debug:         o.Debug,
	}
	return conf, conf.Validate()
}
