// Package setup contains the wiring shared by the modellr commands
package setup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/circleci/modellr"
	"github.com/circleci/modellr/config/secret"
	configo11y "github.com/circleci/modellr/config/o11y"
	"github.com/circleci/modellr/model"
	"github.com/circleci/modellr/o11y"
)

type CLI struct {
	Connections string        `env:"MODELLR_CONNECTIONS" help:"JSON file holding one connection or an array of connections"`
	Models      string        `env:"MODELLR_MODELS" help:"Directory of *.model.json schema files"`
	Wait        time.Duration `env:"MODELLR_WAIT" default:"0s" help:"Keep retrying while no connection is viable for this long"`
	AuthTimeout time.Duration `env:"MODELLR_AUTH_TIMEOUT" default:"30s" help:"Bound on each authentication attempt"`
	Sync        bool          `env:"MODELLR_SYNC" help:"Create missing tables for the loaded models"`
	AppName     string        `env:"MODELLR_APP_NAME" default:"modellr" help:"Postgres application name"`

	O11yStatsd           string        `name:"o11y-statsd" env:"O11Y_STATSD" help:"Address to send statsd metrics, none are sent if empty"`
	O11yFormat           string        `name:"o11y-format" env:"O11Y_FORMAT" enum:"json,text" default:"json" help:"Format used for stderr logging"`
	O11yBackend          string        `name:"o11y-backend" env:"O11Y_BACKEND" enum:"honeycomb,zerolog" default:"honeycomb" help:"Provider the spans and events go through"`
	O11yHoneycombEnabled bool          `name:"o11y-honeycomb-enabled" env:"O11Y_HONEYCOMB_ENABLED" help:"Send traces to honeycomb"`
	O11yHoneycombDataset string        `name:"o11y-honeycomb-dataset" env:"O11Y_HONEYCOMB_DATASET" default:"modellr" help:"Honeycomb dataset the traces go to"`
	O11yHoneycombKey     secret.String `name:"o11y-honeycomb-key" env:"O11Y_HONEYCOMB_KEY" help:"Honeycomb API key"`
	O11ySampleTraces     bool          `name:"o11y-sample-traces" env:"O11Y_SAMPLE_TRACES" help:"Sample the monitor and health check traces"`
	O11yRollbarToken     secret.String `name:"o11y-rollbar-token" env:"O11Y_ROLLBAR_TOKEN" help:"Rollbar token panics are reported with"`
	O11yRollbarEnv       string        `name:"o11y-rollbar-env" env:"O11Y_ROLLBAR_ENV" default:"production" help:"Rollbar environment"`
	O11yDebug            bool          `name:"o11y-debug" env:"O11Y_DEBUG" help:"Log spans as well as events"`
}

// sampleRates are keyed by span name, http route and result. Failures are always kept.
var sampleRates = map[string]int{
	"worker loop: instance-monitor <nil> success": 10,
	"GET /live /live success":                     100,
	"GET /ready /ready success":                   100,
}

func LoadO11y(version, mode string, cli CLI, w io.Writer) (context.Context, func(context.Context), error) {
	cfg := configo11y.Config{
		Statsd:           cli.O11yStatsd,
		StatsNamespace:   "circleci.modellr.",
		RollbarToken:     cli.O11yRollbarToken,
		RollbarEnv:       cli.O11yRollbarEnv,
		HoneycombEnabled: cli.O11yHoneycombEnabled,
		HoneycombDataset: cli.O11yHoneycombDataset,
		HoneycombKey:     cli.O11yHoneycombKey,
		SampleTraces:     cli.O11ySampleTraces,
		SampleRates:      sampleRates,
		Format:           cli.O11yFormat,
		Backend:          cli.O11yBackend,
		Debug:            cli.O11yDebug,
		Version:          version,
		Service:          "modellr",
		Mode:             mode,
		Writer:           w,
	}
	return configo11y.Setup(context.Background(), cfg)
}

// LoadManager reads the connections file, then loads the connections and models into a new
// manager. Loads that find no viable connection are retried until cli.Wait has passed.
func LoadManager(ctx context.Context, cli CLI) (mgr *modellr.Manager, summary modellr.Summary, err error) {
	ctx, span := o11y.StartSpan(ctx, "setup: load manager")
	defer o11y.End(span, &err)

	if cli.Connections == "" {
		return nil, summary, fmt.Errorf("--connections: %w", modellr.ErrNoConnections)
	}
	b, err := os.ReadFile(cli.Connections)
	if err != nil {
		return nil, summary, fmt.Errorf("could not read connections: %w", err)
	}
	conns, err := modellr.ParseConnections(b)
	if err != nil {
		return nil, summary, err
	}

	var src model.Source
	if cli.Models != "" {
		src = model.Dir(cli.Models)
	}

	mgr = modellr.New(modellr.Options{
		AuthTimeout: cli.AuthTimeout,
		AppName:     cli.AppName,
	})
	mgr.OnWarning(func(msg string) {
		o11y.Log(ctx, "setup: warning", o11y.Field("message", msg))
	})

	summary, err = Retry(ctx, cli.Wait, func() (modellr.Summary, error) {
		return mgr.Load(ctx, src, conns...)
	})
	if err != nil {
		_ = mgr.CloseAll(ctx)
		return nil, summary, err
	}

	if cli.Sync {
		err = mgr.Sync(ctx)
		if err != nil {
			_ = mgr.CloseAll(ctx)
			return nil, summary, err
		}
	}
	return mgr, summary, nil
}

// Retry calls load until it succeeds, wait has passed or it fails with anything other
// than ErrNoViableConnection. A zero wait calls load once.
func Retry(ctx context.Context, wait time.Duration, load func() (modellr.Summary, error)) (modellr.Summary, error) {
	if wait <= 0 {
		return load()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = wait

	var summary modellr.Summary
	err := backoff.RetryNotify(func() error {
		var err error
		summary, err = load()
		switch {
		case err == nil:
			return nil
		case errors.Is(err, modellr.ErrNoViableConnection):
			return err
		default:
			return backoff.Permanent(err)
		}
	}, backoff.WithContext(bo, ctx), func(err error, d time.Duration) {
		o11y.Log(ctx, "setup: retrying load",
			o11y.Field("error", err.Error()),
			o11y.Field("delay", d.String()),
		)
	})
	return summary, err
}
