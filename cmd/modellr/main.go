package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log" //nolint:depguard // non-o11y log is allowed for a top-level fatal
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/cenkalti/backoff/v4"

	"github.com/circleci/modellr"
	"github.com/circleci/modellr/cmd"
	"github.com/circleci/modellr/cmd/setup"
	"github.com/circleci/modellr/httpserver"
	"github.com/circleci/modellr/httpserver/healthcheck"
	"github.com/circleci/modellr/o11y"
	"github.com/circleci/modellr/system"
	"github.com/circleci/modellr/termination"
	"github.com/circleci/modellr/worker"
)

type cli struct {
	setup.CLI

	Check checkCmd `cmd:"" help:"Load the connections and models, report what is live and exit"`
	Serve serveCmd `cmd:"" help:"Load the connections and models and monitor them until terminated"`
}

type checkCmd struct{}

type serveCmd struct {
	ShutdownDelay   time.Duration `env:"SHUTDOWN_DELAY" default:"5s" help:"Delay shutdown by this amount" hidden:""`
	MonitorInterval time.Duration `env:"MONITOR_INTERVAL" default:"30s" help:"How often the live instances are checked"`
	AdminAddr       string        `env:"ADMIN_ADDR" default:":8001" help:"Address the health checks and instance listing are served on"`
}

func main() {
	err := run(os.Args[1:], os.Stdout, os.Stderr)
	if err != nil && !errors.Is(err, termination.ErrTerminated) {
		log.Fatal("Unexpected Error: ", err)
	}
	log.Println("exited 0")
}

func run(args []string, stdout, stderr io.Writer) (err error) {
	c := cli{}
	parser, err := kong.New(&c,
		kong.Name("modellr"),
		kong.Description("Connects to a set of aliased databases and loads models onto each of them."),
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	mode := kctx.Command()

	ctx, o11yCleanup, err := setup.LoadO11y(cmd.Version, mode, c.CLI, stderr)
	if err != nil {
		return err
	}
	defer o11yCleanup(ctx)

	ctx, runSpan := o11y.StartSpan(ctx, "main: run")
	defer o11y.End(runSpan, &err)

	o11y.Log(ctx, "starting modellr",
		o11y.Field("version", cmd.Version),
		o11y.Field("date", cmd.Date),
		o11y.Field("mode", mode),
	)

	mgr, summary, err := setup.LoadManager(ctx, c.CLI)
	if err != nil {
		return err
	}

	switch mode {
	case "serve":
		return serve(ctx, c.Serve, mgr)
	default:
		defer func() {
			_ = mgr.CloseAll(ctx)
		}()
		return report(stdout, mgr, summary)
	}
}

func report(w io.Writer, mgr *modellr.Manager, summary modellr.Summary) error {
	_, err := fmt.Fprintf(w, "instances: %d models: %d\n", summary.Instances, summary.Models)
	if err != nil {
		return err
	}
	for _, alias := range mgr.Aliases() {
		inst := mgr.Instance(alias)
		if inst.Alias != alias {
			_, err = fmt.Fprintf(w, "%s: %s\n", alias, modellr.StateUnloaded)
			if err != nil {
				return err
			}
			continue
		}
		names := make([]string, 0, inst.Len())
		for _, m := range inst.Models() {
			names = append(names, m.Name)
		}
		_, err = fmt.Fprintf(w, "%s: %s %v\n", alias, inst.State(), names)
		if err != nil {
			return err
		}
	}
	return nil
}

func serve(ctx context.Context, s serveCmd, mgr *modellr.Manager) error {
	sys := system.New()
	defer sys.Cleanup(ctx)

	mgr.AddToSystem(sys)

	api, err := healthcheck.New(ctx, sys.HealthChecks())
	if err != nil {
		return err
	}
	api.Router().GET("/instances", instancesHandler(mgr))
	_, err = httpserver.Load(ctx, httpserver.Config{
		Name:    "admin",
		Addr:    s.AdminAddr,
		Handler: api.Handler(),
	}, sys)
	if err != nil {
		return err
	}

	sys.AddService(func(ctx context.Context) error {
		return worker.Run(ctx, worker.Config{
			Name:          "instance-monitor",
			NoWorkBackOff: backoff.NewConstantBackOff(s.MonitorInterval),
			WorkFunc: func(ctx context.Context) error {
				err := sys.Ready(ctx)
				if err != nil {
					o11y.LogError(ctx, "monitor: instances unhealthy", err)
				}
				return worker.ErrShouldBackoff
			},
		})
	})

	return sys.Run(ctx, s.ShutdownDelay)
}
