package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/circleci/modellr/o11y"
	"github.com/circleci/modellr/system"
)

const shutdownGrace = 10 * time.Second

type Config struct {
	// Name identifies the server in spans
	Name    string
	Addr    string
	Handler http.Handler
}

type HTTPServer struct {
	name     string
	listener net.Listener
	server   *http.Server
}

// New listens on cfg.Addr straight away, so a ":0" address can be read back with Addr.
func New(ctx context.Context, cfg Config) (s *HTTPServer, err error) {
	_, span := o11y.StartSpan(ctx, "httpserver: listen "+cfg.Name)
	defer o11y.End(span, &err)
	span.AddField("server_name", cfg.Name)

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}
	span.AddField("address", ln.Addr().String())

	return &HTTPServer{
		name:     cfg.Name,
		listener: ln,
		server: &http.Server{
			Handler:           cfg.Handler,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
		},
	}, nil
}

// Serve blocks until ctx is done, then gives in flight requests a grace period.
func (s *HTTPServer) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		if err := s.server.Shutdown(sctx); err != nil {
			return fmt.Errorf("%s server shutdown failed: %w", s.name, err)
		}
		return nil
	})
	g.Go(func() error {
		err := s.server.Serve(s.listener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	return g.Wait()
}

func (s *HTTPServer) Addr() string {
	return s.listener.Addr().String()
}

// Load creates the server and adds it to sys as a service.
func Load(ctx context.Context, cfg Config, sys *system.System) (*HTTPServer, error) {
	s, err := New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("could not start %q server: %w", cfg.Name, err)
	}
	sys.AddService(s.Serve)
	return s, nil
}
