// Package testcontext provides contexts for tests that carry a working o11y provider.
package testcontext

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"github.com/circleci/modellr/o11y"
	"github.com/circleci/modellr/o11y/zlog"
)

// ctx is a package singleton so every test in a binary shares one provider
var ctx = newContext()

// Background returns a context for use in tests which contains a working o11y, so you get logs.
func Background() context.Context {
	return ctx
}

func newContext() context.Context {
	p := zlog.New(zlog.Config{
		Writer: os.Stderr,
		Format: "text",
		Level:  zerolog.DebugLevel,
	})
	p.AddGlobalField("service", "test-service")
	return o11y.WithProvider(context.Background(), p)
}
