package httpserver

import (
	"context"
	"io"
	"net/http"
	"testing"

	"golang.org/x/sync/errgroup"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/circleci/modellr/system"
	"github.com/circleci/modellr/testing/testcontext"
)

func TestHTTPServer_Serve(t *testing.T) {
	ctx, cancel := context.WithCancel(testcontext.Background())
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/instances", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "default: live")
	})

	srv, err := New(ctx, Config{Name: "admin", Addr: "localhost:0", Handler: mux})
	assert.Assert(t, err)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx)
	})

	res, err := http.Get("http://" + srv.Addr() + "/instances")
	assert.Assert(t, err)
	b, err := io.ReadAll(res.Body)
	assert.Check(t, res.Body.Close())
	assert.Assert(t, err)
	assert.Check(t, cmp.Equal(res.StatusCode, http.StatusOK))
	assert.Check(t, cmp.Equal(string(b), "default: live"))

	cancel()
	assert.Check(t, g.Wait())
}

func TestNew_BadAddress(t *testing.T) {
	_, err := New(testcontext.Background(), Config{Name: "admin", Addr: "localhost:-1"})
	assert.Check(t, err != nil)
}

func TestLoad(t *testing.T) {
	sys := system.New()
	srv, err := Load(testcontext.Background(), Config{Name: "admin", Addr: "localhost:0", Handler: http.NewServeMux()}, sys)
	assert.Assert(t, err)
	assert.Check(t, srv.Addr() != "")
	assert.Check(t, srv.listener.Close())
}
