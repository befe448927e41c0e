package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/circleci/modellr"
	"github.com/circleci/modellr/cmd/setup"
	"github.com/circleci/modellr/internal/syncbuffer"
	"github.com/circleci/modellr/testing/kongtest"
	"github.com/circleci/modellr/testing/testcontext"
)

func TestHelp(t *testing.T) {
	s := kongtest.Help(t, &cli{}, "check")
	assert.Check(t, cmp.Contains(s, "--connections=STRING"))
	assert.Check(t, cmp.Contains(s, "--o11y-format="))
	assert.Check(t, cmp.Contains(s, "--o11y-backend="))
	assert.Check(t, cmp.Contains(s, "--o11y-honeycomb-key="))

	s = kongtest.Help(t, &cli{}, "serve")
	assert.Check(t, cmp.Contains(s, "--monitor-interval="))
	assert.Check(t, cmp.Contains(s, "--admin-addr="))
}

func writeConnections(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "connections.json")
	assert.Assert(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRun_Check(t *testing.T) {
	dir := t.TempDir()
	conns := writeConnections(t, fmt.Sprintf(`[
		{"alias": "a", "driver": "sqlite", "path": %q},
		{"alias": "c", "driver": "sqlite", "path": %q}
	]`, filepath.Join(dir, "a.db"), filepath.Join(dir, "c.db")))

	stdout := &bytes.Buffer{}
	stderr := &syncbuffer.SyncBuffer{}
	err := run([]string{"check",
		"--connections", conns,
		"--models", "../../model/testdata",
		"--sync",
	}, stdout, stderr)
	assert.Assert(t, err)
	assert.Check(t, cmp.Equal(stdout.String(), `instances: 3 models: 3
default: unloaded
a: live [Organization OrganizationUser User]
c: live [Organization OrganizationUser User]
`))

	assert.Check(t, cmp.Len(stderr.Lines(`"name":"starting modellr"`), 1))

	_, err = os.Stat(filepath.Join(dir, "a.db"))
	assert.Check(t, err)
}

func TestRun_CheckNoViableConnection(t *testing.T) {
	conns := writeConnections(t, `{"driver": "oracle"}`)

	err := run([]string{"check", "--connections", conns}, io.Discard, io.Discard)
	assert.Check(t, errors.Is(err, modellr.ErrNoViableConnection))
}

func TestRun_CheckNeedsConnections(t *testing.T) {
	err := run([]string{"check"}, io.Discard, io.Discard)
	assert.Check(t, errors.Is(err, modellr.ErrNoConnections))
}

func TestInstancesHandler(t *testing.T) {
	ctx := testcontext.Background()
	conns := writeConnections(t, fmt.Sprintf(`[
		{"alias": "a", "driver": "sqlite", "path": %q},
		{"alias": "b", "driver": "oracle"}
	]`, filepath.Join(t.TempDir(), "a.db")))

	mgr, _, err := setup.LoadManager(ctx, setup.CLI{
		Connections: conns,
		Models:      "../../model/testdata",
	})
	assert.Assert(t, err)
	defer mgr.CloseAll(ctx)

	r := gin.New()
	r.GET("/instances", instancesHandler(mgr))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/instances", nil))

	assert.Check(t, cmp.Equal(w.Code, http.StatusOK))
	var got []instanceStatus
	assert.Assert(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Check(t, cmp.DeepEqual(got, []instanceStatus{
		{Alias: "default", State: modellr.StateUnloaded, Models: []string{}},
		{Alias: "a", State: modellr.StateLive, Models: []string{"Organization", "OrganizationUser", "User"}},
	}))
}
