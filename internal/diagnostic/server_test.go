package diagnostic

import (
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/restorepoint/vmcr/internal/checkpoint"
	"github.com/restorepoint/vmcr/internal/config"
	"github.com/restorepoint/vmcr/internal/resourcebus"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	d := &checkpoint.Driver{
		Config: config.Config{},
		Bus:    resourcebus.New(),
		Ctx:    checkpoint.NewContext(nil),
	}
	sockPath := filepath.Join(t.TempDir(), "diagnostic.sock")
	s, err := Listen(sockPath, -1, d)
	assert.NilError(t, err)
	go s.Serve()
	return s
}

func dial(t *testing.T, s *Server, method, path string) *http.Response {
	t.Helper()
	client := http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", s.listener.Addr().String())
			},
		},
	}
	req, err := http.NewRequest(method, "http://diagnostic"+path, nil)
	assert.NilError(t, err)
	resp, err := client.Do(req)
	assert.NilError(t, err)
	return resp
}

func TestCheckpointConfigMissingOverSocket(t *testing.T) {
	s := newTestServer(t)
	defer s.Abort(context.Background())

	resp := dial(t, s, http.MethodPost, "/checkpoint?dry_run=true")
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	assert.NilError(t, err)
	assert.Assert(t, len(body) > 0)
}

func TestAbortStopsAcceptingConnections(t *testing.T) {
	s := newTestServer(t)
	assert.NilError(t, s.Abort(context.Background()))
	assert.NilError(t, s.Abort(context.Background())) // idempotent

	_, err := net.DialTimeout("unix", s.listener.Addr().String(), 100*time.Millisecond)
	assert.Assert(t, err != nil)
}
