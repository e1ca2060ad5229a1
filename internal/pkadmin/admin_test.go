package pkadmin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darqos/pk/internal/pkd/session"
)

type fakeSource struct {
	sessions int
	ports    map[uint64]session.ID
}

func (f fakeSource) SessionCount() int                   { return f.sessions }
func (f fakeSource) PortSnapshot() map[uint64]session.ID { return f.ports }
func (f fakeSource) SessionSnapshot() []session.Info     { return nil }

func TestHealthz(t *testing.T) {
	r := NewRouter(nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body healthzResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
}

func TestDebugPorts(t *testing.T) {
	src := fakeSource{sessions: 1, ports: map[uint64]session.ID{16384: 1}}
	r := NewRouter(src)
	req := httptest.NewRequest(http.MethodGet, "/debug/ports", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body portsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Sessions)
	require.Len(t, body.Ports, 1)
	assert.EqualValues(t, 16384, body.Ports[0].Port)
}

func TestDebugPorts_NilSource(t *testing.T) {
	r := NewRouter(nil)
	req := httptest.NewRequest(http.MethodGet, "/debug/ports", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body portsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 0, body.Sessions)
	assert.Empty(t, body.Ports)
}
