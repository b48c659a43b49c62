package httpd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/loykin/gridnode/internal/logbuf"
	"github.com/loykin/gridnode/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNode struct {
	entries []logbuf.Entry
	lastN   int
}

func (f *fakeNode) NodeType() string      { return "Worker" }
func (f *fakeNode) Status() string        { return "running" }
func (f *fakeNode) ListenAddress() string { return "127.0.0.1:8786" }

func (f *fakeNode) Logs(n int) []logbuf.Entry {
	f.lastN = n
	return f.entries
}

func (f *fakeNode) ServicePorts() map[string]int {
	return map[string]int{"dashboard": 8787}
}

func (f *fakeNode) Versions(packages []string) version.Report {
	return version.Get(packages)
}

func doGET(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthAndInfo(t *testing.T) {
	h := NewRouter(&fakeNode{}, "").Handler()

	w := doGET(t, h, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "running")

	w = doGET(t, h, "/info")
	require.Equal(t, http.StatusOK, w.Code)
	var info map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "Worker", info["type"])
	assert.Equal(t, "127.0.0.1:8786", info["address"])
}

func TestLogsQuery(t *testing.T) {
	fn := &fakeNode{entries: []logbuf.Entry{{Level: "INFO", Message: "m"}}}
	h := NewRouter(fn, "").Handler()

	w := doGET(t, h, "/logs")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, fn.lastN)

	w = doGET(t, h, "/logs?n=3")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, fn.lastN)

	w = doGET(t, h, "/logs?n=-1")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doGET(t, h, "/logs?n=zap")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServicePorts(t *testing.T) {
	h := NewRouter(&fakeNode{}, "").Handler()
	w := doGET(t, h, "/service-ports")
	require.Equal(t, http.StatusOK, w.Code)
	var ports map[string]int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ports))
	assert.Equal(t, 8787, ports["dashboard"])
}

func TestVersions(t *testing.T) {
	h := NewRouter(&fakeNode{}, "").Handler()
	w := doGET(t, h, "/versions?package=example.com/missing")
	require.Equal(t, http.StatusOK, w.Code)
	var rep version.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, "MISSING", rep.Packages["example.com/missing"])
}

func TestBasePath(t *testing.T) {
	h := NewRouter(&fakeNode{}, "/admin/").Handler()
	w := doGET(t, h, "/admin/health")
	assert.Equal(t, http.StatusOK, w.Code)
	w = doGET(t, h, "/health")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSanitizeBase(t *testing.T) {
	assert.Equal(t, "", sanitizeBase(""))
	assert.Equal(t, "", sanitizeBase("/"))
	assert.Equal(t, "/abc", sanitizeBase("abc"))
	assert.Equal(t, "/abc", sanitizeBase("/abc/"))
}
