package binutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/lattice-mc/netsync/engine/nslog"
)

func TestStatusHandler(t *testing.T) {
	h := NewStatusHandler(func() interface{} {
		return map[string]int{"online": 3}
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var doc map[string]int
	assert.Equal(t, nil, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, 3, doc["online"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/opmon", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTPServerDisabled(t *testing.T) {
	srv, err := SetupHTTPServer("127.0.0.1", 0, nil)
	assert.Equal(t, nil, err)
	assert.T(t, srv == nil)
}

func TestSetupLog(t *testing.T) {
	out := nslog.GetOutput()
	defer nslog.SetOutput(out)

	file := filepath.Join(t.TempDir(), "netsync.log")
	SetupLog("test", "info", file, false)
	nslog.Infof("hello from the test")
	nslog.Sync()
	data, err := os.ReadFile(file)
	assert.Equal(t, nil, err)
	assert.T(t, len(data) > 0)
}
