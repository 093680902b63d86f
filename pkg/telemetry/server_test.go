package telemetry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/version"
)

func TestOpsMux_Version(t *testing.T) {
	rec := httptest.NewRecorder()
	opsMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, version.Version, body["version"])
	assert.Equal(t, version.GitCommit, body["git_commit"])
	assert.Equal(t, runtime.Version(), body["go_version"])
}

func TestOpsMux_Metrics(t *testing.T) {
	EngineTasksGenerated.Add(1)

	rec := httptest.NewRecorder()
	opsMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "autopilot_engine_tasks_generated_total")
}
