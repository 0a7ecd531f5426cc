package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"approval-flow/backend/internal/repository"
	"approval-flow/backend/internal/services"
	"approval-flow/backend/pkg/models"
)

func newTestAPI(t *testing.T) (*echo.Echo, *Server) {
	t.Helper()
	store := repository.NewMemoryStore()
	server := NewServer(services.NewTemplateService(store), services.NewFlowService(store), store)

	e := echo.New()
	e.GET("/health", server.HandleHealth)
	RegisterRoutes(e.Group("/api/v1"), server)
	return e, server
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	e, _ := newTestAPI(t)

	rec := doJSON(e, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "approval-flow", status.Service)
}

func TestTemplateLifecycle(t *testing.T) {
	e, _ := newTestAPI(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/templates",
		`{"name":"Purchase Approval","stages":[{"name":"Manager Review"},{"name":"Finance Review"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var template models.Template
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &template))

	rec = doJSON(e, http.MethodGet, "/api/v1/templates/"+template.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got TemplateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got.Stages, 2)

	rec = doJSON(e, http.MethodDelete, "/api/v1/templates/"+template.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/v1/templates/"+template.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateTemplateValidation(t *testing.T) {
	e, _ := newTestAPI(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/templates", `{"name":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInstanceLifecycleOverHTTP(t *testing.T) {
	e, _ := newTestAPI(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/templates",
		`{"name":"Purchase Approval","stages":[{"name":"Manager Review"},{"name":"Finance Review"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var template models.Template
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &template))

	rec = doJSON(e, http.MethodPost, "/api/v1/instances",
		`{"template_id":"`+template.ID+`","name":"PO-100"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var instance models.Instance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &instance))

	rec = doJSON(e, http.MethodGet, "/api/v1/instances/"+instance.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail models.InstanceDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	require.NotNil(t, detail.CurrentStage)
	assert.Equal(t, "Manager Review", detail.CurrentStage.Name)

	rec = doJSON(e, http.MethodPost, "/api/v1/instances/"+instance.ID+"/transitions",
		`{"stage_id":"`+detail.CurrentStage.ID+`","action":"advance","comment":"ok"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var result models.TransitionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, models.TransitionAdvanced, result.Status)
	assert.Contains(t, result.Message, "Finance Review")

	rec = doJSON(e, http.MethodPost, "/api/v1/instances/"+instance.ID+"/transitions",
		`{"stage_id":"`+detail.CurrentStage.ID+`","action":"oops"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/v1/instances?filter=in_progress", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var instances []*models.Instance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &instances))
	assert.Len(t, instances, 1)

	rec = doJSON(e, http.MethodDelete, "/api/v1/instances/"+instance.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/v1/instances/"+instance.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransitionUnknownInstance(t *testing.T) {
	e, _ := newTestAPI(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/instances/33333333-3333-3333-3333-333333333333/transitions",
		`{"stage_id":"whatever","action":"advance"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSectorEndpoints(t *testing.T) {
	e, _ := newTestAPI(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/sectors", `{"name":"Finance"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/v1/sectors", `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/v1/sectors", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sectors []*models.Sector
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sectors))
	assert.Len(t, sectors, 1)
}
