package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"approval-flow/backend/pkg/models"
)

// CreateInstanceRequest is the body for POST /instances.
type CreateInstanceRequest struct {
	TemplateID string `json:"template_id"`
	Name       string `json:"name"`
}

// TransitionRequest is the body for POST /instances/:id/transitions.
type TransitionRequest struct {
	StageID string `json:"stage_id"`
	Action  string `json:"action"`
	Comment string `json:"comment"`
}

// ListInstances returns flow instances, optionally filtered
// (GET /api/v1/instances?filter=all|in_progress|finalized)
func (s *Server) ListInstances(c echo.Context) error {
	filter := models.InstanceFilter(c.QueryParam("filter"))
	instances, err := s.Flows.List(c.Request().Context(), filter)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, instances)
}

// CreateInstance clones a template into a running flow
// (POST /api/v1/instances)
func (s *Server) CreateInstance(c echo.Context) error {
	var req CreateInstanceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	instance, err := s.Flows.Instantiate(c.Request().Context(), req.TemplateID, req.Name, actorID(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, instance)
}

// GetInstance returns one flow with stages, current stage and movement history
// (GET /api/v1/instances/:id)
func (s *Server) GetInstance(c echo.Context) error {
	detail, err := s.Flows.GetDetail(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, detail)
}

// DeleteInstance removes a flow, its stages and its movements
// (DELETE /api/v1/instances/:id)
func (s *Server) DeleteInstance(c echo.Context) error {
	if err := s.Flows.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Transition advances or retreats one stage of a flow
// (POST /api/v1/instances/:id/transitions)
func (s *Server) Transition(c echo.Context) error {
	var req TransitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	result, err := s.Flows.Transition(c.Request().Context(), c.Param("id"), req.StageID, req.Action, actorID(c), req.Comment)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}
