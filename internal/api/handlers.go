// Package api contains the HTTP handlers for the approval-flow service
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"approval-flow/backend/internal/auth"
	"approval-flow/backend/internal/repository"
	"approval-flow/backend/internal/services"
)

// Server holds the dependencies for the API server.
type Server struct {
	Templates *services.TemplateService
	Flows     *services.FlowService
	Store     repository.Store
}

// NewServer creates a new Server.
func NewServer(templates *services.TemplateService, flows *services.FlowService, store repository.Store) *Server {
	return &Server{Templates: templates, Flows: flows, Store: store}
}

// RegisterRoutes mounts all REST handlers on the given group.
func RegisterRoutes(g *echo.Group, s *Server) {
	g.GET("/sectors", s.ListSectors)
	g.POST("/sectors", s.CreateSector)

	g.GET("/templates", s.ListTemplates)
	g.POST("/templates", s.CreateTemplate)
	g.GET("/templates/:id", s.GetTemplate)
	g.PUT("/templates/:id", s.UpdateTemplate)
	g.DELETE("/templates/:id", s.DeleteTemplate)

	g.GET("/instances", s.ListInstances)
	g.POST("/instances", s.CreateInstance)
	g.GET("/instances/:id", s.GetInstance)
	g.DELETE("/instances/:id", s.DeleteInstance)
	g.POST("/instances/:id/transitions", s.Transition)
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

// HandleHealth returns basic health status (always returns 200 OK)
func (s *Server) HandleHealth(c echo.Context) error {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   "approval-flow",
		Version:   "1.0.0",
	}
	if err := s.Store.Ping(c.Request().Context()); err != nil {
		status.Status = "degraded"
	}
	return c.JSON(http.StatusOK, status)
}

// actorID extracts the acting user injected by the auth middleware, or nil
// when the route is reached without one.
func actorID(c echo.Context) *string {
	if id, ok := c.Request().Context().Value(auth.ContextKeyUserID).(string); ok && id != "" {
		return &id
	}
	return nil
}

// httpError maps the service error taxonomy onto HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, services.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrInconsistent):
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// writeError writes an RFC 7807 Problem Details JSON error response. Used by
// the plain net/http handlers mounted outside echo.
func writeError(w http.ResponseWriter, status int, title, detail string) {
	problem := ProblemDetails{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(problem)
}
