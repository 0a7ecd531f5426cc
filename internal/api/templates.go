package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"approval-flow/backend/pkg/models"
)

// CreateTemplateRequest is the body for POST /templates. Stages arrive as an
// already-parsed ordered list; form-style field marshalling is the caller's
// concern.
type CreateTemplateRequest struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Stages      []models.StageInput `json:"stages"`
}

// TemplateResponse pairs a template with its ordered stages.
type TemplateResponse struct {
	Template *models.Template        `json:"template"`
	Stages   []*models.TemplateStage `json:"stages"`
}

// ListTemplates returns all templates
// (GET /api/v1/templates)
func (s *Server) ListTemplates(c echo.Context) error {
	templates, err := s.Templates.List(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, templates)
}

// CreateTemplate creates a template with its ordered stage list
// (POST /api/v1/templates)
func (s *Server) CreateTemplate(c echo.Context) error {
	var req CreateTemplateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	template, err := s.Templates.Create(c.Request().Context(), req.Name, req.Description, actorID(c), req.Stages)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, template)
}

// GetTemplate returns one template with its stages
// (GET /api/v1/templates/:id)
func (s *Server) GetTemplate(c echo.Context) error {
	template, stages, err := s.Templates.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, TemplateResponse{Template: template, Stages: stages})
}

// UpdateTemplate renames a template
// (PUT /api/v1/templates/:id)
func (s *Server) UpdateTemplate(c echo.Context) error {
	var req CreateTemplateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	template, err := s.Templates.Update(c.Request().Context(), c.Param("id"), req.Name, req.Description)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, template)
}

// DeleteTemplate removes a template and its stages
// (DELETE /api/v1/templates/:id)
func (s *Server) DeleteTemplate(c echo.Context) error {
	if err := s.Templates.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SectorRequest is the body for POST /sectors.
type SectorRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ListSectors returns the sector directory
// (GET /api/v1/sectors)
func (s *Server) ListSectors(c echo.Context) error {
	sectors, err := s.Store.ListSectors(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sectors)
}

// CreateSector adds a sector to the directory
// (POST /api/v1/sectors)
func (s *Server) CreateSector(c echo.Context) error {
	var req SectorRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sector name is required")
	}

	sector := &models.Sector{
		ID:        uuid.New().String(),
		Name:      req.Name,
		CreatedAt: time.Now(),
	}
	if req.Description != "" {
		sector.Description = &req.Description
	}
	if err := s.Store.CreateSector(c.Request().Context(), sector); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, sector)
}
