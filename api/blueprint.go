package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"strata.evalgo.org/blueprint"
)

func (s *Server) handleListBlueprints(c echo.Context) error {
	list, err := s.blueprints.List(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleGetBlueprint(c echo.Context) error {
	b, err := s.resolveBlueprint(c)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

func (s *Server) handleCreateBlueprint(c echo.Context) error {
	var b blueprint.Blueprint
	if err := c.Bind(&b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	created, verrs, err := s.blueprints.Create(c.Request().Context(), &b)
	if err != nil {
		return writeError(c, err)
	}
	if len(verrs) > 0 {
		return writeValidation(c, verrs)
	}
	return c.JSON(http.StatusCreated, created)
}

// blueprintUpdateResponse carries the updated blueprint plus warnings about
// destructive field changes (removed or retyped fields whose stored content
// data is now orphaned).
type blueprintUpdateResponse struct {
	Blueprint *blueprint.Blueprint `json:"blueprint"`
	Warnings  []string             `json:"warnings,omitempty"`
}

func (s *Server) handleUpdateBlueprint(c echo.Context) error {
	var next blueprint.Blueprint
	if err := c.Bind(&next); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	updated, verrs, warnings, err := s.blueprints.Update(c.Request().Context(), c.Param("bp"), &next)
	if err != nil {
		return writeError(c, err)
	}
	if len(verrs) > 0 {
		return writeValidation(c, verrs)
	}
	return c.JSON(http.StatusOK, blueprintUpdateResponse{Blueprint: updated, Warnings: warnings})
}

func (s *Server) handleDeleteBlueprint(c echo.Context) error {
	if err := s.blueprints.Delete(c.Request().Context(), c.Param("bp")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
