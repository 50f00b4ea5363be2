package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"strata.evalgo.org/blueprint"
	"strata.evalgo.org/content"
	"strata.evalgo.org/query"
)

// resolveBlueprint loads the blueprint named in the :bp path segment, by id
// or slug.
func (s *Server) resolveBlueprint(c echo.Context) (*blueprint.Blueprint, error) {
	return s.blueprints.Get(c.Request().Context(), c.Param("bp"))
}

func (s *Server) handleCreateContent(c echo.Context) error {
	b, err := s.resolveBlueprint(c)
	if err != nil {
		return writeError(c, err)
	}

	var input map[string]interface{}
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	item, verrs, err := s.content.Create(c.Request().Context(), b, input, actor(c))
	if err != nil {
		return writeError(c, err)
	}
	if len(verrs) > 0 {
		return writeValidation(c, verrs)
	}
	return c.JSON(http.StatusCreated, item)
}

func (s *Server) handleGetContent(c echo.Context) error {
	b, err := s.resolveBlueprint(c)
	if err != nil {
		return writeError(c, err)
	}

	opts := content.GetOptions{}
	if raw := c.QueryParam("populate"); raw != "" {
		opts.Populate = strings.Split(raw, ",")
	}

	item, err := s.content.Get(c.Request().Context(), b, c.Param("id"), opts)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, item)
}

func (s *Server) handleListContent(c echo.Context) error {
	b, err := s.resolveBlueprint(c)
	if err != nil {
		return writeError(c, err)
	}

	params := make(map[string]string)
	for key, values := range c.QueryParams() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	page, err := s.content.Query(c.Request().Context(), b, query.Parse(params))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

func (s *Server) handleUpdateContent(c echo.Context) error {
	b, err := s.resolveBlueprint(c)
	if err != nil {
		return writeError(c, err)
	}

	var patch map[string]interface{}
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	item, verrs, err := s.content.Update(c.Request().Context(), b, c.Param("id"), patch, actor(c))
	if err != nil {
		return writeError(c, err)
	}
	if len(verrs) > 0 {
		return writeValidation(c, verrs)
	}
	return c.JSON(http.StatusOK, item)
}

func (s *Server) handleDeleteContent(c echo.Context) error {
	b, err := s.resolveBlueprint(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := s.content.Delete(c.Request().Context(), b, c.Param("id"), actor(c)); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handlePublishContent(c echo.Context) error {
	return s.handleTransition(c, s.content.Publish)
}

func (s *Server) handleUnpublishContent(c echo.Context) error {
	return s.handleTransition(c, s.content.Unpublish)
}

func (s *Server) handleArchiveContent(c echo.Context) error {
	return s.handleTransition(c, s.content.Archive)
}

type transitionFunc func(ctx context.Context, b *blueprint.Blueprint, idOrSlug, actor string) (*content.Content, error)

func (s *Server) handleTransition(c echo.Context, fn transitionFunc) error {
	b, err := s.resolveBlueprint(c)
	if err != nil {
		return writeError(c, err)
	}
	item, err := fn(c.Request().Context(), b, c.Param("id"), actor(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, item)
}

func (s *Server) handleListVersions(c echo.Context) error {
	b, err := s.resolveBlueprint(c)
	if err != nil {
		return writeError(c, err)
	}
	versions, err := s.content.Versions(c.Request().Context(), b, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, versions)
}

// rollbackRequest names the version to replay.
type rollbackRequest struct {
	Version int `json:"version"`
}

func (s *Server) handleRollbackContent(c echo.Context) error {
	b, err := s.resolveBlueprint(c)
	if err != nil {
		return writeError(c, err)
	}

	var req rollbackRequest
	if err := c.Bind(&req); err != nil || req.Version < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "version must be a positive integer")
	}

	item, verrs, err := s.content.Rollback(c.Request().Context(), b, c.Param("id"), req.Version, actor(c))
	if err != nil {
		return writeError(c, err)
	}
	if len(verrs) > 0 {
		return writeValidation(c, verrs)
	}
	return c.JSON(http.StatusOK, item)
}

// addRelationRequest creates a directed edge between two content items.
type addRelationRequest struct {
	SourceID string `json:"sourceId"`
	TargetID string `json:"targetId"`
	Type     string `json:"type"`
	Policy   string `json:"policy,omitempty"`
}

func (s *Server) handleAddRelation(c echo.Context) error {
	var req addRelationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.SourceID == "" || req.TargetID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sourceId and targetId are required")
	}

	rel, err := s.content.AddRelation(c.Request().Context(), req.SourceID, req.TargetID, req.Type, req.Policy)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, rel)
}

func (s *Server) handleRemoveRelation(c echo.Context) error {
	if err := s.content.RemoveRelation(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
