package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"strata.evalgo.org/webhook"
)

func (s *Server) handleListWebhooks(c echo.Context) error {
	hooks, err := s.webhooks.ListWebhooks(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, hooks)
}

func (s *Server) handleGetWebhook(c echo.Context) error {
	hook, err := s.webhooks.GetWebhook(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, hook)
}

func validateWebhook(w *webhook.Webhook) error {
	if w.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	parsed, err := url.Parse(w.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return echo.NewHTTPError(http.StatusBadRequest, "url must be http or https")
	}
	if len(w.Events) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one event is required")
	}
	return nil
}

func (s *Server) handleCreateWebhook(c echo.Context) error {
	var hook webhook.Webhook
	if err := c.Bind(&hook); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validateWebhook(&hook); err != nil {
		return err
	}

	hook.ID = uuid.NewString()
	hook.CreatedAt = time.Now().UTC()
	if err := s.webhooks.InsertWebhook(c.Request().Context(), &hook); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, hook)
}

func (s *Server) handleUpdateWebhook(c echo.Context) error {
	current, err := s.webhooks.GetWebhook(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}

	next := *current
	if err := c.Bind(&next); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validateWebhook(&next); err != nil {
		return err
	}

	// Identity fields are not updatable.
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	if err := s.webhooks.UpdateWebhook(c.Request().Context(), &next); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, next)
}

func (s *Server) handleDeleteWebhook(c echo.Context) error {
	if err := s.webhooks.DeleteWebhook(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListDeliveries(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	deliveries, err := s.webhooks.ListDeliveries(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, deliveries)
}
