package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"strata.evalgo.org/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := s.auth.Authenticate(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleMe(c echo.Context) error {
	user, err := s.auth.GetUser(c.Request().Context(), userID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, user.ToResponse())
}

type changePasswordRequest struct {
	Current string `json:"current"`
	Next    string `json:"next"`
}

func (s *Server) handleChangePassword(c echo.Context) error {
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.auth.ChangePassword(c.Request().Context(), userID(c), req.Current, req.Next); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListAPIKeys(c echo.Context) error {
	keys, err := s.auth.ListAPIKeys(c.Request().Context(), userID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, keys)
}

// createAPIKeyResponse carries the raw key exactly once; it is never
// retrievable again.
type createAPIKeyResponse struct {
	Key    string       `json:"key"`
	Record *auth.APIKey `json:"record"`
}

func (s *Server) handleCreateAPIKey(c echo.Context) error {
	var req auth.CreateAPIKeyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}

	raw, key, err := s.auth.CreateAPIKey(c.Request().Context(), userID(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, createAPIKeyResponse{Key: raw, Record: key})
}

func (s *Server) handleDisableAPIKey(c echo.Context) error {
	// DisableAPIKey resolves the id against the caller's own keys, so
	// ownership is enforced by construction.
	err := s.auth.DisableAPIKey(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		if err == auth.ErrInvalidAPIKey {
			return echo.NewHTTPError(http.StatusNotFound, "api key not found")
		}
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleRevokeAPIKey(c echo.Context) error {
	// Only the owner's keys are listed, but revocation must check
	// ownership explicitly.
	keys, err := s.auth.ListAPIKeys(c.Request().Context(), userID(c))
	if err != nil {
		return writeError(c, err)
	}
	id := c.Param("id")
	for _, key := range keys {
		if key.ID == id {
			if err := s.auth.RevokeAPIKey(c.Request().Context(), id); err != nil {
				return writeError(c, err)
			}
			return c.NoContent(http.StatusNoContent)
		}
	}
	return echo.NewHTTPError(http.StatusNotFound, "api key not found")
}

func (s *Server) handleListUsers(c echo.Context) error {
	users, err := s.auth.ListUsers(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	responses := make([]*auth.UserResponse, 0, len(users))
	for _, u := range users {
		responses = append(responses, u.ToResponse())
	}
	return c.JSON(http.StatusOK, responses)
}

func (s *Server) handleCreateUser(c echo.Context) error {
	var req auth.CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	user, err := s.auth.CreateUser(c.Request().Context(), req)
	if err != nil {
		switch err {
		case auth.ErrUserExists:
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case auth.ErrInvalidEmail, auth.ErrWeakPassword, auth.ErrEmptyPassword, auth.ErrPasswordTooShort:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return writeError(c, err)
		}
	}
	return c.JSON(http.StatusCreated, user.ToResponse())
}

func (s *Server) handleGetUser(c echo.Context) error {
	user, err := s.auth.GetUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	return c.JSON(http.StatusOK, user.ToResponse())
}

func (s *Server) handleDeleteUser(c echo.Context) error {
	err := s.auth.DeleteUser(c.Request().Context(), c.Param("id"), userID(c))
	if err != nil {
		switch err {
		case auth.ErrSelfDelete:
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case auth.ErrUserNotFound:
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		default:
			return writeError(c, err)
		}
	}
	return c.NoContent(http.StatusNoContent)
}
