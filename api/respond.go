package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"strata.evalgo.org/common"
)

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error  string              `json:"error"`
	Errors []common.FieldError `json:"errors,omitempty"`
}

// statusFor maps the error taxonomy to HTTP status codes. Restrict shares
// 409 with conflict: both mean the current state refuses the change.
func statusFor(kind common.Kind) int {
	switch kind {
	case common.KindValidation, common.KindHook:
		return http.StatusUnprocessableEntity
	case common.KindNotFound:
		return http.StatusNotFound
	case common.KindConflict, common.KindRestrict:
		return http.StatusConflict
	case common.KindAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c echo.Context, err error) error {
	status := statusFor(common.KindOf(err))
	body := ErrorResponse{Error: err.Error()}
	if status == http.StatusInternalServerError {
		// Internal detail stays in the logs.
		common.Logger.Error("request failed: ", err)
		body.Error = "internal error"
	}
	return c.JSON(status, body)
}

func writeValidation(c echo.Context, errs []common.FieldError) error {
	return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
		Error:  "validation failed",
		Errors: errs,
	})
}
