package rest

import (
	"errors"
	"net/http"

	"splitEngine/domain"
	"splitEngine/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ResponseError represent the response error struct
type ResponseError struct {
	Message string `json:"message"`
}

// StatusFor maps domain sentinels to HTTP status codes. The cycle check
// comes first because cycle errors also carry ErrInvalidConfiguration.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrDependencyCycle):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrCampaignNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidConfiguration),
		errors.Is(err, domain.ErrVariantNotFound),
		errors.Is(err, domain.ErrInvalidSubject):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotAssigned),
		errors.Is(err, domain.ErrCampaignExists),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrCampaignInactive):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(c echo.Context, msg string, err error) error {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(msg, "error", err, "path", c.Path(), "trace_id", logger.TraceIDFromContext(c.Request().Context()))
	}
	return c.JSON(status, ResponseError{Message: err.Error()})
}

func badRequest(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
}
