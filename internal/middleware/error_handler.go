package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"splitEngine/internal/rest"
	"splitEngine/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ErrorHandler renders every unhandled error as {"message": ...}. Echo errors
// keep their status, domain errors go through rest.StatusFor.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := rest.StatusFor(err)
	message := err.Error()

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		message = fmt.Sprint(he.Message)
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request_failed",
			"error", err,
			"method", c.Request().Method,
			"path", c.Path(),
			"trace_id", logger.TraceIDFromContext(c.Request().Context()),
		)
		message = http.StatusText(status)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, rest.ResponseError{Message: message})
	}
	if err != nil {
		logger.Error("failed to write error response", "error", err)
	}
}
