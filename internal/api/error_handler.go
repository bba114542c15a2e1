package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/palletrack/pallet-system/internal/core/domain"
)

// errorResponse is the JSON body of every failed operator request.
type errorResponse struct {
	Error string `json:"error"`
}

// statusFor lists the domain errors with a fixed HTTP status. An empty msg
// means the wrapped error text is returned as is.
var statusFor = []struct {
	target error
	code   int
	msg    string
}{
	{domain.ErrPalletNotFound, http.StatusNotFound, "pallet not found"},
	{domain.ErrUserNotFound, http.StatusNotFound, "user not found"},
	{domain.ErrInvalidInput, http.StatusBadRequest, ""},
	{domain.ErrInvalidTransition, http.StatusUnprocessableEntity, ""},
	{domain.ErrVersionConflict, http.StatusConflict, "record modified concurrently, retry"},
	{domain.ErrBusy, http.StatusConflict, "pallet is busy, try again"},
}

// NewHTTPErrorHandler renders errors as {"error": "<message>"}. Echo errors
// keep their code, domain errors are mapped through statusFor and anything
// else is logged and reported as a 500.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, msg := resolveError(err)
		if code == http.StatusInternalServerError {
			log.Error().
				Err(err).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Msg("unhandled error")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, errorResponse{Error: msg})
	}
}

func resolveError(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprintf("%v", he.Message)
	}

	for _, s := range statusFor {
		if !errors.Is(err, s.target) {
			continue
		}
		if s.msg == "" {
			return s.code, err.Error()
		}
		return s.code, s.msg
	}
	return http.StatusInternalServerError, "internal server error"
}
