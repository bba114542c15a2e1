package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/palletrack/pallet-system/internal/api/middleware"
)

// ctxOperator returns the operator subject injected by the Auth middleware.
// An empty subject means the middleware did not run and the request is rejected.
func ctxOperator(c echo.Context) (string, error) {
	sub, _ := c.Get(middleware.CtxSubject).(string)
	if sub == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return sub, nil
}
