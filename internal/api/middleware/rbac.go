package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Operator REST roles.
const (
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// RBAC rejects requests whose role, as injected by Auth, is not allowed.
func RBAC(allowedRoles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[r] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(CtxRole).(string)
			if _, ok := allowed[role]; !ok {
				return echo.NewHTTPError(http.StatusForbidden, "access forbidden")
			}
			return next(c)
		}
	}
}
