package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/palletrack/pallet-system/internal/api/handler"
	"github.com/palletrack/pallet-system/internal/api/middleware"
	"github.com/palletrack/pallet-system/internal/core/ports"
	_ "github.com/palletrack/pallet-system/internal/docs"
)

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	Pallets   ports.PalletService
	Session   http.Handler
	Checks    []handler.DependencyCheck
	JWTSecret string
	Log       zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.RequestLogger(d.Log))

	// --- Session channel ---
	e.GET("/ws", echo.WrapHandler(d.Session))

	// --- Health probes and metrics (no auth required) ---
	e.GET("/health", handler.NewHealthHandler().Liveness)
	e.GET("/health/ready", handler.NewReadinessHandler(d.Checks...).Readiness)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// --- Operator routes ---
	if d.JWTSecret == "" {
		d.Log.Warn().Msg("JWT_SECRET not set, operator routes disabled")
		return e
	}
	pallets := handler.NewPalletHandler(d.Pallets, d.Log)
	v1 := e.Group("/v1", middleware.Auth(d.JWTSecret), middleware.RBAC(middleware.RoleOperator, middleware.RoleAdmin))
	v1.GET("/pallets", pallets.List)
	v1.GET("/pallets/available", pallets.Available)
	v1.GET("/pallets/selections", pallets.Selections)

	return e
}
