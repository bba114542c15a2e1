package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/palletrack/pallet-system/internal/core/ports"
)

// PalletHandler serves the read-only operator views of the pallet store.
type PalletHandler struct {
	service ports.PalletService
	log     zerolog.Logger
}

func NewPalletHandler(service ports.PalletService, log zerolog.Logger) *PalletHandler {
	return &PalletHandler{service: service, log: log}
}

// List handles GET /v1/pallets.
//
// @Summary      List every pallet
// @Tags         pallets
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  palletListResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /v1/pallets [get]
func (h *PalletHandler) List(c echo.Context) error {
	operator, err := ctxOperator(c)
	if err != nil {
		return err
	}

	pallets, err := h.service.QueryAll(c.Request().Context())
	if err != nil {
		return err
	}

	h.log.Debug().Str("operator", operator).Int("count", len(pallets)).Msg("listed pallets")
	return c.JSON(http.StatusOK, toPalletList(pallets))
}

// Available handles GET /v1/pallets/available.
//
// @Summary      List available pallets matching a type or content
// @Description  A type match only returns empty pallets.
// @Tags         pallets
// @Produce      json
// @Security     BearerAuth
// @Param        target  query     string  true  "Attribute to match"  Enums(type, content)
// @Param        thing   query     string  true  "Value to match"
// @Success      200     {object}  palletListResponse
// @Failure      400     {object}  errorResponse
// @Failure      401     {object}  errorResponse
// @Failure      403     {object}  errorResponse
// @Failure      500     {object}  errorResponse
// @Router       /v1/pallets/available [get]
func (h *PalletHandler) Available(c echo.Context) error {
	if _, err := ctxOperator(c); err != nil {
		return err
	}

	var q availableQuery
	if err := c.Bind(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query")
	}
	if err := c.Validate(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	pallets, err := h.service.QueryAvailable(c.Request().Context(), ports.MatchKind(q.Target), q.Thing)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPalletList(pallets))
}

// Selections handles GET /v1/pallets/selections.
//
// @Summary      List selectable categories or contents
// @Description  With content=true, the distinct contents of available pallets; otherwise the distinct categories of available empty pallets.
// @Tags         pallets
// @Produce      json
// @Security     BearerAuth
// @Param        content  query     bool  false  "List contents instead of categories"
// @Success      200      {object}  selectionsResponse
// @Failure      400      {object}  errorResponse
// @Failure      401      {object}  errorResponse
// @Failure      403      {object}  errorResponse
// @Failure      500      {object}  errorResponse
// @Router       /v1/pallets/selections [get]
func (h *PalletHandler) Selections(c echo.Context) error {
	if _, err := ctxOperator(c); err != nil {
		return err
	}

	var q selectionsQuery
	if err := c.Bind(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query")
	}

	values, err := h.service.ListSelections(c.Request().Context(), q.Content)
	if err != nil {
		return err
	}

	resp := selectionsResponse{Values: []string{}}
	if len(values) > 0 {
		resp.Label = values[0]
		resp.Values = values[1:]
	}
	return c.JSON(http.StatusOK, resp)
}
