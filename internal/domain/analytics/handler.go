package analytics

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts /analytics. The dashboard and the revenue report
// are gated separately because they unlock with different features.
func (h *Handler) RegisterRoutes(api *echo.Group, dashboardGate, revenueGate echo.MiddlewareFunc) {
	g := api.Group("/analytics")
	g.GET("/dashboard", h.GetDashboard, dashboardGate)
	g.GET("/overview", h.GetOverview, dashboardGate)
	g.GET("/revenue", h.GetRevenue, revenueGate)
}

func (h *Handler) GetDashboard(c echo.Context) error {
	st, err := h.svc.Dashboard(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) GetRevenue(c echo.Context) error {
	period, err := ParsePeriod(c.QueryParam("period"))
	if err != nil {
		return err
	}
	rep, err := h.svc.Revenue(c.Request().Context(), period)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) GetOverview(c echo.Context) error {
	period, err := ParsePeriod(c.QueryParam("period"))
	if err != nil {
		return err
	}
	ov, err := h.svc.Overview(c.Request().Context(), period)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ov)
}
