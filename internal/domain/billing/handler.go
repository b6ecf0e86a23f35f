package billing

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the billing endpoints. api must already require a
// signed-in session.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/billing")
	g.GET("/plans", h.ListPlans)
	g.GET("/subscription", h.GetSubscription)
	g.GET("/entitlements", h.GetEntitlements)
	g.POST("/refresh", h.Refresh)
	g.GET("/checkout/config", h.GetCheckoutConfig)
	g.POST("/checkout", h.CreateCheckout)
	g.POST("/subscriptions/:id/cancel", h.CancelSubscription)
	g.PUT("/subscriptions/:id", h.UpdateSubscription)
	g.POST("/subscriptions/:id/resume", h.ResumeSubscription)
	g.GET("/subscriptions/:id/proration", h.PreviewProration)
}

type priceRequest struct {
	PriceID string `json:"price_id"`
}

func (h *Handler) ListPlans(c echo.Context) error {
	st, err := h.svc.State(c.Request().Context())
	if err != nil {
		return err
	}
	plans := st.Plans
	if plans == nil {
		plans = []Plan{}
	}
	return c.JSON(http.StatusOK, plans)
}

func (h *Handler) GetSubscription(c echo.Context) error {
	st, err := h.svc.State(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"subscription": st.Subscription,
		"fetched_at":   st.FetchedAt,
	})
}

func (h *Handler) GetEntitlements(c echo.Context) error {
	e, err := h.svc.Entitlements(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) Refresh(c echo.Context) error {
	st, err := h.svc.Refresh(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) GetCheckoutConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.CheckoutConfig())
}

func (h *Handler) CreateCheckout(c echo.Context) error {
	var req priceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	co, err := h.svc.CreateCheckout(c.Request().Context(), req.PriceID)
	if errors.Is(err, ErrCheckoutUnavailable) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, co)
}

func (h *Handler) CancelSubscription(c echo.Context) error {
	res, err := h.svc.CancelSubscription(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) UpdateSubscription(c echo.Context) error {
	var req priceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.UpdateSubscription(c.Request().Context(), c.Param("id"), req.PriceID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ResumeSubscription(c echo.Context) error {
	res, err := h.svc.ResumeSubscription(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) PreviewProration(c echo.Context) error {
	p, err := h.svc.PreviewProration(c.Request().Context(), c.Param("id"), c.QueryParam("price_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}
