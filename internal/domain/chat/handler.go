package chat

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medref/medref/internal/platform/apperr"
	"github.com/medref/medref/internal/platform/auth"
	"github.com/medref/medref/internal/platform/middleware"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleSender, auth.RoleReceiver))
	g.GET("/referrals/:id/targets/:targetId/messages", h.ListMessages)
	g.POST("/referrals/:id/targets/:targetId/messages", h.PostMessage)
}

func (h *Handler) PostMessage(c echo.Context) error {
	referralID, targetID, err := pathIDs(c)
	if err != nil {
		return err
	}
	var req struct {
		SenderName string `json:"sender_name"`
		Text       string `json:"text"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := auth.ActorFromContext(c.Request().Context())
	name := middleware.SanitizeString(req.SenderName)
	text := middleware.SanitizeString(req.Text)
	m, err := h.svc.PostMessage(c.Request().Context(), actor, referralID, targetID, name, text)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) ListMessages(c echo.Context) error {
	referralID, targetID, err := pathIDs(c)
	if err != nil {
		return err
	}
	actor := auth.ActorFromContext(c.Request().Context())
	items, err := h.svc.ListMessages(c.Request().Context(), actor, referralID, targetID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func pathIDs(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	referralID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid referral id")
	}
	targetID, err := uuid.Parse(c.Param("targetId"))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid target id")
	}
	return referralID, targetID, nil
}
