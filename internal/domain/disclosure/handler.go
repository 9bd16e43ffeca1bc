package disclosure

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medref/medref/internal/platform/apperr"
	"github.com/medref/medref/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleReceiver))
	g.GET("/referrals/:id/targets/:targetId/view", h.GetView)
	g.GET("/referrals/:id/targets/:targetId/documents/:slot", h.GetDocument)
}

func (h *Handler) GetView(c echo.Context) error {
	referralID, targetID, err := pathIDs(c)
	if err != nil {
		return err
	}
	actor := auth.ActorFromContext(c.Request().Context())
	view, err := h.svc.ViewFor(c.Request().Context(), actor, referralID, targetID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) GetDocument(c echo.Context) error {
	referralID, targetID, err := pathIDs(c)
	if err != nil {
		return err
	}
	actor := auth.ActorFromContext(c.Request().Context())
	ref, err := h.svc.DocumentRef(c.Request().Context(), actor, referralID, targetID, c.Param("slot"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"ref": ref})
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
