package referral

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medref/medref/internal/domain/directory"
	"github.com/medref/medref/internal/platform/apperr"
	"github.com/medref/medref/internal/platform/auth"
	"github.com/medref/medref/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	sender := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleSender))
	sender.POST("/referrals", h.CreateDraft)
	sender.PUT("/referrals/:id", h.UpdateDraft)
	sender.GET("/referrals", h.ListBySender)
	sender.GET("/referrals/:id", h.GetReferral)
	sender.GET("/referrals/:id/receivers", h.ListReceivers)
	sender.POST("/referrals/:id/send", h.Send)

	receiver := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleReceiver))
	receiver.GET("/departments/:id/inbox", h.DepartmentInbox)
	receiver.POST("/referrals/:id/targets/:targetId/accept", h.Accept)
	receiver.POST("/referrals/:id/targets/:targetId/reject", h.Reject)
	receiver.POST("/guest-organizations/:id/claim", h.ClaimGuest)

	// Either side may close out a paid referral.
	both := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleSender, auth.RoleReceiver))
	both.POST("/referrals/:id/targets/:targetId/complete", h.Complete)
}

func (h *Handler) CreateDraft(c echo.Context) error {
	var ref Referral
	if err := c.Bind(&ref); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := auth.ActorFromContext(c.Request().Context())
	if err := h.svc.CreateDraft(c.Request().Context(), actor, &ref); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, ref)
}

func (h *Handler) UpdateDraft(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var ref Referral
	if err := c.Bind(&ref); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ref.ID = id
	actor := auth.ActorFromContext(c.Request().Context())
	if err := h.svc.UpdateDraft(c.Request().Context(), actor, &ref); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, ref)
}

func (h *Handler) GetReferral(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor := auth.ActorFromContext(c.Request().Context())
	ref, err := h.svc.getOwned(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, ref)
}

func (h *Handler) ListBySender(c echo.Context) error {
	pg := pagination.FromContext(c)
	actor := auth.ActorFromContext(c.Request().Context())
	items, total, err := h.svc.ListBySender(c.Request().Context(), actor, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListReceivers(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor := auth.ActorFromContext(c.Request().Context())
	if _, err := h.svc.getOwned(c.Request().Context(), actor, id); err != nil {
		return apperr.ToHTTP(err)
	}
	items, err := h.svc.ListReceivers(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

// SendRequest is the fan-out payload: directory selections plus free-text
// guest organizations.
type SendRequest struct {
	Selections []directory.TargetSelection `json:"selections"`
	Guests     []directory.GuestDescriptor `json:"guests"`
}

func (h *Handler) Send(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req SendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := auth.ActorFromContext(c.Request().Context())
	ref, err := h.svc.Send(c.Request().Context(), actor, id, req.Selections, req.Guests)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, ref)
}

func (h *Handler) DepartmentInbox(c echo.Context) error {
	deptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	actor := auth.ActorFromContext(c.Request().Context())
	items, total, err := h.svc.ListReceiversByDepartment(c.Request().Context(), actor, deptID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Accept(c echo.Context) error {
	referralID, targetID, err := pathIDs(c)
	if err != nil {
		return err
	}
	actor := auth.ActorFromContext(c.Request().Context())
	rc, err := h.svc.Accept(c.Request().Context(), actor, referralID, targetID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rc)
}

func (h *Handler) Reject(c echo.Context) error {
	referralID, targetID, err := pathIDs(c)
	if err != nil {
		return err
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := auth.ActorFromContext(c.Request().Context())
	rc, err := h.svc.Reject(c.Request().Context(), actor, referralID, targetID, req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rc)
}

func (h *Handler) Complete(c echo.Context) error {
	referralID, targetID, err := pathIDs(c)
	if err != nil {
		return err
	}
	actor := auth.ActorFromContext(c.Request().Context())
	rc, err := h.svc.Complete(c.Request().Context(), actor, referralID, targetID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rc)
}

func (h *Handler) ClaimGuest(c echo.Context) error {
	guestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req struct {
		DepartmentID uuid.UUID `json:"department_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.DepartmentID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "department_id is required")
	}
	actor := auth.ActorFromContext(c.Request().Context())
	moved, err := h.svc.ClaimGuestTarget(c.Request().Context(), actor, guestID, req.DepartmentID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"reassigned": moved})
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
