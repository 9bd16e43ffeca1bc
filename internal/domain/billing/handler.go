package billing

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
	any := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleSender, auth.RoleReceiver))
	any.GET("/billing/credit", h.GetCreditBalance)
	any.GET("/billing/payment-methods", h.ListPaymentMethods)
	any.POST("/billing/payment-methods", h.CreateCardMethod)
	any.GET("/referrals/:id/transactions", h.ListTransactions)

	receiver := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleReceiver))
	receiver.POST("/referrals/:id/targets/:targetId/pay/credit", h.PayWithCredit)
	receiver.POST("/referrals/:id/targets/:targetId/pay/summary", h.GetPaymentSummary)
	receiver.POST("/payments/:transactionId/confirm", h.ConfirmPayment)

	sender := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleSender))
	sender.POST("/referrals/:id/targets/:targetId/prepay", h.SenderPrepay)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/billing/credit/topup", h.AddCredit)
}

func (h *Handler) GetCreditBalance(c echo.Context) error {
	actor := auth.ActorFromContext(c.Request().Context())
	balance, err := h.svc.GetCreditBalance(c.Request().Context(), actor)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, balance)
}

func (h *Handler) AddCredit(c echo.Context) error {
	var req struct {
		OrganizationID uuid.UUID `json:"organization_id"`
		Amount         int64     `json:"amount"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.OrganizationID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "organization_id is required")
	}
	if err := h.svc.AddCredit(c.Request().Context(), req.OrganizationID, req.Amount); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListPaymentMethods(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.ListPaymentMethods())
}

func (h *Handler) CreateCardMethod(c echo.Context) error {
	var req struct {
		CardToken string `json:"card_token"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	pm, err := h.svc.CreateCardMethod(c.Request().Context(), req.CardToken)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, pm)
}

func (h *Handler) ListTransactions(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.svc.ListTransactions(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) PayWithCredit(c echo.Context) error {
	referralID, targetID, err := pathIDs(c)
	if err != nil {
		return err
	}
	actor := auth.ActorFromContext(c.Request().Context())
	txn, err := h.svc.PayWithCredit(c.Request().Context(), actor, referralID, targetID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, txn)
}

func (h *Handler) GetPaymentSummary(c echo.Context) error {
	referralID, targetID, err := pathIDs(c)
	if err != nil {
		return err
	}
	var req struct {
		PaymentMethodID string `json:"payment_method_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := auth.ActorFromContext(c.Request().Context())
	summary, err := h.svc.GetPaymentSummary(c.Request().Context(), actor, referralID, targetID, req.PaymentMethodID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) ConfirmPayment(c echo.Context) error {
	txnID, err := uuid.Parse(c.Param("transactionId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid transaction id")
	}
	txn, err := h.svc.ConfirmPayment(c.Request().Context(), txnID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, txn)
}

func (h *Handler) SenderPrepay(c echo.Context) error {
	referralID, targetID, err := pathIDs(c)
	if err != nil {
		return err
	}
	actor := auth.ActorFromContext(c.Request().Context())
	txn, err := h.svc.SenderPrepay(c.Request().Context(), actor, referralID, targetID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, txn)
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
