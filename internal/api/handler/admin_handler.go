package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/campusmarket/marketplace-core/internal/core/ports"
)

// AdminHandler serves operator endpoints. Routes require the ADMIN authority.
type AdminHandler struct {
	webhooks ports.WebhookService
}

func NewAdminHandler(webhooks ports.WebhookService) *AdminHandler {
	return &AdminHandler{webhooks: webhooks}
}

// Reconciliation handles GET /admin/reconciliation.
//
// @Summary      Webhook events that need operator attention
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  reconciliationResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Router       /admin/reconciliation [get]
func (h *AdminHandler) Reconciliation(c echo.Context) error {
	records, err := h.webhooks.PendingReconciliation(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toReconciliationResponse(records))
}
