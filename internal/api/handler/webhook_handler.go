package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/campusmarket/marketplace-core/internal/api/metrics"
	"github.com/campusmarket/marketplace-core/internal/core/domain"
	"github.com/campusmarket/marketplace-core/internal/core/ports"
)

const (
	// DefaultSignatureHeader is where Stripe puts the webhook signature.
	DefaultSignatureHeader = "Stripe-Signature"
	maxWebhookBody         = 65536
)

// WebhookHandler receives payment-processor callbacks. The route is public;
// authenticity comes from the signature over the raw body.
type WebhookHandler struct {
	service         ports.WebhookService
	signatureHeader string
}

func NewWebhookHandler(service ports.WebhookService, signatureHeader string) *WebhookHandler {
	if signatureHeader == "" {
		signatureHeader = DefaultSignatureHeader
	}
	return &WebhookHandler{service: service, signatureHeader: signatureHeader}
}

// Receive handles POST /webhook.
//
// @Summary      Payment processor webhook
// @Tags         webhook
// @Accept       json
// @Produce      json
// @Param        Stripe-Signature  header    string  true  "Processor signature over the raw body"
// @Success      200               {object}  webhookAck
// @Failure      400               {object}  errorResponse
// @Failure      500               {object}  errorResponse
// @Router       /webhook [post]
func (h *WebhookHandler) Receive(c echo.Context) error {
	start := time.Now()
	defer func() {
		metrics.WebhookProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	req := c.Request()
	payload, err := io.ReadAll(http.MaxBytesReader(c.Response(), req.Body, maxWebhookBody))
	if err != nil {
		metrics.WebhookErrorsTotal.WithLabelValues("payload").Inc()
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload").SetInternal(err)
	}

	res, err := h.service.Handle(req.Context(), payload, req.Header.Get(h.signatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSignature):
			metrics.WebhookErrorsTotal.WithLabelValues("signature").Inc()
		case errors.Is(err, domain.ErrDeserialization):
			metrics.WebhookErrorsTotal.WithLabelValues("payload").Inc()
		default:
			metrics.WebhookErrorsTotal.WithLabelValues("internal").Inc()
		}
		return err
	}

	metrics.WebhookEventsTotal.WithLabelValues(string(res.Outcome)).Inc()
	return c.JSON(http.StatusOK, webhookAck{Received: true, Outcome: string(res.Outcome)})
}
