package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/campusmarket/marketplace-core/internal/core/ports"
)

// OrderHandler handles HTTP requests for orders and their payments.
type OrderHandler struct {
	orders   ports.OrderService
	checkout ports.CheckoutService
}

func NewOrderHandler(orders ports.OrderService, checkout ports.CheckoutService) *OrderHandler {
	return &OrderHandler{orders: orders, checkout: checkout}
}

// CreateFromCart handles POST /orders/cart.
//
// @Summary      Create an order from the caller's cart
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Success      201  {object}  orderResponse
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Router       /orders/cart [post]
func (h *OrderHandler) CreateFromCart(c echo.Context) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}

	order, err := h.orders.CreateFromCart(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toOrderResponse(order))
}

// Get handles GET /orders/:id.
//
// @Summary      Get an order
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Order id"
// @Success      200  {object}  orderResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /orders/{id} [get]
func (h *OrderHandler) Get(c echo.Context) error {
	requestorID, err := callerID(c)
	if err != nil {
		return err
	}

	order, err := h.orders.Get(c.Request().Context(), c.Param("id"), requestorID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toOrderResponse(order))
}

// Pay handles POST /orders/:id/pay.
//
// @Summary      Start checkout for a pending order
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Order id"
// @Success      200  {object}  checkoutResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /orders/{id}/pay [post]
func (h *OrderHandler) Pay(c echo.Context) error {
	requestorID, err := callerID(c)
	if err != nil {
		return err
	}

	res, err := h.checkout.CheckoutOrder(c.Request().Context(), c.Param("id"), requestorID)
	recordCheckout("order", res, err)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toCheckoutResponse(res))
}

// PaymentStatus handles GET /orders/:id/payment-status.
//
// @Summary      Get the payment status of an order
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Order id"
// @Success      200  {object}  paymentStatusResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /orders/{id}/payment-status [get]
func (h *OrderHandler) PaymentStatus(c echo.Context) error {
	requestorID, err := callerID(c)
	if err != nil {
		return err
	}

	view, err := h.orders.PaymentStatusByOrder(c.Request().Context(), c.Param("id"), requestorID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPaymentStatusResponse(view))
}

// PaymentStatusByReference handles GET /orders/payments/:ref/status, where
// :ref is the processor's checkout session id.
//
// @Summary      Get a payment status by external reference
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        ref  path      string  true  "Processor checkout session id"
// @Success      200  {object}  paymentStatusResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /orders/payments/{ref}/status [get]
func (h *OrderHandler) PaymentStatusByReference(c echo.Context) error {
	requestorID, err := callerID(c)
	if err != nil {
		return err
	}

	view, err := h.orders.PaymentStatusByReference(c.Request().Context(), c.Param("ref"), requestorID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPaymentStatusResponse(view))
}

// ListByUser handles GET /orders/user/:userId. The route guard restricts
// :userId to the caller.
//
// @Summary      Order history
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        userId  path      string  true  "User id"
// @Success      200     {array}   orderResponse
// @Failure      401     {object}  errorResponse
// @Failure      403     {object}  errorResponse
// @Router       /orders/user/{userId} [get]
func (h *OrderHandler) ListByUser(c echo.Context) error {
	orders, err := h.orders.ListByUser(c.Request().Context(), c.Param("userId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toOrderResponses(orders))
}

// ListPayments handles GET /orders/user/:userId/payments.
//
// @Summary      Payment history
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        userId  path      string  true  "User id"
// @Success      200     {array}   paymentResponse
// @Failure      401     {object}  errorResponse
// @Failure      403     {object}  errorResponse
// @Router       /orders/user/{userId}/payments [get]
func (h *OrderHandler) ListPayments(c echo.Context) error {
	payments, err := h.orders.ListPayments(c.Request().Context(), c.Param("userId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPaymentResponses(payments))
}
