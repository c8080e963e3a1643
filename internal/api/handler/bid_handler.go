package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/campusmarket/marketplace-core/internal/api/metrics"
	"github.com/campusmarket/marketplace-core/internal/core/domain"
	"github.com/campusmarket/marketplace-core/internal/core/ports"
)

// BidHandler handles HTTP requests for the bid lifecycle.
type BidHandler struct {
	bids     ports.BidService
	checkout ports.CheckoutService
}

func NewBidHandler(bids ports.BidService, checkout ports.CheckoutService) *BidHandler {
	return &BidHandler{bids: bids, checkout: checkout}
}

// Create handles POST /bids/:id, where :id is the listing.
//
// @Summary      Place a bid on a listing
// @Tags         bids
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string            true  "Listing id"
// @Param        body  body      createBidRequest  true  "Bid"
// @Success      201   {object}  bidResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /bids/{id} [post]
func (h *BidHandler) Create(c echo.Context) error {
	bidderID, err := callerID(c)
	if err != nil {
		return err
	}

	var req createBidRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	bid, err := h.bids.Create(c.Request().Context(), ports.CreateBidInput{
		ListingID:       c.Param("id"),
		BidderID:        bidderID,
		ProposedPrice:   req.ProposedPrice,
		AdditionalTerms: req.AdditionalTerms,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, toBidResponse(bid))
}

// ListMine handles GET /bids/user.
//
// @Summary      List the caller's bids
// @Tags         bids
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   bidResponse
// @Failure      401  {object}  errorResponse
// @Router       /bids/user [get]
func (h *BidHandler) ListMine(c echo.Context) error {
	bidderID, err := callerID(c)
	if err != nil {
		return err
	}

	bids, err := h.bids.ListByBidder(c.Request().Context(), bidderID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBidResponses(bids))
}

// Get handles GET /bids/:id. Only the bidder and the seller may read a bid.
//
// @Summary      Get a bid
// @Tags         bids
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Bid id"
// @Success      200  {object}  bidResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /bids/{id} [get]
func (h *BidHandler) Get(c echo.Context) error {
	actorID, err := callerID(c)
	if err != nil {
		return err
	}

	bid, err := h.bids.Get(c.Request().Context(), c.Param("id"), actorID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBidResponse(bid))
}

// ListByListing handles GET /bids/listing/:id for the listing's seller.
//
// @Summary      List bids on a listing
// @Tags         bids
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Listing id"
// @Success      200  {array}   bidResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /bids/listing/{id} [get]
func (h *BidHandler) ListByListing(c echo.Context) error {
	actorID, err := callerID(c)
	if err != nil {
		return err
	}

	bids, err := h.bids.ListByListing(c.Request().Context(), c.Param("id"), actorID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBidResponses(bids))
}

// Count handles GET /bids/listing/:id/count.
//
// @Summary      Count pending bids on a listing
// @Tags         bids
// @Produce      json
// @Param        id   path      string  true  "Listing id"
// @Success      200  {object}  bidCountResponse
// @Router       /bids/listing/{id}/count [get]
func (h *BidHandler) Count(c echo.Context) error {
	listingID := c.Param("id")
	n, err := h.bids.ActiveCount(c.Request().Context(), listingID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, bidCountResponse{ListingID: listingID, Count: n})
}

// UpdateStatus handles PUT and PATCH /bids/:id/status.
//
// @Summary      Accept or reject a bid
// @Tags         bids
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string                  true  "Bid id"
// @Param        body  body      updateBidStatusRequest  true  "Target status"
// @Success      200   {object}  bidResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /bids/{id}/status [put]
func (h *BidHandler) UpdateStatus(c echo.Context) error {
	var req updateBidStatusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	return h.setStatus(c, domain.BidStatus(req.Status))
}

// Accept handles POST /bids/:id/accept.
//
// @Summary      Accept a bid
// @Tags         bids
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Bid id"
// @Success      200  {object}  bidResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Router       /bids/{id}/accept [post]
func (h *BidHandler) Accept(c echo.Context) error {
	return h.setStatus(c, domain.BidAccepted)
}

// Reject handles POST /bids/:id/reject.
//
// @Summary      Reject a bid
// @Tags         bids
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Bid id"
// @Success      200  {object}  bidResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Router       /bids/{id}/reject [post]
func (h *BidHandler) Reject(c echo.Context) error {
	return h.setStatus(c, domain.BidRejected)
}

func (h *BidHandler) setStatus(c echo.Context, status domain.BidStatus) error {
	actorID, err := callerID(c)
	if err != nil {
		return err
	}

	bid, err := h.bids.SetStatus(c.Request().Context(), c.Param("id"), actorID, status)
	if err != nil {
		return err
	}

	metrics.BidTransitionsTotal.WithLabelValues(string(bid.Status)).Inc()
	return c.JSON(http.StatusOK, toBidResponse(bid))
}

// Finalize handles POST /bids/listing/:id/finalize.
//
// @Summary      Accept the highest pending bid on a listing
// @Tags         bids
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Listing id"
// @Success      200  {object}  bidResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Router       /bids/listing/{id}/finalize [post]
func (h *BidHandler) Finalize(c echo.Context) error {
	sellerID, err := callerID(c)
	if err != nil {
		return err
	}

	bid, err := h.bids.Finalize(c.Request().Context(), c.Param("id"), sellerID)
	if err != nil {
		return err
	}

	metrics.BidTransitionsTotal.WithLabelValues(string(bid.Status)).Inc()
	return c.JSON(http.StatusOK, toBidResponse(bid))
}

// Pay handles POST /bids/:id/pay. Repeated calls return the same checkout.
//
// @Summary      Start checkout for an accepted bid
// @Tags         bids
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Bid id"
// @Success      200  {object}  checkoutResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /bids/{id}/pay [post]
func (h *BidHandler) Pay(c echo.Context) error {
	requestorID, err := callerID(c)
	if err != nil {
		return err
	}

	res, err := h.checkout.CheckoutBid(c.Request().Context(), c.Param("id"), requestorID)
	recordCheckout("bid", res, err)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toCheckoutResponse(res))
}

func recordCheckout(source string, res *ports.CheckoutResult, err error) {
	result := "created"
	switch {
	case err != nil:
		result = "error"
	case res.Reused:
		result = "reused"
	}
	metrics.CheckoutsTotal.WithLabelValues(source, result).Inc()
}
