package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Specific errors wrap one of these so the transport
// layer can map a whole family to a status code with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("conflict")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrTokenInvalid       = errors.New("invalid token")
)

// Identity and access.
var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrForbidden              = errors.New("access forbidden")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrAccountSuspended       = errors.New("account suspended")
)

// Token verification failures.
var (
	ErrTokenExpired   = fmt.Errorf("%w: expired", ErrTokenInvalid)
	ErrTokenMalformed = fmt.Errorf("%w: malformed claims", ErrTokenInvalid)
	ErrTokenSignature = fmt.Errorf("%w: bad signature", ErrTokenInvalid)
	ErrTokenKind      = fmt.Errorf("%w: wrong token kind", ErrTokenInvalid)
)

// Lookups.
var (
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrListingNotFound = fmt.Errorf("listing %w", ErrNotFound)
	ErrCartNotFound    = fmt.Errorf("cart %w", ErrNotFound)
	ErrBidNotFound     = fmt.Errorf("bid %w", ErrNotFound)
	ErrOrderNotFound   = fmt.Errorf("order %w", ErrNotFound)
	ErrPaymentNotFound = fmt.Errorf("payment %w", ErrNotFound)
)

// Business-rule violations.
var (
	ErrInvalidBidder    = fmt.Errorf("%w: cannot bid on your own listing", ErrValidation)
	ErrBiddingDisabled  = fmt.Errorf("%w: listing does not accept bids", ErrValidation)
	ErrInvalidPrice     = fmt.Errorf("%w: proposed price must be greater than zero", ErrValidation)
	ErrBelowStartingBid = fmt.Errorf("%w: proposed price is below the starting bid", ErrValidation)
	ErrEmptyCart        = fmt.Errorf("%w: cart is empty", ErrValidation)
	ErrWeakPassword     = fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)

	ErrUserExists            = fmt.Errorf("%w: user already exists", ErrConflict)
	ErrDuplicateBid          = fmt.Errorf("%w: a pending bid from this bidder already exists on the listing", ErrConflict)
	ErrListingHasAcceptedBid = fmt.Errorf("%w: listing already has an accepted bid", ErrConflict)
	ErrDuplicateOrder        = fmt.Errorf("%w: order already exists", ErrConflict)
	ErrDuplicatePayment      = fmt.Errorf("%w: an active payment already exists for the order", ErrConflict)

	ErrInvalidTransition = errors.New("invalid status transition")

	ErrBidNotAccepted     = fmt.Errorf("%w: bid is not accepted", ErrPreconditionFailed)
	ErrOrderNotPayable    = fmt.Errorf("%w: order is not awaiting payment", ErrPreconditionFailed)
	ErrListingUnavailable = fmt.Errorf("%w: listing is not available in the requested quantity", ErrPreconditionFailed)
	ErrNoPendingBids      = fmt.Errorf("%w: listing has no pending bids", ErrPreconditionFailed)
)

// ErrStatusConflict is returned by repositories when a conditional update
// finds the record in a status other than the expected one (or not at all).
// Services translate it; it never reaches the transport layer on its own.
var ErrStatusConflict = errors.New("status changed concurrently")

// Payment processor boundary.
var (
	ErrSignature       = errors.New("webhook signature verification failed")
	ErrDeserialization = errors.New("webhook payload could not be decoded")
	ErrUpstream        = errors.New("payment processor unavailable")
)
