package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/campusmarket/marketplace-core/internal/api/middleware"
	"github.com/campusmarket/marketplace-core/internal/core/domain"
)

// callerID returns the user id resolved for the request. Routes that need
// an identity sit behind RequireAuth; this check only makes a missing guard
// fail closed.
func callerID(c echo.Context) (string, error) {
	id := middleware.IdentityFrom(c)
	if id == nil || id.UserID == "" {
		return "", domain.ErrAuthenticationRequired
	}
	return id.UserID, nil
}
