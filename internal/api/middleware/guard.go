package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
)

// RequireAuth rejects anonymous requests.
func RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if IdentityFrom(c) == nil {
				return domain.ErrAuthenticationRequired
			}
			return next(c)
		}
	}
}

// RequireOwner only lets the caller through when the named path parameter
// is their own user id.
func RequireOwner(param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := domain.Authorize(IdentityFrom(c), c.Param(param)); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// RequireAuthority enforces authority-based access control.
func RequireAuthority(authorities ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := IdentityFrom(c)
			if id == nil {
				return domain.ErrAuthenticationRequired
			}
			if !id.HasAuthority(authorities...) {
				return domain.ErrForbidden
			}
			return next(c)
		}
	}
}
