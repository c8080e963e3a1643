package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
)

const identityKey = "identity"

var (
	errNoBearer       = errors.New("no bearer credential")
	errSubjectUnknown = errors.New("token subject does not resolve to an active user")
	errUserMismatch   = errors.New("token user id does not match subject")
)

// TokenVerifier is the part of the token service the resolver needs.
type TokenVerifier interface {
	Verify(token string) (*domain.TokenClaims, error)
}

// UserLookup finds the account a token subject refers to.
type UserLookup interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
}

// ResolveIdentity attaches the caller's identity to the request when the
// Authorization header carries a valid session token for an active user.
// It never rejects a request: any failure leaves the request anonymous and
// the route guards decide what to do with it.
func ResolveIdentity(tokens TokenVerifier, users UserLookup, log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := resolve(c.Request().Context(), c.Request().Header.Get(echo.HeaderAuthorization), tokens, users)
			if err != nil {
				if !errors.Is(err, errNoBearer) {
					log.Debug().Err(err).Str("path", c.Path()).Msg("proceeding anonymously")
				}
				return next(c)
			}

			SetIdentity(c, id)
			return next(c)
		}
	}
}

func resolve(ctx context.Context, header string, tokens TokenVerifier, users UserLookup) (*domain.Identity, error) {
	raw, err := extractBearer(header)
	if err != nil {
		return nil, err
	}

	claims, err := tokens.Verify(raw)
	if err != nil {
		return nil, err
	}
	if claims.Kind != domain.TokenSession {
		return nil, domain.ErrTokenKind
	}

	user, err := users.FindByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, errSubjectUnknown
		}
		return nil, err
	}
	if !user.CanAuthenticate() {
		return nil, errSubjectUnknown
	}
	if user.ID != claims.UserID {
		return nil, errUserMismatch
	}

	return &domain.Identity{
		UserID:      user.ID,
		Email:       user.Email,
		Authorities: user.Authorities,
	}, nil
}

func extractBearer(header string) (string, error) {
	if header == "" {
		return "", errNoBearer
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", domain.ErrTokenMalformed
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", domain.ErrTokenMalformed
	}
	return token, nil
}

// SetIdentity attaches id to the request context.
func SetIdentity(c echo.Context, id *domain.Identity) {
	c.Set(identityKey, id)
}

// IdentityFrom returns the identity attached by ResolveIdentity, or nil for
// anonymous requests.
func IdentityFrom(c echo.Context) *domain.Identity {
	id, _ := c.Get(identityKey).(*domain.Identity)
	return id
}
