package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
	"github.com/campusmarket/marketplace-core/internal/core/service"
	"github.com/campusmarket/marketplace-core/internal/infrastructure/db/memory"
)

const testSecret = "identity-test-secret"

type identityFixture struct {
	store  *memory.Store
	tokens *service.TokenService
	user   *domain.User
}

func newIdentityFixture(t *testing.T) *identityFixture {
	t.Helper()
	store := memory.NewStore()
	user := &domain.User{
		ID:          "u-alice",
		Email:       "alice@campus.edu",
		Username:    "alice",
		Status:      domain.AccountActive,
		Authorities: []string{domain.AuthorityUser},
		CreatedAt:   time.Now().UTC(),
	}
	if err := store.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return &identityFixture{store: store, tokens: service.NewTokenService(testSecret), user: user}
}

// run sends one request with the given Authorization header through the
// resolver and returns the identity the next handler observed.
func (f *identityFixture) run(t *testing.T, header string) *domain.Identity {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	var seen *domain.Identity
	mw := ResolveIdentity(f.tokens, f.store.Users(), zerolog.Nop())
	handler := mw(func(c echo.Context) error {
		called = true
		seen = IdentityFrom(c)
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("resolver must never reject, got %v", err)
	}
	if !called {
		t.Fatalf("next not called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	return seen
}

func TestResolveIdentity_ValidSession(t *testing.T) {
	f := newIdentityFixture(t)
	token, err := f.tokens.Issue(f.user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	id := f.run(t, "Bearer "+token)
	if id == nil {
		t.Fatalf("expected identity")
	}
	if id.UserID != "u-alice" || id.Email != "alice@campus.edu" {
		t.Errorf("unexpected identity %+v", id)
	}
	if !id.HasAuthority(domain.AuthorityUser) {
		t.Errorf("expected USER authority from the store, got %v", id.Authorities)
	}
}

func TestResolveIdentity_SchemeIsCaseInsensitive(t *testing.T) {
	f := newIdentityFixture(t)
	token, _ := f.tokens.Issue(f.user)

	if id := f.run(t, "bearer "+token); id == nil {
		t.Fatalf("expected identity for lower-case scheme")
	}
}

func TestResolveIdentity_Anonymous(t *testing.T) {
	f := newIdentityFixture(t)
	reset, _ := f.tokens.IssueReset(f.user)
	other := service.NewTokenService("some-other-secret")
	foreign, _ := other.Issue(f.user)
	expired, _ := service.NewTokenService(testSecret, service.WithClock(func() time.Time {
		return time.Now().Add(-11 * time.Hour)
	})).Issue(f.user)

	cases := map[string]string{
		"no header":        "",
		"wrong scheme":     "Token abc",
		"empty bearer":     "Bearer ",
		"garbage":          "Bearer not-a-token",
		"reset kind":       "Bearer " + reset,
		"foreign secret":   "Bearer " + foreign,
		"expired":          "Bearer " + expired,
		"missing scheme":   "abc",
		"basic credential": "Basic YWxpY2U6c2VjcmV0",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			if id := f.run(t, header); id != nil {
				t.Fatalf("expected anonymous request, got %+v", id)
			}
		})
	}
}

func TestResolveIdentity_UnknownOrSuspendedUser(t *testing.T) {
	f := newIdentityFixture(t)

	ghost := &domain.User{ID: "u-ghost", Email: "ghost@campus.edu"}
	token, _ := f.tokens.Issue(ghost)
	if id := f.run(t, "Bearer "+token); id != nil {
		t.Fatalf("expected unknown subject to be anonymous")
	}

	token, _ = f.tokens.Issue(f.user)
	f.store.SetAccountStatus(f.user.ID, domain.AccountSuspended)
	if id := f.run(t, "Bearer "+token); id != nil {
		t.Fatalf("expected suspended user to be anonymous")
	}
}

func TestResolveIdentity_UserIDMismatch(t *testing.T) {
	f := newIdentityFixture(t)
	forged := &domain.User{ID: "u-mallory", Email: f.user.Email}
	token, _ := f.tokens.Issue(forged)

	if id := f.run(t, "Bearer "+token); id != nil {
		t.Fatalf("expected mismatched user id to be anonymous")
	}
}

func TestExtractBearer(t *testing.T) {
	if _, err := extractBearer(""); err != errNoBearer {
		t.Errorf("expected errNoBearer, got %v", err)
	}
	tok, err := extractBearer("Bearer  abc ")
	if err != nil || tok != "abc" {
		t.Errorf("expected abc, got %q (%v)", tok, err)
	}
}
