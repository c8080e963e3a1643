package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
)

var tokenTestUser = &domain.User{ID: "user-1", Email: "alice@dal.ca"}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTokenService(clock *fakeClock) *TokenService {
	return NewTokenService("test-secret", WithClock(clock.Now))
}

func TestTokenService_IssueVerify_RoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := newTestTokenService(clock)

	token, err := svc.Issue(tokenTestUser)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "alice@dal.ca" || claims.UserID != "user-1" {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if claims.Kind != domain.TokenSession {
		t.Errorf("expected session token, got %s", claims.Kind)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt); got != DefaultSessionTTL {
		t.Errorf("expected 10h lifetime, got %s", got)
	}
}

func TestTokenService_SessionExpiryBoundary(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := newTestTokenService(clock)

	token, err := svc.Issue(tokenTestUser)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock.Advance(DefaultSessionTTL - time.Second)
	if _, err := svc.Verify(token); err != nil {
		t.Fatalf("expected token valid just before expiry, got %v", err)
	}

	clock.Advance(time.Second)
	if _, err := svc.Verify(token); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired at expiresAt, got %v", err)
	}
}

func TestTokenService_ResetTokenLifetime(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := newTestTokenService(clock)

	token, err := svc.IssueReset(tokenTestUser)
	if err != nil {
		t.Fatalf("IssueReset: %v", err)
	}
	claims, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Kind != domain.TokenReset {
		t.Errorf("expected reset token, got %s", claims.Kind)
	}

	clock.Advance(DefaultResetTTL)
	if _, err := svc.Verify(token); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected reset token expired after 10m, got %v", err)
	}
}

func TestTokenService_ResetBoundToPassword(t *testing.T) {
	svc := newTestTokenService(&fakeClock{t: time.Now()})
	user := &domain.User{ID: "user-1", Email: "alice@dal.ca", PasswordHash: "$2a$10$old"}

	token, err := svc.IssueReset(user)
	if err != nil {
		t.Fatalf("IssueReset: %v", err)
	}
	claims, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.PasswordFingerprint == "" || claims.PasswordFingerprint == user.PasswordHash {
		t.Fatalf("expected a keyed fingerprint, got %q", claims.PasswordFingerprint)
	}
	if !svc.ValidateReset(claims, user) {
		t.Errorf("expected reset valid against the current password")
	}

	changed := *user
	changed.PasswordHash = "$2a$10$new"
	if svc.ValidateReset(claims, &changed) {
		t.Errorf("expected reset invalid once the password changed")
	}
	other := *user
	other.ID = "user-2"
	if svc.ValidateReset(claims, &other) {
		t.Errorf("expected reset invalid for another user")
	}

	session, _ := svc.Issue(user)
	sessionClaims, _ := svc.Verify(session)
	if svc.ValidateReset(sessionClaims, user) {
		t.Errorf("expected session claims refused")
	}
}

func TestTokenService_SignatureErrors(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	svc := newTestTokenService(clock)
	other := NewTokenService("another-secret", WithClock(clock.Now))

	token, err := other.Issue(tokenTestUser)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := svc.Verify(token); !errors.Is(err, domain.ErrTokenSignature) {
		t.Errorf("expected ErrTokenSignature for foreign secret, got %v", err)
	}

	own, err := svc.Issue(tokenTestUser)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	parts := strings.Split(own, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)
	if _, err := svc.Verify(tampered); !errors.Is(err, domain.ErrTokenSignature) {
		t.Errorf("expected ErrTokenSignature for tampered token, got %v", err)
	}
}

func TestTokenService_RejectsOtherAlgorithms(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	svc := newTestTokenService(clock)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub":    "alice@dal.ca",
		"userId": "user-1",
		"typ":    "session",
		"iat":    clock.t.Unix(),
		"exp":    clock.t.Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.Verify(signed); !errors.Is(err, domain.ErrTokenSignature) {
		t.Fatalf("expected ErrTokenSignature for HS512, got %v", err)
	}
}

func TestTokenService_MalformedClaims(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	svc := newTestTokenService(clock)
	now := clock.t

	cases := map[string]jwt.MapClaims{
		"missing userId": {"sub": "alice@dal.ca", "typ": "session", "iat": now.Unix(), "exp": now.Add(time.Hour).Unix()},
		"missing exp":    {"sub": "alice@dal.ca", "userId": "user-1", "typ": "session", "iat": now.Unix()},
		"mistyped exp":   {"sub": "alice@dal.ca", "userId": "user-1", "typ": "session", "iat": now.Unix(), "exp": "tomorrow"},
		"exp before iat": {"sub": "alice@dal.ca", "userId": "user-1", "typ": "session", "iat": now.Add(2 * time.Hour).Unix(), "exp": now.Add(time.Hour).Unix()},
		"unknown kind":   {"sub": "alice@dal.ca", "userId": "user-1", "typ": "refresh", "iat": now.Unix(), "exp": now.Add(time.Hour).Unix()},
		"reset no pwf":   {"sub": "alice@dal.ca", "userId": "user-1", "typ": "reset", "iat": now.Unix(), "exp": now.Add(time.Hour).Unix()},
	}

	for name, claims := range cases {
		t.Run(name, func(t *testing.T) {
			signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
			if err != nil {
				t.Fatalf("sign: %v", err)
			}
			if _, err := svc.Verify(signed); !errors.Is(err, domain.ErrTokenMalformed) {
				t.Fatalf("expected ErrTokenMalformed, got %v", err)
			}
		})
	}

	if _, err := svc.Verify("not-a-token"); !errors.Is(err, domain.ErrTokenMalformed) {
		t.Errorf("expected ErrTokenMalformed for garbage, got %v", err)
	}
}

func TestTokenService_ValidateHelpers(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	svc := newTestTokenService(clock)

	token, err := svc.Issue(tokenTestUser)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if !svc.ValidateOwnership(token, tokenTestUser.ID) {
		t.Errorf("expected ownership valid right after issuance")
	}
	if svc.ValidateOwnership(token, "user-2") {
		t.Errorf("expected ownership invalid for another user")
	}
	if !svc.ValidateForUser(token, "alice@dal.ca") {
		t.Errorf("expected subject match")
	}
	if svc.ValidateForUser(token, "bob@dal.ca") {
		t.Errorf("expected subject mismatch")
	}

	clock.Advance(DefaultSessionTTL)
	if svc.ValidateOwnership(token, tokenTestUser.ID) {
		t.Errorf("expected ownership invalid after expiry")
	}
}

func TestTokenService_IssueRequiresIdentity(t *testing.T) {
	svc := NewTokenService("test-secret")
	if _, err := svc.Issue(&domain.User{Email: "x@dal.ca"}); err == nil {
		t.Fatalf("expected error for user without id")
	}
}
