package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
	"github.com/campusmarket/marketplace-core/internal/core/ports"
	"github.com/campusmarket/marketplace-core/internal/infrastructure/db/memory"
)

func newTestAuthService() (*AuthService, *memory.Store, *recordingNotifier, *TokenService) {
	store := memory.NewStore()
	notifier := &recordingNotifier{}
	tokens := NewTokenService("test-secret")
	return NewAuthService(store.Users(), tokens, notifier, zerolog.Nop()), store, notifier, tokens
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	svc, _, _, tokens := newTestAuthService()
	ctx := context.Background()

	user, err := svc.Register(ctx, ports.RegisterInput{Email: " Alice@Dal.ca ", Username: "alice", Password: "hunter22"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "alice@dal.ca" {
		t.Errorf("expected normalized email, got %q", user.Email)
	}
	if user.PasswordHash == "hunter22" || user.PasswordHash == "" {
		t.Errorf("expected a password hash")
	}
	if !user.CanAuthenticate() {
		t.Errorf("expected new account to be active")
	}

	token, logged, err := svc.Login(ctx, "alice@dal.ca", "hunter22")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if logged.ID != user.ID {
		t.Errorf("expected the registered user, got %s", logged.ID)
	}
	if !tokens.ValidateOwnership(token, user.ID) {
		t.Errorf("expected issued token to belong to the user")
	}
}

func TestAuthService_Register_Rejections(t *testing.T) {
	svc, _, _, _ := newTestAuthService()
	ctx := context.Background()
	if _, err := svc.Register(ctx, ports.RegisterInput{Email: "bob@dal.ca", Username: "bob", Password: "password1"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	cases := map[string]struct {
		in      ports.RegisterInput
		wantErr error
	}{
		"bad email":      {ports.RegisterInput{Email: "not-an-email", Username: "x", Password: "password1"}, domain.ErrValidation},
		"no username":    {ports.RegisterInput{Email: "c@dal.ca", Password: "password1"}, domain.ErrValidation},
		"short password": {ports.RegisterInput{Email: "c@dal.ca", Username: "c", Password: "short"}, domain.ErrWeakPassword},
		"taken email":    {ports.RegisterInput{Email: "BOB@dal.ca", Username: "bob2", Password: "password1"}, domain.ErrUserExists},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tc.in); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestAuthService_Login_Failures(t *testing.T) {
	svc, store, _, _ := newTestAuthService()
	ctx := context.Background()
	user, err := svc.Register(ctx, ports.RegisterInput{Email: "carol@dal.ca", Username: "carol", Password: "password1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, _, err := svc.Login(ctx, "carol@dal.ca", "wrong-password"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@dal.ca", "password1"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "", ""); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for empty input, got %v", err)
	}

	store.SetAccountStatus(user.ID, domain.AccountSuspended)
	if _, _, err := svc.Login(ctx, "carol@dal.ca", "password1"); !errors.Is(err, domain.ErrAccountSuspended) {
		t.Errorf("expected ErrAccountSuspended, got %v", err)
	}
}

func TestAuthService_PasswordReset(t *testing.T) {
	svc, _, notifier, tokens := newTestAuthService()
	ctx := context.Background()
	user, err := svc.Register(ctx, ports.RegisterInput{Email: "dan@dal.ca", Username: "dan", Password: "password1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := svc.ForgotPassword(ctx, "ghost@dal.ca"); err != nil {
		t.Errorf("unknown email should be accepted silently, got %v", err)
	}
	if err := svc.ForgotPassword(ctx, "dan@dal.ca"); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	sent := notifier.ofType(domain.NotifyPasswordReset)
	if len(sent) != 1 || sent[0].UserID != user.ID {
		t.Fatalf("expected one reset notification, got %+v", sent)
	}
	resetToken := sent[0].Secret
	if resetToken == "" || strings.Contains(sent[0].Message, resetToken) {
		t.Fatalf("expected the token only in Secret, got %+v", sent[0])
	}

	session, err := tokens.Issue(user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := svc.ResetPassword(ctx, session, "new-password"); !errors.Is(err, domain.ErrTokenKind) {
		t.Errorf("expected session tokens refused for reset, got %v", err)
	}
	if err := svc.ResetPassword(ctx, resetToken, "short"); !errors.Is(err, domain.ErrWeakPassword) {
		t.Errorf("expected ErrWeakPassword, got %v", err)
	}
	if err := svc.ResetPassword(ctx, resetToken, "new-password"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if _, _, err := svc.Login(ctx, "dan@dal.ca", "password1"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("expected old password rejected, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "dan@dal.ca", "new-password"); err != nil {
		t.Errorf("expected new password accepted, got %v", err)
	}

	// a used token is spent
	if err := svc.ResetPassword(ctx, resetToken, "third-password"); !errors.Is(err, domain.ErrTokenExpired) {
		t.Errorf("expected a used reset token refused, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "dan@dal.ca", "new-password"); err != nil {
		t.Errorf("expected password unchanged by the replay, got %v", err)
	}
}
