package domain

import (
	"slices"
	"time"
)

// TokenKind separates the two issuance modes sharing one verification path.
type TokenKind string

const (
	TokenSession TokenKind = "session"
	TokenReset   TokenKind = "reset"
)

// TokenClaims is the verified content of an identity token.
type TokenClaims struct {
	Subject   string
	UserID    string
	Kind      TokenKind
	IssuedAt  time.Time
	ExpiresAt time.Time

	// PasswordFingerprint ties a reset token to the password it may replace.
	PasswordFingerprint string
}

// Identity is the caller resolved for a single request.
type Identity struct {
	UserID      string
	Email       string
	Authorities []string
}

// Owns reports whether the identity is the owner of a resource.
func (i *Identity) Owns(ownerID string) bool {
	return i != nil && ownerID != "" && i.UserID == ownerID
}

// HasAuthority reports whether any of the given authorities is granted.
func (i *Identity) HasAuthority(authorities ...string) bool {
	if i == nil {
		return false
	}
	for _, a := range authorities {
		if slices.Contains(i.Authorities, a) {
			return true
		}
	}
	return false
}

// Authorize applies the two-tier ownership policy: no identity is an
// authentication failure, a foreign identity is a permission failure.
func Authorize(id *Identity, ownerID string) error {
	if id == nil {
		return ErrAuthenticationRequired
	}
	if !id.Owns(ownerID) {
		return ErrForbidden
	}
	return nil
}
